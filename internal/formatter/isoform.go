// Package formatter renders database results for the user: exact markdown for
// isoform sequences, the size-capped data context handed to the generation
// model, and small HTML fragments for the chat front end.
package formatter

import (
	"fmt"
	"strings"

	"github.com/genegpt-server/internal/domain"
)

const notAvailable = "Not available"

// FormatIsoform renders result for req without any model involvement. A
// failed fetch yields an apology naming the gene.
func FormatIsoform(result domain.DatabaseResult, req *domain.IsoformRequest) string {
	if !result.Success {
		return fmt.Sprintf("I couldn't retrieve isoform data for %s from UniProt (%s). Please try again.",
			result.SearchTerm, result.Error)
	}
	data := result.Data
	if str(data, "gene_name") == "" {
		data = withGene(data, result.SearchTerm)
	}
	if req != nil && req.Specific {
		return FormatSpecificIsoform(data)
	}
	return FormatAllIsoforms(data)
}

// FormatSpecificIsoform renders the requested isoform with its full sequence,
// followed by every known isoform of the gene with the requested one marked.
func FormatSpecificIsoform(data map[string]any) string {
	gene := geneName(data)
	known := records(data, "isoforms")
	requested := record(data, "requested_isoform")

	var b strings.Builder
	switch {
	case str(data, "requested_isoform_error") != "":
		fmt.Fprintf(&b, "**%s isoform lookup**\n\n%s\n", gene, str(data, "requested_isoform_error"))
	case requested == nil:
		if len(known) == 0 {
			return noIsoforms(gene)
		}
		fmt.Fprintf(&b, "**%s isoform lookup**\n\nThe requested isoform is not available.\n", gene)
	default:
		number, _ := integer(requested, "number")
		id := str(requested, "uniprot_id")
		fmt.Fprintf(&b, "**%s Isoform %d**", gene, number)
		if id != "" {
			fmt.Fprintf(&b, " (%s)", id)
		}
		b.WriteString("\n\n| Field | Value |\n|-------|-------|\n")
		fmt.Fprintf(&b, "| UniProt ID | %s |\n", orNotAvailable(id))
		fmt.Fprintf(&b, "| Name | %s |\n", orNotAvailable(str(requested, "name")))
		fmt.Fprintf(&b, "| Synonyms | %s |\n", joinOrNone(strs(requested, "synonyms")))
		fmt.Fprintf(&b, "| Sequence Length | %s |\n", lengthText(requested))
		fmt.Fprintf(&b, "| Sequence Status | %s |\n", orNotAvailable(str(requested, "sequence_status")))
		fmt.Fprintf(&b, "| Note | %s |\n", noneIfEmpty(str(requested, "note")))
		b.WriteString("\n**Sequence**\n")
		writeSequence(&b, str(requested, "sequence"))
	}

	if len(known) > 0 {
		requestedNumber, _ := integer(requested, "number")
		fmt.Fprintf(&b, "\n**All known isoforms of %s** (%d)\n\n", gene, len(known))
		b.WriteString("| # | Name | UniProt ID | Length | |\n|---|------|------------|--------|---|\n")
		for i, iso := range known {
			marker := ""
			if i+1 == requestedNumber {
				marker = "requested"
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
				i+1, orNotAvailable(str(iso, "name")), orNotAvailable(firstID(iso)), lengthText(iso), marker)
		}
	}

	b.WriteString("\nSource: UniProt")
	return b.String()
}

// FormatAllIsoforms renders every isoform in source order. Numbering is
// positional and starts at 1.
func FormatAllIsoforms(data map[string]any) string {
	gene := geneName(data)
	all := records(data, "all_isoforms_data")
	if len(all) == 0 {
		if msg := str(data, "all_isoforms_error"); msg != "" {
			return msg
		}
		return noIsoforms(gene)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s isoforms** (%d found)\n", gene, len(all))
	for i, iso := range all {
		id := str(iso, "uniprot_id")
		if id == "" || id == "N/A" {
			id = firstID(iso)
		}
		fmt.Fprintf(&b, "\n### Isoform %d: %s\n\n", i+1, orNotAvailable(str(iso, "name")))
		fmt.Fprintf(&b, "- **UniProt ID**: %s\n", orNotAvailable(id))
		fmt.Fprintf(&b, "- **Name**: %s\n", orNotAvailable(str(iso, "name")))
		fmt.Fprintf(&b, "- **Length**: %s\n", lengthText(iso))
		fmt.Fprintf(&b, "- **Status**: %s\n", orNotAvailable(str(iso, "sequence_status")))
		fmt.Fprintf(&b, "- **Synonyms**: %s\n", joinOrNone(strs(iso, "synonyms")))
		fmt.Fprintf(&b, "- **Note**: %s\n", noneIfEmpty(str(iso, "note")))
		b.WriteString("\n**Sequence**\n")
		writeSequence(&b, str(iso, "sequence"))
	}
	b.WriteString("\nSource: UniProt")
	return b.String()
}

func writeSequence(b *strings.Builder, seq string) {
	if seq == "" {
		b.WriteString(notAvailable + "\n")
		return
	}
	b.WriteString("```\n")
	b.WriteString(seq)
	b.WriteString("\n```\n")
}

func lengthText(m map[string]any) string {
	if n, ok := integer(m, "sequence_length"); ok && n > 0 {
		return fmt.Sprintf("%d amino acids", n)
	}
	if seq := str(m, "sequence"); seq != "" {
		return fmt.Sprintf("%d amino acids", len(seq))
	}
	return notAvailable
}

func firstID(iso map[string]any) string {
	if id := str(iso, "uniprot_id"); id != "" && id != "N/A" {
		return id
	}
	if ids := strs(iso, "ids"); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func geneName(data map[string]any) string {
	for _, key := range []string{"gene_name", "accession"} {
		if v := str(data, key); v != "" {
			return v
		}
	}
	return "the requested gene"
}

func withGene(data map[string]any, gene string) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["gene_name"] = strings.ToUpper(gene)
	return out
}

func noIsoforms(gene string) string {
	return fmt.Sprintf("No isoforms found for %s.", gene)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}

func noneIfEmpty(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
