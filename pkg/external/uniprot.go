package external

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/resolver"
)

const defaultUniProtURL = "https://rest.uniprot.org"

var isoformSubCommand = regexp.MustCompile(`^isoform\s*(-?\d+)$`)

// UniProtClient fetches protein entries, features and isoform sequences.
type UniProtClient struct {
	rest *restClient
}

// NewUniProtClient creates a new UniProt REST client
func NewUniProtClient(config domain.APIConfig) *UniProtClient {
	return &UniProtClient{rest: newRESTClient("UniProt", config, defaultUniProtURL)}
}

type uniprotText struct {
	Value string `json:"value"`
}

type uniprotEntry struct {
	PrimaryAccession   string `json:"primaryAccession"`
	ProteinDescription struct {
		RecommendedName struct {
			FullName uniprotText `json:"fullName"`
		} `json:"recommendedName"`
	} `json:"proteinDescription"`
	Genes []struct {
		GeneName uniprotText `json:"geneName"`
	} `json:"genes"`
	Organism struct {
		ScientificName string `json:"scientificName"`
	} `json:"organism"`
	Sequence struct {
		Value     string `json:"value"`
		Length    int    `json:"length"`
		MolWeight int    `json:"molWeight"`
	} `json:"sequence"`
	Comments []uniprotComment `json:"comments"`
	Features []uniprotFeature `json:"features"`
}

type uniprotComment struct {
	CommentType string           `json:"commentType"`
	Texts       []uniprotText    `json:"texts"`
	Isoforms    []uniprotIsoform `json:"isoforms"`
}

type uniprotIsoform struct {
	Name                  uniprotText   `json:"name"`
	Synonyms              []uniprotText `json:"synonyms"`
	IsoformIDs            []string      `json:"isoformIds"`
	IsoformSequenceStatus string        `json:"isoformSequenceStatus"`
	Note                  struct {
		Texts []uniprotText `json:"texts"`
	} `json:"note"`
}

type uniprotFeature struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Location    struct {
		Start struct {
			Value *int `json:"value"`
		} `json:"start"`
		End struct {
			Value *int `json:"value"`
		} `json:"end"`
	} `json:"location"`
}

type uniprotSearchResponse struct {
	Results []struct {
		PrimaryAccession string `json:"primaryAccession"`
	} `json:"results"`
}

var featureGroups = map[string]string{
	"Motif":                 "motifs",
	"Short sequence motif":  "motifs",
	"Domain":                "domains",
	"Topological domain":    "domains",
	"Transmembrane":         "domains",
	"Zinc finger":           "domains",
	"DNA binding":           "domains",
	"DNA-binding region":    "domains",
	"Repeat":                "domains",
	"Compositional bias":    "domains",
	"Region":                "regions",
	"Region of interest":    "regions",
	"Coiled coil":           "regions",
	"Disordered":            "regions",
	"Binding site":          "binding_sites",
	"Active site":           "active_sites",
	"Modified residue":      "modifications",
	"Glycosylation":         "modifications",
	"Lipidation":            "modifications",
	"Cross-link":            "modifications",
	"Disulfide bond":        "modifications",
}

// Fetch implements domain.Fetcher. subCommand "isoform N" adds the sequence
// of isoform N, "isoforms" adds every isoform sequence.
func (c *UniProtClient) Fetch(ctx context.Context, searchTerm, subCommand string) (map[string]any, error) {
	gene, accession := c.identify(searchTerm)
	if gene == "" && accession == "" {
		return nil, fmt.Errorf("UniProt search term cannot be empty")
	}

	if accession == "" {
		found, err := c.search(ctx, gene)
		if err != nil {
			return nil, err
		}
		accession = found
	}

	var entry uniprotEntry
	if err := c.rest.getJSON(ctx, c.rest.endpoint("uniprotkb/"+url.PathEscape(accession)+".json", nil), &entry); err != nil {
		return nil, fmt.Errorf("failed to fetch UniProt entry for %s: %w", accession, err)
	}
	if gene == "" && len(entry.Genes) > 0 {
		gene = strings.ToUpper(entry.Genes[0].GeneName.Value)
	}
	if gene == "" {
		gene = accession
	}

	data := extractProtein(&entry, gene, accession)

	number, specific, all := parseIsoformRequest(searchTerm, subCommand)
	switch {
	case specific:
		c.addRequestedIsoform(ctx, data, gene, number)
	case all:
		c.addAllIsoforms(ctx, data, gene)
	}
	return data, nil
}

// identify splits a search term into a gene symbol or an accession.
func (c *UniProtClient) identify(searchTerm string) (gene, accession string) {
	term := strings.TrimSpace(searchTerm)
	if acc := resolver.DetectUniProtAccession(term); acc != "" && !resolver.IsKnownGeneSymbol(term) {
		return "", acc
	}
	gene = strings.ToUpper(resolver.StripQualifiers(term))
	if q := resolver.DetectIsoformQuery(term); q.IsIsoform {
		gene = q.Gene
	}
	if acc, ok := resolver.Genes.Lookup(gene); ok {
		return gene, acc
	}
	return gene, ""
}

func (c *UniProtClient) search(ctx context.Context, gene string) (string, error) {
	params := url.Values{
		"query":  {gene + " AND organism_id:" + humanTaxonomy},
		"format": {"json"},
		"size":   {"1"},
	}
	var resp uniprotSearchResponse
	if err := c.rest.getJSON(ctx, c.rest.endpoint("uniprotkb/search", params), &resp); err != nil {
		return "", fmt.Errorf("UniProt search for %s failed: %w", gene, err)
	}
	if len(resp.Results) == 0 || resp.Results[0].PrimaryAccession == "" {
		return "", notFoundf("could not find UniProt entry for '%s'", gene)
	}
	return resp.Results[0].PrimaryAccession, nil
}

func parseIsoformRequest(searchTerm, subCommand string) (number int, specific, all bool) {
	sub := strings.ToLower(strings.TrimSpace(subCommand))
	if m := isoformSubCommand.FindStringSubmatch(sub); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n, true, false
	}
	if sub == "isoforms" {
		return 0, false, true
	}
	if !resolver.MentionsIsoform(searchTerm) {
		return 0, false, false
	}
	if n, ok := resolver.IsoformNumber(searchTerm); ok {
		return n, true, false
	}
	return 0, false, true
}

func extractProtein(entry *uniprotEntry, gene, accession string) map[string]any {
	protein := entry.ProteinDescription.RecommendedName.FullName.Value
	if protein == "" {
		protein = "Unknown"
	}
	organism := entry.Organism.ScientificName
	if organism == "" {
		organism = "Unknown"
	}

	data := map[string]any{
		"accession":        accession,
		"gene_name":        gene,
		"protein_name":     protein,
		"organism":         organism,
		"function":         "",
		"sequence":         entry.Sequence.Value,
		"sequence_length":  entry.Sequence.Length,
		"molecular_weight": entry.Sequence.MolWeight,
		"alphafold_url":    "https://alphafold.ebi.ac.uk/entry/" + accession,
	}

	groups := map[string][]map[string]any{
		"motifs": {}, "domains": {}, "regions": {},
		"binding_sites": {}, "active_sites": {}, "modifications": {},
	}
	for _, f := range entry.Features {
		group, ok := featureGroups[f.Type]
		if !ok {
			continue
		}
		desc := f.Description
		if desc == "" {
			desc = f.Type
		}
		feature := map[string]any{
			"description": desc,
			"start":       position(f.Location.Start.Value),
			"end":         position(f.Location.End.Value),
		}
		if group == "modifications" {
			feature["type"] = f.Type
		}
		groups[group] = append(groups[group], feature)
	}
	for k, v := range groups {
		data[k] = v
	}

	var isoforms []map[string]any
	for _, comment := range entry.Comments {
		switch comment.CommentType {
		case "FUNCTION":
			if data["function"] == "" && len(comment.Texts) > 0 {
				data["function"] = comment.Texts[0].Value
			}
		case "ALTERNATIVE PRODUCTS":
			for _, iso := range comment.Isoforms {
				isoforms = append(isoforms, isoformRecord(iso))
			}
		}
	}
	if isoforms == nil {
		isoforms = []map[string]any{}
	}
	data["isoforms"] = isoforms
	data["isoform_count"] = len(isoforms)
	if len(isoforms) > 0 {
		parts := make([]string, 0, len(isoforms))
		for _, iso := range isoforms {
			id := "no ID"
			if ids := iso["ids"].([]string); len(ids) > 0 {
				id = ids[0]
			}
			parts = append(parts, fmt.Sprintf("%s (%s)", iso["name"], id))
		}
		data["isoform_summary"] = fmt.Sprintf("%s has %d known isoforms: %s", gene, len(isoforms), strings.Join(parts, ", "))
	}
	return data
}

func isoformRecord(iso uniprotIsoform) map[string]any {
	name := iso.Name.Value
	if name == "" {
		name = "Unknown"
	}
	synonyms := make([]string, 0, len(iso.Synonyms))
	for _, s := range iso.Synonyms {
		if s.Value != "" {
			synonyms = append(synonyms, s.Value)
		}
	}
	ids := iso.IsoformIDs
	if ids == nil {
		ids = []string{}
	}
	status := iso.IsoformSequenceStatus
	if status == "" {
		status = "Displayed"
	}
	note := ""
	if len(iso.Note.Texts) > 0 {
		note = iso.Note.Texts[0].Value
	}
	return map[string]any{
		"name":            name,
		"synonyms":        synonyms,
		"ids":             ids,
		"sequence_status": status,
		"note":            note,
	}
}

func position(v *int) any {
	if v == nil {
		return "?"
	}
	return *v
}

func (c *UniProtClient) addRequestedIsoform(ctx context.Context, data map[string]any, gene string, number int) {
	isoforms, _ := data["isoforms"].([]map[string]any)
	switch {
	case number <= 0:
		data["requested_isoform_error"] = fmt.Sprintf("Invalid isoform number: %d", number)
		return
	case number > len(isoforms):
		data["requested_isoform_error"] = fmt.Sprintf("Isoform %d not found. %s has %d isoforms.", number, gene, len(isoforms))
		return
	}

	target := isoforms[number-1]
	ids, _ := target["ids"].([]string)
	if len(ids) == 0 {
		data["requested_isoform"] = map[string]any{
			"number": number,
			"name":   target["name"],
			"error":  "No UniProt ID available for this isoform",
		}
		return
	}

	isoID := ids[0]
	header, sequence := c.fasta(ctx, isoID)
	data["requested_isoform"] = map[string]any{
		"number":          number,
		"name":            target["name"],
		"uniprot_id":      isoID,
		"synonyms":        target["synonyms"],
		"sequence_status": target["sequence_status"],
		"note":            target["note"],
		"sequence":        sequence,
		"sequence_length": len(sequence),
		"fasta_header":    header,
		"urls": map[string]any{
			"fasta":     c.rest.endpoint("uniprotkb/"+isoID+".fasta", nil),
			"uniprot":   "https://www.uniprot.org/uniprotkb/" + isoID,
			"alphafold": "https://alphafold.ebi.ac.uk/entry/" + isoID,
		},
	}
}

func (c *UniProtClient) addAllIsoforms(ctx context.Context, data map[string]any, gene string) {
	isoforms, _ := data["isoforms"].([]map[string]any)
	if len(isoforms) == 0 {
		data["all_isoforms_data"] = []map[string]any{}
		data["all_isoforms_error"] = "No isoforms found for " + gene
		return
	}

	all := make([]map[string]any, 0, len(isoforms))
	for i, iso := range isoforms {
		record := map[string]any{
			"number":          i + 1,
			"name":            iso["name"],
			"uniprot_id":      "N/A",
			"synonyms":        iso["synonyms"],
			"sequence_status": iso["sequence_status"],
			"note":            iso["note"],
			"sequence":        "",
			"sequence_length": 0,
		}
		if ids, _ := iso["ids"].([]string); len(ids) > 0 {
			header, sequence := c.fasta(ctx, ids[0])
			record["uniprot_id"] = ids[0]
			record["sequence"] = sequence
			record["sequence_length"] = len(sequence)
			record["fasta_header"] = header
		}
		all = append(all, record)
	}
	data["all_isoforms_data"] = all
}

// fasta downloads one isoform sequence. A failed download leaves the
// sequence empty rather than failing the whole entry.
func (c *UniProtClient) fasta(ctx context.Context, isoformID string) (header, sequence string) {
	text, err := c.rest.getText(ctx, c.rest.endpoint("uniprotkb/"+url.PathEscape(isoformID)+".fasta", nil))
	if err != nil {
		return "", ""
	}
	return parseFASTA(text)
}

func parseFASTA(text string) (header, sequence string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", ""
	}
	var b strings.Builder
	for _, line := range lines[1:] {
		b.WriteString(strings.TrimSpace(line))
	}
	return strings.TrimSpace(lines[0]), b.String()
}
