// Package resolver identifies well-known biological entities in free text
// without any network or model call: UniProt accessions, PDB identifiers,
// known gene symbols and isoform requests. Every detector is a pure function
// of its input and returns the zero value when nothing matches.
package resolver

import (
	"regexp"
	"strings"
)

// UniProt accessions have two historical shapes. Patterns are tried most
// specific first so generic symbol-like tokens are not mistaken for IDs.
var accessionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[OPQ]\d[A-Z0-9]{3}\d\b`),
	regexp.MustCompile(`\b[A-NR-Z]\d[A-Z][A-Z0-9]{2}\d\b`),
	regexp.MustCompile(`\b[A-Z]\d[A-Z0-9]{3}\d\b`),
}

const minAccessionLength = 6

var (
	pdbIDPattern   = regexp.MustCompile(`\b\d[A-Za-z0-9]{3}\b`)
	allDigits      = regexp.MustCompile(`^\d+$`)
	tokenSplitter  = regexp.MustCompile(`[^A-Za-z0-9]+`)
	geneShape      = regexp.MustCompile(`^[A-Z][A-Z0-9]+$`)
	qualifierWords = regexp.MustCompile(`(?i)\b(isoforms?|variants?|mutations?|mutants?)\b`)
	proteinChange  = regexp.MustCompile(`(?i)^(p\.)?[A-Z]\d+[A-Z*]$`)
	measurement    = regexp.MustCompile(`(?i)^\d+(kd|kda|th|st|nd|rd|bp|kb|aa|nm|mm|ml|mg|ug)$`)
)

// DetectUniProtAccession returns the first UniProt accession in text, upper-cased.
func DetectUniProtAccession(text string) string {
	upper := strings.ToUpper(text)
	for _, p := range accessionPatterns {
		if m := p.FindString(upper); len(m) >= minAccessionLength {
			return m
		}
	}
	return ""
}

// DetectPDBID returns the first four character PDB identifier in text,
// upper-cased. Purely numeric tokens such as years are skipped.
func DetectPDBID(text string) string {
	for _, m := range pdbIDPattern.FindAllString(text, -1) {
		if !allDigits.MatchString(m) {
			return strings.ToUpper(m)
		}
	}
	return ""
}

// DetectPDBIDInProse is DetectPDBID for running text such as earlier answers,
// where number-plus-unit tokens like "53kD" or "10th" share the PDB shape.
func DetectPDBIDInProse(text string) string {
	for _, m := range pdbIDPattern.FindAllString(text, -1) {
		if !allDigits.MatchString(m) && !measurement.MatchString(m) {
			return strings.ToUpper(m)
		}
	}
	return ""
}

// Tokens splits text into upper-cased word tokens.
func Tokens(text string) []string {
	raw := tokenSplitter.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if tok != "" {
			out = append(out, strings.ToUpper(tok))
		}
	}
	return out
}

// FindGeneSymbol returns the first token of text present in the gene table.
func FindGeneSymbol(text string) string {
	for _, tok := range Tokens(text) {
		if _, ok := Genes.Lookup(tok); ok {
			return tok
		}
	}
	return ""
}

// ResolveGeneSymbol returns the UniProt accession of the first known gene
// symbol in text.
func ResolveGeneSymbol(text string) string {
	if sym := FindGeneSymbol(text); sym != "" {
		acc, _ := Genes.Lookup(sym)
		return acc
	}
	return ""
}

// IsKnownGeneSymbol reports whether the whole of text is a known symbol,
// ignoring case, surrounding space and trailing punctuation.
func IsKnownGeneSymbol(text string) bool {
	sym := strings.ToUpper(strings.Trim(strings.TrimSpace(text), "?!.,;:"))
	_, ok := Genes.Lookup(sym)
	return ok
}

// LooksLikeGeneSymbol reports whether tok has the shape of a gene symbol:
// an upper-case letter followed by letters or digits, at least two long.
func LooksLikeGeneSymbol(tok string) bool {
	return len(tok) >= 2 && len(tok) <= 12 && geneShape.MatchString(tok)
}

// HasEntity reports whether text names an accession, a PDB entry or a known gene.
func HasEntity(text string) bool {
	return DetectUniProtAccession(text) != "" || DetectPDBID(text) != "" || FindGeneSymbol(text) != ""
}

// StripQualifiers reduces text that mentions an isoform, variant or mutation
// to its base entity: "EGFR isoform 99" becomes "EGFR". Text without such a
// qualifier is returned trimmed and otherwise unchanged, so compound names and
// free-text literature queries survive intact.
func StripQualifiers(text string) string {
	trimmed := strings.TrimSpace(text)
	if !qualifierWords.MatchString(trimmed) {
		return trimmed
	}

	fields := strings.Fields(trimmed)
	skipNext := false
	var candidates []string
	for _, f := range fields {
		word := strings.Trim(f, "?!.,;:()\"'")
		lower := strings.ToLower(word)
		switch {
		case word == "":
			continue
		case qualifierWords.MatchString(lower) && qualifierWords.FindString(lower) == lower:
			skipNext = true
			continue
		case skipNext && (allDigits.MatchString(word) || proteinChange.MatchString(word) || !LooksLikeGeneSymbol(strings.ToUpper(word))):
			skipNext = false
			continue
		}
		skipNext = false
		if proteinChange.MatchString(word) && !isKnown(word) {
			continue
		}
		if _, stop := qualifierStopWords[lower]; stop {
			continue
		}
		candidates = append(candidates, word)
	}

	for _, c := range candidates {
		if isKnown(c) {
			return strings.ToUpper(c)
		}
	}
	for _, c := range candidates {
		if LooksLikeGeneSymbol(strings.ToUpper(c)) {
			return strings.ToUpper(c)
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return trimmed
}

func isKnown(word string) bool {
	_, ok := Genes.Lookup(strings.ToUpper(word))
	return ok
}
