// Package conversation recovers the subject of follow-up questions such as
// "what is the name of this protein?" from earlier turns of a conversation.
package conversation

import (
	"regexp"
	"strings"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/resolver"
)

var pronounPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(this|that|the same)\s+(protein|gene|enzyme|molecule|compound|structure|receptor|kinase|one|entry)\b`),
	regexp.MustCompile(`(?i)\bits\s+\w+`),
	regexp.MustCompile(`(?i)\bwhat\s+(is|does|about)\s+(this|it|that)\b`),
	regexp.MustCompile(`(?i)\bname\s+of\s+(this|that|it)\b`),
	regexp.MustCompile(`(?i)\b(about|of|for|on)\s+(it|this|that|them)\s*[?.!]*\s*$`),
	regexp.MustCompile(`(?i)\btell\s+me\s+more\b`),
}

var vagueWords = map[string]struct{}{
	"everything":    {},
	"all":           {},
	"more":          {},
	"details":       {},
	"more details":  {},
	"more info":     {},
	"info":          {},
	"information":   {},
	"function":      {},
	"functions":     {},
	"structure":     {},
	"sequence":      {},
	"interactions":  {},
	"pathways":      {},
	"variants":      {},
	"mutations":     {},
	"domains":       {},
	"summary":       {},
	"continue":      {},
	"go on":         {},
	"what else":     {},
	"anything else": {},
}

// entityStopWords match the gene shape but never name an entity.
var entityStopWords = map[string]struct{}{
	"I": {}, "A": {}, "IT": {}, "ITS": {}, "IS": {}, "THE": {}, "THIS": {}, "THAT": {},
	"WHAT": {}, "WHICH": {}, "HOW": {}, "WHY": {}, "WHO": {}, "AND": {}, "OR": {},
	"OF": {}, "IN": {}, "ON": {}, "TO": {}, "FOR": {}, "BY": {}, "AS": {}, "AT": {},
	"SHOW": {}, "GET": {}, "LIST": {}, "TELL": {}, "GIVE": {}, "FIND": {}, "ME": {},
	"GENE": {}, "GENES": {}, "PROTEIN": {}, "PROTEINS": {}, "STRUCTURE": {}, "SEQUENCE": {},
	"DNA": {}, "RNA": {}, "MRNA": {}, "ATP": {}, "PDB": {}, "ID": {}, "IDS": {}, "OK": {},
	"NCBI": {}, "KEGG": {}, "UNIPROT": {}, "STRING": {}, "CLINVAR": {}, "ENSEMBL": {},
	"PUBCHEM": {}, "PUBMED": {}, "HTML": {}, "JSON": {}, "URL": {}, "NOTE": {}, "SOURCE": {},
	"YES": {}, "NO": {}, "NOT": {}, "AN": {}, "BE": {}, "WE": {}, "YOU": {}, "USA": {},
}

var genePattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,11}\b`)

// IsPronounQuery reports whether message refers to an earlier subject with a
// pronoun or is a single vague word that only makes sense in context.
func IsPronounQuery(message string) bool {
	if IsVague(message) {
		return true
	}
	for _, p := range pronounPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

// IsVague reports whether message, normalized, is one of the vague requests.
func IsVague(message string) bool {
	_, ok := vagueWords[Normalize(message)]
	return ok
}

// Normalize lower-cases message, drops trailing punctuation and collapses
// whitespace so short requests can be compared against fixed phrases.
func Normalize(message string) string {
	m := strings.TrimRight(strings.ToLower(strings.TrimSpace(message)), "?!. ")
	return strings.Join(strings.Fields(m), " ")
}

// Extractor scans conversation history for the most recently discussed entity.
type Extractor struct {
	// MaxTurns bounds how far back the scan goes; zero scans everything.
	MaxTurns int
}

// NewExtractor creates an extractor scanning at most maxTurns prior turns.
func NewExtractor(maxTurns int) *Extractor {
	return &Extractor{MaxTurns: maxTurns}
}

// Extract returns the entity discussed most recently in history, or "" when
// none is found. history must not include the current message. Each turn is
// checked for a PDB ID, then a UniProt accession, then a gene-shaped token
// before moving on to an older turn. A known symbol written in lower case
// counts as a gene-shaped token.
func (e *Extractor) Extract(history []domain.Turn) string {
	scanned := 0
	for i := len(history) - 1; i >= 0; i-- {
		if e.MaxTurns > 0 && scanned >= e.MaxTurns {
			break
		}
		scanned++
		if entity := EntityIn(history[i].Content); entity != "" {
			return entity
		}
	}
	return ""
}

// EntityIn returns the highest priority entity mentioned in one message.
func EntityIn(content string) string {
	if id := resolver.DetectPDBIDInProse(content); id != "" {
		return id
	}
	if acc := resolver.DetectUniProtAccession(content); acc != "" {
		return acc
	}
	for _, tok := range genePattern.FindAllString(content, -1) {
		if _, stop := entityStopWords[tok]; stop {
			continue
		}
		return tok
	}
	return resolver.FindGeneSymbol(content)
}

// NamesEntity reports whether message names its own subject, so a pronoun in
// it ("tell me more about BRCA2") must not be resolved from history. Only
// capitalised gene-shaped words and known symbols with a digit count, which
// keeps symbols such as MET or KIT from firing on ordinary English.
func NamesEntity(message string) bool {
	if resolver.DetectPDBIDInProse(message) != "" || resolver.DetectUniProtAccession(message) != "" {
		return true
	}
	for _, tok := range genePattern.FindAllString(message, -1) {
		if _, stop := entityStopWords[tok]; !stop {
			return true
		}
	}
	for _, tok := range resolver.Tokens(message) {
		if strings.ContainsAny(tok, "0123456789") && resolver.IsKnownGeneSymbol(tok) {
			return true
		}
	}
	return false
}
