package resolver

import (
	"regexp"
	"strconv"
	"strings"
)

// isoformStopWords are never accepted as the gene of an isoform request.
var isoformStopWords = wordSet(
	"all", "the", "of", "for", "and", "or", "are", "is", "what", "which",
	"show", "list", "get", "display", "other", "more", "different",
	"multiple", "any", "there", "does", "do", "have", "has", "how", "many",
	"isoform", "isoforms", "protein", "gene", "sequence",
	"a", "an", "its", "this", "that", "these", "those", "their",
	"i", "me", "you", "we", "about", "give", "fetch", "want", "tell", "find",
	"need", "see", "please", "can", "could", "would", "like", "know",
)

// qualifierStopWords extends isoformStopWords with filler that shows up
// around variant and mutation qualifiers.
var qualifierStopWords = union(isoformStopWords, wordSet(
	"in", "on", "with", "me", "about", "tell", "find", "give", "known",
	"clinical", "significance",
))

const geneToken = `([A-Za-z][A-Za-z0-9-]{1,14})`

var isoformNumberPattern = regexp.MustCompile(`(?i)isoform\s*(\d+)`)

var fallbackGenePattern = regexp.MustCompile(`\b[A-Z]{2,}[A-Z0-9]*\b`)

// lowerGeneShape accepts symbols typed in lower case when they carry a digit,
// as in "tp53" or "akt1".
var lowerGeneShape = regexp.MustCompile(`^[a-z]+\d[a-z0-9]*$`)

// IsoformQuery is the outcome of DetectIsoformQuery.
type IsoformQuery struct {
	IsIsoform bool
	Gene      string
	// Specific is true when an isoform number was given; Number is then set.
	Specific bool
	Number   int
	// Rule names the pattern that matched, "fallback" for the loose heuristic.
	Rule string
}

type isoformRule struct {
	name    string
	pattern *regexp.Regexp
	group   int

	// geneShaped rules take whatever word precedes "isoform", so the
	// candidate must look like a gene symbol, not just avoid the stop words.
	geneShaped bool
}

// Rules are evaluated in order with early return. Later rules are more
// permissive and would shadow the earlier ones if reordered.
var isoformRules = []isoformRule{
	{name: "gene-isoforms", pattern: regexp.MustCompile(`(?i)^\s*` + geneToken + `\s+(?:all\s+)?isoforms\b`), group: 1, geneShaped: true},
	{name: "isoforms-of-gene", pattern: regexp.MustCompile(`(?i)\bisoforms?\s+(?:of|for)\s+(?:the\s+)?` + geneToken), group: 1},
	{name: "gene-isoform-n", pattern: regexp.MustCompile(`(?i)\b` + geneToken + `\s+isoforms?(?:\s*\d+)?\b`), group: 1, geneShaped: true},
	{name: "isoform-n-of-gene", pattern: regexp.MustCompile(`(?i)\bisoform\s*\d+\s+(?:of|for|in)\s+(?:the\s+)?` + geneToken), group: 1},
}

// DetectIsoformQuery recognises requests for one or all isoforms of a gene.
// An absent isoform number means every isoform is wanted, never isoform 0.
func DetectIsoformQuery(text string) IsoformQuery {
	if !strings.Contains(strings.ToLower(text), "isoform") {
		return IsoformQuery{}
	}

	q := IsoformQuery{}
	q.Number, q.Specific = IsoformNumber(text)

	for _, rule := range isoformRules {
		for _, m := range rule.pattern.FindAllStringSubmatch(text, -1) {
			candidate := m[rule.group]
			if _, stop := isoformStopWords[strings.ToLower(candidate)]; stop {
				continue
			}
			if rule.geneShaped && !isoformGeneShaped(candidate) {
				continue
			}
			q.IsIsoform = true
			q.Gene = strings.ToUpper(candidate)
			q.Rule = rule.name
			return q
		}
	}

	// Recall over precision: accept any gene-shaped token elsewhere in the
	// text. This can misfire on an upper-cased common word.
	for _, candidate := range fallbackGenePattern.FindAllString(text, -1) {
		if _, stop := isoformStopWords[strings.ToLower(candidate)]; stop {
			continue
		}
		q.IsIsoform = true
		q.Gene = candidate
		q.Rule = "fallback"
		return q
	}

	return IsoformQuery{}
}

// isoformGeneShaped accepts a symbol written in capitals, a known symbol in
// any case, or a lower-case symbol with a digit.
func isoformGeneShaped(word string) bool {
	return LooksLikeGeneSymbol(word) || isKnown(word) || lowerGeneShape.MatchString(word)
}

// MentionsIsoform reports whether text uses the word isoform in any form.
func MentionsIsoform(text string) bool {
	return strings.Contains(strings.ToLower(text), "isoform")
}

// IsoformNumber returns the isoform number mentioned in text, if any.
func IsoformNumber(text string) (int, bool) {
	m := isoformNumberPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func union(sets ...map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}
