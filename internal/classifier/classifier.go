// Package classifier decides, for one user message, whether it is small talk,
// needs clarification, or must be routed to a database, and with which search
// term. Cheap deterministic rules run first; the language model is consulted
// only when none of them fires.
package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/conversation"
	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/metrics"
	"github.com/genegpt-server/internal/resolver"
)

// Decision names the rule that produced a classification.
type Decision string

const (
	DecisionAccession Decision = "accession"
	DecisionContext   Decision = "context"
	DecisionIsoform   Decision = "isoform"
	DecisionGene      Decision = "gene"
	DecisionPDB       Decision = "pdb"
	DecisionClarify   Decision = "clarify"
	DecisionLLM       Decision = "llm"
	DecisionFallback  Decision = "fallback"
)

// FallbackReply is returned as a general answer when the model cannot classify.
const FallbackReply = "I'm having trouble understanding your query. Could you please rephrase it?"

var (
	structurePattern = regexp.MustCompile(`(?i)\bstructures?\b`)
	mmcifPattern     = regexp.MustCompile(`(?i)\b(mm)?cif\b`)
	pdbWordPattern   = regexp.MustCompile(`(?i)\b(pdb|mmcif|cif|structures?)\b`)
	splitPattern     = regexp.MustCompile(`(?i)\s+and\s+`)
)

// contextHints pick the database for a follow-up question about an entity
// recovered from history. The first matching hint wins; uniprot otherwise.
var contextHints = []struct {
	pattern    *regexp.Regexp
	db         domain.DBType
	subCommand string
}{
	{regexp.MustCompile(`(?i)\binteract(s|ion|ions|ing)?\b|\bpartners?\b|\bnetwork\b`), domain.DBString, ""},
	{regexp.MustCompile(`(?i)\bpathways?\b`), domain.DBKEGG, "gene"},
	{regexp.MustCompile(`(?i)\b(variants?|mutations?|mutants?)\b`), domain.DBClinVar, ""},
	{regexp.MustCompile(`(?i)\b(papers?|publications?|literature|pubmed|articles?)\b`), domain.DBNCBI, "pubmed"},
	{structurePattern, domain.DBPDB, ""},
	{regexp.MustCompile(`(?i)\b(images?|pictures?|photos?)\b`), domain.DBImageSearch, ""},
}

// clarifications holds the follow-up question for contentless messages.
var clarifications = map[string]string{
	"all":                "What would you like to know about? Please specify a gene, protein, drug, or topic.",
	"everything":         "What would you like to know about? Please specify a gene, protein, drug, or topic.",
	"show me everything": "What would you like to know about? Please specify a gene, protein, drug, or topic.",
	"show me":            "What would you like me to show you? Please specify.",
	"show":               "What would you like me to show you? Please specify.",
	"isoforms":           "Which gene or protein's isoforms would you like to know about?",
	"isoform":            "Which gene or protein's isoforms would you like to know about?",
	"info":               domain.DefaultFollowUpQuestion,
	"information":        domain.DefaultFollowUpQuestion,
	"data":               domain.DefaultFollowUpQuestion,
	"details":            domain.DefaultFollowUpQuestion,
	"more details":       domain.DefaultFollowUpQuestion,
	"more":               domain.DefaultFollowUpQuestion,
	"tell me more":       domain.DefaultFollowUpQuestion,
}

type rule struct {
	decision Decision
	apply    func(c *Classifier, message string, history []domain.Turn) *domain.Classification
}

// rules run in order and the first non-nil classification wins.
var rules = []rule{
	{DecisionAccession, (*Classifier).byAccession},
	{DecisionContext, (*Classifier).byContext},
	{DecisionIsoform, (*Classifier).byIsoform},
	{DecisionGene, (*Classifier).byGeneSymbol},
	{DecisionPDB, (*Classifier).byPDB},
	{DecisionClarify, (*Classifier).byContentless},
}

// Classifier produces exactly one Classification per message.
type Classifier struct {
	llm       domain.LLMClassifier
	extractor *conversation.Extractor
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

// New creates a classifier. llm may be nil, in which case messages no rule
// recognises get the fallback reply.
func New(llm domain.LLMClassifier, extractor *conversation.Extractor, logger *logrus.Logger, m *metrics.Metrics) *Classifier {
	if extractor == nil {
		extractor = conversation.NewExtractor(0)
	}
	return &Classifier{llm: llm, extractor: extractor, logger: logger, metrics: m}
}

// Classify never fails: model errors and malformed output become a general
// classification carrying FallbackReply.
func (c *Classifier) Classify(ctx context.Context, message string, history []domain.Turn) (*domain.Classification, Decision) {
	cls, decision := c.classify(ctx, message, history)

	c.applyStructureGuard(message, cls)
	cls.Normalize()
	if err := cls.Validate(); err != nil {
		c.logger.WithError(err).WithField("decision", decision).Warn("Classification failed validation")
		cls, decision = fallback(), DecisionFallback
	}

	c.metrics.ObserveClassification(string(decision), cls.DBType)
	c.logger.WithFields(logrus.Fields{
		"decision":            decision,
		"query_type":          cls.QueryType,
		"db_type":             cls.DBType,
		"search_term":         cls.SearchTerm,
		"sub_command":         cls.SubCommand,
		"needs_clarification": cls.NeedsClarification,
		"isoform":             cls.Isoform != nil,
		"message_length":      len(message),
	}).Debug("Classified query")
	return cls, decision
}

func (c *Classifier) classify(ctx context.Context, message string, history []domain.Turn) (*domain.Classification, Decision) {
	for _, r := range rules {
		if cls := r.apply(c, message, history); cls != nil {
			return cls, r.decision
		}
	}

	if c.llm == nil {
		return fallback(), DecisionFallback
	}
	cls, err := c.llm.Classify(ctx, message, history)
	if err != nil || cls == nil {
		c.logger.WithError(err).Warn("Model classification failed, using fallback reply")
		return fallback(), DecisionFallback
	}

	if cls.QueryType == domain.QueryTypeMedical && !cls.NeedsClarification {
		if cls.SubCommand != "pubmed" {
			cls.SearchTerm = resolver.StripQualifiers(cls.SearchTerm)
		}
		if cls.DBType == domain.DBUniProt && resolver.MentionsIsoform(message) {
			cls.Isoform = isoformRequest(message)
			cls.SubCommand = cls.Isoform.SubCommand()
		}
	}
	return cls, DecisionLLM
}

// applyStructureGuard sends every structure request to PDB: UniProt has no
// structure viewer.
func (c *Classifier) applyStructureGuard(message string, cls *domain.Classification) {
	if cls.DBType != domain.DBUniProt || !structurePattern.MatchString(message) {
		return
	}
	cls.DBType = domain.DBPDB
	cls.SubCommand = ""
	cls.Isoform = nil
}

func (c *Classifier) byAccession(message string, _ []domain.Turn) *domain.Classification {
	acc := resolver.DetectUniProtAccession(message)
	if acc == "" {
		return nil
	}
	cls := medical(domain.DBUniProt, acc, "")
	if resolver.MentionsIsoform(message) {
		cls.Isoform = isoformRequest(message)
		cls.SubCommand = cls.Isoform.SubCommand()
	}
	return cls
}

func (c *Classifier) byContext(message string, history []domain.Turn) *domain.Classification {
	if !conversation.IsPronounQuery(message) || conversation.NamesEntity(message) {
		return nil
	}
	entity := c.extractor.Extract(history)
	if entity == "" {
		return nil
	}

	db, sub := domain.DBUniProt, ""
	if resolver.DetectPDBID(entity) == entity {
		db = domain.DBPDB
	}
	for _, h := range contextHints {
		if h.pattern.MatchString(message) {
			db, sub = h.db, h.subCommand
			break
		}
	}

	cls := medical(db, entity, sub)
	if db == domain.DBUniProt && resolver.MentionsIsoform(message) {
		cls.Isoform = isoformRequest(message)
		cls.SubCommand = cls.Isoform.SubCommand()
	}
	cls.AnnotatedMessage = fmt.Sprintf("%s (referring to %s)", message, entity)
	return cls
}

func (c *Classifier) byIsoform(message string, history []domain.Turn) *domain.Classification {
	q := resolver.DetectIsoformQuery(message)
	gene := q.Gene
	if !q.IsIsoform {
		if !resolver.MentionsIsoform(message) {
			return nil
		}
		// "show isoform 2" after talking about a gene.
		gene = c.extractor.Extract(history)
		if gene == "" {
			return nil
		}
		q.Number, q.Specific = resolver.IsoformNumber(message)
	}

	req := &domain.IsoformRequest{Specific: q.Specific, Number: q.Number}
	cls := medical(domain.DBUniProt, gene, req.SubCommand())
	cls.Isoform = req
	return cls
}

func (c *Classifier) byGeneSymbol(message string, _ []domain.Turn) *domain.Classification {
	if !resolver.IsKnownGeneSymbol(message) {
		return nil
	}
	sym := strings.ToUpper(strings.Trim(strings.TrimSpace(message), "?!.,;:"))
	return medical(domain.DBUniProt, sym, "")
}

func (c *Classifier) byPDB(message string, _ []domain.Turn) *domain.Classification {
	sub := ""
	if mmcifPattern.MatchString(message) {
		sub = "mmcif"
	}

	if id := resolver.DetectPDBID(message); id != "" {
		bare := strings.EqualFold(strings.Trim(strings.TrimSpace(message), "?!."), id)
		if bare || pdbWordPattern.MatchString(message) {
			return medical(domain.DBPDB, id, sub)
		}
	}

	if !structurePattern.MatchString(message) {
		return nil
	}
	if gene := resolver.FindGeneSymbol(message); gene != "" {
		return medical(domain.DBPDB, gene, sub)
	}
	return nil
}

// byContentless only sees messages the context rule did not resolve, so it
// fires when there is no usable subject in the conversation.
func (c *Classifier) byContentless(message string, _ []domain.Turn) *domain.Classification {
	question, ok := clarifications[conversation.Normalize(message)]
	if !ok {
		return nil
	}
	return &domain.Classification{
		QueryType:          domain.QueryTypeMedical,
		NeedsClarification: true,
		FollowUpQuestion:   question,
	}
}

// Split breaks a message joining independent requests with "and" into its
// parts. It only splits when every part names an entity of its own, so
// "structure and function of BRCA1" stays whole.
func Split(message string) []string {
	parts := splitPattern.Split(strings.TrimSpace(message), -1)
	if len(parts) < 2 {
		return []string{message}
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || !resolver.HasEntity(p) {
			return []string{message}
		}
		parts[i] = p
	}
	return parts
}

func medical(db domain.DBType, term, sub string) *domain.Classification {
	return &domain.Classification{
		QueryType:  domain.QueryTypeMedical,
		DBType:     db,
		SearchTerm: term,
		SubCommand: sub,
	}
}

func isoformRequest(message string) *domain.IsoformRequest {
	n, ok := resolver.IsoformNumber(message)
	return &domain.IsoformRequest{Specific: ok, Number: n}
}

func fallback() *domain.Classification {
	return &domain.Classification{QueryType: domain.QueryTypeGeneral, Reply: FallbackReply}
}
