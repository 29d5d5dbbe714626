package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genegpt-server/internal/conversation"
	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/logging"
)

type fakeLLM struct {
	result *domain.Classification
	err    error
	calls  int
}

func (f *fakeLLM) Classify(_ context.Context, _ string, _ []domain.Turn) (*domain.Classification, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return nil, nil
	}
	cp := *f.result
	return &cp, nil
}

func newTestClassifier(llm domain.LLMClassifier) *Classifier {
	return New(llm, conversation.NewExtractor(10), logging.NewDiscard(), nil)
}

func TestClassify_DeterministicRules(t *testing.T) {
	tp53History := []domain.Turn{
		{Role: domain.RoleUser, Content: "what is TP53?"},
		{Role: domain.RoleAssistant, Content: "TP53 is a tumor suppressor..."},
	}

	tests := []struct {
		name      string
		message   string
		history   []domain.Turn
		decision  Decision
		db        domain.DBType
		term      string
		sub       string
		isoform   *domain.IsoformRequest
		annotated string
	}{
		{
			name:     "known gene alone",
			message:  "TP53",
			decision: DecisionGene,
			db:       domain.DBUniProt,
			term:     "TP53",
		},
		{
			name:     "lower-case gene with question mark",
			message:  "brca1?",
			decision: DecisionGene,
			db:       domain.DBUniProt,
			term:     "BRCA1",
		},
		{
			name:     "accession",
			message:  "tell me about p04637",
			decision: DecisionAccession,
			db:       domain.DBUniProt,
			term:     "P04637",
		},
		{
			name:     "accession with isoform number",
			message:  "P04637 isoform 3",
			decision: DecisionAccession,
			db:       domain.DBUniProt,
			term:     "P04637",
			sub:      "isoform 3",
			isoform:  &domain.IsoformRequest{Specific: true, Number: 3},
		},
		{
			name:     "accession structure goes to pdb",
			message:  "structure of P04637",
			decision: DecisionAccession,
			db:       domain.DBPDB,
			term:     "P04637",
		},
		{
			name:     "specific isoform",
			message:  "AKT1 isoform 2",
			decision: DecisionIsoform,
			db:       domain.DBUniProt,
			term:     "AKT1",
			sub:      "isoform 2",
			isoform:  &domain.IsoformRequest{Specific: true, Number: 2},
		},
		{
			name:     "all isoforms",
			message:  "what are the isoforms of BRCA1",
			decision: DecisionIsoform,
			db:       domain.DBUniProt,
			term:     "BRCA1",
			sub:      "isoforms",
			isoform:  &domain.IsoformRequest{},
		},
		{
			name:     "filler words before isoform number",
			message:  "give me isoform 2 of TP53",
			decision: DecisionIsoform,
			db:       domain.DBUniProt,
			term:     "TP53",
			sub:      "isoform 2",
			isoform:  &domain.IsoformRequest{Specific: true, Number: 2},
		},
		{
			name:     "verb before all isoforms",
			message:  "Fetch all isoforms of BRCA1",
			decision: DecisionIsoform,
			db:       domain.DBUniProt,
			term:     "BRCA1",
			sub:      "isoforms",
			isoform:  &domain.IsoformRequest{},
		},
		{
			name:     "isoform word with subject from history",
			message:  "isoforms",
			history:  tp53History,
			decision: DecisionIsoform,
			db:       domain.DBUniProt,
			term:     "TP53",
			sub:      "isoforms",
			isoform:  &domain.IsoformRequest{},
		},
		{
			name:      "pronoun resolved from history",
			message:   "what is the name of this protein?",
			history:   tp53History,
			decision:  DecisionContext,
			db:        domain.DBUniProt,
			term:      "TP53",
			annotated: "what is the name of this protein? (referring to TP53)",
		},
		{
			name:      "vague follow-up about interactions",
			message:   "interactions",
			history:   tp53History,
			decision:  DecisionContext,
			db:        domain.DBString,
			term:      "TP53",
			annotated: "interactions (referring to TP53)",
		},
		{
			name:      "pronoun structure follow-up",
			message:   "show me its structure",
			history:   tp53History,
			decision:  DecisionContext,
			db:        domain.DBPDB,
			term:      "TP53",
			annotated: "show me its structure (referring to TP53)",
		},
		{
			name:      "pathway follow-up",
			message:   "what pathways is it in? tell me about it",
			history:   tp53History,
			decision:  DecisionContext,
			db:        domain.DBKEGG,
			term:      "TP53",
			sub:       "gene",
			annotated: "what pathways is it in? tell me about it (referring to TP53)",
		},
		{
			name:     "structure of a known gene",
			message:  "3D structure of BRCA1",
			decision: DecisionPDB,
			db:       domain.DBPDB,
			term:     "BRCA1",
		},
		{
			name:     "bare pdb id",
			message:  "1a1u",
			decision: DecisionPDB,
			db:       domain.DBPDB,
			term:     "1A1U",
		},
		{
			name:     "mmcif request",
			message:  "pdb mmcif 1A1U",
			decision: DecisionPDB,
			db:       domain.DBPDB,
			term:     "1A1U",
			sub:      "mmcif",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{err: errors.New("must not be called")}
			c := newTestClassifier(llm)

			cls, decision := c.Classify(context.Background(), tt.message, tt.history)
			require.NotNil(t, cls)
			assert.Equal(t, tt.decision, decision)
			assert.Equal(t, domain.QueryTypeMedical, cls.QueryType)
			assert.False(t, cls.NeedsClarification)
			assert.Equal(t, tt.db, cls.DBType)
			assert.Equal(t, tt.term, cls.SearchTerm)
			assert.Equal(t, tt.sub, cls.SubCommand)
			assert.Equal(t, tt.isoform, cls.Isoform)
			assert.Equal(t, tt.annotated, cls.AnnotatedMessage)
			assert.Zero(t, llm.calls)
		})
	}
}

func TestClassify_Clarification(t *testing.T) {
	tests := []struct {
		message  string
		question string
	}{
		{"show me", "What would you like me to show you? Please specify."},
		{"All", "What would you like to know about? Please specify a gene, protein, drug, or topic."},
		{"isoforms?", "Which gene or protein's isoforms would you like to know about?"},
		{"more details", domain.DefaultFollowUpQuestion},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			llm := &fakeLLM{}
			c := newTestClassifier(llm)

			cls, decision := c.Classify(context.Background(), tt.message, nil)
			assert.Equal(t, DecisionClarify, decision)
			assert.True(t, cls.NeedsClarification)
			assert.Equal(t, tt.question, cls.FollowUpQuestion)
			assert.Empty(t, cls.DBType)
			assert.Empty(t, cls.SearchTerm)
			assert.Zero(t, llm.calls)
		})
	}
}

func TestClassify_LLM(t *testing.T) {
	t.Run("routes through model", func(t *testing.T) {
		llm := &fakeLLM{result: &domain.Classification{
			QueryType:  domain.QueryTypeMedical,
			DBType:     domain.DBPubChem,
			SearchTerm: "aspirin",
			SubCommand: "3d",
		}}
		cls, decision := newTestClassifier(llm).Classify(context.Background(), "3D structure of aspirin", nil)

		assert.Equal(t, DecisionLLM, decision)
		assert.Equal(t, 1, llm.calls)
		assert.Equal(t, domain.DBPubChem, cls.DBType)
		assert.Equal(t, "aspirin", cls.SearchTerm)
		assert.Equal(t, "3d", cls.SubCommand)
	})

	t.Run("structure guard overrides uniprot", func(t *testing.T) {
		llm := &fakeLLM{result: &domain.Classification{
			QueryType:  domain.QueryTypeMedical,
			DBType:     domain.DBUniProt,
			SearchTerm: "hemoglobin",
		}}
		cls, _ := newTestClassifier(llm).Classify(context.Background(), "Show me the structure of hemoglobin", nil)

		assert.Equal(t, domain.DBPDB, cls.DBType)
		assert.Equal(t, "hemoglobin", cls.SearchTerm)
	})

	t.Run("qualifiers stripped from search term", func(t *testing.T) {
		llm := &fakeLLM{result: &domain.Classification{
			QueryType:  domain.QueryTypeMedical,
			DBType:     domain.DBClinVar,
			SearchTerm: "TP53 variant R175H",
		}}
		cls, _ := newTestClassifier(llm).Classify(context.Background(), "is the TP53 variant R175H pathogenic", nil)

		assert.Equal(t, "TP53", cls.SearchTerm)
	})

	t.Run("literature terms kept whole", func(t *testing.T) {
		llm := &fakeLLM{result: &domain.Classification{
			QueryType:  domain.QueryTypeMedical,
			DBType:     domain.DBNCBI,
			SearchTerm: "KRAS mutations in lung cancer",
			SubCommand: "pubmed",
		}}
		cls, _ := newTestClassifier(llm).Classify(context.Background(), "find papers on KRAS mutations in lung cancer", nil)

		assert.Equal(t, "KRAS mutations in lung cancer", cls.SearchTerm)
	})

	t.Run("general reply", func(t *testing.T) {
		llm := &fakeLLM{result: &domain.Classification{QueryType: domain.QueryTypeGeneral, Reply: "Hello!"}}
		cls, decision := newTestClassifier(llm).Classify(context.Background(), "hello there", nil)

		assert.Equal(t, DecisionLLM, decision)
		assert.Equal(t, domain.QueryTypeGeneral, cls.QueryType)
		assert.Equal(t, "Hello!", cls.Reply)
	})
}

func TestClassify_ExplicitSubjectNotReplacedByHistory(t *testing.T) {
	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "what is TP53?"},
		{Role: domain.RoleAssistant, Content: "TP53 is a tumor suppressor..."},
	}

	tests := []struct {
		message string
		term    string
	}{
		{"tell me more about BRCA2", "BRCA2"},
		{"what is the function of this protein BRCA1", "BRCA1"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			llm := &fakeLLM{result: &domain.Classification{
				QueryType:  domain.QueryTypeMedical,
				DBType:     domain.DBUniProt,
				SearchTerm: tt.term,
			}}
			cls, decision := newTestClassifier(llm).Classify(context.Background(), tt.message, history)

			assert.Equal(t, DecisionLLM, decision)
			assert.Equal(t, 1, llm.calls)
			assert.Equal(t, tt.term, cls.SearchTerm)
			assert.Empty(t, cls.AnnotatedMessage)
		})
	}
}

func TestClassify_UnitInHistoryIsNotPDB(t *testing.T) {
	history := []domain.Turn{
		{Role: domain.RoleAssistant, Content: "TP53 is a tumor suppressor. It is 53kD in size."},
	}
	cls, decision := newTestClassifier(nil).Classify(context.Background(), "what is the name of this protein?", history)

	assert.Equal(t, DecisionContext, decision)
	assert.Equal(t, domain.DBUniProt, cls.DBType)
	assert.Equal(t, "TP53", cls.SearchTerm)
}

func TestClassify_Fallback(t *testing.T) {
	tests := []struct {
		name string
		llm  domain.LLMClassifier
	}{
		{name: "model error", llm: &fakeLLM{err: errors.New("connection refused")}},
		{name: "model returns nothing", llm: &fakeLLM{}},
		{name: "no model configured", llm: nil},
		{
			name: "invalid classification",
			llm:  &fakeLLM{result: &domain.Classification{QueryType: "legal"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, decision := newTestClassifier(tt.llm).Classify(context.Background(), "how does aspirin work in the body", nil)

			assert.Equal(t, DecisionFallback, decision)
			assert.Equal(t, domain.QueryTypeGeneral, cls.QueryType)
			assert.Equal(t, FallbackReply, cls.Reply)
			assert.Empty(t, cls.DBType)
		})
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		message string
		want    []string
	}{
		{"TP53 structure and BRCA1 interactions", []string{"TP53 structure", "BRCA1 interactions"}},
		{"P04637 AND 1A1U", []string{"P04637", "1A1U"}},
		{"structure and function of BRCA1", []string{"structure and function of BRCA1"}},
		{"salt and pepper", []string{"salt and pepper"}},
		{"what is EGFR", []string{"what is EGFR"}},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.message))
		})
	}
}
