package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genegpt-server/internal/classifier"
	"github.com/genegpt-server/internal/conversation"
	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/logging"
	"github.com/genegpt-server/internal/metrics"
	"github.com/genegpt-server/internal/router"
)

const akt1Isoform2 = "MSDVAIVKEGWLHKRGEYIKTWRPRYFLLKNDGTFIGYKERPQDVDQREAPLNNFSVAQ"

type fetchCall struct {
	db   domain.DBType
	term string
	sub  string
}

type fakeFetchers struct {
	mu      sync.Mutex
	calls   []fetchCall
	results map[domain.DBType]map[string]any
	errs    map[domain.DBType]error
}

func (f *fakeFetchers) table() map[domain.DBType]domain.Fetcher {
	out := make(map[domain.DBType]domain.Fetcher)
	for _, db := range domain.AllDBTypes {
		db := db
		out[db] = domain.FetcherFunc(func(_ context.Context, term, sub string) (map[string]any, error) {
			f.mu.Lock()
			f.calls = append(f.calls, fetchCall{db: db, term: term, sub: sub})
			f.mu.Unlock()
			if err := f.errs[db]; err != nil {
				return nil, err
			}
			if data, ok := f.results[db]; ok {
				return data, nil
			}
			return map[string]any{"query": term}, nil
		})
	}
	return out
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []domain.GenerationRequest
	reply    string
	err      error
}

func (g *fakeGenerator) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	if req.FetchError != "" {
		return "Sorry, I couldn't retrieve that data right now. Please try again later.", nil
	}
	return g.reply, nil
}

type fakeLLM struct {
	result *domain.Classification
	err    error
}

func (f *fakeLLM) Classify(_ context.Context, _ string, _ []domain.Turn) (*domain.Classification, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.result
	return &cp, nil
}

type memoryQueryLog struct {
	mu      sync.Mutex
	entries []domain.QueryLogEntry
	err     error
}

func (l *memoryQueryLog) Record(_ context.Context, entry *domain.QueryLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, *entry)
	return l.err
}

type harness struct {
	processor *QueryProcessor
	fetchers  *fakeFetchers
	generator *fakeGenerator
	queryLog  *memoryQueryLog
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T, llm domain.LLMClassifier) *harness {
	t.Helper()
	logger := logging.NewDiscard()
	m := metrics.New()

	h := &harness{
		fetchers: &fakeFetchers{
			results: map[domain.DBType]map[string]any{},
			errs:    map[domain.DBType]error{},
		},
		generator: &fakeGenerator{reply: "TP53 encodes the tumor suppressor p53."},
		queryLog:  &memoryQueryLog{},
		metrics:   m,
	}
	c := classifier.New(llm, conversation.NewExtractor(10), logger, m)
	r := router.New(h.fetchers.table(), 0, logger, m)
	h.processor = NewQueryProcessor(c, r, h.generator, logger, m, WithQueryLog(h.queryLog), WithContextLimit(500))
	return h
}

func TestProcessQuery_KnownGene(t *testing.T) {
	h := newHarness(t, nil)
	h.fetchers.results[domain.DBUniProt] = map[string]any{
		"accession":    "P04637",
		"gene_name":    "TP53",
		"protein_name": "Cellular tumor antigen p53",
	}

	ctx := logging.WithCorrelationID(context.Background(), "corr-1")
	resp := h.processor.ProcessQuery(ctx, "TP53", nil)

	assert.Equal(t, "TP53 encodes the tumor suppressor p53.", resp.Reply)
	assert.Contains(t, resp.HTML, "P04637")

	require.Len(t, h.fetchers.calls, 1)
	assert.Equal(t, fetchCall{db: domain.DBUniProt, term: "TP53"}, h.fetchers.calls[0])

	require.Len(t, h.generator.requests, 1)
	req := h.generator.requests[0]
	assert.Equal(t, domain.DBUniProt, req.DBType)
	assert.Contains(t, req.DataContext, "Cellular tumor antigen p53")
	assert.Empty(t, req.FetchError)

	require.Len(t, h.queryLog.entries, 1)
	entry := h.queryLog.entries[0]
	assert.Equal(t, "corr-1", entry.CorrelationID)
	assert.Equal(t, string(classifier.DecisionGene), entry.Decision)
	assert.Equal(t, domain.DBUniProt, entry.DBType)
	assert.True(t, entry.Success)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ChatRequestsTotal.WithLabelValues(OutcomeAnswered)))
}

func TestProcessQuery_IsoformBypassesGeneration(t *testing.T) {
	for _, message := range []string{
		"AKT1 isoform 2",
		"give me isoform 2 of AKT1",
		"tell me about isoform 2 of AKT1",
	} {
		t.Run(message, func(t *testing.T) {
			h := newHarness(t, nil)
			h.fetchers.results[domain.DBUniProt] = map[string]any{
				"accession": "P31749",
				"gene_name": "AKT1",
				"isoforms": []map[string]any{
					{"name": "1", "ids": []string{"P31749-1"}},
					{"name": "2", "ids": []string{"P31749-2"}},
				},
				"requested_isoform": map[string]any{
					"number":          2,
					"name":            "2",
					"uniprot_id":      "P31749-2",
					"sequence":        akt1Isoform2,
					"sequence_length": len(akt1Isoform2),
				},
			}

			resp := h.processor.ProcessQuery(context.Background(), message, nil)

			assert.Contains(t, resp.Reply, akt1Isoform2)
			assert.Empty(t, h.generator.requests, "isoform answers must not go through the model")

			require.Len(t, h.fetchers.calls, 1)
			assert.Equal(t, fetchCall{db: domain.DBUniProt, term: "AKT1", sub: "isoform 2"}, h.fetchers.calls[0])
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ChatRequestsTotal.WithLabelValues(OutcomeIsoform)))
		})
	}
}

func TestProcessQuery_ContentlessAsksForClarification(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.processor.ProcessQuery(context.Background(), "show me", nil)

	assert.NotEmpty(t, resp.Reply)
	assert.Empty(t, resp.HTML)
	assert.Empty(t, h.fetchers.calls)
	assert.Empty(t, h.generator.requests)
	require.Len(t, h.queryLog.entries, 1)
	assert.Equal(t, string(classifier.DecisionClarify), h.queryLog.entries[0].Decision)
}

func TestProcessQuery_StructureRoutesToPDB(t *testing.T) {
	h := newHarness(t, nil)
	h.fetchers.results[domain.DBPDB] = map[string]any{"pdb_id": "1JM7", "title": "BRCA1/BARD1 RING heterodimer"}

	resp := h.processor.ProcessQuery(context.Background(), "3D structure of BRCA1", nil)

	require.Len(t, h.fetchers.calls, 1)
	assert.Equal(t, domain.DBPDB, h.fetchers.calls[0].db)
	assert.Equal(t, "BRCA1", h.fetchers.calls[0].term)
	assert.NotEmpty(t, resp.Reply)
	assert.Contains(t, resp.HTML, "1JM7")
}

func TestProcessQuery_FetchFailure(t *testing.T) {
	tests := []struct {
		name      string
		fetchErr  error
		genErr    error
		wantReply string
		outcome   string
	}{
		{
			name:      "model explains the failure",
			fetchErr:  errors.New("dial tcp: connection refused"),
			wantReply: "Sorry, I couldn't retrieve that data right now. Please try again later.",
			outcome:   OutcomeFetchFailed,
		},
		{
			name:      "model also down",
			fetchErr:  errors.New("dial tcp: connection refused"),
			genErr:    errors.New("generate completion: 503"),
			wantReply: GenerationFallback(domain.DBUniProt),
			outcome:   OutcomeGenerationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.fetchers.errs[domain.DBUniProt] = tt.fetchErr
			h.generator.err = tt.genErr

			resp := h.processor.ProcessQuery(context.Background(), "TP53", nil)

			assert.Equal(t, tt.wantReply, resp.Reply)
			assert.Empty(t, resp.HTML)

			require.Len(t, h.generator.requests, 1)
			assert.Equal(t, "dial tcp: connection refused", h.generator.requests[0].FetchError)
			assert.Empty(t, h.generator.requests[0].DataContext)

			require.Len(t, h.queryLog.entries, 1)
			assert.False(t, h.queryLog.entries[0].Success)
			assert.Equal(t, "dial tcp: connection refused", h.queryLog.entries[0].Error)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ChatRequestsTotal.WithLabelValues(tt.outcome)))
		})
	}
}

func TestProcessQuery_ContextAnnotatesMessage(t *testing.T) {
	h := newHarness(t, nil)
	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "what is TP53?"},
		{Role: domain.RoleAssistant, Content: "TP53 is a tumor suppressor..."},
	}

	resp := h.processor.ProcessQuery(context.Background(), "what is the name of this protein?", history)
	assert.NotEmpty(t, resp.Reply)

	require.Len(t, h.fetchers.calls, 1)
	assert.Equal(t, "TP53", h.fetchers.calls[0].term)
	require.Len(t, h.generator.requests, 1)
	assert.Equal(t, "what is the name of this protein? (referring to TP53)", h.generator.requests[0].Message)
	assert.Equal(t, history, h.generator.requests[0].History)
}

func TestProcessQuery_ModelClassification(t *testing.T) {
	t.Run("routes as told", func(t *testing.T) {
		h := newHarness(t, &fakeLLM{result: &domain.Classification{
			QueryType:  domain.QueryTypeMedical,
			DBType:     domain.DBPubChem,
			SearchTerm: "aspirin",
		}})

		resp := h.processor.ProcessQuery(context.Background(), "tell me about aspirin", nil)
		assert.NotEmpty(t, resp.Reply)
		require.Len(t, h.fetchers.calls, 1)
		assert.Equal(t, fetchCall{db: domain.DBPubChem, term: "aspirin"}, h.fetchers.calls[0])
	})

	t.Run("general reply", func(t *testing.T) {
		h := newHarness(t, &fakeLLM{result: &domain.Classification{
			QueryType: domain.QueryTypeGeneral,
			Reply:     "Hello! Ask me about genes, proteins or compounds.",
		}})

		resp := h.processor.ProcessQuery(context.Background(), "hello there", nil)
		assert.Equal(t, "Hello! Ask me about genes, proteins or compounds.", resp.Reply)
		assert.Empty(t, h.fetchers.calls)
		assert.Empty(t, h.generator.requests)
	})

	t.Run("model failure falls back", func(t *testing.T) {
		h := newHarness(t, &fakeLLM{err: errors.New("rate limited")})

		resp := h.processor.ProcessQuery(context.Background(), "hello there", nil)
		assert.Equal(t, classifier.FallbackReply, resp.Reply)
		assert.Empty(t, h.fetchers.calls)
	})
}

func TestProcessQuery_MultiPart(t *testing.T) {
	h := newHarness(t, nil)
	h.fetchers.results[domain.DBUniProt] = map[string]any{"accession": "P04637", "gene_name": "TP53"}
	h.fetchers.results[domain.DBPDB] = map[string]any{"pdb_id": "1JM7"}

	resp := h.processor.ProcessQuery(context.Background(), "TP53 and structure of BRCA1", nil)

	require.Len(t, h.fetchers.calls, 2)
	assert.Equal(t, domain.DBUniProt, h.fetchers.calls[0].db)
	assert.Equal(t, domain.DBPDB, h.fetchers.calls[1].db)
	assert.Len(t, strings.Split(resp.Reply, "\n\n"), 2)
	assert.Contains(t, resp.HTML, "P04637")
	assert.Contains(t, resp.HTML, "1JM7")
	assert.Len(t, h.queryLog.entries, 2)
}

func TestProcessQuery_NeverEmpty(t *testing.T) {
	h := newHarness(t, nil)
	h.generator.reply = "   "
	h.queryLog.err = errors.New("database is down")

	for _, msg := range []string{"", "   ", "TP53", "show me", "hello"} {
		resp := h.processor.ProcessQuery(context.Background(), msg, nil)
		assert.NotEmpty(t, strings.TrimSpace(resp.Reply), "message %q", msg)
	}
}
