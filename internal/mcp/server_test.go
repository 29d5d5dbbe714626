package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/logging"
)

type stubProcessor struct {
	lastHistory []domain.Turn
}

func (p *stubProcessor) ProcessQuery(_ context.Context, message string, history []domain.Turn) *domain.ChatResponse {
	p.lastHistory = history
	return &domain.ChatResponse{Reply: "reply to " + message, HTML: "<b>ignored</b>"}
}

type stubFetcher struct {
	supported map[domain.DBType]bool
	result    domain.DatabaseResult
	calls     int
}

func (f *stubFetcher) Supports(db domain.DBType) bool { return f.supported[db] }

func (f *stubFetcher) Fetch(_ context.Context, db domain.DBType, term, _ string) domain.DatabaseResult {
	f.calls++
	f.result.DBType = db
	f.result.SearchTerm = term
	return f.result
}

func newTestServer() (*Server, *stubProcessor, *stubFetcher) {
	proc := &stubProcessor{}
	fetcher := &stubFetcher{
		supported: map[domain.DBType]bool{domain.DBUniProt: true},
		result:    domain.DatabaseResult{Success: true, Data: map[string]any{"accession": "P04637"}},
	}
	s := NewServer(domain.MCPConfig{ServerVersion: "test"}, proc, fetcher, logging.NewDiscard())
	return s, proc, fetcher
}

func text(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, r.Content, 1)
	tc, ok := r.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNewServer(t *testing.T) {
	s, _, _ := newTestServer()
	assert.NotNil(t, s.MCPServer())
}

func TestAskTool(t *testing.T) {
	s, proc, _ := newTestServer()
	ctx := context.Background()

	res, _, err := s.ask(ctx, nil, AskInput{
		Message: "What about its structure?",
		History: []domain.Turn{{Role: domain.RoleUser, Content: "TP53"}},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "reply to What about its structure?", text(t, res))
	assert.Len(t, proc.lastHistory, 1)

	res, _, err = s.ask(ctx, nil, AskInput{Message: "  "})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestLookupTool(t *testing.T) {
	s, _, fetcher := newTestServer()
	ctx := context.Background()

	res, _, err := s.lookup(ctx, nil, LookupInput{DBType: " UniProt ", SearchTerm: "TP53"})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var result domain.DatabaseResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &result))
	assert.Equal(t, domain.DBUniProt, result.DBType)
	assert.Equal(t, "TP53", result.SearchTerm)
	assert.Equal(t, "P04637", result.Data["accession"])

	tests := []struct {
		name string
		in   LookupInput
	}{
		{name: "unknown database", in: LookupInput{DBType: "genbank", SearchTerm: "TP53"}},
		{name: "unwired database", in: LookupInput{DBType: "kegg", SearchTerm: "TP53"}},
		{name: "missing term", in: LookupInput{DBType: "uniprot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, err := s.lookup(ctx, nil, tt.in)
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
	assert.Equal(t, 1, fetcher.calls)

	fetcher.result = domain.DatabaseResult{Success: false, Error: "not found"}
	res, _, err = s.lookup(ctx, nil, LookupInput{DBType: "uniprot", SearchTerm: "NOPE"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "not found")
}
