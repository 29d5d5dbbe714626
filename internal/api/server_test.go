package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/history"
	"github.com/genegpt-server/internal/logging"
	"github.com/genegpt-server/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type echoProcessor struct {
	mu       sync.Mutex
	messages []string
	history  [][]domain.Turn
}

func (p *echoProcessor) ProcessQuery(_ context.Context, message string, history []domain.Turn) *domain.ChatResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	p.history = append(p.history, history)
	return &domain.ChatResponse{Reply: "answer: " + message, HTML: "<div>" + message + "</div>"}
}

type fakeHealth struct {
	states  map[string]string
	pingErr error
}

func (h fakeHealth) BreakerStates() map[string]string { return h.states }
func (h fakeHealth) Ping(context.Context) error        { return h.pingErr }

func testConfig() *domain.Config {
	return &domain.Config{
		Metrics: domain.MetricsConfig{Enabled: true, Path: "/metrics"},
		MCP:     domain.MCPConfig{ServerVersion: "1.2.3"},
	}
}

func newTestServer(t *testing.T, store history.Store) (*Server, *echoProcessor) {
	t.Helper()
	proc := &echoProcessor{}
	s := NewServer(testConfig(), Dependencies{
		Processor: proc,
		History:   store,
		Health:    fakeHealth{states: map[string]string{"uniprot": "closed"}},
		Metrics:   metrics.New(),
		Logger:    logging.NewDiscard(),
	})
	return s, proc
}

func newStore(t *testing.T) history.Store {
	t.Helper()
	store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(t, s.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, map[string]any{"uniprot": "closed"}, body["databases"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestHealth_Degraded(t *testing.T) {
	s := NewServer(testConfig(), Dependencies{
		Processor: &echoProcessor{},
		Health:    fakeHealth{states: map[string]string{"pdb": "open"}},
		Logger:    logging.NewDiscard(),
	})

	w := do(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	do(t, s.Handler(), http.MethodGet, "/health", nil)

	w := do(t, s.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `genegpt_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestChat(t *testing.T) {
	s, proc := newTestServer(t, nil)

	w := do(t, s.Handler(), http.MethodPost, "/api/v1/chat", domain.ChatRequest{
		Messages: []domain.Turn{
			{Role: domain.RoleUser, Content: "Tell me about TP53"},
			{Role: domain.RoleAssistant, Content: "TP53 is a tumour suppressor."},
			{Role: domain.RoleUser, Content: "What is its structure?"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp domain.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "answer: What is its structure?", resp.Reply)
	assert.Equal(t, "<div>What is its structure?</div>", resp.HTML)

	require.Len(t, proc.history, 1)
	assert.Len(t, proc.history[0], 2)
}

func TestChat_Validation(t *testing.T) {
	s, proc := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{name: "no messages", body: domain.ChatRequest{}},
		{name: "blank last message", body: domain.ChatRequest{Messages: []domain.Turn{{Role: domain.RoleUser, Content: "  "}}}},
		{name: "not a chat request", body: "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s.Handler(), http.MethodPost, "/api/v1/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), domain.ErrInvalidInput)
		})
	}
	assert.Empty(t, proc.messages)
}

func TestChat_PersistsAndReplaysHistory(t *testing.T) {
	store := newStore(t)
	s, proc := newTestServer(t, store)
	ctx := context.Background()

	chat, err := store.CreateChat(ctx, "user-1", "")
	require.NoError(t, err)

	for _, msg := range []string{"Tell me about BRCA1", "Show its structure"} {
		w := do(t, s.Handler(), http.MethodPost, "/api/v1/chat", domain.ChatRequest{
			Messages: []domain.Turn{{Role: domain.RoleUser, Content: msg}},
			ChatID:   chat.ID,
			UserID:   "user-1",
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	stored, err := store.GetChat(ctx, "user-1", chat.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 4)
	assert.Equal(t, "Tell me about BRCA1", stored.Title)
	assert.Equal(t, "answer: Show its structure", stored.Messages[3].Content)

	require.Len(t, proc.history, 2)
	assert.Empty(t, proc.history[0])
	require.Len(t, proc.history[1], 2)
	assert.Equal(t, "Tell me about BRCA1", proc.history[1][0].Content)

	w := do(t, s.Handler(), http.MethodPost, "/api/v1/chat", domain.ChatRequest{
		Messages: []domain.Turn{{Role: domain.RoleUser, Content: "hi"}},
		ChatID:   chat.ID,
		UserID:   "intruder",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChatHistoryRoutes(t *testing.T) {
	store := newStore(t)
	s, _ := newTestServer(t, store)
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/api/v1/users/alice/chats", map[string]string{"title": "Kinases"})
	require.Equal(t, http.StatusCreated, w.Code)
	var chat history.Chat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &chat))
	assert.Equal(t, "Kinases", chat.Title)

	w = do(t, h, http.MethodPost, "/api/v1/users/alice/chats", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), history.DefaultTitle)

	w = do(t, h, http.MethodGet, "/api/v1/users/alice/chats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)

	w = do(t, h, http.MethodGet, "/api/v1/users/alice/chats?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/users/alice/chats/"+chat.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/users/bob/chats/"+chat.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrForbidden)

	w = do(t, h, http.MethodGet, "/api/v1/users/alice/chats/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPatch, "/api/v1/users/alice/chats/"+chat.ID, map[string]string{"title": "Receptor kinases"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Receptor kinases")

	w = do(t, h, http.MethodDelete, "/api/v1/users/bob/chats/"+chat.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodDelete, "/api/v1/users/alice/chats/"+chat.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/users/alice/chats/"+chat.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatHistoryRoutes_Disabled(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(t, s.Handler(), http.MethodGet, "/api/v1/users/alice/chats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChatWebSocket(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(domain.ChatRequest{
		Messages: []domain.Turn{{Role: domain.RoleUser, Content: "EGFR pathways"}},
	}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "answer: EGFR pathways", reply["reply"])
	assert.Nil(t, reply["error"])

	require.NoError(t, conn.WriteJSON(domain.ChatRequest{}))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	errBody, ok := reply["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, domain.ErrInvalidInput, errBody["code"])
	assert.Nil(t, reply["reply"])
}

func TestClassifyError(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		err    error
		status int
	}{
		{domain.NewValidationError("x", "bad", nil), http.StatusBadRequest},
		{history.ErrNotFound, http.StatusNotFound},
		{history.ErrForbidden, http.StatusForbidden},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, body := s.classifyError(tt.err, "req-1")
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, "req-1", body.RequestID)
	}
}
