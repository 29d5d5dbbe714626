// Package llm talks to an OpenAI-compatible chat completion endpoint (Groq by
// default) for the two model calls of the pipeline: structured routing
// classification and final answer generation.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/metrics"
)

const (
	opClassify = "classify"
	opGenerate = "generate"
)

// ErrEmptyCompletion is returned when the model answers with no content.
var ErrEmptyCompletion = errors.New("empty completion")

// Client implements domain.LLMClassifier and domain.LLMGenerator.
type Client struct {
	api     *openai.Client
	cfg     domain.LLMConfig
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// NewClient creates a client for cfg. A nil metrics is allowed.
func NewClient(cfg domain.LLMConfig, logger *logrus.Logger, m *metrics.Metrics) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:     openai.NewClientWithConfig(oc),
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// Classify asks the routing model for a Classification of message. The
// returned value is already normalized. Any transport, parse or validation
// problem is returned as an error; the caller owns the fallback.
func (c *Client) Classify(ctx context.Context, message string, history []domain.Turn) (*domain.Classification, error) {
	msgs := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: ClassificationSystemPrompt}}
	msgs = append(msgs, toMessages(lastTurns(history, c.cfg.HistoryTurnsClassify))...)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: "Classify this query: " + message,
	})

	content, err := c.complete(ctx, opClassify, openai.ChatCompletionRequest{
		Model:       c.cfg.RoutingModel,
		Messages:    msgs,
		Temperature: c.cfg.ClassifyTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, err
	}

	cls, err := parseClassification(content)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"operation":      opClassify,
			"content_length": len(content),
		}).WithError(err).Warn("Discarding malformed classification")
		return nil, err
	}
	return cls, nil
}

// Generate asks the generation model to phrase the answer for req.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	msgs := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: AnswerSystemPrompt}}
	msgs = append(msgs, toMessages(lastTurns(req.History, c.cfg.HistoryTurnsGenerate))...)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: generationPrompt(req),
	})

	content, err := c.complete(ctx, opGenerate, openai.ChatCompletionRequest{
		Model:       c.cfg.GenerationModel,
		Messages:    msgs,
		Temperature: c.cfg.GenerateTemperature,
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) complete(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	if c.cfg.MaxTokens > 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	elapsed := time.Since(start)

	if err == nil && (len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "") {
		err = ErrEmptyCompletion
	}
	c.metrics.ObserveLLM(op, err == nil, elapsed)

	fields := logrus.Fields{
		"operation":   op,
		"model":       req.Model,
		"duration_ms": elapsed.Milliseconds(),
	}
	if err != nil {
		c.logger.WithFields(fields).WithError(err).Warn("Chat completion failed")
		return "", fmt.Errorf("%s completion: %w", op, err)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	fields["response_length"] = len(content)
	c.logger.WithFields(fields).Debug("Chat completion succeeded")
	return content, nil
}

func generationPrompt(req domain.GenerationRequest) string {
	var b strings.Builder
	b.WriteString("DATABASE QUERY RESULTS:\n")
	fmt.Fprintf(&b, "- Source: %s\n", strings.ToUpper(string(req.DBType)))
	fmt.Fprintf(&b, "- Search Term: %s\n", req.SearchTerm)

	if req.FetchError != "" || req.DataContext == "" {
		reason := req.FetchError
		if reason == "" {
			reason = "no data returned"
		}
		b.WriteString("- Status: FAILED\n")
		fmt.Fprintf(&b, "- Error: %s\n\n", reason)
		b.WriteString("The lookup failed. Tell the user the data could not be retrieved and suggest trying again or rephrasing the query.\n")
	} else {
		b.WriteString("- Status: SUCCESS\n")
		b.WriteString("- Data Retrieved (USE ONLY THIS DATA):\n```json\n")
		b.WriteString(req.DataContext)
		b.WriteString("\n```\n")
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n\n", req.Message)
	b.WriteString("Provide a direct, concise answer. If the specific entity asked about does not exist in the data, say so briefly.")
	return b.String()
}

func lastTurns(history []domain.Turn, n int) []domain.Turn {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

func toMessages(turns []domain.Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		var role string
		switch t.Role {
		case domain.RoleUser:
			role = openai.ChatMessageRoleUser
		case domain.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		default:
			continue
		}
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	return out
}

// parseClassification treats the completion as untrusted input: it tolerates
// code fences, loose scalar types and "null" strings, and rejects anything
// that would route to an unknown database.
func parseClassification(content string) (*domain.Classification, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return nil, errors.New("completion contains no JSON object")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}

	cls := &domain.Classification{
		QueryType:          domain.QueryType(strings.ToLower(stringField(fields, "query_type"))),
		Reply:              stringField(fields, "reply"),
		NeedsClarification: boolField(fields, "needs_clarification"),
		FollowUpQuestion:   stringField(fields, "follow_up_question"),
		DBType:             domain.DBType(strings.ToLower(stringField(fields, "db_type"))),
		SearchTerm:         stringField(fields, "search_term"),
		SubCommand:         stringField(fields, "sub_command"),
	}

	switch cls.QueryType {
	case domain.QueryTypeGeneral:
		if cls.Reply == "" {
			return nil, errors.New("general classification without reply")
		}
	case domain.QueryTypeMedical:
	case "":
		if cls.DBType == "" && !cls.NeedsClarification {
			return nil, errors.New("classification without query_type")
		}
		cls.QueryType = domain.QueryTypeMedical
	default:
		return nil, fmt.Errorf("unknown query_type %q", cls.QueryType)
	}

	if cls.QueryType == domain.QueryTypeMedical && !cls.NeedsClarification {
		switch {
		case cls.DBType != "" && !cls.DBType.IsValid():
			return nil, fmt.Errorf("unknown db_type %q", cls.DBType)
		case cls.DBType == "" || cls.SearchTerm == "":
			// Nothing routable; ask instead of guessing.
			cls.NeedsClarification = true
		}
	}

	cls.Normalize()
	return cls, nil
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		v = strings.TrimSpace(v)
		switch strings.ToLower(v) {
		case "null", "none", "n/a":
			return ""
		}
		return v
	case float64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func boolField(fields map[string]any, key string) bool {
	switch v := fields[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}
