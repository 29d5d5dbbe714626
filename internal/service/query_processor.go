// Package service wires the classifier, router, formatter and generation
// model into the single chat operation exposed to the HTTP, websocket, MCP
// and CLI surfaces.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/classifier"
	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/formatter"
	"github.com/genegpt-server/internal/logging"
	"github.com/genegpt-server/internal/metrics"
	"github.com/genegpt-server/internal/router"
)

// Chat outcomes, used as the metrics label and in the query log.
const (
	OutcomeGeneral          = "general"
	OutcomeClarification    = "clarification"
	OutcomeIsoform          = "isoform"
	OutcomeAnswered         = "answered"
	OutcomeFetchFailed      = "fetch_failed"
	OutcomeGenerationFailed = "generation_failed"
)

// EmptyMessageReply answers a message with no content.
const EmptyMessageReply = "Please type a question about a gene, protein, compound or pathway."

// QueryLog records processed sub-queries. Implementations must not block
// the reply on slow storage for long; errors are only logged.
type QueryLog interface {
	Record(ctx context.Context, entry *domain.QueryLogEntry) error
}

// QueryProcessor answers one chat message given its conversation history.
type QueryProcessor struct {
	classifier   *classifier.Classifier
	router       *router.Router
	generator    domain.LLMGenerator
	queryLog     QueryLog
	contextLimit int
	logger       *logrus.Logger
	metrics      *metrics.Metrics
}

// Option configures a QueryProcessor.
type Option func(*QueryProcessor)

// WithQueryLog records every sub-query in log.
func WithQueryLog(log QueryLog) Option {
	return func(p *QueryProcessor) { p.queryLog = log }
}

// WithContextLimit bounds the data dump handed to the generation model.
func WithContextLimit(limit int) Option {
	return func(p *QueryProcessor) { p.contextLimit = limit }
}

// NewQueryProcessor creates a processor. generator may be nil, in which case
// every database answer uses the generation fallback message.
func NewQueryProcessor(c *classifier.Classifier, r *router.Router, generator domain.LLMGenerator, logger *logrus.Logger, m *metrics.Metrics, opts ...Option) *QueryProcessor {
	p := &QueryProcessor{
		classifier:   c,
		router:       r,
		generator:    generator,
		contextLimit: formatter.DefaultContextLimit,
		logger:       logger,
		metrics:      m,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessQuery classifies message, fetches the data it asks for and phrases
// the answer. It never fails: every failure path yields a non-empty reply.
// A message joining independent requests with "and" is answered part by part.
func (p *QueryProcessor) ProcessQuery(ctx context.Context, message string, history []domain.Turn) *domain.ChatResponse {
	if strings.TrimSpace(message) == "" {
		return &domain.ChatResponse{Reply: EmptyMessageReply}
	}

	parts := classifier.Split(message)
	if len(parts) > 1 {
		logging.Entry(ctx, p.logger).WithField("parts", len(parts)).Info("Processing multi-part query")
	}

	replies := make([]string, 0, len(parts))
	fragments := make([]string, 0, len(parts))
	for _, part := range parts {
		reply, html := p.processSingle(ctx, part, history)
		replies = append(replies, reply)
		if html != "" {
			fragments = append(fragments, html)
		}
	}

	return &domain.ChatResponse{
		Reply: strings.Join(replies, "\n\n"),
		HTML:  strings.Join(fragments, "\n"),
	}
}

func (p *QueryProcessor) processSingle(ctx context.Context, message string, history []domain.Turn) (reply, html string) {
	start := time.Now()
	cls, decision := p.classifier.Classify(ctx, message, history)

	entry := &domain.QueryLogEntry{
		ID:            uuid.New().String(),
		CorrelationID: logging.CorrelationID(ctx),
		Decision:      string(decision),
		Success:       true,
	}
	defer func() {
		entry.DurationMs = time.Since(start).Milliseconds()
		entry.CreatedAt = time.Now().UTC()
		p.record(ctx, entry)
	}()

	switch {
	case cls.QueryType == domain.QueryTypeGeneral:
		p.metrics.ObserveChat(OutcomeGeneral)
		if strings.TrimSpace(cls.Reply) == "" {
			return classifier.FallbackReply, ""
		}
		return cls.Reply, ""
	case cls.NeedsClarification:
		p.metrics.ObserveChat(OutcomeClarification)
		return cls.FollowUpQuestion, ""
	}

	result := p.router.RouteAndFetch(ctx, cls)
	entry.DBType = result.DBType
	entry.SearchTerm = result.SearchTerm
	entry.Success = result.Success
	entry.Error = result.Error

	if result.Success {
		html = formatter.BuildHTML(cls.DBType, result.Data, message)
	}

	// Isoform sequences are exact data and are never passed through the model.
	if cls.Isoform != nil {
		p.metrics.ObserveChat(OutcomeIsoform)
		return formatter.FormatIsoform(result, cls.Isoform), html
	}

	reply, ok := p.generate(ctx, message, history, cls, result)
	switch {
	case !ok:
		p.metrics.ObserveChat(OutcomeGenerationFailed)
	case !result.Success:
		p.metrics.ObserveChat(OutcomeFetchFailed)
	default:
		p.metrics.ObserveChat(OutcomeAnswered)
	}
	return reply, html
}

// generate phrases the answer, reporting false when the fallback was used.
func (p *QueryProcessor) generate(ctx context.Context, message string, history []domain.Turn, cls *domain.Classification, result domain.DatabaseResult) (string, bool) {
	if cls.AnnotatedMessage != "" {
		message = cls.AnnotatedMessage
	}
	req := domain.GenerationRequest{
		Message:    message,
		History:    history,
		DBType:     result.DBType,
		SearchTerm: result.SearchTerm,
	}
	if result.Success {
		req.DataContext = formatter.DataContext(result.Data, p.contextLimit)
	} else {
		req.FetchError = result.Error
	}

	if p.generator != nil {
		text, err := p.generator.Generate(ctx, req)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, true
		}
		logging.Entry(ctx, p.logger).WithError(err).WithField("db_type", result.DBType).Warn("Answer generation failed, using fallback reply")
	}
	return GenerationFallback(result.DBType), false
}

// GenerationFallback is the reply used when the answer cannot be generated.
func GenerationFallback(db domain.DBType) string {
	return fmt.Sprintf("I retrieved data from %s but encountered an error generating the response. Please try again.", db.DisplayName())
}

func (p *QueryProcessor) record(ctx context.Context, entry *domain.QueryLogEntry) {
	if p.queryLog == nil {
		return
	}
	if err := p.queryLog.Record(ctx, entry); err != nil {
		logging.Entry(ctx, p.logger).WithError(err).Warn("Failed to record query log entry")
	}
}
