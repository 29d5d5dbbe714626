// Package router dispatches a classification to the fetcher of its database
// and folds every outcome, including panics and timeouts, into a
// domain.DatabaseResult.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/metrics"
)

const (
	// ErrUnknownDatabase is the result error for a db_type with no fetcher.
	ErrUnknownDatabase = "Unknown database type"
	// ErrTimeout is the result error when a fetch exceeds its deadline.
	ErrTimeout = "timeout"
)

// Router holds a fixed db_type to fetcher table.
type Router struct {
	fetchers map[domain.DBType]domain.Fetcher
	timeout  time.Duration
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

// New copies fetchers so later changes to the map do not affect routing.
// A zero timeout leaves fetches bounded only by the caller's context.
func New(fetchers map[domain.DBType]domain.Fetcher, timeout time.Duration, logger *logrus.Logger, m *metrics.Metrics) *Router {
	table := make(map[domain.DBType]domain.Fetcher, len(fetchers))
	for db, f := range fetchers {
		if f != nil {
			table[db] = f
		}
	}
	return &Router{fetchers: table, timeout: timeout, logger: logger, metrics: m}
}

// Supports reports whether a fetcher is registered for db.
func (r *Router) Supports(db domain.DBType) bool {
	_, ok := r.fetchers[db]
	return ok
}

// RouteAndFetch fetches the data cls asks for. It never panics.
func (r *Router) RouteAndFetch(ctx context.Context, cls *domain.Classification) domain.DatabaseResult {
	if cls == nil {
		return domain.NewFailureResult("", "", ErrUnknownDatabase)
	}
	return r.Fetch(ctx, cls.DBType, cls.SearchTerm, cls.SubCommand)
}

// Fetch runs one lookup against db.
func (r *Router) Fetch(ctx context.Context, db domain.DBType, term, sub string) domain.DatabaseResult {
	fetcher, ok := r.fetchers[db]
	if !ok {
		r.logger.WithField("db_type", db).Warn("No fetcher registered for database")
		return domain.NewFailureResult(db, term, ErrUnknownDatabase)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := r.call(ctx, fetcher, term, sub)
	elapsed := time.Since(start)

	var result domain.DatabaseResult
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ErrTimeout
		}
		result = domain.NewFailureResult(db, term, reason)
	} else {
		result = domain.NewSuccessResult(db, term, data)
	}

	r.metrics.ObserveFetch(db, result.Success, elapsed)
	entry := r.logger.WithFields(logrus.Fields{
		"db_type":     db,
		"search_term": term,
		"sub_command": sub,
		"success":     result.Success,
		"duration_ms": elapsed.Milliseconds(),
	})
	if result.Success {
		entry.Info("Database fetch completed")
	} else {
		entry.WithField("error", result.Error).Warn("Database fetch failed")
	}
	return result
}

type outcome struct {
	data map[string]any
	err  error
}

// call runs the fetcher on its own goroutine so that a fetcher ignoring its
// context cannot hold the request past the deadline.
func (r *Router) call(ctx context.Context, f domain.Fetcher, term, sub string) (map[string]any, error) {
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("fetcher panic: %v", rec)}
			}
		}()
		data, err := f.Fetch(ctx, term, sub)
		done <- outcome{data: data, err: err}
	}()

	select {
	case o := <-done:
		return o.data, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
