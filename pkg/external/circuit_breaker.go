package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/genegpt-server/internal/domain"
)

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `json:"max_requests"`
	Interval     time.Duration `json:"interval"`
	Timeout      time.Duration `json:"timeout"`
	MinRequests  uint32        `json:"min_requests"`
	FailureRatio float64       `json:"failure_ratio"`
}

// DefaultCircuitBreakerConfig trips at 60% failures once three requests
// have been seen and stays open for a minute.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:  5,
		Interval:     30 * time.Second,
		Timeout:      60 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// ResilientFetcher wraps one database client with the result cache and a
// circuit breaker. Only upstream faults count against the breaker.
type ResilientFetcher struct {
	db      domain.DBType
	next    domain.Fetcher
	cache   *ResultCache
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewResilientFetcher wraps next. cache may be nil.
func NewResilientFetcher(db domain.DBType, next domain.Fetcher, cache *ResultCache, config CircuitBreakerConfig, logger *logrus.Logger) *ResilientFetcher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(db),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
		IsSuccessful: countsAsSuccess,
	})

	return &ResilientFetcher{
		db:      db,
		next:    next,
		cache:   cache,
		breaker: breaker,
		logger:  logger,
	}
}

// countsAsSuccess keeps answers about the query itself, such as an unknown
// gene, from tripping the breaker.
func countsAsSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, context.Canceled)
}

// Fetch implements domain.Fetcher.
func (f *ResilientFetcher) Fetch(ctx context.Context, searchTerm, subCommand string) (map[string]any, error) {
	if f.cache != nil {
		if data, ok := f.cache.Get(ctx, f.db, searchTerm, subCommand); ok {
			return data, nil
		}
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.next.Fetch(ctx, searchTerm, subCommand)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			if f.cache != nil {
				if entry, ok := f.cache.Stale(ctx, f.db, searchTerm, subCommand); ok {
					f.logger.WithFields(logrus.Fields{
						"db_type":   f.db,
						"cached_at": entry.CachedAt,
					}).Info("Serving stale result while circuit breaker is open")
					return entry.Data, nil
				}
			}
			return nil, fmt.Errorf("%s service unavailable (circuit breaker open)", f.db.DisplayName())
		}
		return nil, err
	}

	data, _ := result.(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	if f.cache != nil {
		if cacheErr := f.cache.Set(ctx, f.db, searchTerm, subCommand, data); cacheErr != nil {
			f.logger.WithError(cacheErr).WithField("db_type", f.db).Warn("Failed to cache fetch result")
		}
	}
	return data, nil
}

// State returns the breaker's current state.
func (f *ResilientFetcher) State() gobreaker.State {
	return f.breaker.State()
}

// Counts returns the breaker's counters for the current interval.
func (f *ResilientFetcher) Counts() gobreaker.Counts {
	return f.breaker.Counts()
}
