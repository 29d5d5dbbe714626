// Package app assembles the chat pipeline and its storage from configuration.
// Every binary builds on it so that the HTTP server, the MCP server and the
// CLI answer a message identically.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/classifier"
	"github.com/genegpt-server/internal/conversation"
	"github.com/genegpt-server/internal/database"
	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/history"
	"github.com/genegpt-server/internal/llm"
	"github.com/genegpt-server/internal/metrics"
	"github.com/genegpt-server/internal/repository"
	"github.com/genegpt-server/internal/router"
	"github.com/genegpt-server/internal/service"
	"github.com/genegpt-server/pkg/external"
)

// App holds the assembled components.
type App struct {
	Config    *domain.Config
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
	Catalog   *external.Catalog
	Router    *router.Router
	Processor *service.QueryProcessor
	History   history.Store
	DB        *database.DB
	QueryLog  *repository.QueryLogRepository
}

// Options selects optional parts of the assembly.
type Options struct {
	// History opens the chat history store named in the configuration.
	History bool
	// QueryLog connects to Postgres when database.enabled is set.
	QueryLog bool
}

// New builds the pipeline. On error everything opened so far is closed.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger, opts Options) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	catalog, err := external.NewCatalog(cfg.ExternalAPI, cfg.Cache, logger, a.Metrics)
	if err != nil {
		return nil, fmt.Errorf("building database clients: %w", err)
	}
	a.Catalog = catalog

	a.Router = router.New(catalog.Fetchers(), cfg.Router.FetchTimeout, logger, a.Metrics)

	model := llm.NewClient(cfg.LLM, logger, a.Metrics)
	extractor := conversation.NewExtractor(cfg.LLM.HistoryTurnsClassify)
	cls := classifier.New(model, extractor, logger, a.Metrics)

	procOpts := []service.Option{}
	if cfg.LLM.DataContextLimit > 0 {
		procOpts = append(procOpts, service.WithContextLimit(cfg.LLM.DataContextLimit))
	}

	if opts.QueryLog && cfg.Database.Enabled {
		db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting query log database: %w", err)
		}
		a.DB = db
		a.QueryLog = repository.NewQueryLogRepository(db.Pool, logger)
		procOpts = append(procOpts, service.WithQueryLog(a.QueryLog))
	}

	if opts.History {
		store, err := history.Open(cfg.History)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening chat history: %w", err)
		}
		a.History = store
	}

	a.Processor = service.NewQueryProcessor(cls, a.Router, model, logger, a.Metrics, procOpts...)

	logger.WithFields(logrus.Fields{
		"databases":    catalog.Databases(),
		"image_search": catalog.ImageSearchEnabled(),
		"history":      a.History != nil,
		"query_log":    a.QueryLog != nil,
	}).Info("GeneGPT pipeline ready")

	return a, nil
}

// Close releases storage and cache connections.
func (a *App) Close() error {
	var errs []error
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing chat history: %w", err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Catalog != nil {
		if err := a.Catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing fetch cache: %w", err))
		}
	}
	return errors.Join(errs...)
}
