package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/api"
	"github.com/genegpt-server/internal/app"
	"github.com/genegpt-server/internal/config"
	"github.com/genegpt-server/internal/logging"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if configManager.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pipeline, err := app.New(ctx, cfg, logger, app.Options{History: true, QueryLog: true})
	if err != nil {
		logger.WithError(err).Fatal("Failed to assemble pipeline")
	}
	defer pipeline.Close()

	server := api.NewServer(cfg, api.Dependencies{
		Processor:   pipeline.Processor,
		History:     pipeline.History,
		Health:      pipeline.Catalog,
		Metrics:     pipeline.Metrics,
		Logger:      logger,
		ReplayTurns: cfg.LLM.HistoryTurnsGenerate,
	})

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting GeneGPT server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		return
	}

	logger.Info("Server stopped")
}
