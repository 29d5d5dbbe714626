package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/genegpt-server/internal/app"
	"github.com/genegpt-server/internal/config"
	"github.com/genegpt-server/internal/logging"
	"github.com/genegpt-server/internal/mcp"
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

	// stdout carries the protocol, so logs go to stderr.
	logCfg := cfg.Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pipeline, err := app.New(ctx, cfg, logger, app.Options{QueryLog: true})
	if err != nil {
		logger.WithError(err).Fatal("Failed to assemble pipeline")
	}
	defer pipeline.Close()

	server := mcp.NewServer(cfg.MCP, pipeline.Processor, pipeline.Router, logger)
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Error("MCP server stopped with error")
		return
	}

	logger.Info("GeneGPT MCP server stopped")
}
