package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/genegpt-server/internal/config"
	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/logging"
)

// Version is injected at build time.
var Version = "dev"

// cliEnv is the state shared by every subcommand once the root has run.
type cliEnv struct {
	config   *domain.Config
	manager  *config.Manager
	logger   *logrus.Logger
	logLevel string
}

func newRootCommand() *cobra.Command {
	env := &cliEnv{}

	root := &cobra.Command{
		Use:           "genegpt",
		Short:         "Operate the GeneGPT biomedical chat service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return env.load()
		},
	}
	root.PersistentFlags().StringVar(&env.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newAskCommand(env),
		newMigrateCommand(env),
		newHistoryCommand(env),
	)
	return root
}

func (e *cliEnv) load() error {
	manager, err := config.NewManager()
	if err != nil {
		return err
	}
	cfg := manager.GetConfig()
	if e.logLevel != "" {
		cfg.Logging.Level = e.logLevel
	}
	if err := manager.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Command output owns stdout.
	logCfg := cfg.Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}

	e.manager = manager
	e.config = cfg
	e.logger = logger
	return nil
}
