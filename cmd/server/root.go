package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Qaquka/aatm-qaquka/internal/config"
	"github.com/Qaquka/aatm-qaquka/internal/repository"
	"github.com/Qaquka/aatm-qaquka/internal/repository/jsonfile"
	"github.com/Qaquka/aatm-qaquka/internal/repository/sqlite"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "aatm",
		Short:         "NAS torrent packaging console",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFlag)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newHashPasswordCommand())
	rootCmd.AddCommand(newHistoryCommand(&configFlag))
	return rootCmd
}

func newLogger(cfg config.Config, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(level)
	return logger, nil
}

// openHistory returns the configured history backend, initialised, and a
// closer for whatever it holds open.
func openHistory(ctx context.Context, cfg config.Config) (repository.HistoryRepository, func() error, error) {
	var (
		repo   repository.HistoryRepository
		closer = func() error { return nil }
	)
	switch cfg.History.Backend {
	case config.HistorySQLite:
		db, err := sqlite.Open(cfg.History.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		repo = sqlite.NewHistoryRepository(db)
		closer = db.Close
	default:
		repo = jsonfile.NewHistoryRepository(cfg.HistoryPath())
	}
	if err := repo.Init(ctx); err != nil {
		_ = closer()
		return nil, nil, fmt.Errorf("init history repository: %w", err)
	}
	return repo, closer, nil
}
