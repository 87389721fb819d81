// Package cmd holds the thread-digest command tree.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-thread-digest/config"
	"github.com/dhcgn/mail-thread-digest/dataset"
	"github.com/dhcgn/mail-thread-digest/dates"
	"github.com/dhcgn/mail-thread-digest/model"
	"github.com/dhcgn/mail-thread-digest/summarize"
	"github.com/dhcgn/mail-thread-digest/thread"
)

// LoggerSetup builds the process logger from the loaded config.
type LoggerSetup func(config.Config) (*slog.Logger, func() error, error)

type app struct {
	cfg     config.Config
	logger  *slog.Logger
	cleanup func() error
}

func NewRootCommand(setup LoggerSetup) (*cobra.Command, error) {
	a := &app{cleanup: func() error { return nil }}

	rootCmd := &cobra.Command{
		Use:           "thread-digest",
		Short:         "Reconstruct email threads and summarize them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger := slog.Default()
			if setup != nil {
				var cleanup func() error
				logger, cleanup, err = setup(cfg)
				if err != nil {
					return err
				}
				a.cleanup = cleanup
			}

			slog.SetDefault(logger)
			a.cfg = cfg
			a.logger = logger
			logger.Debug("starting thread-digest", "command", cmd.Name(), "backend", cfg.Backend)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.cleanup()
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		return nil, err
	}

	rootCmd.AddCommand(
		newPrepareCmd(a),
		newImportMboxCmd(a),
		newThreadsCmd(a),
		newShowCmd(a),
		newSummarizeCmd(a),
		newBatchCmd(a),
		newStatsCmd(a),
	)
	return rootCmd, nil
}

func (a *app) extractor() *dates.Extractor {
	return dates.NewExtractor(dates.WithLogger(a.logger))
}

func (a *app) selector() *thread.Selector {
	return thread.NewSelector(a.extractor())
}

func (a *app) gateway(opts ...summarize.Option) (*summarize.Gateway, error) {
	factory, err := summarize.NewFactory(a.cfg.BackendConfig(), a.logger)
	if err != nil {
		return nil, err
	}
	opts = append([]summarize.Option{summarize.WithLogger(a.logger)}, opts...)
	return summarize.NewGateway(summarize.NewHandle(factory), opts...), nil
}

func loadThreads(path string) ([]model.ThreadDocument, error) {
	if path == "" {
		return nil, fmt.Errorf("--data is required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open thread dataset: %w", err)
	}
	defer file.Close()

	docs, err := dataset.ReadThreads(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return docs, nil
}

func addDataFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "data", "", "Thread dataset CSV (thread_id,emails_text[,summary])")
	_ = cmd.MarkFlagRequired("data")
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
