package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-thread-digest/config"
	"github.com/dhcgn/mail-thread-digest/filter"
	"github.com/dhcgn/mail-thread-digest/imap"
	"github.com/dhcgn/mail-thread-digest/metrics"
	"github.com/dhcgn/mail-thread-digest/progress"
	"github.com/dhcgn/mail-thread-digest/runner"
	"github.com/dhcgn/mail-thread-digest/summarize"
	"github.com/dhcgn/mail-thread-digest/thread"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		dataPath    string
		workers     int
		force       bool
		dryRun      bool
		redeliver   bool
		metricsFile string
		filters     filter.Options
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Summarize every thread of a dataset and store the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			imapCfg, err := config.LoadIMAPConfig(cmd)
			if err != nil {
				return err
			}

			docs, err := loadThreads(dataPath)
			if err != nil {
				return err
			}
			threadCount := len(thread.IDs(docs))

			m := metrics.New()
			gateway, err := a.gateway(summarize.WithObserver(m))
			if err != nil {
				return err
			}

			r, err := runner.New(runner.Options{
				Workers:   workers,
				Limit:     a.cfg.MessagesPerThread,
				MaxLength: a.cfg.SummaryMaxLength,
				MinLength: a.cfg.SummaryMinLength,
				StateDir:  a.cfg.StateDir,
				DryRun:    dryRun,
				Force:     force,
				Filter:    filters,
			}, gateway, a.selector(), a.logger)
			if err != nil {
				return fmt.Errorf("runner.New: %w", err)
			}

			bar := progress.New(threadCount, r.Store().Snapshot().Stored, a.cfg.LogLevel)
			progress.NewProgressReporter(r, bar, a.logger)
			r.SubscribeStats("metrics", m.Subscriber)

			if imapCfg.Enabled {
				publisherOpts := imap.Options{
					Host:               imapCfg.Host,
					Port:               imapCfg.Port,
					Username:           imapCfg.User,
					Password:           imapCfg.Pass,
					UseTLS:             imapCfg.UseTLS,
					InsecureSkipVerify: imapCfg.InsecureSkipVerify,
					TargetFolder:       imapCfg.TargetFolder,
					From:               imapCfg.From,
					To:                 imapCfg.To,
					DryRun:             dryRun,
					Redeliver:          redeliver,
				}
				if _, err := imap.NewPublisher(publisherOpts, r, a.logger); err != nil {
					return fmt.Errorf("imap.NewPublisher: %w", err)
				}
			}

			a.logger.Info("starting batch", "threads", threadCount, "rows", len(docs), "backend", a.cfg.Backend, "workers", workers, "dryRun", dryRun, "delivery", imapCfg.Enabled)
			r.Feed(docs)
			runErr := r.Start()

			if metricsFile != "" {
				if err := m.WriteTextfile(metricsFile); err != nil {
					a.logger.Warn("metrics not written", "path", metricsFile, "err", err)
				}
			}
			if runErr != nil {
				return runErr
			}

			if !dryRun {
				a.logger.Info("summaries stored", "path", r.Store().Path())
			}
			return nil
		},
	}

	addDataFlag(cmd, &dataPath)
	cmd.Flags().IntVarP(&workers, "workers", "w", 2, "Concurrent summarizer calls")
	cmd.Flags().BoolVar(&force, "force", false, "Summarize threads again even when a stored summary matches")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Keep summaries in memory and do not append digests")
	cmd.Flags().BoolVar(&redeliver, "redeliver", false, "Also deliver digests for threads answered from the store")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	addFilterFlags(cmd, &filters)
	config.RegisterIMAPFlags(cmd)
	return cmd
}
