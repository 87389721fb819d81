package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-thread-digest/dataset"
	"github.com/dhcgn/mail-thread-digest/model"
)

func newPrepareCmd(a *app) *cobra.Command {
	var detailsPath, summariesPath, outPath string

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Group per-message rows into one row per thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(detailsPath)
			if err != nil {
				return fmt.Errorf("open details: %w", err)
			}
			records, err := dataset.ReadDetails(file)
			file.Close()
			if err != nil {
				return fmt.Errorf("read details: %w", err)
			}

			docs := dataset.Group(records)

			if summariesPath != "" {
				file, err := os.Open(summariesPath)
				if err != nil {
					return fmt.Errorf("open summaries: %w", err)
				}
				summaries, err := dataset.ReadSummaries(file)
				file.Close()
				if err != nil {
					return fmt.Errorf("read summaries: %w", err)
				}
				docs = dataset.Merge(docs, summaries)
			}

			if err := writeThreads(cmd, outPath, docs); err != nil {
				return err
			}
			a.logger.Info("threads prepared", "messages", len(records), "threads", len(docs), "out", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&detailsPath, "details", "", "Per-message CSV (thread_id,timestamp,body)")
	cmd.Flags().StringVar(&summariesPath, "summaries", "", "Optional reference summaries CSV (thread_id,summary); threads without one are dropped")
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "Output thread CSV, - for stdout")
	_ = cmd.MarkFlagRequired("details")
	return cmd
}

func writeThreads(cmd *cobra.Command, path string, docs []model.ThreadDocument) error {
	var w io.Writer = cmd.OutOrStdout()
	if path != "" && path != "-" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		w = file
	}

	if err := dataset.WriteThreads(w, docs); err != nil {
		return fmt.Errorf("write threads: %w", err)
	}
	return nil
}
