package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-thread-digest/dataset"
	"github.com/dhcgn/mail-thread-digest/filter"
	"github.com/dhcgn/mail-thread-digest/mbox"
	"github.com/dhcgn/mail-thread-digest/model"
)

func newImportMboxCmd(a *app) *cobra.Command {
	var (
		outPath    string
		perMessage bool
		filters    filter.Options
	)

	cmd := &cobra.Command{
		Use:   "import-mbox [mbox file]",
		Short: "Convert an mbox archive into a thread dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := mbox.NewReader(mbox.Options{Path: args[0], Filter: filters}, a.logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(commandContext(cmd))
			defer cancel()

			out := make(chan model.Envelope, 32)
			done := make(chan error, 1)
			go func() {
				done <- reader.Stream(ctx, out)
				close(out)
			}()

			var (
				records []model.MessageRecord
				skipped int
			)
			for env := range out {
				if env.Err != nil {
					skipped++
					continue
				}
				records = append(records, env.Record)
			}
			if err := <-done; err != nil {
				return fmt.Errorf("read mbox: %w", err)
			}

			var docs []model.ThreadDocument
			if perMessage {
				docs = dataset.Messages(records)
			} else {
				docs = dataset.Group(records)
			}

			if err := writeThreads(cmd, outPath, docs); err != nil {
				return err
			}
			a.logger.Info("mbox imported", "mbox", args[0], "messages", len(records), "skipped", skipped, "rows", len(docs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "Output thread CSV, - for stdout")
	cmd.Flags().BoolVar(&perMessage, "per-message", false, "Write one row per message instead of one row per thread")
	addFilterFlags(cmd, &filters)
	return cmd
}

func addFilterFlags(cmd *cobra.Command, opts *filter.Options) {
	cmd.Flags().StringArrayVar(&opts.IncludeHeader, "include-header", nil, "Regex allow-list applied to headers (mutually exclusive with exclude flags)")
	cmd.Flags().StringArrayVar(&opts.IncludeBody, "include-body", nil, "Regex allow-list applied to bodies (mutually exclusive with exclude flags)")
	cmd.Flags().StringArrayVar(&opts.ExcludeHeader, "exclude-header", nil, "Regex block-list applied to headers (mutually exclusive with include flags)")
	cmd.Flags().StringArrayVar(&opts.ExcludeBody, "exclude-body", nil, "Regex block-list applied to bodies (mutually exclusive with include flags)")
}
