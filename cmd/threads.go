package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-thread-digest/thread"
)

func newThreadsCmd(a *app) *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List the thread ids of a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := loadThreads(dataPath)
			if err != nil {
				return err
			}
			for _, id := range thread.IDs(docs) {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	addDataFlag(cmd, &dataPath)
	return cmd
}
