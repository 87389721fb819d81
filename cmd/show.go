package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const noEmailsMessage = "No emails found or date extraction failed."

func newShowCmd(a *app) *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "show [thread id]",
		Short: "Print the selected messages of a thread in date order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := loadThreads(dataPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			entries := a.selector().Entries(docs, args[0], a.cfg.MessagesPerThread)
			if len(entries) == 0 {
				fmt.Fprintln(out, noEmailsMessage)
				return nil
			}

			for i, entry := range entries {
				fmt.Fprintf(out, "[%d] %s\n%s\n\n", i+1, entry.Date, entry.Text)
			}
			return nil
		},
	}

	addDataFlag(cmd, &dataPath)
	return cmd
}
