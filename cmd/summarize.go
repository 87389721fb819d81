package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-thread-digest/summarize"
	"github.com/dhcgn/mail-thread-digest/thread"
)

const (
	noContentMessage = "No content available to summarize."
	previewChars     = 1000
)

func newSummarizeCmd(a *app) *cobra.Command {
	var (
		dataPath string
		preview  bool
	)

	cmd := &cobra.Command{
		Use:   "summarize [thread id]",
		Short: "Assemble a thread and summarize it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := loadThreads(dataPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			selection := a.selector().SelectTopMessages(docs, args[0], a.cfg.MessagesPerThread)
			text := strings.Join(selection, thread.Separator)
			if strings.TrimSpace(text) == "" {
				fmt.Fprintln(out, noContentMessage)
				return nil
			}

			if preview {
				shown := summarize.Truncate(text, previewChars)
				if shown != text {
					shown += "..."
				}
				fmt.Fprintf(out, "Thread %s (%d messages)\n\n%s\n\n", args[0], len(selection), shown)
			}

			gateway, err := a.gateway()
			if err != nil {
				return err
			}

			res := gateway.Summarize(commandContext(cmd), text, a.cfg.SummaryMaxLength, a.cfg.SummaryMinLength)
			fmt.Fprintf(out, "Summary:\n%s\n", res)
			if res.Fatal() {
				return res.Err
			}
			return nil
		},
	}

	addDataFlag(cmd, &dataPath)
	cmd.Flags().BoolVar(&preview, "preview", true, "Print the first 1000 characters of the assembled thread")
	return cmd
}
