package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pigeon/internal/store"
)

func historyCmd() *cobra.Command {
	var (
		jsonOutput bool
		jobID      string
		status     string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past send attempts, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			filter := store.HistoryFilter{
				JobID:  jobID,
				Status: store.HistoryStatus(status),
				Limit:  limit,
			}
			entries, err := apiClient().ListHistory(context.Background(), filter)
			if err != nil {
				fail(err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(entries, "", "  ")
				fmt.Println(string(data))
				return
			}
			if len(entries) == 0 {
				fmt.Println("No history yet.")
				return
			}

			loc := displayLocation()
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "TIME\tCONTACT\tKIND\tSTATUS\tDETAIL\n")
			for _, e := range entries {
				detail := e.Error
				if detail == "" {
					detail = truncate(e.Message, 40)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					formatTime(e.Timestamp, loc), e.ContactName, e.Kind, e.Status, detail)
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&jobID, "job", "", "only attempts of this job")
	cmd.Flags().StringVar(&status, "status", "", "only attempts with this outcome (sent, failed, unknown, skipped)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries")
	return cmd
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
