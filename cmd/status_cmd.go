package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and activity",
		Run: func(cmd *cobra.Command, args []string) {
			status, err := apiClient().GetStatus(context.Background())
			if err != nil {
				fail(err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(status, "", "  ")
				fmt.Println(string(data))
				return
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Version:\t%s\n", status.Version)
			fmt.Fprintf(tw, "Sender ready:\t%v\n", status.SenderReady)
			if status.Session != nil {
				fmt.Fprintf(tw, "Session:\t%s\n", status.Session.State)
			}
			for st, n := range status.Jobs {
				fmt.Fprintf(tw, "Jobs (%s):\t%d\n", st, n)
			}
			fmt.Fprintf(tw, "Executing now:\t%d\n", status.Executing)
			fmt.Fprintf(tw, "Event subscribers:\t%d\n", status.Subscribers)
			for outcome, n := range status.Attempts {
				fmt.Fprintf(tw, "Attempts (%s):\t%d\n", outcome, n)
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
