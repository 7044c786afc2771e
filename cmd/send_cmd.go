package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "send --to [contact] [message...]",
		Short: "Send a message immediately, bypassing the schedule",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			message := strings.Join(args, " ")
			entry, err := apiClient().SendInstant(context.Background(), to, message)
			if err != nil {
				fail(err)
			}

			switch {
			case entry.Error != "":
				fmt.Printf("Send %s: %s\n", entry.Status, entry.Error)
			default:
				fmt.Printf("Sent to %q\n", entry.ContactName)
			}
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "contact name (required)")
	cmd.MarkFlagRequired("to")
	return cmd
}
