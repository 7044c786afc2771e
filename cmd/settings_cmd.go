package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write daemon settings",
	}
	cmd.AddCommand(settingsListCmd())
	cmd.AddCommand(settingsSetCmd())
	return cmd
}

func settingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		Run: func(cmd *cobra.Command, args []string) {
			settings, err := apiClient().ListSettings(context.Background())
			if err != nil {
				fail(err)
			}
			if len(settings) == 0 {
				fmt.Println("No settings stored.")
				return
			}

			keys := make([]string, 0, len(settings))
			for k := range settings {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%s\n", k, settings[k])
			}
			tw.Flush()
		},
	}
}

func settingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Write one setting (e.g. timezone Europe/Berlin)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient().PutSetting(context.Background(), args[0], args[1]); err != nil {
				fail(err)
			}
			fmt.Printf("%s = %s\n", args[0], args[1])
		},
	}
}
