// Package cmd implements the pigeon CLI. `pigeon serve` runs the
// daemon; every other command talks to a running daemon over its HTTP
// API.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pigeon/internal/client"
	"github.com/nextlevelbuilder/pigeon/internal/config"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

var (
	flagConfig string
	flagAddr   string
	flagToken  string
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pigeon",
		Short:   "Schedule and send personal chat messages",
		Long:    "pigeon schedules messages to your chat contacts and delivers them\nthrough a browser-driven web chat session, all from your own machine.",
		Version: version,
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "daemon address (default from config)")
	cmd.PersistentFlags().StringVar(&flagToken, "token", "", "API auth token (default from config)")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(jobsCmd())
	cmd.AddCommand(historyCmd())
	cmd.AddCommand(sendCmd())
	cmd.AddCommand(sessionCmd())
	cmd.AddCommand(statusCmd())
	cmd.AddCommand(settingsCmd())
	cmd.AddCommand(onboardCmd())
	cmd.AddCommand(mcpCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath honors --config, then the default location.
func resolveConfigPath() string {
	if flagConfig != "" {
		return config.ExpandHome(flagConfig)
	}
	return config.DefaultPath()
}

// apiClient builds a daemon client from flags and config.
func apiClient() *client.Client {
	cfg := config.LoadOrDefault(resolveConfigPath())

	addr := flagAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	token := flagToken
	if token == "" {
		token = cfg.Server.AuthToken
	}
	return client.New(addr, token)
}

// fail prints err and exits. Command Run funcs use it so cobra's usage
// text is not dumped after runtime errors.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
