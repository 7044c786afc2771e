package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pigeon/internal/clock"
	"github.com/nextlevelbuilder/pigeon/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard — chat client, browser, API",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2)

	hintStyle = lipgloss.NewStyle().Faint(true)
)

func runOnboard() {
	fmt.Println(bannerStyle.Render("pigeon — setup wizard"))
	fmt.Println()

	cfgPath := resolveConfigPath()

	cfg := config.Default()
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Found existing config at %s\n", cfgPath)
		useExisting, err := promptConfirm("Use existing config as base?", true)
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
		if useExisting {
			if loaded, err := config.Load(cfgPath); err == nil {
				cfg = loaded
			} else {
				fmt.Printf("Warning: could not load existing config: %v\n", err)
			}
		}
	}

	chatURL, err := promptSelect("Which web chat client?", []SelectOption[string]{
		{Label: "WhatsApp Web", Value: "https://web.whatsapp.com"},
		{Label: "Custom URL", Value: ""},
	}, 0)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	if chatURL == "" {
		chatURL, err = promptString("Chat client URL", "The page the browser will drive", cfg.Sender.ChatURL)
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
	}
	cfg.Sender.ChatURL = chatURL

	headless, err := promptConfirm("Run the browser without a window?", cfg.Headless())
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	cfg.Sender.Headless = &headless

	addr, err := promptString("API listen address", "Keep the loopback default unless other machines need access", cfg.Server.Addr)
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	cfg.Server.Addr = addr

	if cfg.Server.Addr != config.DefaultAddr && cfg.Server.AuthToken == "" {
		token, err := promptPassword("API auth token", "Required before exposing the API beyond loopback; empty to skip")
		if err != nil {
			fmt.Println("Cancelled.")
			return
		}
		cfg.Server.AuthToken = token
	}

	timezone, err := promptString("Display timezone (IANA name)", "Used for rendering times in the CLI; empty keeps the system zone", "")
	if err != nil {
		fmt.Println("Cancelled.")
		return
	}
	if timezone != "" {
		if _, err := clock.Location(timezone); err != nil {
			fmt.Printf("Warning: unknown timezone %q, skipping\n", timezone)
			timezone = ""
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		fail(err)
	}
	fmt.Printf("\nWrote %s\n\n", cfgPath)

	fmt.Println("Next steps:")
	fmt.Println(hintStyle.Render("  pigeon serve                  # start the daemon"))
	fmt.Println(hintStyle.Render("  pigeon session link           # scan the QR to link your account"))
	if timezone != "" {
		fmt.Println(hintStyle.Render("  pigeon settings set timezone " + timezone))
	}
	fmt.Println(hintStyle.Render(`  pigeon jobs create --to Alice --message "hi" --at "2025-06-01 13:00"`))
}
