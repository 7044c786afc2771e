package cmd

import (
	"context"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pigeon/internal/sender"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and link the web chat session",
	}
	cmd.AddCommand(sessionShowCmd())
	cmd.AddCommand(sessionLinkCmd())
	return cmd
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the chat session state",
		Run: func(cmd *cobra.Command, args []string) {
			info, err := apiClient().GetSession(context.Background())
			if err != nil {
				fail(err)
			}
			fmt.Printf("Session: %s\n", info.State)
		},
	}
}

func sessionLinkCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Render the pairing QR in the terminal and wait for the scan",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := runSessionLink(ctx); err != nil {
				fail(err)
			}
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "give up waiting after this long")
	return cmd
}

func runSessionLink(ctx context.Context) error {
	c := apiClient()

	var lastQR string
	for {
		info, err := c.GetSession(ctx)
		if err != nil {
			return err
		}

		switch info.State {
		case sender.SessionLinked:
			fmt.Println("Session linked.")
			return nil

		case sender.SessionPending:
			if info.QR != "" && info.QR != lastQR {
				lastQR = info.QR
				q, err := qrcode.New(info.QR, qrcode.Medium)
				if err != nil {
					return fmt.Errorf("render QR: %w", err)
				}
				fmt.Println("Scan this QR with your phone's chat app:")
				fmt.Println(q.ToSmallString(false))
			}

		case sender.SessionDisconnected:
			fmt.Println("Waiting for the chat page to load...")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up waiting for the scan")
		case <-time.After(2 * time.Second):
		}
	}
}
