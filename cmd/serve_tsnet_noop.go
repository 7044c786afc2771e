//go:build !tsnet

package cmd

import (
	"context"
	"net/http"

	"github.com/nextlevelbuilder/pigeon/internal/config"
)

// initTailscale is a no-op without -tags tsnet.
func initTailscale(ctx context.Context, cfg *config.Config, mux http.Handler) func() {
	return nil
}
