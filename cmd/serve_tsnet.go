//go:build tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"tailscale.com/tsnet"

	"github.com/nextlevelbuilder/pigeon/internal/config"
)

// initTailscale starts an additional tailnet listener sharing the API
// handler, so other machines on the tailnet reach the daemon without
// opening the local port. Only compiled with -tags tsnet.
func initTailscale(ctx context.Context, cfg *config.Config, mux http.Handler) func() {
	tc := cfg.Tailnet
	if tc.Hostname == "" {
		slog.Debug("tailnet available but not configured (set tailnet.hostname to enable)")
		return nil
	}

	srv := &tsnet.Server{
		Hostname: tc.Hostname,
		AuthKey:  tc.AuthKey,
	}
	if tc.StateDir != "" {
		srv.Dir = config.ExpandHome(tc.StateDir)
	}

	ln, err := srv.Listen("tcp", ":80")
	if err != nil {
		slog.Warn("tailnet listener failed to start", "error", err)
		srv.Close()
		return nil
	}

	slog.Info("tailnet listener started", "hostname", tc.Hostname)

	httpSrv := &http.Server{Handler: mux}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Warn("tailnet http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	return func() {
		httpSrv.Close()
		ln.Close()
		srv.Close()
		slog.Info("tailnet listener stopped")
	}
}
