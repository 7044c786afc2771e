package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/pigeon/internal/api"
	"github.com/nextlevelbuilder/pigeon/internal/config"
	"github.com/nextlevelbuilder/pigeon/internal/dispatch"
	"github.com/nextlevelbuilder/pigeon/internal/notify"
	"github.com/nextlevelbuilder/pigeon/internal/sender"
	"github.com/nextlevelbuilder/pigeon/internal/sender/webchat"
	"github.com/nextlevelbuilder/pigeon/internal/store/sqlite"
	"github.com/nextlevelbuilder/pigeon/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pigeon daemon (scheduler, sender and HTTP API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServe()
		},
	}
}

func runServe() error {
	cfgPath := resolveConfigPath()
	cfg := config.LoadOrDefault(cfgPath)

	// The log level lives in a LevelVar so a config reload can adjust it
	// without restarting.
	level := new(slog.LevelVar)
	level.Set(cfg.LogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	snd := webchat.New(webchat.Options{
		URL:         cfg.Sender.ChatURL,
		ProfileDir:  cfg.BrowserProfileDir(),
		Headless:    cfg.Headless(),
		SendTimeout: cfg.SendTimeout(),
	})
	// A failed start is not fatal: the session may need a QR scan first,
	// and the dispatcher skips ticks until the sender reports ready.
	if err := snd.Start(ctx); err != nil {
		slog.Warn("chat session not ready", "error", err)
	}
	defer snd.Close()

	hub := notify.NewHub()
	defer hub.Close()

	var collector *tracing.Collector
	if cfg.Tracing.Enabled {
		collector = tracing.NewCollector(cfg.Tracing.SpanBuffer)
		initOTelExporter(ctx, cfg, collector)
		collector.Start()
		defer collector.Stop()
	}

	opts := dispatch.Options{Notifier: hub}
	if collector != nil {
		opts.Observer = collector
	}
	d := dispatch.New(st, snd, opts)

	srv := api.New(d, api.Options{
		Settings:  st,
		Sender:    snd,
		Hub:       hub,
		Tracing:   collector,
		Limiter:   api.NewRateLimiter(int(cfg.Server.RatePerSec*60), cfg.Server.RateBurst),
		AuthToken: cfg.Server.AuthToken,
		Version:   version,
	})
	handler := srv.Handler()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if watcher, err := config.NewWatcher(cfgPath); err == nil {
		watcher.OnChange(func(updated *config.Config) {
			level.Set(updated.LogLevel())
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watcher not started", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if stopTailnet := initTailscale(ctx, cfg, handler); stopTailnet != nil {
		defer stopTailnet()
	}

	slog.Info("pigeon daemon starting", "version", version, "addr", cfg.Server.Addr, "db", cfg.DBPath())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(ctx)
	})
	g.Go(func() error {
		watchSession(ctx, snd, hub)
		return nil
	})
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("pigeon daemon stopped")
	return err
}

// watchSession polls the sender's link state and pushes changes onto
// the event stream, so clients see QR pairing complete without polling
// the API themselves.
func watchSession(ctx context.Context, snd *webchat.Client, hub *notify.Hub) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var last sender.SessionState
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info := snd.Session(ctx)
			if info.State != last {
				last = info.State
				hub.NotifySession(string(info.State))
			}
		}
	}
}
