package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/peerfeed"
	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/relay"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting aero-udp-broadcast-relay",
		"listen_addr", cfg.UDPListenAddr(),
		"mode", cfg.Mode,
		"expiry_window", cfg.ExpiryWindow,
		"max_datagram_bytes", cfg.MaxDatagramBytes,
		"max_peers", cfg.MaxPeers,
		"admin_listen_addr", cfg.AdminListenAddr,
	)

	logStartupSecurityWarnings(logger, cfg)

	conn, err := relay.Bind(nil, cfg.UDPListenAddr())
	if err != nil {
		logger.Error("failed to bind udp socket", "err", err)
		os.Exit(1)
	}

	commit, buildTime := resolveBuildInfo(buildCommit, buildTime)

	m := metrics.New()
	hub := peerfeed.NewHub(peerfeed.Config{}, logger, m)
	r := relay.New(conn, relay.Options{
		Config: relay.Config{
			ExpiryWindow:     cfg.ExpiryWindow,
			MaxDatagramBytes: cfg.MaxDatagramBytes,
			MaxPeers:         cfg.MaxPeers,
		},
		Logger:  logger,
		Metrics: m,
		Events:  hub,
	})

	var (
		srv *httpserver.Server
		ln  net.Listener
	)
	if cfg.AdminEnabled() {
		ln, err = net.Listen("tcp", cfg.AdminListenAddr)
		if err != nil {
			_ = r.Close()
			logger.Error("failed to listen", "err", err)
			os.Exit(1)
		}
		srv = newAdminServer(cfg, logger, r, m, hub, httpserver.BuildInfo{Commit: commit, BuildTime: buildTime})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Run(gctx)
	})
	if srv != nil {
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("shutdown signal received")
		}
		hub.Close()
		if srv == nil {
			return nil
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("relay exited", "err", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
