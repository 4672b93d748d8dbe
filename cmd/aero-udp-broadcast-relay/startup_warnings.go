package main

import (
	"log/slog"
	"net"

	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if !config.IsLoopbackHost(cfg.ListenHost) {
		logger.Warn("startup security warning: relay listens on a non-loopback address and rebroadcasts datagrams from any source without authentication",
			"warning_code", "listen_host_public",
			"listen_host", cfg.ListenHost,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxPeers <= 0 {
		logger.Warn("startup security warning: MAX_PEERS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_peers_unlimited_in_prod",
			"max_peers", cfg.MaxPeers,
			"mode", cfg.Mode,
		)
	}

	if cfg.AdminEnabled() && !adminIsLoopback(cfg.AdminListenAddr) {
		logger.Warn("startup security warning: admin server listens on a non-loopback address (exposes peer addresses via /events without authentication)",
			"warning_code", "admin_listen_public",
			"admin_listen_addr", cfg.AdminListenAddr,
			"mode", cfg.Mode,
		)
	}
}

func adminIsLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	// An empty host binds every interface.
	return host != "" && config.IsLoopbackHost(host)
}
