// Command aero-udp-broadcast-peer is a smoke-test client for the broadcast
// relay. It sends a few datagrams, prints whatever the relay forwards back and
// can follow the relay's peer feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/transport/v3/stdnet"

	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/config"
)

func main() {
	cfg, logFormat, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(config.Config{LogFormat: logFormat, LogLevel: slog.LevelInfo})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	n, err := stdnet.NewNet()
	if err != nil {
		logger.Error("failed to open host network", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runProbe(ctx, n, cfg, logger)
	if err != nil {
		logger.Error("probe failed", "err", err)
		os.Exit(1)
	}
	logger.Info("probe finished", "sent", res.Sent, "received", res.Received, "peer_events", res.PeerEvents)
}

func parseFlags(args []string) (probeConfig, config.LogFormat, error) {
	fs := flag.NewFlagSet("aero-udp-broadcast-peer", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		cfg       probeConfig
		logFormat string
	)
	fs.StringVar(&cfg.Relay, "relay", "127.0.0.1:5000", "Relay UDP address (host:port)")
	fs.IntVar(&cfg.Count, "count", 3, "Number of datagrams to send (0 = listen only)")
	fs.DurationVar(&cfg.Interval, "interval", time.Second, "Delay between datagrams")
	fs.StringVar(&cfg.Message, "message", "hello", "Payload prefix; each datagram is suffixed with its sequence number")
	fs.DurationVar(&cfg.Wait, "wait", 3*time.Second, "How long to keep listening after the last datagram")
	fs.StringVar(&cfg.Feed, "feed", "", "Optional peer feed URL (ws://host/events)")
	fs.StringVar(&logFormat, "log-format", string(config.LogFormatText), "Log format: text or json")

	if err := fs.Parse(args); err != nil {
		return probeConfig{}, "", err
	}
	if err := cfg.validate(); err != nil {
		return probeConfig{}, "", err
	}
	return cfg, config.LogFormat(logFormat), nil
}
