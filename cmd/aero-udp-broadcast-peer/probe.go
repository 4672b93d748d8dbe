package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/transport/v3"

	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/peerfeed"
)

const probeReadBufferBytes = 64 * 1024

type probeConfig struct {
	Relay    string
	Count    int
	Interval time.Duration
	Message  string
	Wait     time.Duration
	Feed     string
}

func (c probeConfig) validate() error {
	if strings.TrimSpace(c.Relay) == "" {
		return errors.New("--relay must not be empty")
	}
	if c.Count < 0 {
		return errors.New("--count must be >= 0")
	}
	if c.Interval < 0 {
		return errors.New("--interval must be >= 0")
	}
	if c.Wait < 0 {
		return errors.New("--wait must be >= 0")
	}
	if c.Feed != "" {
		u, err := url.Parse(c.Feed)
		if err != nil {
			return fmt.Errorf("invalid --feed: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("invalid --feed %q (expected ws:// or wss://)", c.Feed)
		}
		if u.Host == "" {
			return fmt.Errorf("invalid --feed %q (missing host)", c.Feed)
		}
	}
	return nil
}

type probeResult struct {
	Sent       int
	Received   int
	PeerEvents int
}

// runProbe sends cfg.Count datagrams to the relay over n and logs everything
// that comes back until cfg.Wait has passed after the last send or ctx ends.
func runProbe(ctx context.Context, n transport.Net, cfg probeConfig, logger *slog.Logger) (probeResult, error) {
	raddr, err := n.ResolveUDPAddr("udp", cfg.Relay)
	if err != nil {
		return probeResult{}, fmt.Errorf("resolve relay %s: %w", cfg.Relay, err)
	}

	laddr := "0.0.0.0:0"
	if raddr.IP.To4() == nil {
		laddr = "[::]:0"
	}
	conn, err := n.ListenPacket("udp", laddr)
	if err != nil {
		return probeResult{}, fmt.Errorf("listen: %w", err)
	}
	defer conn.Close()

	var (
		wg         sync.WaitGroup
		received   atomic.Int64
		peerEvents atomic.Int64
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var feed *websocket.Conn
	if cfg.Feed != "" {
		feed, _, err = websocket.DefaultDialer.DialContext(ctx, cfg.Feed, nil)
		if err != nil {
			return probeResult{}, fmt.Errorf("dial peer feed: %w", err)
		}
		defer feed.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				var msg peerfeed.Message
				if err := feed.ReadJSON(&msg); err != nil {
					return
				}
				peerEvents.Add(1)
				logger.Info("peer_event", "type", msg.Type, "peer", msg.Peer, "reason", msg.Reason, "time", msg.Time)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, probeReadBufferBytes)
		for {
			nr, from, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			received.Add(1)
			logger.Info("datagram_received", "from", from.String(), "bytes", nr, "payload", string(buf[:nr]))
		}
	}()

	logger.Info("probe started", "local_addr", conn.LocalAddr().String(), "relay", raddr.String())

	res := probeResult{}
	var sendErr error
	for i := 1; i <= cfg.Count; i++ {
		payload := fmt.Sprintf("%s #%d", cfg.Message, i)
		if _, err := conn.WriteTo([]byte(payload), raddr); err != nil {
			sendErr = fmt.Errorf("send datagram %d: %w", i, err)
			break
		}
		res.Sent++
		if i < cfg.Count && !sleepCtx(ctx, cfg.Interval) {
			break
		}
	}
	if sendErr == nil {
		sleepCtx(ctx, cfg.Wait)
	}

	cancel()
	_ = conn.Close()
	if feed != nil {
		_ = feed.Close()
	}
	wg.Wait()

	res.Received = int(received.Load())
	res.PeerEvents = int(peerEvents.Load())
	return res, sendErr
}

// sleepCtx waits for d and reports whether ctx is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
