package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pion/transport/v3/stdnet"

	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/udp-broadcast-relay/internal/relay"
)

func startRelay(t *testing.T) (string, *metrics.Metrics) {
	t.Helper()

	conn, err := relay.Bind(nil, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	m := metrics.New()
	r := relay.New(conn, relay.Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return conn.LocalAddr().String(), m
}

func TestRunProbe_ReceivesOtherPeersDatagrams(t *testing.T) {
	relayAddr, m := startRelay(t)

	n, err := stdnet.NewNet()
	if err != nil {
		t.Fatalf("stdnet: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	type result struct {
		res probeResult
		err error
	}
	listenerDone := make(chan result, 1)
	go func() {
		res, err := runProbe(context.Background(), n, probeConfig{
			Relay:   relayAddr,
			Count:   1,
			Message: "listener",
			Wait:    3 * time.Second,
		}, logger)
		listenerDone <- result{res, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.Get(metrics.PeersJoined) < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("listener never joined")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sender, err := runProbe(context.Background(), n, probeConfig{
		Relay:   relayAddr,
		Count:   2,
		Message: "sender",
		Wait:    50 * time.Millisecond,
	}, logger)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	if sender.Sent != 2 {
		t.Fatalf("sender.Sent=%d, want 2", sender.Sent)
	}

	got := <-listenerDone
	if got.err != nil {
		t.Fatalf("listener: %v", got.err)
	}
	if got.res.Sent != 1 {
		t.Fatalf("listener.Sent=%d, want 1", got.res.Sent)
	}
	if got.res.Received != 2 {
		t.Fatalf("listener.Received=%d, want 2", got.res.Received)
	}
}

func TestRunProbe_StopsOnCancel(t *testing.T) {
	relayAddr, _ := startRelay(t)

	n, err := stdnet.NewNet()
	if err != nil {
		t.Fatalf("stdnet: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := runProbe(ctx, n, probeConfig{
		Relay:    relayAddr,
		Count:    100,
		Interval: time.Second,
		Message:  "slow",
		Wait:     time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("runProbe: %v", err)
	}
	if res.Sent != 1 {
		t.Fatalf("Sent=%d, want 1", res.Sent)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("runProbe took %v after cancel", elapsed)
	}
}

func TestParseFlags(t *testing.T) {
	cfg, format, err := parseFlags([]string{"--relay", "10.0.0.1:5000", "--count", "5", "--feed", "ws://127.0.0.1:8080/events", "--log-format", "json"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Relay != "10.0.0.1:5000" || cfg.Count != 5 || cfg.Feed != "ws://127.0.0.1:8080/events" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if format != "json" {
		t.Fatalf("format=%q, want json", format)
	}
}

func TestParseFlags_Invalid(t *testing.T) {
	for _, tc := range []struct {
		args    []string
		wantErr string
	}{
		{args: []string{"--count", "-1"}, wantErr: "--count"},
		{args: []string{"--relay", ""}, wantErr: "--relay"},
		{args: []string{"--wait", "-1s"}, wantErr: "--wait"},
		{args: []string{"--feed", "http://127.0.0.1/events"}, wantErr: "--feed"},
		{args: []string{"--feed", "ws:///events"}, wantErr: "missing host"},
	} {
		_, _, err := parseFlags(tc.args)
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("args=%v: err=%v, want substring %q", tc.args, err, tc.wantErr)
		}
	}
}
