package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenHost       = "AERO_UDP_BROADCAST_RELAY_LISTEN_HOST"
	envVarListenPort       = "AERO_UDP_BROADCAST_RELAY_LISTEN_PORT"
	envVarExpiryWindow     = "AERO_UDP_BROADCAST_RELAY_EXPIRY_WINDOW"
	envVarMaxDatagramBytes = "AERO_UDP_BROADCAST_RELAY_MAX_DATAGRAM_BYTES"
	envVarMaxPeers         = "AERO_UDP_BROADCAST_RELAY_MAX_PEERS"
	envVarAdminListenAddr  = "AERO_UDP_BROADCAST_RELAY_ADMIN_LISTEN_ADDR"
	envVarMode             = "AERO_UDP_BROADCAST_RELAY_MODE"
	envVarLogFormat        = "AERO_UDP_BROADCAST_RELAY_LOG_FORMAT"
	envVarLogLevel         = "AERO_UDP_BROADCAST_RELAY_LOG_LEVEL"
	envVarShutdownTimeout  = "AERO_UDP_BROADCAST_RELAY_SHUTDOWN_TIMEOUT"

	DefaultListenHost            = "127.0.0.1"
	DefaultListenPort            = 5000
	DefaultExpiryWindow          = 10 * time.Second
	DefaultMaxDatagramBytes      = 1500
	DefaultShutdown              = 5 * time.Second
	DefaultMode             Mode = ModeDev

	// maxUDPPayloadBytes is the largest payload a UDP datagram can carry.
	maxUDPPayloadBytes = 65535
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenHost string
	ListenPort int

	// ExpiryWindow is how long a peer may stay silent before it is dropped
	// from the broadcast set.
	ExpiryWindow time.Duration
	// MaxDatagramBytes sizes the relay's receive buffer.
	MaxDatagramBytes int
	// MaxPeers caps the number of tracked peers; 0 means unbounded.
	MaxPeers int

	// AdminListenAddr enables the admin HTTP server (health, metrics, peer
	// feed) when non-empty.
	AdminListenAddr string

	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
}

// UDPListenAddr returns the relay socket address in host:port form.
func (c Config) UDPListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// AdminEnabled reports whether the admin HTTP server should be started.
func (c Config) AdminEnabled() bool {
	return strings.TrimSpace(c.AdminListenAddr) != ""
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenHost := envOrDefault(lookup, envVarListenHost, DefaultListenHost)
	listenPort, err := envIntOrDefault(lookup, envVarListenPort, DefaultListenPort)
	if err != nil {
		return Config{}, err
	}

	expiryWindowStr := envOrDefault(lookup, envVarExpiryWindow, DefaultExpiryWindow.String())

	maxDatagramBytes, err := envIntOrDefault(lookup, envVarMaxDatagramBytes, DefaultMaxDatagramBytes)
	if err != nil {
		return Config{}, err
	}
	maxPeers, err := envIntOrDefault(lookup, envVarMaxPeers, 0)
	if err != nil {
		return Config{}, err
	}
	adminListenAddr := envOrDefault(lookup, envVarAdminListenAddr, "")

	shutdownTimeout := DefaultShutdown
	if raw, ok := lookup(envVarShutdownTimeout); ok && strings.TrimSpace(raw) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarShutdownTimeout, raw, err)
		}
		shutdownTimeout = d
	}

	fs := flag.NewFlagSet("aero-udp-broadcast-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&listenHost, "listen-host", listenHost, "UDP listen host (env "+envVarListenHost+")")
	fs.IntVar(&listenPort, "listen-port", listenPort, "UDP listen port (env "+envVarListenPort+")")
	fs.StringVar(&expiryWindowStr, "expiry-window", expiryWindowStr, "Drop peers silent for longer than this; bare integers are seconds (env "+envVarExpiryWindow+")")
	fs.IntVar(&maxDatagramBytes, "max-datagram-bytes", maxDatagramBytes, "Receive buffer size in bytes; larger datagrams are truncated (env "+envVarMaxDatagramBytes+")")
	fs.IntVar(&maxPeers, "max-peers", maxPeers, "Maximum tracked peers, oldest evicted first (0 = unlimited; env "+envVarMaxPeers+")")
	fs.StringVar(&adminListenAddr, "admin-listen-addr", adminListenAddr, "Admin HTTP listen address for health, metrics and the peer feed (empty = disabled; env "+envVarAdminListenAddr+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 5s)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}

	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	expiryWindow, err := parseExpiryWindow(expiryWindowStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s/--expiry-window %q: %w", envVarExpiryWindow, expiryWindowStr, err)
	}

	listenHost = strings.TrimSpace(listenHost)
	if listenHost == "" {
		return Config{}, fmt.Errorf("%s/--listen-host must not be empty", envVarListenHost)
	}
	if listenPort < 0 || listenPort > 65535 {
		return Config{}, fmt.Errorf("%s/--listen-port must be within 0-65535; got %d", envVarListenPort, listenPort)
	}
	if expiryWindow <= 0 {
		return Config{}, fmt.Errorf("%s/--expiry-window must be > 0", envVarExpiryWindow)
	}
	if maxDatagramBytes <= 0 || maxDatagramBytes > maxUDPPayloadBytes {
		return Config{}, fmt.Errorf("%s/--max-datagram-bytes must be within 1-%d; got %d", envVarMaxDatagramBytes, maxUDPPayloadBytes, maxDatagramBytes)
	}
	if maxPeers < 0 {
		return Config{}, fmt.Errorf("%s/--max-peers must be >= 0 (0 = unlimited)", envVarMaxPeers)
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}

	return Config{
		ListenHost:       listenHost,
		ListenPort:       listenPort,
		ExpiryWindow:     expiryWindow,
		MaxDatagramBytes: maxDatagramBytes,
		MaxPeers:         maxPeers,
		AdminListenAddr:  strings.TrimSpace(adminListenAddr),
		Mode:             mode,
		LogFormat:        logFormat,
		LogLevel:         level,
		ShutdownTimeout:  shutdownTimeout,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

// IsLoopbackHost reports whether host is a loopback IP or "localhost".
func IsLoopbackHost(host string) bool {
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// parseExpiryWindow accepts a Go duration ("10s", "1m30s") or a bare integer
// number of seconds.
func parseExpiryWindow(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}
