// Package config loads the relay's runtime configuration from the
// environment, with command-line flags taking precedence.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr      = "DATEHERE_LISTEN_ADDR"
	envVarMode            = "DATEHERE_MODE"
	envVarLogFormat       = "DATEHERE_LOG_FORMAT"
	envVarLogLevel        = "DATEHERE_LOG_LEVEL"
	envVarStaticDir       = "DATEHERE_STATIC_DIR"
	envVarShutdownTimeout = "DATEHERE_SHUTDOWN_TIMEOUT"
	envVarPresenceMode    = "DATEHERE_PRESENCE_MODE"

	// Signaling WebSocket hardening.
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSendQueueDepth                = "SEND_QUEUE_DEPTH"
	envVarMaxConnections                = "MAX_CONNECTIONS"
)

const (
	DefaultListenAddr           = "127.0.0.1:8080"
	DefaultShutdown             = 15 * time.Second
	DefaultMode            Mode = ModeDev
	DefaultPresenceMode         = PresenceModeList

	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
	// DefaultSendQueueDepth bounds the per-connection outbound frame queue.
	// Candidate trickle bursts fit comfortably; a stalled reader overflows it
	// and has its frames dropped rather than buffered without bound.
	DefaultSendQueueDepth = 64
)

// Mode selects environment-dependent defaults (log format/level).
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

// LogFormat selects the slog handler used for process logs.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// PresenceMode selects how a successful login is announced to other peers.
//
// PresenceModeList broadcasts the full updated id set to every registered
// peer; PresenceModeEvent emits a discrete join notice to everyone but the
// announcer. Both variants exist in deployed clients.
type PresenceMode string

const (
	PresenceModeList  PresenceMode = "list"
	PresenceModeEvent PresenceMode = "event"
)

type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	StaticDir       string
	ShutdownTimeout time.Duration

	PresenceMode PresenceMode

	SignalingWSIdleTimeout  time.Duration
	SignalingWSPingInterval time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	SendQueueDepth                int
	MaxConnections                int
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

	listenAddrDefault := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	staticDirDefault := envOrDefault(lookup, envVarStaticDir, "")

	shutdownTimeout := DefaultShutdown
	if raw, ok := lookup(envVarShutdownTimeout); ok && strings.TrimSpace(raw) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarShutdownTimeout, raw, err)
		}
		shutdownTimeout = d
	}

	presenceModeDefault := envOrDefault(lookup, envVarPresenceMode, string(DefaultPresenceMode))

	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	maxMessageBytes, err := envIntOrDefault(lookup, envVarMaxSignalingMessageBytes, int(DefaultMaxSignalingMessageBytes))
	if err != nil {
		return Config{}, err
	}
	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	sendQueueDepth, err := envIntOrDefault(lookup, envVarSendQueueDepth, DefaultSendQueueDepth)
	if err != nil {
		return Config{}, err
	}
	maxConnections, err := envIntOrDefault(lookup, envVarMaxConnections, 0)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("datehere-signaling", flag.ContinueOnError)
	listenAddr := fs.String("listen-addr", listenAddrDefault, "TCP address for the HTTP/WebSocket listener")
	mode := fs.String("mode", modeDefault, "deployment mode: dev or prod")
	logFormat := fs.String("log-format", logFormatDefault, "log format: text or json")
	logLevel := fs.String("log-level", logLevelDefault, "log level: debug, info, warn or error")
	staticDir := fs.String("static-dir", staticDirDefault, "directory of client assets to serve at /; empty disables")
	presenceMode := fs.String("presence-mode", presenceModeDefault, "login announcement: list or event")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg := Config{
		ListenAddr:      *listenAddr,
		StaticDir:       *staticDir,
		ShutdownTimeout: shutdownTimeout,

		SignalingWSIdleTimeout:  wsIdleTimeout,
		SignalingWSPingInterval: wsPingInterval,

		MaxSignalingMessageBytes:      int64(maxMessageBytes),
		MaxSignalingMessagesPerSecond: maxMessagesPerSecond,
		SendQueueDepth:                sendQueueDepth,
		MaxConnections:                maxConnections,
	}

	switch Mode(strings.ToLower(strings.TrimSpace(*mode))) {
	case ModeDev:
		cfg.Mode = ModeDev
	case ModeProd:
		cfg.Mode = ModeProd
	default:
		return Config{}, fmt.Errorf("invalid %s %q: must be dev or prod", envVarMode, *mode)
	}

	switch LogFormat(strings.ToLower(strings.TrimSpace(*logFormat))) {
	case LogFormatText:
		cfg.LogFormat = LogFormatText
	case LogFormatJSON:
		cfg.LogFormat = LogFormatJSON
	default:
		return Config{}, fmt.Errorf("invalid %s %q: must be text or json", envVarLogFormat, *logFormat)
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	switch PresenceMode(strings.ToLower(strings.TrimSpace(*presenceMode))) {
	case PresenceModeList:
		cfg.PresenceMode = PresenceModeList
	case PresenceModeEvent:
		cfg.PresenceMode = PresenceModeEvent
	default:
		return Config{}, fmt.Errorf("invalid %s %q: must be list or event", envVarPresenceMode, *presenceMode)
	}

	if cfg.MaxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarMaxSignalingMessageBytes)
	}
	if cfg.MaxSignalingMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarMaxSignalingMessagesPerSecond)
	}
	if cfg.SendQueueDepth <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarSendQueueDepth)
	}
	if cfg.MaxConnections < 0 {
		return Config{}, fmt.Errorf("invalid %s: must be >= 0", envVarMaxConnections)
	}

	return cfg, nil
}

// NewLogger builds the process logger from the loaded configuration.
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

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid %s %q", envVarLogLevel, s)
	}
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

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
