package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(lookupFrom(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat = %q, want text in dev", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug in dev", cfg.LogLevel)
	}
	if cfg.PresenceMode != PresenceModeList {
		t.Errorf("PresenceMode = %q", cfg.PresenceMode)
	}
	if cfg.ShutdownTimeout != DefaultShutdown {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
	if cfg.SignalingWSIdleTimeout != DefaultSignalingWSIdleTimeout {
		t.Errorf("SignalingWSIdleTimeout = %v", cfg.SignalingWSIdleTimeout)
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Errorf("MaxSignalingMessageBytes = %d", cfg.MaxSignalingMessageBytes)
	}
	if cfg.SendQueueDepth != DefaultSendQueueDepth {
		t.Errorf("SendQueueDepth = %d", cfg.SendQueueDepth)
	}
	if cfg.MaxConnections != 0 {
		t.Errorf("MaxConnections = %d, want 0 (unlimited)", cfg.MaxConnections)
	}
}

func TestLoad_ProdModeDefaultsToJSONInfo(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"DATEHERE_MODE": "prod",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %q, want json in prod", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info in prod", cfg.LogLevel)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"DATEHERE_LISTEN_ADDR":              "0.0.0.0:9000",
		"DATEHERE_STATIC_DIR":               "/srv/www",
		"DATEHERE_SHUTDOWN_TIMEOUT":         "3s",
		"DATEHERE_PRESENCE_MODE":            "event",
		"SIGNALING_WS_IDLE_TIMEOUT":         "90s",
		"SIGNALING_WS_PING_INTERVAL":        "5s",
		"MAX_SIGNALING_MESSAGE_BYTES":       "1024",
		"MAX_SIGNALING_MESSAGES_PER_SECOND": "10",
		"SEND_QUEUE_DEPTH":                  "8",
		"MAX_CONNECTIONS":                   "100",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.StaticDir != "/srv/www" {
		t.Errorf("StaticDir = %q", cfg.StaticDir)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
	if cfg.PresenceMode != PresenceModeEvent {
		t.Errorf("PresenceMode = %q", cfg.PresenceMode)
	}
	if cfg.SignalingWSIdleTimeout != 90*time.Second {
		t.Errorf("SignalingWSIdleTimeout = %v", cfg.SignalingWSIdleTimeout)
	}
	if cfg.SignalingWSPingInterval != 5*time.Second {
		t.Errorf("SignalingWSPingInterval = %v", cfg.SignalingWSPingInterval)
	}
	if cfg.MaxSignalingMessageBytes != 1024 {
		t.Errorf("MaxSignalingMessageBytes = %d", cfg.MaxSignalingMessageBytes)
	}
	if cfg.MaxSignalingMessagesPerSecond != 10 {
		t.Errorf("MaxSignalingMessagesPerSecond = %d", cfg.MaxSignalingMessagesPerSecond)
	}
	if cfg.SendQueueDepth != 8 {
		t.Errorf("SendQueueDepth = %d", cfg.SendQueueDepth)
	}
	if cfg.MaxConnections != 100 {
		t.Errorf("MaxConnections = %d", cfg.MaxConnections)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"DATEHERE_LISTEN_ADDR":   "0.0.0.0:9000",
		"DATEHERE_PRESENCE_MODE": "event",
	}), []string{"-listen-addr", "127.0.0.1:7000", "-presence-mode", "list"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7000" {
		t.Errorf("ListenAddr = %q, flag should win", cfg.ListenAddr)
	}
	if cfg.PresenceMode != PresenceModeList {
		t.Errorf("PresenceMode = %q, flag should win", cfg.PresenceMode)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"bad mode", nil, []string{"-mode", "staging"}},
		{"bad log format", nil, []string{"-log-format", "xml"}},
		{"bad log level", nil, []string{"-log-level", "verbose"}},
		{"bad presence mode", map[string]string{"DATEHERE_PRESENCE_MODE": "both"}, nil},
		{"bad shutdown timeout", map[string]string{"DATEHERE_SHUTDOWN_TIMEOUT": "soon"}, nil},
		{"bad idle timeout", map[string]string{"SIGNALING_WS_IDLE_TIMEOUT": "1 minute"}, nil},
		{"bad message bytes", map[string]string{"MAX_SIGNALING_MESSAGE_BYTES": "lots"}, nil},
		{"zero message bytes", map[string]string{"MAX_SIGNALING_MESSAGE_BYTES": "0"}, nil},
		{"zero message rate", map[string]string{"MAX_SIGNALING_MESSAGES_PER_SECOND": "0"}, nil},
		{"zero queue depth", map[string]string{"SEND_QUEUE_DEPTH": "0"}, nil},
		{"negative max connections", map[string]string{"MAX_CONNECTIONS": "-1"}, nil},
		{"positional args", nil, []string{"extra"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := load(lookupFrom(tc.env), tc.args); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []LogFormat{LogFormatText, LogFormatJSON} {
		cfg := Config{LogFormat: format, LogLevel: slog.LevelInfo}
		logger, err := NewLogger(cfg)
		if err != nil {
			t.Fatalf("NewLogger(%s): %v", format, err)
		}
		if logger == nil {
			t.Fatalf("NewLogger(%s) returned nil", format)
		}
	}

	if _, err := NewLogger(Config{LogFormat: LogFormat("xml")}); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}
