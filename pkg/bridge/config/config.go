// Package config loads bridge configuration from the environment with
// fail-fast validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultPrompt = `You are a professional AI receptionist. You are friendly, efficient, and helpful.

You can help with:
- Booking appointments
- Checking availability
- Answering questions about services
- Taking messages

When booking appointments, always confirm the details with the caller before finalizing.
Be conversational and natural, but stay focused on helping the caller efficiently.`

type Config struct {
	Addr string

	// Speech-agent endpoint and per-call configuration.
	AgentURL         string
	AgentAPIKey      string
	AgentLanguage    string
	AgentListenModel string
	AgentThinkType   string
	AgentThinkModel  string
	AgentPrompt      string
	AgentSpeakModel  string
	AgentGreeting    string

	// Audio shape on the agent side. Telephony is always mulaw at 8 kHz;
	// the bridge resamples when these differ.
	AgentEncoding     string
	AgentSampleRateHz int

	AgentDialTimeout      time.Duration
	AgentHandshakeTimeout time.Duration

	// Telephony WebSocket limits.
	WSWriteTimeout    time.Duration
	WSReadTimeout     time.Duration
	WSMaxMessageBytes int64
	OutboundQueueSize int

	// Persistence. Empty DatabaseURL selects the in-memory store.
	DatabaseURL string

	CRMWebhookURL string
	CRMTimeout    time.Duration

	FunctionTimeout time.Duration

	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                  envOr("VOICEBRIDGE_ADDR", ":8080"),
		AgentURL:              envOr("VOICEBRIDGE_AGENT_URL", ""),
		AgentAPIKey:           envOr("VOICEBRIDGE_AGENT_API_KEY", ""),
		AgentLanguage:         envOr("VOICEBRIDGE_AGENT_LANGUAGE", "en"),
		AgentListenModel:      envOr("VOICEBRIDGE_AGENT_LISTEN_MODEL", "nova-3"),
		AgentThinkType:        envOr("VOICEBRIDGE_AGENT_THINK_PROVIDER", "open_ai"),
		AgentThinkModel:       envOr("VOICEBRIDGE_AGENT_THINK_MODEL", "gpt-4o-mini"),
		AgentPrompt:           envOr("VOICEBRIDGE_AGENT_PROMPT", defaultPrompt),
		AgentSpeakModel:       envOr("VOICEBRIDGE_AGENT_SPEAK_MODEL", "aura-2-thalia-en"),
		AgentGreeting:         envOr("VOICEBRIDGE_AGENT_GREETING", ""),
		AgentEncoding:         envOr("VOICEBRIDGE_AGENT_ENCODING", "mulaw"),
		AgentSampleRateHz:     envIntOr("VOICEBRIDGE_AGENT_SAMPLE_RATE", 8000),
		AgentDialTimeout:      envDurationOr("VOICEBRIDGE_AGENT_DIAL_TIMEOUT", 10*time.Second),
		AgentHandshakeTimeout: envDurationOr("VOICEBRIDGE_AGENT_HANDSHAKE_TIMEOUT", 10*time.Second),
		WSWriteTimeout:        envDurationOr("VOICEBRIDGE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:         envDurationOr("VOICEBRIDGE_WS_READ_TIMEOUT", 0),
		WSMaxMessageBytes:     envInt64Or("VOICEBRIDGE_WS_MAX_MESSAGE_BYTES", 1<<20),
		OutboundQueueSize:     envIntOr("VOICEBRIDGE_OUTBOUND_QUEUE_SIZE", 128),
		DatabaseURL:           envOr("VOICEBRIDGE_DATABASE_URL", ""),
		CRMWebhookURL:         envOr("VOICEBRIDGE_CRM_WEBHOOK_URL", ""),
		CRMTimeout:            envDurationOr("VOICEBRIDGE_CRM_TIMEOUT", 30*time.Second),
		FunctionTimeout:       envDurationOr("VOICEBRIDGE_FUNCTION_TIMEOUT", 10*time.Second),
		ReadHeaderTimeout:     envDurationOr("VOICEBRIDGE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:   envDurationOr("VOICEBRIDGE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if strings.TrimSpace(cfg.AgentURL) == "" {
		return Config{}, fmt.Errorf("VOICEBRIDGE_AGENT_URL must be set")
	}
	if !strings.HasPrefix(cfg.AgentURL, "ws://") && !strings.HasPrefix(cfg.AgentURL, "wss://") {
		return Config{}, fmt.Errorf("VOICEBRIDGE_AGENT_URL must be a ws:// or wss:// URL")
	}
	switch cfg.AgentEncoding {
	case "mulaw", "linear16":
	default:
		return Config{}, fmt.Errorf("VOICEBRIDGE_AGENT_ENCODING must be one of mulaw|linear16")
	}
	switch cfg.AgentSampleRateHz {
	case 8000, 16000, 24000:
	default:
		return Config{}, fmt.Errorf("VOICEBRIDGE_AGENT_SAMPLE_RATE must be one of 8000|16000|24000")
	}
	if cfg.AgentEncoding == "mulaw" && cfg.AgentSampleRateHz != 8000 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_AGENT_SAMPLE_RATE must be 8000 when VOICEBRIDGE_AGENT_ENCODING=mulaw")
	}
	if cfg.AgentDialTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_AGENT_DIAL_TIMEOUT must be > 0")
	}
	if cfg.AgentHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_AGENT_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.CRMTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_CRM_TIMEOUT must be > 0")
	}
	if cfg.FunctionTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_FUNCTION_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICEBRIDGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
