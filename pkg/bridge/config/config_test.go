package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("VOICEBRIDGE_AGENT_URL", "wss://agent.example.com/v1/agent")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr got=%q, want :8080", cfg.Addr)
	}
	if cfg.AgentEncoding != "mulaw" || cfg.AgentSampleRateHz != 8000 {
		t.Fatalf("agent audio got=%s@%d, want mulaw@8000", cfg.AgentEncoding, cfg.AgentSampleRateHz)
	}
	if cfg.AgentHandshakeTimeout != 10*time.Second {
		t.Fatalf("handshake timeout got=%v", cfg.AgentHandshakeTimeout)
	}
	if !strings.Contains(cfg.AgentPrompt, "receptionist") {
		t.Fatalf("expected default prompt, got %q", cfg.AgentPrompt[:40])
	}
}

func TestLoadFromEnvRequiresAgentURL(t *testing.T) {
	t.Setenv("VOICEBRIDGE_AGENT_URL", "")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error for missing agent url")
	}

	t.Setenv("VOICEBRIDGE_AGENT_URL", "https://not-a-websocket.example.com")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error for non-ws scheme")
	}
}

func TestLoadFromEnvAgentAudioValidation(t *testing.T) {
	t.Setenv("VOICEBRIDGE_AGENT_URL", "wss://agent.example.com/v1/agent")

	t.Setenv("VOICEBRIDGE_AGENT_SAMPLE_RATE", "44100")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error for unsupported sample rate")
	}

	t.Setenv("VOICEBRIDGE_AGENT_SAMPLE_RATE", "16000")
	t.Setenv("VOICEBRIDGE_AGENT_ENCODING", "mulaw")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error for mulaw above 8 kHz")
	}

	t.Setenv("VOICEBRIDGE_AGENT_ENCODING", "linear16")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.AgentSampleRateHz != 16000 {
		t.Fatalf("sample rate got=%d, want 16000", cfg.AgentSampleRateHz)
	}

	t.Setenv("VOICEBRIDGE_AGENT_ENCODING", "opus")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error for unknown encoding")
	}
}

func TestLoadFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("VOICEBRIDGE_AGENT_URL", "ws://localhost:9000/agent")
	t.Setenv("VOICEBRIDGE_WS_WRITE_TIMEOUT", "not-a-duration")
	t.Setenv("VOICEBRIDGE_OUTBOUND_QUEUE_SIZE", "many")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.WSWriteTimeout != 5*time.Second {
		t.Fatalf("write timeout got=%v, want default", cfg.WSWriteTimeout)
	}
	if cfg.OutboundQueueSize != 128 {
		t.Fatalf("queue size got=%d, want default", cfg.OutboundQueueSize)
	}
}
