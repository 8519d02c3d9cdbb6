package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/voicebridge-ai/voicebridge/pkg/bridge/config"
	"github.com/voicebridge-ai/voicebridge/pkg/bridge/registry"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config   config.Config
	Registry *registry.Registry
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		ActiveSessions int      `json:"active_sessions"`
		Storage        string   `json:"storage"`
		CRMEnabled     bool     `json:"crm_enabled"`
		Issues         []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	if strings.TrimSpace(h.Config.AgentURL) == "" {
		issues = append(issues, "agent url is not configured")
	}
	if h.Config.WSMaxMessageBytes <= 0 {
		issues = append(issues, "ws max message bytes must be > 0")
	}
	if h.Config.AgentHandshakeTimeout <= 0 || h.Config.WSWriteTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	storage := "memory"
	if h.Config.DatabaseURL != "" {
		storage = "postgres"
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:             ok,
		ActiveSessions: h.Registry.Count(),
		Storage:        storage,
		CRMEnabled:     h.Config.CRMWebhookURL != "",
		Issues:         issues,
	})
}
