// Package handlers holds the HTTP surface: the media stream websocket
// endpoint and the health probes.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge-ai/voicebridge/pkg/agent"
	"github.com/voicebridge-ai/voicebridge/pkg/audio"
	"github.com/voicebridge-ai/voicebridge/pkg/bridge/config"
	"github.com/voicebridge-ai/voicebridge/pkg/bridge/metrics"
	"github.com/voicebridge-ai/voicebridge/pkg/bridge/registry"
	"github.com/voicebridge-ai/voicebridge/pkg/bridge/session"
	"github.com/voicebridge-ai/voicebridge/pkg/dispatch"
	"github.com/voicebridge-ai/voicebridge/pkg/store"
	telproto "github.com/voicebridge-ai/voicebridge/pkg/telephony/protocol"
)

// MediaHandler handles /media websocket streams from the telephony carrier.
type MediaHandler struct {
	Config     config.Config
	Logger     *slog.Logger
	Registry   *registry.Registry
	CallLog    store.CallLog
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Metrics

	// Draining reports whether the process is shutting down; new streams
	// are refused while it returns true.
	Draining func() bool
}

func (h MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Draining != nil && h.Draining() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	// Telephony carriers are not browsers and send no usable Origin.
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.WSMaxMessageBytes > 0 {
		conn.SetReadLimit(h.Config.WSMaxMessageBytes)
	}

	start, ok := h.awaitStart(conn, logger)
	if !ok {
		return
	}
	logger = logger.With("call_sid", start.CallSID, "stream_sid", start.StreamSID)
	logger.Info("stream started", "account_sid", start.AccountSID)

	var cancelOnce sync.Once
	cancelled := make(chan struct{})
	requestCancel := func() { cancelOnce.Do(func() { close(cancelled) }) }
	defer requestCancel()

	release, err := h.Registry.Create(start.CallSID, registry.Handle{
		CallSID:   start.CallSID,
		StreamSID: start.StreamSID,
		Cancel:    requestCancel,
	})
	if err != nil {
		logger.Warn("rejecting duplicate stream", "error", err)
		h.closeWS(conn, websocket.ClosePolicyViolation, "call already has an active stream")
		return
	}
	defer release()

	if h.Metrics != nil {
		h.Metrics.SessionsStarted.Inc()
	}
	startCtx, cancelStart := context.WithTimeout(context.Background(), 5*time.Second)
	err = h.CallLog.StartCall(startCtx, store.Call{
		CallSID:   start.CallSID,
		StreamSID: start.StreamSID,
	})
	cancelStart()
	if err != nil {
		logger.Warn("call record create failed", "error", err)
	}

	agentConn, err := h.dialAgent(logger)
	if err != nil {
		logger.Error("agent connect failed", "error", err)
		if h.Metrics != nil {
			h.Metrics.AgentHandshakeFailures.Inc()
			h.Metrics.SessionsFailed.Inc()
		}
		h.failCall(start.CallSID, logger)
		h.closeWS(conn, websocket.CloseInternalServerErr, "agent unavailable")
		return
	}

	sess, err := session.New(session.Dependencies{
		Conn:       conn,
		Agent:      agentConn,
		Dispatcher: h.Dispatcher,
		CallLog:    h.CallLog,
		Metrics:    h.Metrics,
		Logger:     logger,
		CallSID:    start.CallSID,
		StreamSID:  start.StreamSID,
		Config: session.Config{
			TelephonyFormat:   audio.MulawTelephony(),
			AgentFormat:       h.agentFormat(),
			WriteTimeout:      h.Config.WSWriteTimeout,
			OutboundQueueSize: h.Config.OutboundQueueSize,
		},
	})
	if err != nil {
		logger.Error("session init failed", "error", err)
		_ = agentConn.Close()
		h.failCall(start.CallSID, logger)
		h.closeWS(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}

	go func() {
		<-cancelled
		sess.Cancel()
	}()

	_ = sess.Run()
}

// awaitStart reads setup frames until the carrier sends start. Connected and
// unrecognized events are allowed to precede it; anything else is a protocol
// violation.
func (h MediaHandler) awaitStart(conn *websocket.Conn, logger *slog.Logger) (telproto.Start, bool) {
	wait := h.Config.WSReadTimeout
	if wait <= 0 {
		wait = 10 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Warn("stream setup read failed", "error", err)
			return telproto.Start{}, false
		}
		msg, err := telproto.Decode(data)
		if err != nil {
			logger.Warn("invalid setup frame", "error", err)
			h.closeWS(conn, websocket.ClosePolicyViolation, "invalid stream frame")
			return telproto.Start{}, false
		}
		switch m := msg.(type) {
		case telproto.Connected:
			logger.Debug("carrier connected", "protocol", m.Protocol)
		case telproto.Start:
			return m, true
		case telproto.Unknown:
			logger.Debug("ignoring setup event", "event", m.Event)
		default:
			logger.Warn("unexpected frame before start")
			h.closeWS(conn, websocket.ClosePolicyViolation, "start event expected")
			return telproto.Start{}, false
		}
	}
}

func (h MediaHandler) dialAgent(logger *slog.Logger) (*agent.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.dialBudget())
	defer cancel()
	return agent.Dial(ctx, agent.Dependencies{
		Logger: logger,
		Settings: agent.BuildSettings(agent.SettingsParams{
			InputFormat:  h.agentFormat(),
			OutputFormat: h.agentFormat(),
			Language:     h.Config.AgentLanguage,
			ListenModel:  h.Config.AgentListenModel,
			ThinkType:    h.Config.AgentThinkType,
			ThinkModel:   h.Config.AgentThinkModel,
			Prompt:       h.Config.AgentPrompt,
			SpeakModel:   h.Config.AgentSpeakModel,
			Greeting:     h.Config.AgentGreeting,
			Functions:    dispatch.Definitions(),
		}),
		Config: agent.Config{
			URL:              h.Config.AgentURL,
			APIKey:           h.Config.AgentAPIKey,
			DialTimeout:      h.Config.AgentDialTimeout,
			HandshakeTimeout: h.Config.AgentHandshakeTimeout,
			WriteTimeout:     h.Config.WSWriteTimeout,
			ReadLimitBytes:   h.Config.WSMaxMessageBytes,
		},
	})
}

func (h MediaHandler) dialBudget() time.Duration {
	budget := h.Config.AgentDialTimeout + h.Config.AgentHandshakeTimeout
	if budget <= 0 {
		budget = 20 * time.Second
	}
	return budget
}

func (h MediaHandler) agentFormat() audio.Format {
	if h.Config.AgentEncoding == audio.EncodingLinear16 {
		return audio.Linear16(h.Config.AgentSampleRateHz)
	}
	return audio.MulawTelephony()
}

func (h MediaHandler) failCall(callSID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.CallLog.UpdateCallStatus(ctx, callSID, store.CallFailed); err != nil {
		logger.Warn("call status update failed", "error", err)
	}
}

func (h MediaHandler) closeWS(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(2*time.Second))
}
