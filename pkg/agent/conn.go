// Package agent maintains the streaming connection to the conversational
// speech agent for one call: dial, configuration handshake, inbound message
// fan-in, and outbound audio/result writes.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge-ai/voicebridge/pkg/agent/protocol"
)

// State is the lifecycle position of an agent connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConfiguring
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConfiguring:
		return "configuring"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Config struct {
	URL              string
	APIKey           string
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimitBytes   int64
	InboundQueueSize int
}

type Dependencies struct {
	Logger   *slog.Logger
	Settings protocol.Settings
	Config   Config
	Dialer   *websocket.Dialer
}

// Conn is one call's agent connection. Inbound messages arrive on Messages;
// the channel closes when the connection is gone. Writes are safe from any
// of the session's tasks.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	cfg    Config

	state atomic.Int32

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	messages chan any

	errMu   sync.Mutex
	readErr error
}

// Dial opens the agent connection, sends the configuration message, and
// waits for the agent's first response. The handshake is bounded by
// HandshakeTimeout: an Error message, a timeout, or a transport failure
// before the first response is fatal and returns an error with the
// connection already closed.
func Dial(ctx context.Context, deps Dependencies) (*Conn, error) {
	cfg := deps.Config
	if cfg.URL == "" {
		return nil, fmt.Errorf("agent url is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.InboundQueueSize <= 0 {
		cfg.InboundQueueSize = 64
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := deps.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	}

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Token "+cfg.APIKey)
	}

	c := &Conn{
		logger:   logger,
		cfg:      cfg,
		done:     make(chan struct{}),
		messages: make(chan any, cfg.InboundQueueSize),
	}
	c.state.Store(int32(StateConnecting))

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	ws, _, err := dialer.DialContext(dialCtx, cfg.URL, header)
	if err != nil {
		c.state.Store(int32(StateClosed))
		return nil, fmt.Errorf("dial agent: %w", err)
	}
	c.ws = ws
	if cfg.ReadLimitBytes > 0 {
		ws.SetReadLimit(cfg.ReadLimitBytes)
	}

	c.state.Store(int32(StateConfiguring))
	settings, err := protocol.EncodeSettings(deps.Settings)
	if err != nil {
		c.teardown()
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	if err := c.writeRaw(settings); err != nil {
		c.teardown()
		return nil, fmt.Errorf("send settings: %w", err)
	}

	handshake := make(chan error, 1)
	go c.readLoop(handshake)

	timer := time.NewTimer(cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case err := <-handshake:
		if err != nil {
			c.teardown()
			return nil, err
		}
	case <-timer.C:
		c.teardown()
		return nil, fmt.Errorf("agent handshake timed out after %s", cfg.HandshakeTimeout)
	case <-ctx.Done():
		c.teardown()
		return nil, ctx.Err()
	}
	return c, nil
}

// Messages delivers decoded inbound agent messages in arrival order.
// The channel closes when the connection ends; Err reports why.
func (c *Conn) Messages() <-chan any {
	return c.messages
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

// Err returns the terminal read error, nil for a clean close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

// SendUserAudio forwards one chunk of caller audio to the agent.
func (c *Conn) SendUserAudio(audio []byte) error {
	data, err := protocol.EncodeUserAudio(audio)
	if err != nil {
		return err
	}
	return c.writeRaw(data)
}

// SendFunctionCallResult answers a function invocation. The output text is
// spoken to the caller by the agent.
func (c *Conn) SendFunctionCallResult(functionCallID, output string) error {
	data, err := protocol.EncodeFunctionCallResult(functionCallID, output)
	if err != nil {
		return err
	}
	return c.writeRaw(data)
}

// Close tears the connection down. Safe to call from any task and safe to
// call more than once.
func (c *Conn) Close() error {
	c.teardown()
	return c.closeErr
}

func (c *Conn) teardown() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		close(c.done)
		if c.ws != nil {
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			c.writeMu.Lock()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			c.writeMu.Unlock()
			c.closeErr = c.ws.Close()
		}
		c.state.Store(int32(StateClosed))
	})
}

func (c *Conn) writeRaw(data []byte) error {
	if s := c.State(); s == StateClosing || s == StateClosed {
		return fmt.Errorf("agent connection is %s", s)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// readLoop decodes inbound messages and feeds Messages. The first message
// after Settings resolves the handshake: anything except Error means the
// agent accepted the configuration.
func (c *Conn) readLoop(handshake chan<- error) {
	defer close(c.messages)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.errMu.Lock()
			if c.readErr == nil && c.State() == StateActive {
				c.readErr = err
			}
			c.errMu.Unlock()
			if c.State() == StateConfiguring {
				handshake <- fmt.Errorf("agent closed during configuration: %w", err)
			}
			c.teardown()
			return
		}
		msg, decErr := protocol.Decode(data)
		if decErr != nil {
			c.logger.Warn("dropping malformed agent message", "error", decErr)
			continue
		}
		if c.state.CompareAndSwap(int32(StateConfiguring), int32(StateActive)) {
			if em, ok := msg.(protocol.ErrorMessage); ok {
				c.state.Store(int32(StateClosing))
				handshake <- fmt.Errorf("agent rejected configuration: %s %s", em.Code, em.Description)
				c.teardown()
				return
			}
			handshake <- nil
		}
		// Audio must stay ordered, so a full queue blocks rather than
		// drops; teardown unblocks via done.
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}
