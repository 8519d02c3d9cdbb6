// Package session runs the per-call relay between the telephony media
// stream and the speech agent: two pump loops, transcript capture, and
// function-call routing, with idempotent teardown.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge-ai/voicebridge/pkg/agent"
	agentproto "github.com/voicebridge-ai/voicebridge/pkg/agent/protocol"
	"github.com/voicebridge-ai/voicebridge/pkg/audio"
	"github.com/voicebridge-ai/voicebridge/pkg/bridge/metrics"
	"github.com/voicebridge-ai/voicebridge/pkg/dispatch"
	"github.com/voicebridge-ai/voicebridge/pkg/store"
	telproto "github.com/voicebridge-ai/voicebridge/pkg/telephony/protocol"
)

// Carriers send 20 ms frames, so this logs the caller level twice a minute.
const levelLogEveryN = 1500

type Config struct {
	TelephonyFormat   audio.Format
	AgentFormat       audio.Format
	WriteTimeout      time.Duration
	OutboundQueueSize int
	FlushTimeout      time.Duration
}

type Dependencies struct {
	Conn       *websocket.Conn
	Agent      *agent.Conn
	Dispatcher *dispatch.Dispatcher
	CallLog    store.CallLog
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	CallSID    string
	StreamSID  string
	Config     Config
}

// Session owns one call's relay. Both connections belong exclusively to it;
// the registry handle is the only thing other code sees.
type Session struct {
	conn       *websocket.Conn
	agent      *agent.Conn
	dispatcher *dispatch.Dispatcher
	callLog    store.CallLog
	metrics    *metrics.Metrics
	logger     *slog.Logger
	callSID    string
	streamSID  string
	cfg        Config

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan []byte

	writeMu sync.Mutex

	teardownOnce sync.Once
	failed       atomic.Bool

	transcripts chan store.TranscriptFragment
	flushDone   chan struct{}

	lastActivity atomic.Int64

	startedAt time.Time
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("telephony connection is required")
	}
	if deps.Agent == nil {
		return nil, fmt.Errorf("agent connection is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.CallLog == nil {
		return nil, fmt.Errorf("call log is required")
	}
	if deps.CallSID == "" || deps.StreamSID == "" {
		return nil, fmt.Errorf("call and stream identifiers are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.WriteTimeout <= 0 {
		deps.Config.WriteTimeout = 5 * time.Second
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	if deps.Config.FlushTimeout <= 0 {
		deps.Config.FlushTimeout = 5 * time.Second
	}
	if deps.Config.TelephonyFormat.Encoding == "" {
		deps.Config.TelephonyFormat = audio.MulawTelephony()
	}
	if deps.Config.AgentFormat.Encoding == "" {
		deps.Config.AgentFormat = audio.MulawTelephony()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:       deps.Conn,
		agent:      deps.Agent,
		dispatcher: deps.Dispatcher,
		callLog:    deps.CallLog,
		metrics:    deps.Metrics,
		logger: deps.Logger.With(
			"call_sid", deps.CallSID,
			"stream_sid", deps.StreamSID,
		),
		callSID:     deps.CallSID,
		streamSID:   deps.StreamSID,
		cfg:         deps.Config,
		ctx:         ctx,
		cancel:      cancel,
		outbound:    make(chan []byte, deps.Config.OutboundQueueSize),
		transcripts: make(chan store.TranscriptFragment, 64),
		flushDone:   make(chan struct{}),
		startedAt:   time.Now(),
	}
	s.touch()
	return s, nil
}

// Cancel requests teardown from outside the session's own tasks. The
// registry uses it during shutdown.
func (s *Session) Cancel() {
	s.cancel()
}

// Failed reports whether the session ended on a failure path.
func (s *Session) Failed() bool {
	return s.failed.Load()
}

// LastActivity is when a caller frame last moved through the relay.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Run relays until either side ends the call. It returns after both pump
// loops have stopped, both connections are closed, and pending transcript
// writes are flushed.
func (s *Session) Run() error {
	defer s.teardown()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
		defer func() {
			s.metrics.ActiveSessions.Dec()
			s.metrics.SessionDuration.Observe(time.Since(s.startedAt).Seconds())
			if s.failed.Load() {
				s.metrics.SessionsFailed.Inc()
			} else {
				s.metrics.SessionsCompleted.Inc()
			}
		}()
	}

	go s.transcriptWriter()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.writerPump()
	}()
	go func() {
		defer wg.Done()
		s.telephonyToAgent()
	}()
	go func() {
		defer wg.Done()
		s.agentToTelephony()
	}()

	<-s.ctx.Done()
	s.teardown()
	wg.Wait()

	close(s.transcripts)
	select {
	case <-s.flushDone:
	case <-time.After(s.cfg.FlushTimeout):
		s.logger.Warn("transcript flush timed out")
	}

	status := store.CallCompleted
	if s.failed.Load() {
		status = store.CallFailed
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), s.cfg.FlushTimeout)
	defer cancel()
	if err := s.callLog.UpdateCallStatus(flushCtx, s.callSID, status); err != nil {
		s.logger.Warn("call status update failed", "status", status, "error", err)
	}
	s.logger.Info("session ended", "status", status, "duration_ms", time.Since(s.startedAt).Milliseconds())
	return nil
}

// teardown is safe from any of the session's tasks and safe to run twice.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.cancel()
		_ = s.agent.Close()
		s.writeMu.Lock()
		deadline := time.Now().Add(s.cfg.WriteTimeout)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}

func (s *Session) fail(reason string, err error) {
	s.failed.Store(true)
	s.logger.Error("session failure", "reason", reason, "error", err)
	s.cancel()
}

// writerPump is the only goroutine that writes data frames to the telephony
// socket, keeping outbound frames ordered.
func (s *Session) writerPump() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-s.outbound:
			if !ok {
				return
			}
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			err := s.conn.WriteMessage(websocket.TextMessage, frame)
			s.writeMu.Unlock()
			if err != nil {
				s.fail("telephony write", err)
				return
			}
		}
	}
}

// telephonyToAgent reads carrier envelopes and forwards caller audio to the
// agent. Malformed frames are dropped; unknown events are ignored.
func (s *Session) telephonyToAgent() {
	defer s.cancel()
	frames := 0
	for {
		if s.ctx.Err() != nil {
			return
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Info("telephony connection closed", "error", err)
			}
			return
		}
		msg, decErr := telproto.Decode(data)
		if decErr != nil {
			s.countFrameError(metrics.DirectionInbound)
			s.logger.Warn("dropping malformed telephony frame", "error", decErr)
			continue
		}
		switch m := msg.(type) {
		case telproto.Media:
			payload, err := base64.StdEncoding.DecodeString(m.Payload)
			if err != nil {
				s.countFrameError(metrics.DirectionInbound)
				s.logger.Warn("dropping media frame with bad base64")
				continue
			}
			forward, err := s.transcode(payload, s.cfg.TelephonyFormat, s.cfg.AgentFormat)
			if err != nil {
				s.countFrameError(metrics.DirectionInbound)
				s.logger.Warn("dropping undecodable media frame", "error", err)
				continue
			}
			if err := s.agent.SendUserAudio(forward); err != nil {
				s.fail("agent write", err)
				return
			}
			s.touch()
			s.countFrame(metrics.DirectionInbound)
			frames++
			if frames%levelLogEveryN == 0 {
				if samples, err := audio.DecodeInbound(payload, s.cfg.TelephonyFormat); err == nil {
					s.logger.Debug("caller audio level",
						"rms", audio.RMSEnergy(samples), "frames", frames)
				}
			}
		case telproto.Stop:
			s.logger.Info("stream stopped by carrier")
			return
		case telproto.Mark:
			s.logger.Debug("playback mark", "name", m.Name)
		case telproto.DTMF:
			s.logger.Debug("dtmf digit", "digit", m.Digit)
		case telproto.Connected, telproto.Start:
			// Both belong to connection setup; seeing them mid-call is
			// harmless carrier noise.
		case telproto.Unknown:
			s.logger.Debug("ignoring unknown telephony event", "event", m.Event)
		}
	}
}

// agentToTelephony forwards agent speech to the caller, records transcripts,
// and answers function calls inline so results precede later audio.
func (s *Session) agentToTelephony() {
	defer s.cancel()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.agent.Messages():
			if !ok {
				if err := s.agent.Err(); err != nil && s.ctx.Err() == nil {
					s.fail("agent connection", err)
				}
				return
			}
			switch m := msg.(type) {
			case agentproto.AgentAudio:
				raw, err := agentproto.DecodeAudioPayload(m.Audio)
				if err != nil {
					s.countFrameError(metrics.DirectionOutbound)
					s.logger.Warn("dropping agent audio with bad base64")
					continue
				}
				out, err := s.transcode(raw, s.cfg.AgentFormat, s.cfg.TelephonyFormat)
				if err != nil {
					s.countFrameError(metrics.DirectionOutbound)
					s.logger.Warn("dropping undecodable agent audio", "error", err)
					continue
				}
				frame, err := telproto.EncodeMedia(s.streamSID, base64.StdEncoding.EncodeToString(out))
				if err != nil {
					s.logger.Warn("dropping unencodable media frame", "error", err)
					continue
				}
				select {
				case s.outbound <- frame:
					s.countFrame(metrics.DirectionOutbound)
				case <-s.ctx.Done():
					return
				}
			case agentproto.UserTranscript:
				s.appendTranscript(store.SpeakerCaller, m.Text, m.Confidence)
			case agentproto.AgentTranscript:
				s.appendTranscript(store.SpeakerAgent, m.Text, 0)
			case agentproto.FunctionCall:
				s.handleFunctionCall(m)
			case agentproto.UserStartedSpeaking:
				s.clearPlayback()
			case agentproto.ErrorMessage:
				s.fail("agent error", fmt.Errorf("%s: %s", m.Code, m.Description))
				return
			case agentproto.UserAudio:
				// Echo of our own direction; agents do not send this.
			case agentproto.Unknown:
				s.logger.Debug("ignoring unknown agent message", "type", m.MessageType)
			}
		}
	}
}

func (s *Session) handleFunctionCall(call agentproto.FunctionCall) {
	started := time.Now()
	result := s.dispatcher.Dispatch(s.ctx, call.Function.Name, call.Function.Arguments, dispatch.Context{
		CallSID:   s.callSID,
		StreamSID: s.streamSID,
	})
	if s.metrics != nil {
		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		s.metrics.FunctionCalls.WithLabelValues(call.Function.Name, outcome).Inc()
		s.metrics.FunctionDuration.Observe(time.Since(started).Seconds())
	}
	if err := s.agent.SendFunctionCallResult(call.FunctionCallID, dispatch.Output(result)); err != nil {
		s.fail("function result write", err)
	}
}

// clearPlayback handles barge-in. Queued agent audio is discarded and the
// carrier is told to flush whatever it has buffered.
func (s *Session) clearPlayback() {
	dropped := 0
drain:
	for {
		select {
		case <-s.outbound:
			dropped++
		default:
			break drain
		}
	}
	s.logger.Debug("caller barge-in", "dropped_frames", dropped)
	frame, err := telproto.EncodeClear(s.streamSID)
	if err != nil {
		return
	}
	select {
	case s.outbound <- frame:
	case <-s.ctx.Done():
	}
}

// appendTranscript hands a fragment to the transcript writer. The relay
// never waits on the store and never fails because of it; a backed-up store
// drops fragments instead of stalling audio.
func (s *Session) appendTranscript(speaker, text string, confidence float64) {
	if text == "" {
		return
	}
	s.logger.Info("transcript", "speaker", speaker, "text", text)
	frag := store.TranscriptFragment{
		CallSID:    s.callSID,
		Speaker:    speaker,
		Text:       text,
		Confidence: confidence,
	}
	select {
	case s.transcripts <- frag:
	default:
		if s.metrics != nil {
			s.metrics.TranscriptWriteErrors.Inc()
		}
		s.logger.Warn("transcript queue full, dropping fragment", "speaker", speaker)
	}
}

// transcriptWriter persists fragments one at a time so they land in spoken
// order. It exits when Run closes the queue after the pumps stop.
func (s *Session) transcriptWriter() {
	defer close(s.flushDone)
	for frag := range s.transcripts {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FlushTimeout)
		err := s.callLog.AppendTranscript(ctx, frag)
		cancel()
		if s.metrics != nil {
			if err != nil {
				s.metrics.TranscriptWriteErrors.Inc()
			} else {
				s.metrics.TranscriptWrites.Inc()
			}
		}
		if err != nil {
			s.logger.Warn("transcript write failed", "error", err)
		}
	}
}

func (s *Session) transcode(data []byte, src, dst audio.Format) ([]byte, error) {
	if src == dst {
		if len(data) == 0 {
			return nil, audio.ErrMalformedFrame
		}
		if src.Encoding == audio.EncodingLinear16 && len(data)%2 != 0 {
			return nil, audio.ErrMalformedFrame
		}
		return data, nil
	}
	return audio.Transcode(data, src, dst)
}

func (s *Session) countFrame(direction string) {
	if s.metrics != nil {
		s.metrics.FramesRelayed.WithLabelValues(direction).Inc()
	}
}

func (s *Session) countFrameError(direction string) {
	if s.metrics != nil {
		s.metrics.FrameErrors.WithLabelValues(direction).Inc()
	}
}
