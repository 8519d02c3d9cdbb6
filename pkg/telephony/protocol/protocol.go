// Package protocol decodes and encodes the telephony carrier's media-stream
// envelopes. Every frame is a JSON object with an "event" discriminator;
// audio payloads travel base64-encoded inside the envelope.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventDTMF      = "dtmf"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

// MediaFormat describes the audio shape the carrier negotiated for a stream.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// Connected is the first event on a fresh media connection.
type Connected struct {
	Protocol string `json:"protocol,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Start announces a new media stream and carries the call identifier.
type Start struct {
	StreamSID    string            `json:"streamSid"`
	AccountSID   string            `json:"accountSid,omitempty"`
	CallSID      string            `json:"callSid"`
	Tracks       []string          `json:"tracks,omitempty"`
	MediaFormat  MediaFormat       `json:"mediaFormat"`
	CustomParams map[string]string `json:"customParameters,omitempty"`
}

// Media carries one base64-encoded audio frame.
type Media struct {
	StreamSID string
	Track     string
	Timestamp string
	Payload   string
}

// Stop ends the media stream for a call.
type Stop struct {
	StreamSID  string
	AccountSID string
	CallSID    string
}

// Mark is the carrier's playback-position acknowledgement.
type Mark struct {
	StreamSID string
	Name      string
}

// DTMF reports a keypad digit pressed by the caller.
type DTMF struct {
	StreamSID string
	Digit     string
}

// Unknown is any envelope whose event discriminator the bridge does not
// recognize. Carriers send keepalives and undocumented events; these must be
// ignored, never treated as errors.
type Unknown struct {
	Event string
	Raw   json.RawMessage
}

type envelope struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid,omitempty"`
	Connected *struct {
		Protocol string `json:"protocol,omitempty"`
		Version  string `json:"version,omitempty"`
	} `json:"connected,omitempty"`
	Start *Start `json:"start,omitempty"`
	Media *struct {
		Track     string `json:"track,omitempty"`
		Chunk     string `json:"chunk,omitempty"`
		Timestamp string `json:"timestamp,omitempty"`
		Payload   string `json:"payload"`
	} `json:"media,omitempty"`
	Stop *struct {
		AccountSID string `json:"accountSid,omitempty"`
		CallSID    string `json:"callSid,omitempty"`
	} `json:"stop,omitempty"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark,omitempty"`
	DTMF *struct {
		Digit string `json:"digit"`
	} `json:"dtmf,omitempty"`
}

// Decode parses one inbound envelope into its typed variant.
// Unrecognized event values decode to Unknown rather than failing.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, badFrame("invalid json envelope", "")
	}
	event := strings.TrimSpace(env.Event)
	if event == "" {
		return nil, badFrame("missing event", "event")
	}

	switch event {
	case EventConnected:
		msg := Connected{}
		if env.Connected != nil {
			msg.Protocol = env.Connected.Protocol
			msg.Version = env.Connected.Version
		}
		return msg, nil
	case EventStart:
		if env.Start == nil {
			return nil, badFrame("start envelope missing start block", "start")
		}
		if strings.TrimSpace(env.Start.CallSID) == "" {
			return nil, badFrame("start.callSid is required", "start.callSid")
		}
		if strings.TrimSpace(env.Start.StreamSID) == "" {
			env.Start.StreamSID = env.StreamSID
		}
		if strings.TrimSpace(env.Start.StreamSID) == "" {
			return nil, badFrame("start.streamSid is required", "start.streamSid")
		}
		return *env.Start, nil
	case EventMedia:
		if env.Media == nil || strings.TrimSpace(env.Media.Payload) == "" {
			return nil, badFrame("media.payload is required", "media.payload")
		}
		return Media{
			StreamSID: env.StreamSID,
			Track:     env.Media.Track,
			Timestamp: env.Media.Timestamp,
			Payload:   env.Media.Payload,
		}, nil
	case EventStop:
		msg := Stop{StreamSID: env.StreamSID}
		if env.Stop != nil {
			msg.AccountSID = env.Stop.AccountSID
			msg.CallSID = env.Stop.CallSID
		}
		return msg, nil
	case EventMark:
		msg := Mark{StreamSID: env.StreamSID}
		if env.Mark != nil {
			msg.Name = env.Mark.Name
		}
		return msg, nil
	case EventDTMF:
		msg := DTMF{StreamSID: env.StreamSID}
		if env.DTMF != nil {
			msg.Digit = env.DTMF.Digit
		}
		return msg, nil
	default:
		return Unknown{Event: event, Raw: json.RawMessage(append([]byte(nil), data...))}, nil
	}
}

// EncodeMedia builds an outbound media envelope wrapping a base64 payload,
// addressed to the given stream handle.
func EncodeMedia(streamSID, payloadB64 string) ([]byte, error) {
	if strings.TrimSpace(streamSID) == "" {
		return nil, badFrame("streamSid is required", "streamSid")
	}
	return json.Marshal(map[string]any{
		"event":     EventMedia,
		"streamSid": streamSID,
		"media":     map[string]string{"payload": payloadB64},
	})
}

// EncodeMark builds an outbound mark envelope used for playback tracking.
func EncodeMark(streamSID, name string) ([]byte, error) {
	if strings.TrimSpace(streamSID) == "" {
		return nil, badFrame("streamSid is required", "streamSid")
	}
	return json.Marshal(map[string]any{
		"event":     EventMark,
		"streamSid": streamSID,
		"mark":      map[string]string{"name": name},
	})
}

// EncodeClear builds an outbound clear envelope that flushes the carrier's
// buffered outbound audio for the stream.
func EncodeClear(streamSID string) ([]byte, error) {
	if strings.TrimSpace(streamSID) == "" {
		return nil, badFrame("streamSid is required", "streamSid")
	}
	return json.Marshal(map[string]any{
		"event":     "clear",
		"streamSid": streamSID,
	})
}
