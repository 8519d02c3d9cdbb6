// Package protocol speaks the conversational speech agent's streaming
// wire format. Messages are JSON objects with a "type" discriminator;
// audio chunks travel base64-encoded.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TypeSettings            = "Settings"
	TypeUserAudio           = "UserAudio"
	TypeAgentAudio          = "AgentAudio"
	TypeUserTranscript      = "UserTranscript"
	TypeAgentTranscript     = "AgentTranscript"
	TypeFunctionCall        = "FunctionCall"
	TypeFunctionCallResult  = "FunctionCallResult"
	TypeUserStartedSpeaking = "UserStartedSpeaking"
	TypeError               = "Error"
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

func badMessage(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_message", Message: message, Param: param}
}

// AudioFormat is one direction's audio shape inside Settings.
type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// Provider selects a model backend for one agent capability.
type Provider struct {
	Type  string `json:"type,omitempty"`
	Model string `json:"model"`
}

// FunctionDef advertises one invocable function to the agent, with its
// argument shape as a JSON schema.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Settings is the one-shot configuration message sent immediately after the
// agent connection opens. The agent will not accept audio before it.
type Settings struct {
	Type  string `json:"type"`
	Audio struct {
		Input  AudioFormat `json:"input"`
		Output AudioFormat `json:"output"`
	} `json:"audio"`
	Agent struct {
		Language string `json:"language,omitempty"`
		Listen   struct {
			Provider Provider `json:"provider"`
		} `json:"listen"`
		Think struct {
			Provider  Provider      `json:"provider"`
			Prompt    string        `json:"prompt,omitempty"`
			Functions []FunctionDef `json:"functions,omitempty"`
		} `json:"think"`
		Speak struct {
			Provider Provider `json:"provider"`
		} `json:"speak"`
		Greeting string `json:"greeting,omitempty"`
	} `json:"agent"`
}

// UserAudio carries one chunk of caller speech toward the agent.
type UserAudio struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// AgentAudio carries one chunk of synthesized agent speech toward the caller.
type AgentAudio struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// UserTranscript is recognized caller speech.
type UserTranscript struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// AgentTranscript is the text the agent is speaking.
type AgentTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// FunctionCall asks the bridge to invoke a business function and report back.
type FunctionCall struct {
	Type           string `json:"type"`
	FunctionCallID string `json:"function_call_id"`
	Function       struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// FunctionCallResult answers a FunctionCall. Output is spoken to the caller,
// so it must read as natural language.
type FunctionCallResult struct {
	Type           string `json:"type"`
	FunctionCallID string `json:"function_call_id"`
	Output         string `json:"output"`
}

// UserStartedSpeaking signals barge-in: the caller is talking over the
// agent and buffered playback should be flushed.
type UserStartedSpeaking struct {
	Type string `json:"type"`
}

// ErrorMessage reports a fatal agent-side condition.
type ErrorMessage struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Unknown is any message whose type discriminator the bridge does not model.
// Agents send acks and housekeeping messages; these are observed (they end
// the configuration handshake) but otherwise ignored.
type Unknown struct {
	MessageType string
	Raw         json.RawMessage
}

// Decode parses one inbound agent message into its typed variant.
// Unrecognized type values decode to Unknown rather than failing.
func Decode(data []byte) (any, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, badMessage("invalid json message", "")
	}
	if strings.TrimSpace(probe.Type) == "" {
		return nil, badMessage("missing type", "type")
	}

	switch probe.Type {
	case TypeAgentAudio:
		var msg AgentAudio
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badMessage("invalid AgentAudio", "audio")
		}
		if strings.TrimSpace(msg.Audio) == "" {
			return nil, badMessage("AgentAudio.audio is required", "audio")
		}
		return msg, nil
	case TypeUserAudio:
		var msg UserAudio
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badMessage("invalid UserAudio", "audio")
		}
		return msg, nil
	case TypeUserTranscript:
		var msg UserTranscript
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badMessage("invalid UserTranscript", "text")
		}
		return msg, nil
	case TypeAgentTranscript:
		var msg AgentTranscript
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badMessage("invalid AgentTranscript", "text")
		}
		return msg, nil
	case TypeFunctionCall:
		var msg FunctionCall
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badMessage("invalid FunctionCall", "function")
		}
		if strings.TrimSpace(msg.Function.Name) == "" {
			return nil, badMessage("FunctionCall.function.name is required", "function.name")
		}
		return msg, nil
	case TypeUserStartedSpeaking:
		return UserStartedSpeaking{Type: probe.Type}, nil
	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badMessage("invalid Error", "")
		}
		return msg, nil
	default:
		return Unknown{MessageType: probe.Type, Raw: json.RawMessage(append([]byte(nil), data...))}, nil
	}
}

// EncodeUserAudio wraps raw audio bytes in a UserAudio message.
func EncodeUserAudio(audio []byte) ([]byte, error) {
	return json.Marshal(UserAudio{
		Type:  TypeUserAudio,
		Audio: base64.StdEncoding.EncodeToString(audio),
	})
}

// EncodeFunctionCallResult wraps a function outcome for the invocation it
// answers.
func EncodeFunctionCallResult(functionCallID, output string) ([]byte, error) {
	if strings.TrimSpace(functionCallID) == "" {
		return nil, badMessage("function_call_id is required", "function_call_id")
	}
	return json.Marshal(FunctionCallResult{
		Type:           TypeFunctionCallResult,
		FunctionCallID: functionCallID,
		Output:         output,
	})
}

// EncodeSettings serializes the configuration message, forcing the type
// discriminator so callers cannot send a mislabeled handshake.
func EncodeSettings(s Settings) ([]byte, error) {
	s.Type = TypeSettings
	return json.Marshal(s)
}

// DecodeAudioPayload recovers raw audio bytes from a base64 chunk.
func DecodeAudioPayload(b64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, badMessage("audio payload is not valid base64", "audio")
	}
	return raw, nil
}
