package agent

import (
	"github.com/voicebridge-ai/voicebridge/pkg/agent/protocol"
	"github.com/voicebridge-ai/voicebridge/pkg/audio"
)

// SettingsParams is everything the bridge configures the agent with for one
// call: audio shapes for both directions, model selections, the persona
// prompt, and the invocable function surface.
type SettingsParams struct {
	InputFormat  audio.Format
	OutputFormat audio.Format
	Language     string
	ListenModel  string
	ThinkType    string
	ThinkModel   string
	Prompt       string
	SpeakModel   string
	Greeting     string
	Functions    []protocol.FunctionDef
}

// BuildSettings assembles the configuration handshake message.
func BuildSettings(p SettingsParams) protocol.Settings {
	var s protocol.Settings
	s.Type = protocol.TypeSettings
	s.Audio.Input = protocol.AudioFormat{
		Encoding:   p.InputFormat.Encoding,
		SampleRate: p.InputFormat.SampleRateHz,
	}
	s.Audio.Output = protocol.AudioFormat{
		Encoding:   p.OutputFormat.Encoding,
		SampleRate: p.OutputFormat.SampleRateHz,
	}
	s.Agent.Language = p.Language
	s.Agent.Listen.Provider = protocol.Provider{Type: "deepgram", Model: p.ListenModel}
	s.Agent.Think.Provider = protocol.Provider{Type: p.ThinkType, Model: p.ThinkModel}
	s.Agent.Think.Prompt = p.Prompt
	s.Agent.Think.Functions = p.Functions
	s.Agent.Speak.Provider = protocol.Provider{Type: "deepgram", Model: p.SpeakModel}
	s.Agent.Greeting = p.Greeting
	return s
}
