package protocol

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeAgentAudio(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})
	raw := `{"type":"AgentAudio","audio":"` + payload + `"}`
	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	chunk, ok := msg.(AgentAudio)
	if !ok {
		t.Fatalf("got=%T, want AgentAudio", msg)
	}
	audio, err := DecodeAudioPayload(chunk.Audio)
	if err != nil {
		t.Fatalf("payload decode failed: %v", err)
	}
	if len(audio) != 3 || audio[0] != 0x01 {
		t.Fatalf("audio got=%v, want [1 2 3]", audio)
	}
}

func TestDecodeAgentAudioMissingPayload(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"AgentAudio"}`)); err == nil {
		t.Fatalf("expected decode error, got nil")
	}
}

func TestDecodeTranscripts(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"UserTranscript","text":"book me for tuesday","confidence":0.92}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	ut, ok := msg.(UserTranscript)
	if !ok {
		t.Fatalf("got=%T, want UserTranscript", msg)
	}
	if ut.Text != "book me for tuesday" {
		t.Fatalf("text got=%q", ut.Text)
	}
	if ut.Confidence != 0.92 {
		t.Fatalf("confidence got=%v, want 0.92", ut.Confidence)
	}

	msg, err = Decode([]byte(`{"type":"AgentTranscript","text":"You are booked."}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if at := msg.(AgentTranscript); at.Text != "You are booked." {
		t.Fatalf("text got=%q", at.Text)
	}
}

func TestDecodeFunctionCall(t *testing.T) {
	raw := `{
		"type":"FunctionCall",
		"function_call_id":"fc-1",
		"function":{"name":"book_appointment","arguments":{"customer_name":"Ada","appointment_date":"2026-09-02"}}
	}`
	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	call, ok := msg.(FunctionCall)
	if !ok {
		t.Fatalf("got=%T, want FunctionCall", msg)
	}
	if call.FunctionCallID != "fc-1" {
		t.Fatalf("id got=%q, want fc-1", call.FunctionCallID)
	}
	if call.Function.Name != "book_appointment" {
		t.Fatalf("name got=%q", call.Function.Name)
	}
	var args map[string]string
	if err := json.Unmarshal(call.Function.Arguments, &args); err != nil {
		t.Fatalf("arguments unmarshal failed: %v", err)
	}
	if args["customer_name"] != "Ada" {
		t.Fatalf("arguments got=%v", args)
	}
}

func TestDecodeFunctionCallMissingName(t *testing.T) {
	raw := `{"type":"FunctionCall","function_call_id":"fc-2","function":{"arguments":{}}}`
	if _, err := Decode([]byte(raw)); err == nil {
		t.Fatalf("expected decode error, got nil")
	}
}

func TestDecodeError(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"Error","code":"BAD_SETTINGS","description":"unsupported sample rate"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	em, ok := msg.(ErrorMessage)
	if !ok {
		t.Fatalf("got=%T, want ErrorMessage", msg)
	}
	if em.Code != "BAD_SETTINGS" {
		t.Fatalf("code got=%q", em.Code)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"SettingsApplied"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	unk, ok := msg.(Unknown)
	if !ok {
		t.Fatalf("got=%T, want Unknown", msg)
	}
	if unk.MessageType != "SettingsApplied" {
		t.Fatalf("type got=%q", unk.MessageType)
	}
}

func TestDecodeUserStartedSpeaking(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"UserStartedSpeaking"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if _, ok := msg.(UserStartedSpeaking); !ok {
		t.Fatalf("got=%T, want UserStartedSpeaking", msg)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatalf("expected decode error, got nil")
	}
	if _, err := Decode([]byte(`{"text":"hi"}`)); err == nil {
		t.Fatalf("expected missing-type error, got nil")
	}
}

func TestEncodeSettingsForcesType(t *testing.T) {
	var s Settings
	s.Audio.Input = AudioFormat{Encoding: "mulaw", SampleRate: 8000}
	s.Audio.Output = AudioFormat{Encoding: "mulaw", SampleRate: 8000}
	s.Agent.Listen.Provider = Provider{Type: "deepgram", Model: "nova-3"}
	s.Agent.Think.Provider = Provider{Type: "open_ai", Model: "gpt-4o-mini"}
	s.Agent.Think.Prompt = "You are a scheduling assistant."
	s.Agent.Think.Functions = []FunctionDef{{
		Name:       "get_availability",
		Parameters: json.RawMessage(`{"type":"object","properties":{"date":{"type":"string"}}}`),
	}}
	s.Agent.Speak.Provider = Provider{Type: "deepgram", Model: "aura-2-thalia-en"}

	data, err := EncodeSettings(s)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var round Settings
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if round.Type != TypeSettings {
		t.Fatalf("type got=%q, want %q", round.Type, TypeSettings)
	}
	if round.Audio.Input.SampleRate != 8000 {
		t.Fatalf("input sample rate got=%d, want 8000", round.Audio.Input.SampleRate)
	}
	if len(round.Agent.Think.Functions) != 1 || round.Agent.Think.Functions[0].Name != "get_availability" {
		t.Fatalf("functions got=%v", round.Agent.Think.Functions)
	}
}

func TestEncodeUserAudio(t *testing.T) {
	data, err := EncodeUserAudio([]byte{0x7F, 0x80})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var msg UserAudio
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Type != TypeUserAudio {
		t.Fatalf("type got=%q, want %q", msg.Type, TypeUserAudio)
	}
	raw, err := DecodeAudioPayload(msg.Audio)
	if err != nil {
		t.Fatalf("payload decode failed: %v", err)
	}
	if len(raw) != 2 || raw[1] != 0x80 {
		t.Fatalf("audio got=%v, want [127 128]", raw)
	}
}

func TestEncodeFunctionCallResult(t *testing.T) {
	data, err := EncodeFunctionCallResult("fc-1", "Your appointment is confirmed.")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.Contains(string(data), `"function_call_id":"fc-1"`) {
		t.Fatalf("encoded result missing id: %s", data)
	}

	if _, err := EncodeFunctionCallResult("", "x"); err == nil {
		t.Fatalf("expected error for empty id, got nil")
	}
}
