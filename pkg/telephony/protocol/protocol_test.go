package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeConnected(t *testing.T) {
	raw := `{"event":"connected","protocol":"Call","version":"1.0.0"}`
	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if _, ok := msg.(Connected); !ok {
		t.Fatalf("got=%T, want Connected", msg)
	}
}

func TestDecodeStart(t *testing.T) {
	raw := `{
		"event":"start",
		"sequenceNumber":"1",
		"streamSid":"MZ1111",
		"start":{
			"accountSid":"AC000",
			"streamSid":"MZ1111",
			"callSid":"CA123",
			"tracks":["inbound"],
			"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1},
			"customParameters":{"tenant":"acme"}
		}
	}`
	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	start, ok := msg.(Start)
	if !ok {
		t.Fatalf("got=%T, want Start", msg)
	}
	if start.CallSID != "CA123" {
		t.Fatalf("callSid got=%q, want %q", start.CallSID, "CA123")
	}
	if start.StreamSID != "MZ1111" {
		t.Fatalf("streamSid got=%q, want %q", start.StreamSID, "MZ1111")
	}
	if start.MediaFormat.SampleRate != 8000 {
		t.Fatalf("sampleRate got=%d, want 8000", start.MediaFormat.SampleRate)
	}
	if start.CustomParams["tenant"] != "acme" {
		t.Fatalf("customParameters got=%v, want tenant=acme", start.CustomParams)
	}
}

func TestDecodeStartStreamSIDFallsBackToEnvelope(t *testing.T) {
	raw := `{"event":"start","streamSid":"MZ2222","start":{"callSid":"CA9"}}`
	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	start := msg.(Start)
	if start.StreamSID != "MZ2222" {
		t.Fatalf("streamSid got=%q, want %q", start.StreamSID, "MZ2222")
	}
}

func TestDecodeStartMissingCallSID(t *testing.T) {
	raw := `{"event":"start","streamSid":"MZ1","start":{"streamSid":"MZ1"}}`
	_, err := Decode([]byte(raw))
	if err == nil {
		t.Fatalf("expected decode error, got nil")
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("got=%T, want *DecodeError", err)
	}
	if de.Param != "start.callSid" {
		t.Fatalf("param got=%q, want %q", de.Param, "start.callSid")
	}
}

func TestDecodeMedia(t *testing.T) {
	raw := `{"event":"media","streamSid":"MZ1111","media":{"track":"inbound","timestamp":"200","payload":"AAAA"}}`
	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	media, ok := msg.(Media)
	if !ok {
		t.Fatalf("got=%T, want Media", msg)
	}
	if media.Payload != "AAAA" {
		t.Fatalf("payload got=%q, want %q", media.Payload, "AAAA")
	}
	if media.StreamSID != "MZ1111" {
		t.Fatalf("streamSid got=%q, want %q", media.StreamSID, "MZ1111")
	}
}

func TestDecodeMediaMissingPayload(t *testing.T) {
	raw := `{"event":"media","streamSid":"MZ1111","media":{"track":"inbound"}}`
	if _, err := Decode([]byte(raw)); err == nil {
		t.Fatalf("expected decode error, got nil")
	}
}

func TestDecodeStop(t *testing.T) {
	raw := `{"event":"stop","streamSid":"MZ1111","stop":{"callSid":"CA123"}}`
	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	stop, ok := msg.(Stop)
	if !ok {
		t.Fatalf("got=%T, want Stop", msg)
	}
	if stop.CallSID != "CA123" {
		t.Fatalf("callSid got=%q, want %q", stop.CallSID, "CA123")
	}
}

func TestDecodeMarkAndDTMF(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"mark","streamSid":"MZ1","mark":{"name":"greeting"}}`))
	if err != nil {
		t.Fatalf("mark decode failed: %v", err)
	}
	if mark := msg.(Mark); mark.Name != "greeting" {
		t.Fatalf("mark name got=%q, want %q", mark.Name, "greeting")
	}

	msg, err = Decode([]byte(`{"event":"dtmf","streamSid":"MZ1","dtmf":{"digit":"5"}}`))
	if err != nil {
		t.Fatalf("dtmf decode failed: %v", err)
	}
	if dtmf := msg.(DTMF); dtmf.Digit != "5" {
		t.Fatalf("dtmf digit got=%q, want %q", dtmf.Digit, "5")
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	raw := `{"event":"keepalive","streamSid":"MZ1"}`
	msg, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	unk, ok := msg.(Unknown)
	if !ok {
		t.Fatalf("got=%T, want Unknown", msg)
	}
	if unk.Event != "keepalive" {
		t.Fatalf("event got=%q, want %q", unk.Event, "keepalive")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Fatalf("expected decode error, got nil")
	}
	if _, err := Decode([]byte(`{"streamSid":"MZ1"}`)); err == nil {
		t.Fatalf("expected missing-event error, got nil")
	}
}

func TestEncodeMedia(t *testing.T) {
	data, err := EncodeMedia("MZ1111", "AAAA")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var env struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if env.Event != EventMedia {
		t.Fatalf("event got=%q, want %q", env.Event, EventMedia)
	}
	if env.Media.Payload != "AAAA" {
		t.Fatalf("payload got=%q, want %q", env.Media.Payload, "AAAA")
	}
}

func TestEncodeMediaRequiresStreamSID(t *testing.T) {
	if _, err := EncodeMedia("", "AAAA"); err == nil {
		t.Fatalf("expected error for empty streamSid, got nil")
	}
}

func TestEncodeClear(t *testing.T) {
	data, err := EncodeClear("MZ1")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if env["event"] != "clear" {
		t.Fatalf("event got=%v, want %q", env["event"], "clear")
	}
}
