package audio

import "fmt"

// Encodings supported by the bridge. The telephony carrier speaks 8-bit
// mu-law at 8 kHz; speech agents speak 16-bit linear PCM at 8, 16, or 24 kHz.
const (
	EncodingMulaw    = "mulaw"
	EncodingLinear16 = "linear16"
)

// Format describes the shape of an audio byte stream.
type Format struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// MulawTelephony is the carrier-side format: 8-bit mu-law, 8 kHz, mono.
func MulawTelephony() Format {
	return Format{Encoding: EncodingMulaw, SampleRateHz: 8000, Channels: 1}
}

// Linear16 returns a 16-bit linear PCM mono format at the given rate.
func Linear16(sampleRateHz int) Format {
	return Format{Encoding: EncodingLinear16, SampleRateHz: sampleRateHz, Channels: 1}
}

func (f Format) Validate() error {
	switch f.Encoding {
	case EncodingMulaw, EncodingLinear16:
	default:
		return fmt.Errorf("unsupported encoding %q", f.Encoding)
	}
	if f.SampleRateHz <= 0 {
		return fmt.Errorf("sample rate must be > 0, got %d", f.SampleRateHz)
	}
	if f.Channels != 1 {
		return fmt.Errorf("only mono audio is supported, got %d channels", f.Channels)
	}
	return nil
}

// BytesPerSecond returns the byte rate of the encoded stream.
func (f Format) BytesPerSecond() int {
	bytesPerSample := 2
	if f.Encoding == EncodingMulaw {
		bytesPerSample = 1
	}
	return f.SampleRateHz * f.Channels * bytesPerSample
}

// DurationMs returns the play duration in milliseconds of the given byte count.
func (f Format) DurationMs(bytes int) int {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return (bytes * 1000) / bps
}

// BytesForDurationMs returns the byte count covering the given duration.
func (f Format) BytesForDurationMs(ms int) int {
	return (f.BytesPerSecond() * ms) / 1000
}
