package audio

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned when an inbound frame cannot be decoded.
// Callers treat this as a per-frame error: drop the frame, log, continue.
var ErrMalformedFrame = errors.New("malformed audio frame")

// DecodeInbound converts an encoded frame to 16-bit linear samples at the
// source format's sample rate. Pure and stateless; safe from any goroutine.
func DecodeInbound(data []byte, src Format) ([]int16, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedFrame)
	}

	switch src.Encoding {
	case EncodingMulaw:
		return DecodeMulaw(data), nil
	case EncodingLinear16:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("%w: odd linear16 payload of %d bytes", ErrMalformedFrame, len(data))
		}
		samples := make([]int16, len(data)/2)
		for i := range samples {
			// Little-endian 16-bit signed integer
			samples[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
		}
		return samples, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", src.Encoding)
	}
}

// EncodeOutbound converts 16-bit linear samples to the target format's
// byte encoding. The samples are assumed to already be at dst.SampleRateHz.
func EncodeOutbound(samples []int16, dst Format) ([]byte, error) {
	if err := dst.Validate(); err != nil {
		return nil, err
	}

	switch dst.Encoding {
	case EncodingMulaw:
		return EncodeMulaw(samples), nil
	case EncodingLinear16:
		data := make([]byte, 2*len(samples))
		for i, s := range samples {
			data[2*i] = byte(s)
			data[2*i+1] = byte(uint16(s) >> 8)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", dst.Encoding)
	}
}

// Resample converts samples between rates where one rate is an integer
// multiple of the other (8/16/24 kHz in practice). Upsampling interpolates
// linearly; downsampling averages each block of source samples.
func Resample(samples []int16, fromHz, toHz int) ([]int16, error) {
	if fromHz <= 0 || toHz <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromHz, toHz)
	}
	if fromHz == toHz {
		return samples, nil
	}

	if toHz%fromHz == 0 {
		factor := toHz / fromHz
		if len(samples) == 0 {
			return samples, nil
		}
		out := make([]int16, 0, len(samples)*factor)
		for i, s := range samples {
			next := s
			if i+1 < len(samples) {
				next = samples[i+1]
			}
			out = append(out, s)
			for k := 1; k < factor; k++ {
				interp := int32(s) + (int32(next)-int32(s))*int32(k)/int32(factor)
				out = append(out, int16(interp))
			}
		}
		return out, nil
	}

	if fromHz%toHz == 0 {
		factor := fromHz / toHz
		out := make([]int16, 0, len(samples)/factor+1)
		for i := 0; i+factor <= len(samples); i += factor {
			var sum int32
			for _, s := range samples[i : i+factor] {
				sum += int32(s)
			}
			out = append(out, int16(sum/int32(factor)))
		}
		return out, nil
	}

	return nil, fmt.Errorf("unsupported resample ratio %d -> %d", fromHz, toHz)
}

// Transcode decodes a frame from src, resamples, and re-encodes it for dst.
// This is the single conversion step each relay direction performs per frame.
func Transcode(data []byte, src, dst Format) ([]byte, error) {
	samples, err := DecodeInbound(data, src)
	if err != nil {
		return nil, err
	}
	samples, err = Resample(samples, src.SampleRateHz, dst.SampleRateHz)
	if err != nil {
		return nil, err
	}
	return EncodeOutbound(samples, dst)
}
