package audio

// G.711 mu-law companding. The carrier delivers one mu-law byte per sample;
// each expands to a 16-bit linear sample and back with ~14 bits of precision.

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// EncodeMulawSample compands one 16-bit linear sample to a mu-law byte.
func EncodeMulawSample(sample int16) byte {
	s := int32(sample)
	var sign byte
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); mask != 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (uint(exponent) + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMulawSample expands one mu-law byte to a 16-bit linear sample.
func DecodeMulawSample(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	t := (int32(mantissa)<<3 + mulawBias) << exponent
	if sign != 0 {
		return int16(mulawBias - t)
	}
	return int16(t - mulawBias)
}

// DecodeMulaw expands a mu-law byte stream to linear samples.
func DecodeMulaw(data []byte) []int16 {
	samples := make([]int16, len(data))
	for i, b := range data {
		samples[i] = DecodeMulawSample(b)
	}
	return samples
}

// EncodeMulaw compands linear samples to a mu-law byte stream.
func EncodeMulaw(samples []int16) []byte {
	data := make([]byte, len(samples))
	for i, s := range samples {
		data[i] = EncodeMulawSample(s)
	}
	return data
}
