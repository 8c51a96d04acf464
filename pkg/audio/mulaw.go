package audio

// DecodeMuLaw converts G.711 μ-law samples to PCM16.
func DecodeMuLaw(mulaw []byte) []byte {
	out := make([]int16, len(mulaw))
	for i, mu := range mulaw {
		mu = ^mu
		sign := mu & 0x80
		exponent := (mu >> 4) & 0x07
		mantissa := mu & 0x0F
		sample := ((int16(mantissa) << 3) + 0x84) << exponent
		sample -= 0x84
		if sign != 0 {
			sample = -sample
		}
		out[i] = sample
	}
	return Bytes(out)
}

// EncodeMuLaw converts PCM16 to G.711 μ-law.
func EncodeMuLaw(pcm []byte) []byte {
	const (
		bias = 0x84
		clip = 32635
	)
	samples := Samples(pcm)
	out := make([]byte, len(samples))
	for i, s := range samples {
		v := int32(s)
		var sign byte
		if v < 0 {
			v = -v
			sign = 0x80
		}
		if v > clip {
			v = clip
		}
		v += bias

		exponent := byte(7)
		for mask := int32(0x4000); v&mask == 0 && exponent > 0; mask >>= 1 {
			exponent--
		}
		mantissa := byte(v>>(exponent+3)) & 0x0F
		out[i] = ^(sign | exponent<<4 | mantissa)
	}
	return out
}
