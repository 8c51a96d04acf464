package audio

// Resample converts PCM16 mono audio between sample rates using linear
// interpolation. Downsampling averages the input window to limit aliasing.
func Resample(pcm []byte, from, to int) []byte {
	if len(pcm) < 2 || from <= 0 || to <= 0 {
		return nil
	}
	if from == to {
		out := make([]byte, len(pcm)-len(pcm)%2)
		copy(out, pcm)
		return out
	}

	in := Samples(pcm)
	n := len(in) * to / from
	if n == 0 {
		return nil
	}
	out := make([]int16, n)

	if to > from {
		for i := range out {
			// Position in the input, in input-sample units scaled by to.
			pos := i * from
			idx := pos / to
			frac := pos % to
			a := int64(in[idx])
			b := a
			if idx+1 < len(in) {
				b = int64(in[idx+1])
			}
			out[i] = int16(a + (b-a)*int64(frac)/int64(to))
		}
		return Bytes(out)
	}

	for i := range out {
		start := i * from / to
		end := (i + 1) * from / to
		if end > len(in) {
			end = len(in)
		}
		if end <= start {
			out[i] = in[start]
			continue
		}
		var sum int32
		for _, s := range in[start:end] {
			sum += int32(s)
		}
		out[i] = int16(sum / int32(end-start))
	}
	return Bytes(out)
}

// ToModel converts telephony audio to the model's input format.
func ToModel(pcm []byte, rate int) []byte {
	return Resample(pcm, rate, ModelRate)
}

// FromModel converts model audio to the caller's playback rate.
func FromModel(pcm []byte, rate int) []byte {
	return Resample(pcm, ModelRate, rate)
}
