// Package audio converts caller audio between the telephony format and the
// format the realtime model speaks.
package audio

import "time"

// Rates used on the two legs of a call.
const (
	TelephonyRate = 8000
	ModelRate     = 24000
)

// SupportedRate reports whether callers may send audio at rate. Only rates
// with a whole-number ratio to ModelRate are accepted, which also bounds how
// far one chunk can grow when resampled.
func SupportedRate(rate int) bool {
	switch rate {
	case 8000, 16000, 24000, 48000:
		return true
	}
	return false
}

// Samples decodes 16-bit signed little-endian PCM. A trailing odd byte is
// dropped.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

// Bytes encodes samples as 16-bit signed little-endian PCM.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Duration is the playback length of PCM16 mono audio at rate.
func Duration(pcmBytes int, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(pcmBytes/2) * time.Second / time.Duration(rate)
}

// Chunk splits pcm into frames of at most size bytes, keeping sample
// alignment.
func Chunk(pcm []byte, size int) [][]byte {
	if size <= 0 {
		size = 3200
	}
	size -= size % 2
	var chunks [][]byte
	for i := 0; i < len(pcm); i += size {
		end := i + size
		if end > len(pcm) {
			end = len(pcm)
		}
		chunks = append(chunks, pcm[i:end])
	}
	return chunks
}
