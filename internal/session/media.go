package session

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/troikatech/cab-voice-agent/pkg/audio"
)

func toModelAudio(pcm []byte, rate int) []byte {
	if rate == audio.ModelRate {
		return pcm
	}
	return audio.ToModel(pcm, rate)
}

func decodeModelAudio(delta string, rate int) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(delta)
	if err != nil {
		return nil, fmt.Errorf("decode audio delta: %w", err)
	}
	if rate == audio.ModelRate {
		return pcm, nil
	}
	return audio.FromModel(pcm, rate), nil
}

func committedDuration(pcmBytes int) time.Duration {
	return audio.Duration(pcmBytes, audio.ModelRate)
}
