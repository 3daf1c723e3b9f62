package speech

import (
	"context"
	"hash/fnv"
	"unicode/utf8"

	"github.com/gmarchetti/consultsim/internal/audio"
)

// Mock synthesizes a short sine tone instead of real speech. The pitch is
// derived from the voice name so different speakers remain distinguishable,
// and the duration scales with the text length.
type Mock struct {
	SampleRate int
}

func NewMock() *Mock { return &Mock{SampleRate: 16000} }

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	// Rough reading speed of 15 characters per second, capped for sanity.
	duration := float64(utf8.RuneCountInString(text)) / 15.0
	if duration < 0.2 {
		duration = 0.2
	}
	if duration > 8 {
		duration = 8
	}
	pcm := audio.SinePCM16(voicePitch(voice), duration, m.SampleRate)
	wav, err := audio.EncodeWAVPCM16LE(pcm, m.SampleRate)
	if err != nil {
		return nil, "", err
	}
	return wav, "audio/wav", nil
}

func voicePitch(voice string) float64 {
	h := fnv.New32a()
	h.Write([]byte(voice))
	// Map into a speech-like band, 180-440 Hz.
	return 180 + float64(h.Sum32()%260)
}
