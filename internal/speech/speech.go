// Package speech turns finished dialogue turns into playable audio.
// Synthesis happens outside the engine: a driver asks for audio after a
// step and offers the result to the run's handoff slot.
package speech

import "context"

// Synthesizer renders one utterance to a complete audio payload.
type Synthesizer interface {
	Name() string
	// Synthesize returns the encoded audio and its MIME type.
	Synthesize(ctx context.Context, text, voice string) ([]byte, string, error)
}
