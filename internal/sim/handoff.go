package sim

import "sync"

// AudioHandoff relays at most one synthesized clip from the step driver's
// synthesis call to its playback path. The slot pairs the payload with the
// turn sequence it was generated for; consuming with any other sequence drops
// the payload instead of playing it against the wrong turn.
type AudioHandoff struct {
	mu       sync.Mutex
	sequence int
	payload  []byte
	format   string
}

func NewAudioHandoff() *AudioHandoff {
	return &AudioHandoff{}
}

// Offer stores a clip for the given turn sequence, replacing any clip that is
// still pending. Older unconsumed clips are discarded, never queued.
func (h *AudioHandoff) Offer(sequence int, payload []byte, format string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sequence = sequence
	h.payload = payload
	h.format = format
}

// Consume returns the pending clip only when it was generated for
// expectedSequence. The slot is cleared either way, so a stale clip is
// silently dropped.
func (h *AudioHandoff) Consume(expectedSequence int) ([]byte, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	payload, format := h.payload, h.format
	matched := h.payload != nil && h.sequence == expectedSequence
	h.sequence = 0
	h.payload = nil
	h.format = ""
	if !matched {
		return nil, ""
	}
	return payload, format
}

// Pending reports the sequence of the stored clip, or 0 when the slot is empty.
func (h *AudioHandoff) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.payload == nil {
		return 0
	}
	return h.sequence
}
