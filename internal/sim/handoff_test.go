package sim

import (
	"bytes"
	"testing"
)

func TestHandoffConsumeMatchingSequence(t *testing.T) {
	h := NewAudioHandoff()
	h.Offer(3, []byte("clip"), "audio/wav")

	payload, format := h.Consume(3)
	if !bytes.Equal(payload, []byte("clip")) || format != "audio/wav" {
		t.Fatalf("Consume(3) = (%q, %q), want clip payload", payload, format)
	}
	// Slot is cleared; a second consume returns nothing.
	if payload, _ := h.Consume(3); payload != nil {
		t.Fatalf("second Consume(3) = %q, want nil", payload)
	}
}

func TestHandoffDropsStalePayload(t *testing.T) {
	h := NewAudioHandoff()
	h.Offer(5, []byte("stale"), "audio/wav")

	// A new turn (sequence 6) appended before playback: the clip for 5 must
	// not play against it.
	if payload, _ := h.Consume(6); payload != nil {
		t.Fatalf("Consume(6) with clip for 5 = %q, want nil", payload)
	}
	if h.Pending() != 0 {
		t.Fatalf("Pending() after stale consume = %d, want 0", h.Pending())
	}
}

func TestHandoffOfferOverwrites(t *testing.T) {
	h := NewAudioHandoff()
	h.Offer(1, []byte("old"), "audio/wav")
	h.Offer(2, []byte("new"), "audio/wav")

	if payload, _ := h.Consume(1); payload != nil {
		t.Fatalf("Consume(1) after overwrite = %q, want nil", payload)
	}
	// The overwrite also cleared the slot via the stale consume above.
	h.Offer(3, []byte("again"), "audio/wav")
	if payload, _ := h.Consume(3); !bytes.Equal(payload, []byte("again")) {
		t.Fatalf("Consume(3) = %q, want %q", payload, "again")
	}
}

func TestHandoffConsumeEmptySlot(t *testing.T) {
	h := NewAudioHandoff()
	if payload, format := h.Consume(1); payload != nil || format != "" {
		t.Fatalf("Consume on empty slot = (%q, %q), want (nil, \"\")", payload, format)
	}
}
