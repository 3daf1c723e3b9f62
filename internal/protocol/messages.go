// Package protocol defines the websocket payloads pushed to run watchers.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeTurnAppended MessageType = "turn_appended"
	TypePhaseChanged MessageType = "phase_changed"
	TypeAudioReady   MessageType = "audio_ready"
	TypeRunError     MessageType = "run_error"
	TypeClientPing   MessageType = "client_ping"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// TurnAppended announces a newly produced dialogue turn.
type TurnAppended struct {
	Type      MessageType `json:"type"`
	RunID     string      `json:"run_id"`
	Sequence  int         `json:"sequence"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	TurnCount int         `json:"turn_count"`
}

// PhaseChanged announces a lifecycle transition, including terminal ones.
type PhaseChanged struct {
	Type   MessageType `json:"type"`
	RunID  string      `json:"run_id"`
	Phase  string      `json:"phase"`
	Reason string      `json:"reason,omitempty"`
}

// AudioReady announces that synthesized audio for a turn is waiting in the
// run's handoff slot. The payload itself travels over HTTP, not the socket.
type AudioReady struct {
	Type     MessageType `json:"type"`
	RunID    string      `json:"run_id"`
	Sequence int         `json:"sequence"`
	Format   string      `json:"format"`
}

// RunError reports a failed generation or synthesis attempt.
type RunError struct {
	Type      MessageType `json:"type"`
	RunID     string      `json:"run_id"`
	Role      string      `json:"role,omitempty"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ClientPing is the only message watchers may send; it keeps idle
// connections alive between externally driven steps.
type ClientPing struct {
	Type  MessageType `json:"type"`
	RunID string      `json:"run_id"`
}

func NewTurnAppended(runID string, sequence int, role, content string, turnCount int) TurnAppended {
	return TurnAppended{Type: TypeTurnAppended, RunID: runID, Sequence: sequence, Role: role, Content: content, TurnCount: turnCount}
}

func NewPhaseChanged(runID, phase, reason string) PhaseChanged {
	return PhaseChanged{Type: TypePhaseChanged, RunID: runID, Phase: phase, Reason: reason}
}

func NewAudioReady(runID string, sequence int, format string) AudioReady {
	return AudioReady{Type: TypeAudioReady, RunID: runID, Sequence: sequence, Format: format}
}

func NewRunError(runID, role string, retryable bool, detail string) RunError {
	return RunError{Type: TypeRunError, RunID: runID, Role: role, Retryable: retryable, Detail: detail}
}

// ParseClientMessage decodes a watcher-originated payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientPing:
		var msg ClientPing
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.RunID == "" {
			return nil, errors.New("invalid client_ping")
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, env.Type)
	}
}
