package sim

import (
	"fmt"
	"time"
)

// Role identifies one of the two fixed participants in a consultation run.
type Role string

const (
	// RoleClinician opens the visit unless the run is configured otherwise.
	RoleClinician Role = "clinician"
	RolePatient   Role = "patient"
)

// Other returns the opposite participant.
func (r Role) Other() Role {
	if r == RoleClinician {
		return RolePatient
	}
	return RoleClinician
}

// Turn is a single utterance attributed to a role.
type Turn struct {
	Sequence  int       `json:"sequence"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is the append-only log of turns for one run. It is owned by the
// run's engine and must not be shared across runs.
type Transcript struct {
	turns []Turn
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append records a new utterance, assigning the next sequence number.
// Appending two consecutive turns for the same role is a programming error in
// the caller and fails with ErrRoleOutOfTurn.
func (t *Transcript) Append(role Role, content string) (Turn, error) {
	if role != RoleClinician && role != RolePatient {
		return Turn{}, fmt.Errorf("%w: unknown role %q", ErrRoleOutOfTurn, role)
	}
	if n := len(t.turns); n > 0 && t.turns[n-1].Role == role {
		return Turn{}, fmt.Errorf("%w: %s spoke twice in a row", ErrRoleOutOfTurn, role)
	}
	turn := Turn{
		Sequence:  len(t.turns) + 1,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	t.turns = append(t.turns, turn)
	return turn, nil
}

// View returns an ordered copy of all turns so far.
func (t *Transcript) View() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int {
	return len(t.turns)
}

// Last returns the most recent turn, or false when the transcript is empty.
func (t *Transcript) Last() (Turn, bool) {
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}
