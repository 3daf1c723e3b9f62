package sim

import (
	"errors"
	"testing"
)

func TestTranscriptAppendAssignsSequence(t *testing.T) {
	tr := NewTranscript()
	first, err := tr.Append(RoleClinician, "hello")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if first.Sequence != 1 {
		t.Fatalf("first sequence = %d, want 1", first.Sequence)
	}
	second, err := tr.Append(RolePatient, "hi")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if second.Sequence != 2 {
		t.Fatalf("second sequence = %d, want 2", second.Sequence)
	}
	if tr.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tr.Len())
	}
}

func TestTranscriptRejectsSameRoleTwice(t *testing.T) {
	tr := NewTranscript()
	if _, err := tr.Append(RoleClinician, "one"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	_, err := tr.Append(RoleClinician, "two")
	if !errors.Is(err, ErrRoleOutOfTurn) {
		t.Fatalf("Append() error = %v, want ErrRoleOutOfTurn", err)
	}
	if tr.Len() != 1 {
		t.Fatalf("Len() after rejected append = %d, want 1", tr.Len())
	}
}

func TestTranscriptRejectsUnknownRole(t *testing.T) {
	tr := NewTranscript()
	if _, err := tr.Append(Role("narrator"), "..."); !errors.Is(err, ErrRoleOutOfTurn) {
		t.Fatalf("Append(unknown role) error = %v, want ErrRoleOutOfTurn", err)
	}
}

func TestTranscriptViewIsACopy(t *testing.T) {
	tr := NewTranscript()
	if _, err := tr.Append(RoleClinician, "hello"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	view := tr.View()
	view[0].Content = "mutated"
	if got := tr.View()[0].Content; got != "hello" {
		t.Fatalf("transcript content = %q after mutating a view, want %q", got, "hello")
	}
}
