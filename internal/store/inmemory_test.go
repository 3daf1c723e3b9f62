package store

import (
	"context"
	"testing"
	"time"

	"github.com/gmarchetti/consultsim/internal/sim"
)

func sampleRecord(id string, created time.Time) RunRecord {
	return RunRecord{
		ID:            id,
		CaseID:        "brca2-adjuvant",
		CaseTitle:     "BRCA2 adjuvant therapy discussion",
		ClinicianName: "Dr. Anderson",
		PatientName:   "Sarah",
		Provider:      "mock",
		Phase:         "completed",
		Reason:        "max_turns",
		CreatedAt:     created,
		Turns: []sim.Turn{
			{Sequence: 1, Role: sim.RoleClinician, Content: "Good morning.", Timestamp: created},
			{Sequence: 2, Role: sim.RolePatient, Content: "Good morning, doctor.", Timestamp: created},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	record := sampleRecord("run-1", time.Now().UTC())
	if err := s.SaveRun(ctx, record); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.CaseID != record.CaseID || len(got.Turns) != 2 {
		t.Fatalf("got case %q with %d turns", got.CaseID, len(got.Turns))
	}

	// Mutating the returned copy must not touch the stored record.
	got.Turns[0].Content = "tampered"
	again, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if again.Turns[0].Content != "Good morning." {
		t.Fatalf("stored turn mutated: %q", again.Turns[0].Content)
	}
}

func TestGetRunMissing(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.GetRun(context.Background(), "nope"); err != ErrRunNotFound {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestSaveRunAssignsID(t *testing.T) {
	s := NewInMemoryStore()
	record := sampleRecord("", time.Time{})
	if err := s.SaveRun(context.Background(), record); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	list, err := s.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(list) != 1 || list[0].ID == "" || list[0].CreatedAt.IsZero() {
		t.Fatalf("saved record missing generated fields: %+v", list)
	}
}

func TestListRunsOrdersAndTrims(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		if err := s.SaveRun(ctx, sampleRecord(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveRun(%s): %v", id, err)
		}
	}

	list, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != "c" || list[1].ID != "b" {
		t.Fatalf("order = %s,%s, want c,b", list[0].ID, list[1].ID)
	}
	if list[0].Turns != nil {
		t.Fatal("list entries should not carry transcripts")
	}
}

func TestFactoryDefaultsToInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), "  ")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("store type = %T, want *InMemoryStore", s)
	}
}
