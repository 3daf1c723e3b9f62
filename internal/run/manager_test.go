package run

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gmarchetti/consultsim/internal/casebook"
	"github.com/gmarchetti/consultsim/internal/persona"
	"github.com/gmarchetti/consultsim/internal/sim"
)

func newTestManager(retention time.Duration) *Manager {
	return NewManager(
		persona.NewMemoryStore(persona.Seed()),
		casebook.NewMemoryStore(casebook.Seed()),
		nil,
		Defaults{MaxTurns: 6, Provider: "mock", ClinicianModel: "mock-model", PatientModel: "mock-model"},
		retention,
	)
}

func TestCreateWithDefaults(t *testing.T) {
	m := newTestManager(time.Minute)

	r, err := m.Create(CreateParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.ID == "" {
		t.Fatal("run has empty ID")
	}
	if r.CaseID == "" {
		t.Fatal("run has no case assigned")
	}
	if r.Clinician.Provider != "mock" || r.Patient.Provider != "mock" {
		t.Fatalf("providers = %q/%q, want mock", r.Clinician.Provider, r.Patient.Provider)
	}
	state := r.Engine.Snapshot()
	if state.Phase != sim.PhaseRunning {
		t.Fatalf("phase = %q, want %q", state.Phase, sim.PhaseRunning)
	}
	if state.MaxTurns != 6 {
		t.Fatalf("max turns = %d, want 6", state.MaxTurns)
	}

	got, err := m.Get(r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != r {
		t.Fatal("Get returned a different run")
	}
}

func TestCreateRejectsUnknownPersona(t *testing.T) {
	m := newTestManager(time.Minute)

	_, err := m.Create(CreateParams{ClinicianPersonaID: "nobody"})
	if err == nil || !strings.Contains(err.Error(), "unknown persona") {
		t.Fatalf("err = %v, want unknown persona", err)
	}
}

func TestCreateRejectsRoleMismatch(t *testing.T) {
	m := newTestManager(time.Minute)

	_, err := m.Create(CreateParams{ClinicianPersonaID: "assertive-patient"})
	if err == nil || !strings.Contains(err.Error(), "not a") {
		t.Fatalf("err = %v, want role mismatch", err)
	}
}

func TestCreateRejectsUnknownCase(t *testing.T) {
	m := newTestManager(time.Minute)

	_, err := m.Create(CreateParams{CaseID: "missing-case"})
	if err == nil || !strings.Contains(err.Error(), "unknown case") {
		t.Fatalf("err = %v, want unknown case", err)
	}
}

func TestGetMissingRun(t *testing.T) {
	m := newTestManager(time.Minute)

	if _, err := m.Get("nope"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestJanitorEvictsFinishedRuns(t *testing.T) {
	m := newTestManager(time.Nanosecond)

	r, err := m.Create(CreateParams{MaxTurns: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Engine.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if got := r.Engine.Snapshot().Phase; got != sim.PhaseCompleted {
		t.Fatalf("phase = %q, want %q", got, sim.PhaseCompleted)
	}

	var expired []*Run
	m.SetExpireHook(func(r *Run) { expired = append(expired, r) })

	// First sweep marks the finish time, second evicts.
	m.evictFinished()
	if _, err := m.Get(r.ID); err != nil {
		t.Fatalf("run evicted on first sweep: %v", err)
	}
	time.Sleep(time.Millisecond)
	m.evictFinished()
	if _, err := m.Get(r.ID); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound after eviction", err)
	}
	if len(expired) != 1 || expired[0] != r {
		t.Fatalf("expire hook saw %d runs, want the evicted run once", len(expired))
	}
}

func TestActiveCountIgnoresTerminalRuns(t *testing.T) {
	m := newTestManager(time.Minute)

	running, err := m.Create(CreateParams{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	done, err := m.Create(CreateParams{MaxTurns: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := done.Engine.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	_ = running

	if got := m.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount = %d, want 1", got)
	}
}
