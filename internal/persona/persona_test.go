package persona

import (
	"testing"

	"github.com/gmarchetti/consultsim/internal/sim"
)

func TestSeedRosterIsComplete(t *testing.T) {
	seen := map[string]bool{}
	clinicians, patients := 0, 0
	for _, p := range Seed() {
		if p.ID == "" || p.Name == "" || p.SystemPrompt == "" {
			t.Fatalf("persona %+v misses required fields", p)
		}
		if seen[p.ID] {
			t.Fatalf("duplicate persona ID %q", p.ID)
		}
		seen[p.ID] = true
		if len(p.EndingPhrases) == 0 {
			t.Fatalf("persona %q has no ending vocabulary", p.ID)
		}
		if p.Voice == "" {
			t.Fatalf("persona %q has no synthesis voice", p.ID)
		}
		switch p.Role {
		case sim.RoleClinician:
			clinicians++
		case sim.RolePatient:
			patients++
		default:
			t.Fatalf("persona %q has unknown role %q", p.ID, p.Role)
		}
	}
	if clinicians == 0 || patients == 0 {
		t.Fatalf("seed roster needs both roles, got %d clinicians / %d patients", clinicians, patients)
	}
}

func TestDefaultForPicksFirstOfRole(t *testing.T) {
	store := NewMemoryStore(Seed())

	p, ok := store.DefaultFor(sim.RolePatient)
	if !ok || p.Role != sim.RolePatient {
		t.Fatalf("DefaultFor(patient) = %+v, %v", p, ok)
	}

	empty := NewMemoryStore(nil)
	if _, ok := empty.DefaultFor(sim.RoleClinician); ok {
		t.Fatal("empty store should report no default")
	}
}

func TestFindByID(t *testing.T) {
	store := NewMemoryStore(Seed())
	want := Seed()[0].ID

	p, ok := store.FindByID(want)
	if !ok || p.ID != want {
		t.Fatalf("FindByID(%q) = %+v, %v", want, p, ok)
	}
	if _, ok := store.FindByID("nobody"); ok {
		t.Fatal("unknown ID should not resolve")
	}
}
