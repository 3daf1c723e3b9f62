// Package run keeps the registry of simulation runs. Each run owns its
// engine, transcript and audio handoff slot exclusively; the manager only
// tracks lifecycle and evicts finished runs after a retention window.
package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gmarchetti/consultsim/internal/agent"
	"github.com/gmarchetti/consultsim/internal/casebook"
	"github.com/gmarchetti/consultsim/internal/persona"
	"github.com/gmarchetti/consultsim/internal/provider"
	"github.com/gmarchetti/consultsim/internal/sim"
)

var ErrNotFound = errors.New("run not found")

// Participant records how one role of a run is configured, for display and
// persistence metadata.
type Participant struct {
	PersonaID string `json:"persona_id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Voice     string `json:"voice"`
}

// Run is one simulation run and the objects it exclusively owns.
type Run struct {
	ID        string
	CaseID    string
	CaseTitle string
	Clinician Participant
	Patient   Participant
	CreatedAt time.Time

	Engine  *sim.Engine
	Handoff *sim.AudioHandoff

	mu         sync.Mutex
	finishedAt time.Time
	storageID  string
}

// MarkFinished records when the run was first observed in a terminal phase.
func (r *Run) MarkFinished(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finishedAt.IsZero() {
		r.finishedAt = at
	}
}

func (r *Run) FinishedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishedAt
}

// SetStorageID records the persistence identifier returned by the store.
func (r *Run) SetStorageID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storageID = id
}

func (r *Run) StorageID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.storageID
}

// Defaults fill unspecified create parameters.
type Defaults struct {
	MaxTurns       int
	Provider       string
	ClinicianModel string
	PatientModel   string
}

// CreateParams selects personas, case and backends for a new run.
type CreateParams struct {
	CaseID             string `json:"case_id"`
	ClinicianPersonaID string `json:"clinician_persona_id"`
	PatientPersonaID   string `json:"patient_persona_id"`
	Provider           string `json:"provider"`
	ClinicianModel     string `json:"clinician_model"`
	PatientModel       string `json:"patient_model"`
	MaxTurns           int    `json:"max_turns"`
	Opener             string `json:"opener"`
}

// Manager builds runs and tracks them until eviction.
type Manager struct {
	mu        sync.RWMutex
	runs      map[string]*Run
	personas  *persona.MemoryStore
	cases     *casebook.MemoryStore
	keys      map[string]string
	defaults  Defaults
	retention time.Duration
	onExpire  func(*Run)
}

func NewManager(personas *persona.MemoryStore, cases *casebook.MemoryStore, keys map[string]string, defaults Defaults, retention time.Duration) *Manager {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &Manager{
		runs:      make(map[string]*Run),
		personas:  personas,
		cases:     cases,
		keys:      keys,
		defaults:  defaults,
		retention: retention,
	}
}

func (m *Manager) SetExpireHook(hook func(*Run)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create resolves personas, case and providers, starts an engine and
// registers the run. Engine config problems surface as *sim.ConfigError.
func (m *Manager) Create(params CreateParams) (*Run, error) {
	clinicianPersona, err := m.resolvePersona(params.ClinicianPersonaID, sim.RoleClinician)
	if err != nil {
		return nil, err
	}
	patientPersona, err := m.resolvePersona(params.PatientPersonaID, sim.RolePatient)
	if err != nil {
		return nil, err
	}

	caseID := strings.TrimSpace(params.CaseID)
	var visitCase casebook.Case
	if caseID == "" {
		all := m.cases.List()
		if len(all) == 0 {
			return nil, fmt.Errorf("case catalog is empty")
		}
		visitCase = all[0]
	} else {
		var ok bool
		visitCase, ok = m.cases.FindByID(caseID)
		if !ok {
			return nil, fmt.Errorf("unknown case %q", caseID)
		}
	}

	providerName := strings.TrimSpace(params.Provider)
	if providerName == "" {
		providerName = m.defaults.Provider
	}
	backend, err := provider.New(provider.Config{Name: providerName}, m.keys)
	if err != nil {
		return nil, err
	}

	clinicianModel := orDefault(params.ClinicianModel, m.defaults.ClinicianModel)
	patientModel := orDefault(params.PatientModel, m.defaults.PatientModel)

	maxTurns := params.MaxTurns
	if maxTurns == 0 {
		maxTurns = m.defaults.MaxTurns
	}
	opener := sim.Role(strings.TrimSpace(params.Opener))
	if opener == "" {
		opener = sim.RoleClinician
	}

	engine := sim.NewEngine()
	err = engine.Start(sim.Config{
		Opener:    opener,
		MaxTurns:  maxTurns,
		Clinician: agent.New(clinicianPersona, backend, clinicianModel, visitCase.PromptText()),
		Patient:   agent.New(patientPersona, backend, patientModel, ""),
	})
	if err != nil {
		return nil, err
	}

	r := &Run{
		ID:        uuid.NewString(),
		CaseID:    visitCase.ID,
		CaseTitle: visitCase.Title,
		Clinician: Participant{
			PersonaID: clinicianPersona.ID,
			Name:      clinicianPersona.Name,
			Provider:  backend.Name(),
			Model:     clinicianModel,
			Voice:     clinicianPersona.Voice,
		},
		Patient: Participant{
			PersonaID: patientPersona.ID,
			Name:      patientPersona.Name,
			Provider:  backend.Name(),
			Model:     patientModel,
			Voice:     patientPersona.Voice,
		},
		CreatedAt: time.Now().UTC(),
		Engine:    engine,
		Handoff:   sim.NewAudioHandoff(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	return r, nil
}

func (m *Manager) Get(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *Manager) List() []*Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out
}

// ActiveCount reports runs whose engine has not reached a terminal phase.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, r := range m.runs {
		if !r.Engine.Snapshot().Phase.Terminal() {
			count++
		}
	}
	return count
}

// StartJanitor evicts finished runs after the retention window.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.evictFinished()
			}
		}
	}()
}

func (m *Manager) evictFinished() {
	now := time.Now().UTC()
	var evicted []*Run

	m.mu.Lock()
	for id, r := range m.runs {
		if !r.Engine.Snapshot().Phase.Terminal() {
			continue
		}
		finished := r.FinishedAt()
		if finished.IsZero() {
			r.MarkFinished(now)
			continue
		}
		if now.Sub(finished) < m.retention {
			continue
		}
		delete(m.runs, id)
		evicted = append(evicted, r)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, r := range evicted {
			hook(r)
		}
	}
}

func (m *Manager) resolvePersona(id string, role sim.Role) (persona.Persona, error) {
	if strings.TrimSpace(id) == "" {
		p, ok := m.personas.DefaultFor(role)
		if !ok {
			return persona.Persona{}, fmt.Errorf("no persona available for role %q", role)
		}
		return p, nil
	}
	p, ok := m.personas.FindByID(id)
	if !ok {
		return persona.Persona{}, fmt.Errorf("unknown persona %q", id)
	}
	if p.Role != role {
		return persona.Persona{}, fmt.Errorf("persona %q is a %s, not a %s", id, p.Role, role)
	}
	return p, nil
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
