package sim

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

// Phase is the lifecycle state of one simulation run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhasePaused    Phase = "paused"
	PhaseCompleted Phase = "completed"
	PhaseStopped   Phase = "stopped"
	PhaseFailed    Phase = "failed"
)

// Terminal reports whether the phase admits no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseStopped || p == PhaseFailed
}

// Completion reasons reported in StepResult and State.
const (
	ReasonMaxTurns     = "max_turns"
	ReasonEndingPhrase = "ending_phrase"
)

// ErrNotStarted is returned by Step before a successful Start.
var ErrNotStarted = errors.New("run not started")

// ErrAlreadyStarted is returned by Start on any phase other than Idle.
var ErrAlreadyStarted = errors.New("run already started")

// Producer generates the next utterance for one role. Implementations must be
// safe to call from successive steps but are never called concurrently for
// the same run.
type Producer interface {
	Role() Role
	EndingPhrases() []string
	Produce(ctx context.Context, view []Turn) (string, error)
}

// Config describes one run. Both agents must be bound and MaxTurns positive.
type Config struct {
	Opener    Role
	MaxTurns  int
	Clinician Producer
	Patient   Producer
}

// StepResult is what one Step call observed: the turn it appended (nil when
// none), the phase after the step, and the completion reason when terminal.
type StepResult struct {
	Turn   *Turn
	Phase  Phase
	Turns  int
	Reason string
}

// State is a read-only snapshot for display.
type State struct {
	Phase     Phase  `json:"phase"`
	Turns     int    `json:"turns"`
	MaxTurns  int    `json:"max_turns"`
	Opener    Role   `json:"opener"`
	Reason    string `json:"reason,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Engine is the turn-taking state machine for one run. It performs exactly
// one generation per Step call and never loops internally; pacing, retries
// and audio belong to the external driver. The engine exclusively owns its
// transcript for the lifetime of the run.
type Engine struct {
	mu         sync.Mutex
	stepping   atomic.Bool
	phase      Phase
	cfg        Config
	agents     map[Role]Producer
	endings    []string
	transcript *Transcript
	lastErr    error
	reason     string
}

func NewEngine() *Engine {
	return &Engine{
		phase:      PhaseIdle,
		transcript: NewTranscript(),
	}
}

// Start validates the configuration and moves Idle -> Running. On a
// ConfigError the engine stays Idle and may be started again.
func (e *Engine) Start(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseIdle {
		return ErrAlreadyStarted
	}
	if cfg.MaxTurns <= 0 {
		return &ConfigError{Field: "max_turns", Reason: "must be positive"}
	}
	if cfg.Clinician == nil {
		return &ConfigError{Field: "clinician", Reason: "agent not bound"}
	}
	if cfg.Patient == nil {
		return &ConfigError{Field: "patient", Reason: "agent not bound"}
	}
	if cfg.Clinician.Role() != RoleClinician {
		return &ConfigError{Field: "clinician", Reason: "agent bound to wrong role"}
	}
	if cfg.Patient.Role() != RolePatient {
		return &ConfigError{Field: "patient", Reason: "agent bound to wrong role"}
	}
	if cfg.Opener == "" {
		cfg.Opener = RoleClinician
	}
	if cfg.Opener != RoleClinician && cfg.Opener != RolePatient {
		return &ConfigError{Field: "opener", Reason: "unknown role"}
	}

	e.cfg = cfg
	e.agents = map[Role]Producer{
		RoleClinician: cfg.Clinician,
		RolePatient:   cfg.Patient,
	}
	e.endings = e.endings[:0]
	for _, agent := range []Producer{cfg.Clinician, cfg.Patient} {
		for _, phrase := range agent.EndingPhrases() {
			phrase = strings.ToLower(strings.TrimSpace(phrase))
			if phrase != "" {
				e.endings = append(e.endings, phrase)
			}
		}
	}
	e.phase = PhaseRunning
	return nil
}

// Step performs one unit of work: pick the next role by alternation, invoke
// that agent once, append the result and evaluate termination. While Paused
// or terminal it appends nothing and reports the current state. Step must not
// be called concurrently for the same run; a second in-flight call fails fast
// with ErrStepInFlight.
func (e *Engine) Step(ctx context.Context) (StepResult, error) {
	if !e.stepping.CompareAndSwap(false, true) {
		return StepResult{}, ErrStepInFlight
	}
	defer e.stepping.Store(false)

	e.mu.Lock()
	switch {
	case e.phase == PhaseIdle:
		e.mu.Unlock()
		return StepResult{Phase: PhaseIdle}, ErrNotStarted
	case e.phase != PhaseRunning:
		res := e.resultLocked(nil)
		e.mu.Unlock()
		return res, nil
	}

	// Guard against a driver stepping past the ceiling: complete instead of
	// appending beyond MaxTurns.
	if e.transcript.Len() >= e.cfg.MaxTurns {
		e.phase = PhaseCompleted
		e.reason = ReasonMaxTurns
		res := e.resultLocked(nil)
		e.mu.Unlock()
		return res, nil
	}

	role := e.cfg.Opener
	if last, ok := e.transcript.Last(); ok {
		role = last.Role.Other()
	}
	agent := e.agents[role]
	view := e.transcript.View()
	e.mu.Unlock()

	// The provider call runs without the lock so Pause and Stop stay
	// responsive while a generation is in flight.
	content, err := agent.Produce(ctx, view)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		genErr := &GenerationError{Role: role, Err: err}
		if !e.phase.Terminal() {
			e.phase = PhaseFailed
			e.lastErr = genErr
		}
		return e.resultLocked(nil), genErr
	}

	// A pause or stop issued while the call was in flight does not discard
	// the produced turn.
	turn, err := e.transcript.Append(role, content)
	if err != nil {
		if !e.phase.Terminal() {
			e.phase = PhaseFailed
			e.lastErr = err
		}
		return e.resultLocked(nil), err
	}

	if e.phase == PhaseRunning {
		switch {
		case e.transcript.Len() >= e.cfg.MaxTurns:
			e.phase = PhaseCompleted
			e.reason = ReasonMaxTurns
		case e.matchesEnding(content):
			e.phase = PhaseCompleted
			e.reason = ReasonEndingPhrase
		}
	}
	return e.resultLocked(&turn), nil
}

// Pause gates future steps. It does not interrupt an in-flight generation;
// that turn is still appended.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseRunning {
		e.phase = PhasePaused
	}
}

// Resume moves Paused back to Running. Any other phase is left untouched.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhasePaused {
		e.phase = PhaseRunning
	}
}

// Stop terminates the run from Running or Paused. It is cooperative: an
// in-flight generation completes and its turn is kept, but no further step
// will generate.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseRunning || e.phase == PhasePaused {
		e.phase = PhaseStopped
	}
}

// Snapshot returns the current state for display.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := State{
		Phase:    e.phase,
		Turns:    e.transcript.Len(),
		MaxTurns: e.cfg.MaxTurns,
		Opener:   e.cfg.Opener,
		Reason:   e.reason,
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}

// Transcript returns an ordered copy of the turns appended so far. The copy
// is retrievable in every phase, including Failed.
func (e *Engine) Transcript() []Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transcript.View()
}

func (e *Engine) resultLocked(turn *Turn) StepResult {
	return StepResult{
		Turn:   turn,
		Phase:  e.phase,
		Turns:  e.transcript.Len(),
		Reason: e.reason,
	}
}

func (e *Engine) matchesEnding(content string) bool {
	lowered := strings.ToLower(content)
	for _, phrase := range e.endings {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
