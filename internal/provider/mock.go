package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Mock provides deterministic local replies when no backend key is
// configured, and scripted behavior for tests.
type Mock struct {
	mu     sync.Mutex
	script []string
	calls  int
	failAt int
	err    error
}

func NewMock() *Mock { return &Mock{} }

// NewScriptedMock replies with the given lines in order, repeating the last
// line once the script is exhausted.
func NewScriptedMock(lines ...string) *Mock {
	return &Mock{script: lines}
}

// FailAt makes the n-th Generate call (1-based) fail with err. Zero disables
// failure injection.
func (p *Mock) FailAt(n int, err error) *Mock {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAt = n
	if err == nil {
		err = errors.New("injected failure")
	}
	p.err = err
	return p
}

func (p *Mock) Name() string { return "mock" }

// Calls reports how many Generate calls the mock has served.
func (p *Mock) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *Mock) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", &Error{Provider: p.Name(), Retryable: true, Err: ctx.Err()}
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failAt > 0 && p.calls == p.failAt {
		return "", &Error{Provider: p.Name(), Err: p.err}
	}

	if len(p.script) > 0 {
		idx := p.calls - 1
		if idx >= len(p.script) {
			idx = len(p.script) - 1
		}
		return p.script[idx], nil
	}
	return fmt.Sprintf("(simulated %s reply %d, %d prior messages)", req.Model, p.calls, len(req.Messages)), nil
}
