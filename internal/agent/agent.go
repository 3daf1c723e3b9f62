// Package agent binds a persona to a model provider and produces utterances
// for one role of a consultation run.
package agent

import (
	"context"
	"strings"

	"github.com/gmarchetti/consultsim/internal/persona"
	"github.com/gmarchetti/consultsim/internal/provider"
	"github.com/gmarchetti/consultsim/internal/sim"
)

// Length caps per role; a reply over the cap triggers a single revision
// request before it is accepted as-is.
const (
	clinicianMaxSentences = 6
	clinicianMaxChars     = 1200
	patientMaxSentences   = 3
	patientMaxChars       = 800
)

// RoleAgent implements sim.Producer. It keeps no state between calls beyond
// its persona, backend reference and the fixed case context.
type RoleAgent struct {
	persona  persona.Persona
	backend  provider.Provider
	model    string
	caseText string
}

// New builds a role agent. caseText is the clinical presentation handed to
// the opener on the first turn; pass "" for the responding role.
func New(p persona.Persona, backend provider.Provider, model, caseText string) *RoleAgent {
	return &RoleAgent{
		persona:  p,
		backend:  backend,
		model:    model,
		caseText: caseText,
	}
}

func (a *RoleAgent) Role() sim.Role { return a.persona.Role }

func (a *RoleAgent) EndingPhrases() []string { return a.persona.EndingPhrases }

// Persona returns the bound persona for display and persistence metadata.
func (a *RoleAgent) Persona() persona.Persona { return a.persona }

// Backend returns the bound provider's name for run metadata.
func (a *RoleAgent) Backend() string { return a.backend.Name() }

// Model returns the configured model identifier.
func (a *RoleAgent) Model() string { return a.model }

// Produce generates the next utterance for this role given the transcript so
// far. It makes exactly one generation call, plus at most one revision call
// when the reply exceeds the role's length caps. Provider failures are
// wrapped as *sim.GenerationError without masking the cause.
func (a *RoleAgent) Produce(ctx context.Context, view []sim.Turn) (string, error) {
	req := provider.GenerateRequest{
		SystemPrompt: a.persona.SystemPrompt,
		Messages:     a.messageView(view),
		UserMessage:  a.userMessage(view),
		Model:        a.model,
		Temperature:  a.persona.Temperature,
		MaxTokens:    a.persona.MaxTokens,
	}

	text, err := a.backend.Generate(ctx, req)
	if err != nil {
		return "", &sim.GenerationError{Role: a.persona.Role, Err: err}
	}

	if a.withinCaps(text) {
		return strings.TrimSpace(text), nil
	}

	req.UserMessage = a.revisionPrompt()
	revised, err := a.backend.Generate(ctx, req)
	if err != nil || strings.TrimSpace(revised) == "" {
		// Revision is best effort; the original reply stands.
		return strings.TrimSpace(text), nil
	}
	return strings.TrimSpace(revised), nil
}

// messageView formats prior turns from this role's perspective: own turns
// are assistant messages, the peer's are user messages.
func (a *RoleAgent) messageView(view []sim.Turn) []provider.Message {
	if len(view) == 0 {
		return nil
	}
	out := make([]provider.Message, 0, len(view))
	for _, turn := range view {
		role := provider.MessageRoleUser
		if turn.Role == a.persona.Role {
			role = provider.MessageRoleAssistant
		}
		out = append(out, provider.Message{Role: role, Content: turn.Content})
	}
	return out
}

func (a *RoleAgent) userMessage(view []sim.Turn) string {
	if len(view) == 0 {
		opening := "Open the visit now."
		if a.persona.Role == sim.RoleClinician {
			opening = "Brief greeting (one sentence), then immediately cover the introduction and results."
		}
		if a.caseText != "" {
			return opening + "\n\n" + a.caseText
		}
		return opening
	}
	if a.persona.Role == sim.RoleClinician {
		return clinicianGuidance(countRole(view, sim.RoleClinician))
	}
	return patientGuidance
}

func (a *RoleAgent) revisionPrompt() string {
	if a.persona.Role == sim.RoleClinician {
		return "Revise your previous answer to 2-5 concise sentences. Respond directly to the last point. No lists, no headers."
	}
	return "Revise your previous answer to 1-3 short sentences. Respond directly to the last point. No lists, no headers."
}

func (a *RoleAgent) withinCaps(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	maxSentences, maxChars := patientMaxSentences, patientMaxChars
	if a.persona.Role == sim.RoleClinician {
		maxSentences, maxChars = clinicianMaxSentences, clinicianMaxChars
	}
	if len(trimmed) > maxChars {
		return false
	}
	return sentenceCount(trimmed) <= maxSentences
}

func sentenceCount(text string) int {
	count := 0
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if strings.TrimSpace(part) != "" {
			count++
		}
	}
	return count
}

func countRole(view []sim.Turn, role sim.Role) int {
	n := 0
	for _, turn := range view {
		if turn.Role == role {
			n++
		}
	}
	return n
}
