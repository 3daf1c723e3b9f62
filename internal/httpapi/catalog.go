package httpapi

import (
	"net/http"
	"strings"
)

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"personas": s.personas.List()})
}

func (s *Server) handleListCases(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"cases": s.cases.List()})
}

type speechPreviewRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// handleSpeechPreview synthesizes a short sample outside any run, so voices
// can be auditioned before binding them to a persona.
func (s *Server) handleSpeechPreview(w http.ResponseWriter, r *http.Request) {
	var req speechPreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = "Good morning, thanks for coming in today."
	}
	if len(text) > 400 {
		respondError(w, http.StatusBadRequest, "text_too_long", "preview text is limited to 400 characters")
		return
	}

	payload, format, err := s.synth.Synthesize(r.Context(), text, req.Voice)
	if err != nil {
		respondError(w, http.StatusBadGateway, "synthesis_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", format)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
