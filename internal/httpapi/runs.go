package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gmarchetti/consultsim/internal/export"
	"github.com/gmarchetti/consultsim/internal/observability"
	"github.com/gmarchetti/consultsim/internal/protocol"
	"github.com/gmarchetti/consultsim/internal/provider"
	"github.com/gmarchetti/consultsim/internal/run"
	"github.com/gmarchetti/consultsim/internal/sim"
	"github.com/gmarchetti/consultsim/internal/speech"
	"github.com/gmarchetti/consultsim/internal/store"
)

type runResponse struct {
	ID        string          `json:"id"`
	CaseID    string          `json:"case_id"`
	CaseTitle string          `json:"case_title"`
	Clinician run.Participant `json:"clinician"`
	Patient   run.Participant `json:"patient"`
	State     sim.State       `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

func runToResponse(r *run.Run) runResponse {
	return runResponse{
		ID:        r.ID,
		CaseID:    r.CaseID,
		CaseTitle: r.CaseTitle,
		Clinician: r.Clinician,
		Patient:   r.Patient,
		State:     r.Engine.Snapshot(),
		CreatedAt: r.CreatedAt,
	}
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var params run.CreateParams
	if err := decodeJSON(r, &params); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	created, err := s.runs.Create(params)
	if err != nil {
		var cfgErr *sim.ConfigError
		if errors.As(err, &cfgErr) {
			respondError(w, http.StatusBadRequest, "invalid_config", cfgErr.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	s.metrics.RunEvents.WithLabelValues("created").Inc()
	s.metrics.ActiveRuns.Set(float64(s.runs.ActiveCount()))
	respondJSON(w, http.StatusCreated, runToResponse(created))
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	runs := s.runs.List()
	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, runToResponse(r))
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	target, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, runToResponse(target))
}

type stepResponse struct {
	Turn       *sim.Turn `json:"turn,omitempty"`
	Phase      sim.Phase `json:"phase"`
	Turns      int       `json:"turns"`
	Reason     string    `json:"reason,omitempty"`
	AudioSeq   int       `json:"audio_seq,omitempty"`
	AudioError string    `json:"audio_error,omitempty"`
}

// handleStep advances the run by exactly one turn and performs the driver-side
// glue around the engine: synthesis into the handoff slot, watcher broadcast,
// and archival once the run turns terminal.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	target, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	before := target.Engine.Snapshot().Phase
	started := time.Now()
	result, err := target.Engine.Step(r.Context())
	s.metrics.ObserveStep(time.Since(started))

	if err != nil {
		switch {
		case errors.Is(err, sim.ErrStepInFlight):
			respondError(w, http.StatusConflict, "step_in_flight", err.Error())
			return
		case errors.Is(err, sim.ErrNotStarted):
			respondError(w, http.StatusConflict, "not_started", err.Error())
			return
		}
		var genErr *sim.GenerationError
		if errors.As(err, &genErr) {
			retryable := retryableGeneration(genErr)
			s.metrics.ProviderErrors.WithLabelValues(providerOf(genErr), strconv.FormatBool(retryable)).Inc()
			s.hub.Broadcast(target.ID, protocol.NewRunError(target.ID, string(genErr.Role), retryable, genErr.Error()))
			s.afterPhaseChange(target, before, result.Phase, result.Reason)
			respondError(w, http.StatusBadGateway, "generation_failed", genErr.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "step_failed", err.Error())
		return
	}

	resp := stepResponse{
		Turn:   result.Turn,
		Phase:  result.Phase,
		Turns:  result.Turns,
		Reason: result.Reason,
	}

	if result.Turn != nil {
		s.hub.Broadcast(target.ID, protocol.NewTurnAppended(
			target.ID, result.Turn.Sequence, string(result.Turn.Role), result.Turn.Content, result.Turns,
		))
		seq, audioErr := s.synthesizeTurn(r, target, *result.Turn)
		if audioErr != nil {
			resp.AudioError = audioErr.Error()
		} else {
			resp.AudioSeq = seq
		}
	}

	s.afterPhaseChange(target, before, result.Phase, result.Reason)
	respondJSON(w, http.StatusOK, resp)
}

// synthesizeTurn renders the turn's audio and parks it in the run's handoff
// slot. Synthesis failures never fail the step; the turn already happened.
func (s *Server) synthesizeTurn(r *http.Request, target *run.Run, turn sim.Turn) (int, error) {
	voice := target.Clinician.Voice
	if turn.Role == sim.RolePatient {
		voice = target.Patient.Voice
	}

	started := time.Now()
	payload, format, err := s.synth.Synthesize(r.Context(), turn.Content, voice)
	s.metrics.ObserveStage(observability.StageSynthesize, time.Since(started))
	if err != nil {
		retryable := false
		var synthErr *speech.Error
		if errors.As(err, &synthErr) {
			retryable = synthErr.Retryable
		}
		s.metrics.AudioHandoffs.WithLabelValues("failed").Inc()
		s.hub.Broadcast(target.ID, protocol.NewRunError(target.ID, string(turn.Role), retryable, fmt.Sprintf("synthesis: %v", err)))
		return 0, err
	}

	target.Handoff.Offer(turn.Sequence, payload, format)
	s.metrics.AudioHandoffs.WithLabelValues("offered").Inc()
	s.hub.Broadcast(target.ID, protocol.NewAudioReady(target.ID, turn.Sequence, format))
	return turn.Sequence, nil
}

// afterPhaseChange broadcasts lifecycle transitions and archives the run the
// first time it is observed terminal.
func (s *Server) afterPhaseChange(target *run.Run, before, after sim.Phase, reason string) {
	if before == after {
		return
	}
	s.hub.Broadcast(target.ID, protocol.NewPhaseChanged(target.ID, string(after), reason))
	if !after.Terminal() {
		return
	}
	target.MarkFinished(time.Now().UTC())
	s.metrics.RunEvents.WithLabelValues(string(after)).Inc()
	s.metrics.ActiveRuns.Set(float64(s.runs.ActiveCount()))

	// Archive on a fresh context so a client disconnect cannot abort the save.
	record := recordFromRun(target)
	if err := s.archive.SaveRun(context.Background(), record); err != nil {
		s.hub.Broadcast(target.ID, protocol.NewRunError(target.ID, "", true, fmt.Sprintf("archive: %v", err)))
		return
	}
	target.SetStorageID(record.ID)
	s.metrics.RunEvents.WithLabelValues("archived").Inc()
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.applyControl(w, r, func(target *run.Run) { target.Engine.Pause() })
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.applyControl(w, r, func(target *run.Run) { target.Engine.Resume() })
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.applyControl(w, r, func(target *run.Run) { target.Engine.Stop() })
}

func (s *Server) applyControl(w http.ResponseWriter, r *http.Request, control func(*run.Run)) {
	target, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	before := target.Engine.Snapshot().Phase
	control(target)
	state := target.Engine.Snapshot()
	s.afterPhaseChange(target, before, state.Phase, state.Reason)
	respondJSON(w, http.StatusOK, runToResponse(target))
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	target, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"run_id": target.ID,
		"turns":  target.Engine.Transcript(),
	})
}

// handleConsumeAudio hands the pending clip to the caller when it matches the
// requested turn sequence. The slot is cleared either way; a stale clip is
// reported as gone rather than played against the wrong turn.
func (s *Server) handleConsumeAudio(w http.ResponseWriter, r *http.Request) {
	target, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	seq, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("seq")))
	if err != nil || seq <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_seq", "query parameter seq must be a positive integer")
		return
	}

	payload, format := target.Handoff.Consume(seq)
	if payload == nil {
		s.metrics.AudioHandoffs.WithLabelValues("missed").Inc()
		respondError(w, http.StatusGone, "audio_unavailable", "no audio pending for that turn")
		return
	}
	s.metrics.AudioHandoffs.WithLabelValues("consumed").Inc()
	w.Header().Set("Content-Type", format)
	w.Header().Set("X-Turn-Sequence", strconv.Itoa(seq))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	target, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	s.writeExport(w, r.URL.Query().Get("format"), recordFromRun(target))
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.archive.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "archive_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": records})
}

func (s *Server) handleGetArchived(w http.ResponseWriter, r *http.Request) {
	record, ok := s.lookupArchived(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleExportArchived(w http.ResponseWriter, r *http.Request) {
	record, ok := s.lookupArchived(w, r)
	if !ok {
		return
	}
	s.writeExport(w, r.URL.Query().Get("format"), record)
}

func (s *Server) writeExport(w http.ResponseWriter, format string, record store.RunRecord) {
	payload, contentType, filename, err := export.Render(format, record)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_format", err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*run.Run, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_run_id", "missing run id")
		return nil, false
	}
	target, err := s.runs.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "run_not_found", err.Error())
		return nil, false
	}
	return target, true
}

func (s *Server) lookupArchived(w http.ResponseWriter, r *http.Request) (store.RunRecord, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_run_id", "missing run id")
		return store.RunRecord{}, false
	}
	record, err := s.archive.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "run_not_found", err.Error())
		return store.RunRecord{}, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "archive_unavailable", err.Error())
		return store.RunRecord{}, false
	}
	return record, true
}

func recordFromRun(target *run.Run) store.RunRecord {
	state := target.Engine.Snapshot()
	return store.RunRecord{
		ID:             target.ID,
		CaseID:         target.CaseID,
		CaseTitle:      target.CaseTitle,
		ClinicianName:  target.Clinician.Name,
		ClinicianModel: target.Clinician.Model,
		PatientName:    target.Patient.Name,
		PatientModel:   target.Patient.Model,
		Provider:       target.Clinician.Provider,
		Phase:          string(state.Phase),
		Reason:         state.Reason,
		Turns:          target.Engine.Transcript(),
		CreatedAt:      target.CreatedAt,
		FinishedAt:     target.FinishedAt(),
	}
}

func retryableGeneration(genErr *sim.GenerationError) bool {
	var provErr *provider.Error
	if errors.As(genErr, &provErr) {
		return provErr.Retryable
	}
	return false
}

func providerOf(genErr *sim.GenerationError) string {
	var provErr *provider.Error
	if errors.As(genErr, &provErr) {
		return provErr.Provider
	}
	return "unknown"
}
