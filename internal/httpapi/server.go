package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/gmarchetti/consultsim/internal/casebook"
	"github.com/gmarchetti/consultsim/internal/config"
	"github.com/gmarchetti/consultsim/internal/observability"
	"github.com/gmarchetti/consultsim/internal/persona"
	"github.com/gmarchetti/consultsim/internal/run"
	"github.com/gmarchetti/consultsim/internal/speech"
	"github.com/gmarchetti/consultsim/internal/store"
)

type Server struct {
	cfg      config.Config
	runs     *run.Manager
	archive  store.Store
	personas *persona.MemoryStore
	cases    *casebook.MemoryStore
	synth    speech.Synthesizer
	metrics  *observability.Metrics
	hub      *watchHub
	upgrader websocket.Upgrader
}

func New(cfg config.Config, runs *run.Manager, archive store.Store, personas *persona.MemoryStore, cases *casebook.MemoryStore, synth speech.Synthesizer, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		runs:     runs,
		archive:  archive,
		personas: personas,
		cases:    cases,
		synth:    synth,
		metrics:  metrics,
		hub:      newWatchHub(metrics),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless the deployment opts out. Non-browser
				// clients omit Origin and are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/runs", s.handleCreateRun)
	r.Get("/v1/runs", s.handleListRuns)
	r.Get("/v1/runs/{id}", s.handleGetRun)
	r.Post("/v1/runs/{id}/step", s.handleStep)
	r.Post("/v1/runs/{id}/pause", s.handlePause)
	r.Post("/v1/runs/{id}/resume", s.handleResume)
	r.Post("/v1/runs/{id}/stop", s.handleStop)
	r.Get("/v1/runs/{id}/transcript", s.handleTranscript)
	r.Get("/v1/runs/{id}/audio", s.handleConsumeAudio)
	r.Get("/v1/runs/{id}/export", s.handleExportRun)
	r.Get("/v1/runs/{id}/watch", s.handleWatch)

	r.Get("/v1/archive", s.handleListArchive)
	r.Get("/v1/archive/{id}", s.handleGetArchived)
	r.Get("/v1/archive/{id}/export", s.handleExportArchived)

	r.Get("/v1/personas", s.handleListPersonas)
	r.Get("/v1/cases", s.handleListCases)
	r.Post("/v1/speech/preview", s.handleSpeechPreview)

	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"synthesizer": s.synth.Name(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ready",
		"active_runs": s.runs.ActiveCount(),
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.LatencySnapshot())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
