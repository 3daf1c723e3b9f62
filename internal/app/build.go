// Package app assembles the service from its parts so the binary's main
// stays a thin shell around signal handling.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/gmarchetti/consultsim/internal/casebook"
	"github.com/gmarchetti/consultsim/internal/config"
	"github.com/gmarchetti/consultsim/internal/httpapi"
	"github.com/gmarchetti/consultsim/internal/observability"
	"github.com/gmarchetti/consultsim/internal/persona"
	"github.com/gmarchetti/consultsim/internal/run"
	"github.com/gmarchetti/consultsim/internal/speech"
	"github.com/gmarchetti/consultsim/internal/store"
)

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Runs    *run.Manager
	Archive store.Store
	Metrics *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	archive, err := store.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("run archive init failed: %w", err)
	}

	synth, err := speech.New(cfg.SpeechProvider, cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL)
	if err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("synthesizer init failed: %w", err)
	}
	log.Printf("speech synthesizer: %s", synth.Name())

	personas := persona.NewMemoryStore(persona.Seed())
	cases := casebook.NewMemoryStore(casebook.Seed())

	runs := run.NewManager(personas, cases, cfg.Keys(), run.Defaults{
		MaxTurns:       cfg.DefaultMaxTurns,
		Provider:       cfg.LLMProvider,
		ClinicianModel: cfg.ClinicianModel,
		PatientModel:   cfg.PatientModel,
	}, cfg.RunRetention)
	runs.SetExpireHook(func(_ *run.Run) {
		metrics.RunEvents.WithLabelValues("expired").Inc()
		metrics.ActiveRuns.Set(float64(runs.ActiveCount()))
	})

	api := httpapi.New(cfg, runs, archive, personas, cases, synth, metrics)

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Runs:    runs,
		Archive: archive,
		Metrics: metrics,
		Cleanup: archive.Close,
	}, nil
}
