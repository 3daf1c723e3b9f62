package store

import (
	"context"
	"errors"
	"time"

	"github.com/gmarchetti/consultsim/internal/sim"
)

var ErrRunNotFound = errors.New("stored run not found")

// RunRecord is a finished run flattened for persistence: the configuration
// that produced it, the terminal outcome, and the full transcript.
type RunRecord struct {
	ID             string     `json:"id"`
	CaseID         string     `json:"case_id"`
	CaseTitle      string     `json:"case_title"`
	ClinicianName  string     `json:"clinician_name"`
	ClinicianModel string     `json:"clinician_model"`
	PatientName    string     `json:"patient_name"`
	PatientModel   string     `json:"patient_model"`
	Provider       string     `json:"provider"`
	Phase          string     `json:"phase"`
	Reason         string     `json:"reason"`
	Turns          []sim.Turn `json:"turns"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     time.Time  `json:"finished_at"`
}

// Store persists finished runs. ListRuns returns summaries without
// transcripts; GetRun loads the full record.
type Store interface {
	SaveRun(ctx context.Context, record RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}
