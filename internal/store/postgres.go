package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gmarchetti/consultsim/internal/sim"
)

// PostgresStore archives finished runs in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			case_title TEXT NOT NULL,
			clinician_name TEXT NOT NULL,
			clinician_model TEXT NOT NULL,
			patient_name TEXT NOT NULL,
			patient_model TEXT NOT NULL,
			provider TEXT NOT NULL,
			phase TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS run_turns (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			sequence INT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			spoken_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (run_id, sequence)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, record RunRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, case_id, case_title, clinician_name, clinician_model, patient_name, patient_model, provider, phase, reason, created_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET phase = EXCLUDED.phase, reason = EXCLUDED.reason, finished_at = EXCLUDED.finished_at`,
		record.ID,
		record.CaseID,
		record.CaseTitle,
		record.ClinicianName,
		record.ClinicianModel,
		record.PatientName,
		record.PatientModel,
		record.Provider,
		record.Phase,
		record.Reason,
		record.CreatedAt,
		nullableTime(record.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM run_turns WHERE run_id = $1`, record.ID); err != nil {
		return fmt.Errorf("clear run turns: %w", err)
	}
	for _, turn := range record.Turns {
		_, err := tx.Exec(ctx,
			`INSERT INTO run_turns (run_id, sequence, role, content, spoken_at) VALUES ($1, $2, $3, $4, $5)`,
			record.ID, turn.Sequence, string(turn.Role), turn.Content, turn.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("save turn %d: %w", turn.Sequence, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var record RunRecord
	var finished *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT id, case_id, case_title, clinician_name, clinician_model, patient_name, patient_model, provider, phase, reason, created_at, finished_at
		 FROM runs WHERE id = $1`, id,
	).Scan(
		&record.ID, &record.CaseID, &record.CaseTitle,
		&record.ClinicianName, &record.ClinicianModel,
		&record.PatientName, &record.PatientModel,
		&record.Provider, &record.Phase, &record.Reason,
		&record.CreatedAt, &finished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunRecord{}, ErrRunNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("query run: %w", err)
	}
	if finished != nil {
		record.FinishedAt = *finished
	}

	rows, err := s.pool.Query(ctx,
		`SELECT sequence, role, content, spoken_at FROM run_turns WHERE run_id = $1 ORDER BY sequence`, id,
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("query run turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var turn sim.Turn
		var role string
		if err := rows.Scan(&turn.Sequence, &role, &turn.Content, &turn.Timestamp); err != nil {
			return RunRecord{}, fmt.Errorf("scan turn row: %w", err)
		}
		turn.Role = sim.Role(role)
		record.Turns = append(record.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return RunRecord{}, fmt.Errorf("iterate turn rows: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, case_id, case_title, clinician_name, clinician_model, patient_name, patient_model, provider, phase, reason, created_at, finished_at
		 FROM runs ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	records := make([]RunRecord, 0, limit)
	for rows.Next() {
		var record RunRecord
		var finished *time.Time
		if err := rows.Scan(
			&record.ID, &record.CaseID, &record.CaseTitle,
			&record.ClinicianName, &record.ClinicianModel,
			&record.PatientName, &record.PatientModel,
			&record.Provider, &record.Phase, &record.Reason,
			&record.CreatedAt, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if finished != nil {
			record.FinishedAt = *finished
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
