// Package pgstore provides a PostgreSQL implementation of triage.Store.
// The table is append-only: rows are inserted once and never updated or
// deleted, which is what makes the audit trail trustworthy across runs.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/triage"
)

var tracer = otel.Tracer("github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists audit records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store. The pool stays owned by
// the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const recordColumns = `id, run_id, incident_id, decision_hash, action, comment, tags,
	outcome, attempts, error, created_at`

// Append inserts one audit record. INSERT only; the primary key makes
// accidental re-appends of the same record a hard error instead of an
// overwrite.
func (s *Store) Append(ctx context.Context, rec *triage.Record) error {
	ctx, span := tracer.Start(ctx, "pgstore.Append", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	tagsJSON, err := json.Marshal(rec.Decision.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	query := `INSERT INTO action_records (` + recordColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.RunID, rec.IncidentID, rec.DecisionHash,
		string(rec.Decision.Action), rec.Decision.Comment, tagsJSON,
		string(rec.Outcome), rec.Attempts, rec.Error, rec.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Find retrieves the dedup witness for (incident id, decision hash):
// an applied record if one exists, otherwise the latest record for the pair.
func (s *Store) Find(ctx context.Context, incidentID, decisionHash string) (*triage.Record, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Find", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM action_records
		WHERE incident_id = $1 AND decision_hash = $2
		ORDER BY (outcome = 'applied') DESC, created_at DESC
		LIMIT 1`

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, incidentID, decisionHash))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	return rec, true, nil
}

// ListByIncident returns the incident's audit trail in append order.
func (s *Store) ListByIncident(ctx context.Context, incidentID string) ([]*triage.Record, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListByIncident", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + recordColumns + ` FROM action_records
		WHERE incident_id = $1 ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, incidentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []*triage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*triage.Record, error) {
	var (
		rec      triage.Record
		action   string
		outcome  string
		tagsJSON []byte
	)

	err := row.Scan(
		&rec.ID, &rec.RunID, &rec.IncidentID, &rec.DecisionHash,
		&action, &rec.Decision.Comment, &tagsJSON,
		&outcome, &rec.Attempts, &rec.Error, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	rec.Decision.Action = triage.Action(action)
	rec.Outcome = triage.Outcome(outcome)

	if err := json.Unmarshal(tagsJSON, &rec.Decision.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return &rec, nil
}
