package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"errbar/domain/core"
	"errbar/domain/stats"
	apperrors "errbar/internal/errors"
	"errbar/ports"
)

// RunLedger records analysis runs in a relational store. Queries are
// written with ? bindvars and rebound, so the same code serves the
// sqlite3 and postgres drivers.
type RunLedger struct {
	db *sqlx.DB
}

// NewRunLedger wraps an open connection
func NewRunLedger(db *sqlx.DB) *RunLedger {
	return &RunLedger{db: db}
}

// Open connects to the store at dsn with the given driver
func Open(driver, dsn string) (*RunLedger, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to open run ledger", err)
	}
	return NewRunLedger(db), nil
}

// Init creates the run history schema when missing
func (l *RunLedger) Init(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			recorded_at TIMESTAMP NOT NULL,
			source TEXT NOT NULL,
			total_groups INTEGER NOT NULL,
			total_indicators INTEGER NOT NULL,
			successful_conversions INTEGER NOT NULL,
			conversion_rate DOUBLE PRECISION NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_comparisons (
			run_id TEXT PRIMARY KEY,
			recorded_at TIMESTAMP NOT NULL,
			total_comparisons INTEGER NOT NULL,
			significant_comparisons INTEGER NOT NULL,
			payload TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.DatabaseError("failed to create run ledger schema", err)
		}
	}
	return nil
}

// RecordRun stores one completed analysis pass. The full result rides
// along as a JSON payload next to the queryable summary columns.
func (l *RunLedger) RecordRun(ctx context.Context, result *stats.RunResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return apperrors.DatabaseError("failed to encode run payload", err)
	}

	s := result.Summary
	query := l.db.Rebind(`
		INSERT INTO runs (run_id, recorded_at, source, total_groups, total_indicators,
			successful_conversions, conversion_rate, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = l.db.ExecContext(ctx, query,
		string(s.RunID), s.StartedAt.Time(), s.Source, s.TotalGroups, s.TotalIndicators,
		s.SuccessfulConversions, s.ConversionRate, string(payload))
	if err != nil {
		return apperrors.DatabaseError("failed to record run", err)
	}
	return nil
}

// RecordComparisons stores the comparison pass of a recorded run
func (l *RunLedger) RecordComparisons(ctx context.Context, runID core.RunID, set *stats.ComparisonSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return apperrors.DatabaseError("failed to encode comparison payload", err)
	}

	query := l.db.Rebind(`
		INSERT INTO run_comparisons (run_id, recorded_at, total_comparisons,
			significant_comparisons, payload)
		VALUES (?, ?, ?, ?, ?)`)
	_, err = l.db.ExecContext(ctx, query,
		string(runID), time.Now(), set.Total, set.Significant, string(payload))
	if err != nil {
		return apperrors.DatabaseError("failed to record comparisons", err)
	}
	return nil
}

// RecentRuns lists recorded runs newest first
func (l *RunLedger) RecentRuns(ctx context.Context, limit int) ([]ports.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := l.db.Rebind(`
		SELECT r.run_id, r.recorded_at, r.source, r.total_groups, r.total_indicators,
			r.successful_conversions, r.conversion_rate,
			COALESCE(c.total_comparisons, 0) AS comparisons
		FROM runs r
		LEFT JOIN run_comparisons c ON c.run_id = r.run_id
		ORDER BY r.recorded_at DESC
		LIMIT ?`)
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list runs", err)
	}
	defer rows.Close()

	var records []ports.RunRecord
	for rows.Next() {
		var (
			runID      string
			recordedAt time.Time
			rec        ports.RunRecord
		)
		if err := rows.Scan(&runID, &recordedAt, &rec.Source, &rec.TotalGroups,
			&rec.TotalIndicators, &rec.SuccessfulConversions, &rec.ConversionRate,
			&rec.Comparisons); err != nil {
			return nil, apperrors.DatabaseError("failed to scan run row", err)
		}
		rec.RunID = core.RunID(runID)
		rec.RecordedAt = core.NewTimestamp(recordedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RunResult loads the full stored result of one run
func (l *RunLedger) RunResult(ctx context.Context, runID core.RunID) (*stats.RunResult, error) {
	var payload string
	query := l.db.Rebind(`SELECT payload FROM runs WHERE run_id = ?`)
	if err := l.db.GetContext(ctx, &payload, query, string(runID)); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("run %s", runID))
		}
		return nil, apperrors.DatabaseError("failed to load run", err)
	}

	var result stats.RunResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, apperrors.DatabaseError("failed to decode run payload", err)
	}
	return &result, nil
}

// RunComparisons loads the stored comparison pass of one run
func (l *RunLedger) RunComparisons(ctx context.Context, runID core.RunID) (*stats.ComparisonSet, error) {
	var payload string
	query := l.db.Rebind(`SELECT payload FROM run_comparisons WHERE run_id = ?`)
	if err := l.db.GetContext(ctx, &payload, query, string(runID)); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("comparisons for run %s", runID))
		}
		return nil, apperrors.DatabaseError("failed to load comparisons", err)
	}

	var set stats.ComparisonSet
	if err := json.Unmarshal([]byte(payload), &set); err != nil {
		return nil, apperrors.DatabaseError("failed to decode comparison payload", err)
	}
	return &set, nil
}

// Close releases the underlying connection pool
func (l *RunLedger) Close() error {
	return l.db.Close()
}

// Ensure RunLedger implements LedgerPort
var _ ports.LedgerPort = (*RunLedger)(nil)
