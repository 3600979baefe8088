package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Execer is the slice of *sql.DB the audit writer needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ImportRun summarizes one committed stock import for the audit table.
type ImportRun struct {
	FileName  string
	TotalRows int
	Updated   int
	Inserted  int
	Failed    int
	Warnings  int
	SessionID string

	// ActorUserID is reserved for when the API grows an authenticated
	// surface. The service runs without auth today, so every row stores
	// NULL here.
	ActorUserID string
}

// RecordImportRun appends one audit row per commit. Callers treat failures
// as best-effort: a lost audit row must not fail the import itself.
func RecordImportRun(ctx context.Context, store Execer, run ImportRun) error {
	_, err := store.ExecContext(ctx, `
		INSERT INTO import_runs (
			session_id,
			file_name,
			total_rows,
			updated_count,
			inserted_count,
			failed_count,
			warning_count,
			actor_user_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, run.SessionID, run.FileName, run.TotalRows, run.Updated, run.Inserted, run.Failed, run.Warnings, run.ActorUserID)
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}
