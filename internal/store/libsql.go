package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/pedbender123/repforce-web-sub002/internal/validation"
	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
//
// Trail documents are stored as JSON blobs; a handful of columns are
// extracted for querying. The is_active and timestamp columns are
// authoritative over the copies inside the document, since SetActive
// flips the column without rewriting the blob.
type LibSQLStore struct {
	db        *sql.DB
	documents *validation.DocumentValidator
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	documents, err := validation.NewDocumentValidator()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("compile trail schema: %w", err)
	}

	return &LibSQLStore{db: db, documents: documents}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations and returns the names of
// the ones it applied.
func (s *LibSQLStore) Migrate(ctx context.Context) ([]string, error) {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Trails ---

// SaveTrail validates and upserts a trail definition. Invalid trails are
// rejected and never reach the database; warnings do not block the save.
func (s *LibSQLStore) SaveTrail(ctx context.Context, trail *schema.Trail) error {
	if trail == nil || trail.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "trail id is required")
	}
	if result := validation.ValidateTrail(trail); !result.Valid() {
		return result.ToError()
	}
	if err := s.documents.ValidateDocument(trail); err != nil {
		return err
	}

	now := time.Now().UTC()
	if trail.CreatedAt.IsZero() {
		trail.CreatedAt = now
	}
	trail.UpdatedAt = now

	doc, err := json.Marshal(trail)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal trail: %v", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trails (id, tenant_id, name, trigger_type, document, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   tenant_id=excluded.tenant_id, name=excluded.name,
		   trigger_type=excluded.trigger_type, document=excluded.document,
		   is_active=excluded.is_active, updated_at=excluded.updated_at`,
		trail.ID, trail.TenantID, trail.Name, string(trail.TriggerType),
		string(doc), boolInt(trail.IsActive), trail.CreatedAt, trail.UpdatedAt,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "save trail: %v", err)
	}
	return nil
}

func (s *LibSQLStore) GetTrail(ctx context.Context, id string) (*schema.Trail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document, is_active, created_at, updated_at FROM trails WHERE id = ?`, id,
	)
	trail, err := scanTrail(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("trail", id)
	}
	if err != nil {
		return nil, err
	}
	return trail, nil
}

func (s *LibSQLStore) ListTrails(ctx context.Context, filter TrailFilter) ([]*schema.Trail, error) {
	var where []string
	var args []any

	if filter.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, string(filter.TriggerType))
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}

	query := "SELECT document, is_active, created_at, updated_at FROM trails"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trails []*schema.Trail
	for rows.Next() {
		trail, err := scanTrail(rows.Scan)
		if err != nil {
			return nil, err
		}
		trails = append(trails, trail)
	}
	return trails, rows.Err()
}

func (s *LibSQLStore) DeleteTrail(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trails WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "trail", id)
}

// SetActive flips the activation flag without touching the stored document.
func (s *LibSQLStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trails SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "trail", id)
}

// ListScheduled returns every active SCHEDULER trail. It is the feed for
// the cron scheduler's tick loop.
func (s *LibSQLStore) ListScheduled(ctx context.Context) ([]*schema.Trail, error) {
	return s.ListTrails(ctx, TrailFilter{
		TriggerType: schema.TriggerScheduler,
		ActiveOnly:  true,
	})
}

// --- Runs ---

// SaveRun persists a finished execution trace. Traces are immutable once
// written; re-saving the same run id is a conflict.
func (s *LibSQLStore) SaveRun(ctx context.Context, trace *schema.ExecutionTrace) error {
	if trace == nil || trace.RunID == "" {
		return schema.NewError(schema.ErrCodeValidation, "run id is required")
	}
	blob, err := json.Marshal(trace)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal trace: %v", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, trail_id, status, trace, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		trace.RunID, trace.TrailID, string(trace.Status), string(blob),
		trace.StartedAt, trace.CompletedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return schema.NewErrorf(schema.ErrCodeConflict, "run %q already recorded", trace.RunID)
		}
		return schema.NewErrorf(schema.ErrCodeStore, "save run: %v", err)
	}
	return nil
}

func (s *LibSQLStore) GetRun(ctx context.Context, runID string) (*schema.ExecutionTrace, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT trace FROM runs WHERE id = ?`, runID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", runID)
	}
	if err != nil {
		return nil, err
	}
	trace := &schema.ExecutionTrace{}
	if err := json.Unmarshal([]byte(blob), trace); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "unmarshal trace: %v", err)
	}
	return trace, nil
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*schema.ExecutionTrace, error) {
	var where []string
	var args []any

	if filter.TrailID != "" {
		where = append(where, "trail_id = ?")
		args = append(args, filter.TrailID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT trace FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var traces []*schema.ExecutionTrace
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		trace := &schema.ExecutionTrace{}
		if err := json.Unmarshal([]byte(blob), trace); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "unmarshal trace: %v", err)
		}
		traces = append(traces, trace)
	}
	return traces, rows.Err()
}

// --- Helpers ---

// scanTrail decodes a trail row. The lifecycle columns win over whatever
// the document carries.
func scanTrail(scan func(dest ...any) error) (*schema.Trail, error) {
	var (
		doc                  string
		active               int
		createdAt, updatedAt time.Time
	)
	if err := scan(&doc, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	trail := &schema.Trail{}
	if err := json.Unmarshal([]byte(doc), trail); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "unmarshal trail: %v", err)
	}
	trail.IsActive = active != 0
	trail.CreatedAt = createdAt
	trail.UpdatedAt = updatedAt
	return trail, nil
}

func storeNotFound(resource, id string) *schema.TrailError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
