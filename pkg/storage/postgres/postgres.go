// Package postgres provides a PostgreSQL implementation of
// transport.ExecutionStore. It uses pgx/v5 for connection pooling and
// embedded SQL migrations for the schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/debug"
	"github.com/rhuss/runcode/pkg/storage"
	"github.com/rhuss/runcode/pkg/transport"
)

const selectColumns = `id, tenant_id, session_id, code_hash, code, output, status,
	backend, sandbox_id, duration_ms, image_count, truncated, created_at`

// Store is a PostgreSQL-backed ExecutionStore.
type Store struct {
	pool      *pgxpool.Pool
	retention time.Duration
}

var _ transport.ExecutionStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, retention: cfg.Retention}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveExecution inserts a record. The tenant from the context overrides
// rec.TenantID when set.
func (s *Store) SaveExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	tenantID := storage.Tenant(ctx)
	if tenantID == "" {
		tenantID = rec.TenantID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (
			id, tenant_id, session_id, code_hash, code, output, status,
			backend, sandbox_id, duration_ms, image_count, truncated, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		rec.ID, tenantID, rec.SessionID, rec.CodeHash, rec.Code, rec.Output, string(rec.Status),
		rec.Backend, nullString(rec.SandboxID), rec.DurationMs, rec.ImageCount, rec.Truncated, rec.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// GetExecution retrieves a record by ID, scoped by tenant.
func (s *Store) GetExecution(ctx context.Context, id string) (*api.ExecutionRecord, error) {
	query := "SELECT " + selectColumns + " FROM executions WHERE id = $1"
	args := []any{id}
	if tenantID := storage.Tenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return rec, nil
}

// DeleteExecution removes a record by ID, scoped by tenant.
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	query := "DELETE FROM executions WHERE id = $1"
	args := []any{id}
	if tenantID := storage.Tenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListExecutions returns a page of records filtered by tenant and session.
// The After cursor is resolved to its (created_at, id) position.
func (s *Store) ListExecutions(ctx context.Context, opts transport.ListOptions) (*api.ExecutionList, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if tenantID := storage.Tenant(ctx); tenantID != "" {
		where = append(where, "tenant_id = "+arg(tenantID))
	}
	if opts.SessionID != "" {
		where = append(where, "session_id = "+arg(opts.SessionID))
	}

	asc := opts.Order == "asc"
	if opts.After != "" {
		cmp := "<"
		if asc {
			cmp = ">"
		}
		p := arg(opts.After)
		where = append(where, fmt.Sprintf(
			"(created_at, id) %s (SELECT created_at, id FROM executions WHERE id = %s)", cmp, p))
	}

	query := "SELECT " + selectColumns + " FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if asc {
		query += " ORDER BY created_at ASC, id ASC"
	} else {
		query += " ORDER BY created_at DESC, id DESC"
	}
	limit := opts.EffectiveLimit()
	query += " LIMIT " + arg(limit+1)

	debug.Log("storage", "list executions", "session", opts.SessionID, "after", opts.After, "limit", limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	result := &api.ExecutionList{Object: "list", Data: []*api.ExecutionRecord{}}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		result.Data = append(result.Data, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}

	if len(result.Data) > limit {
		result.HasMore = true
		result.Data = result.Data[:limit]
	}
	if n := len(result.Data); n > 0 {
		result.FirstID = result.Data[0].ID
		result.LastID = result.Data[n-1].ID
	}
	return result, nil
}

// Prune deletes records older than the configured retention and returns
// the number removed. It does nothing when retention is zero.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	result, err := s.pool.Exec(ctx,
		"DELETE FROM executions WHERE created_at < $1",
		time.Now().Add(-s.retention),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning executions: %w", err)
	}
	return result.RowsAffected(), nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*api.ExecutionRecord, error) {
	var (
		rec       api.ExecutionRecord
		status    string
		sandboxID *string
	)
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.SessionID, &rec.CodeHash, &rec.Code, &rec.Output, &status,
		&rec.Backend, &sandboxID, &rec.DurationMs, &rec.ImageCount, &rec.Truncated, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Object = "execution"
	rec.Status = api.ExecutionStatus(status)
	if sandboxID != nil {
		rec.SandboxID = *sandboxID
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKey reports a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
