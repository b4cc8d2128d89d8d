// File: internal/transcript/store.go
package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/MissioAI/browserpilot/api/schemas"
)

// PgxIface abstracts the pgx pool so tests can substitute a mock connection.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store persists sessions and their ordered step log in Postgres. It is an
// append-only audit surface; the agent loop never reads it mid-run.
type Store struct {
	log *zap.Logger
	db  PgxIface
}

var _ schemas.TranscriptStore = (*Store)(nil)

// NewStore connects a pgx pool and prepares the schema.
func NewStore(ctx context.Context, logger *zap.Logger, dsn string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to transcript database: %w", err)
	}
	s := NewStoreWithDB(logger, pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// NewStoreWithDB wraps an existing connection; tests pass a pgxmock pool here.
func NewStoreWithDB(logger *zap.Logger, db PgxIface) *Store {
	return &Store{log: logger.Named("transcript"), db: db}
}

// Migrate creates the transcript tables when absent.
func (s *Store) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
    id         UUID PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS steps (
    id           UUID PRIMARY KEY,
    session_id   UUID NOT NULL REFERENCES sessions(id),
    role         TEXT NOT NULL,
    text         TEXT NOT NULL DEFAULT '',
    tool_calls   JSONB,
    tool_results JSONB,
    annotations  JSONB,
    created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_steps_session ON steps (session_id, created_at);`
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to migrate transcript schema: %w", err)
	}
	return nil
}

// CreateSession registers a new session and returns its generated id.
func (s *Store) CreateSession(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx,
		`INSERT INTO sessions (id, name) VALUES ($1, $2)`, id, name)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	s.log.Info("Session created", zap.String("session_id", id), zap.String("name", name))
	return id, nil
}

// Append writes one step to the session's log. Ordering within a session is
// the caller's responsibility; Append itself only guarantees durability.
func (s *Store) Append(ctx context.Context, sessionID string, step schemas.Step) error {
	calls, err := jsoniter.Marshal(step.ToolCalls)
	if err != nil {
		return fmt.Errorf("failed to encode tool calls: %w", err)
	}
	results, err := jsoniter.Marshal(step.ToolResults)
	if err != nil {
		return fmt.Errorf("failed to encode tool results: %w", err)
	}
	annotations, err := jsoniter.Marshal(step.Annotations)
	if err != nil {
		return fmt.Errorf("failed to encode annotations: %w", err)
	}

	createdAt := step.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO steps (id, session_id, role, text, tool_calls, tool_results, annotations, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		step.ID, sessionID, string(step.Role), step.Text, calls, results, annotations, createdAt)
	if err != nil {
		return fmt.Errorf("failed to append step: %w", err)
	}
	return nil
}

// Steps returns a session's log in insertion order, for inspection surfaces.
func (s *Store) Steps(ctx context.Context, sessionID string) ([]schemas.Step, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, role, text, tool_calls, tool_results, annotations, created_at
		 FROM steps WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []schemas.Step
	for rows.Next() {
		var (
			step                      schemas.Step
			role                      string
			calls, results, annotated []byte
		)
		if err := rows.Scan(&step.ID, &role, &step.Text, &calls, &results, &annotated, &step.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		step.SessionID = sessionID
		step.Role = schemas.StepRole(role)
		if len(calls) > 0 {
			if err := jsoniter.Unmarshal(calls, &step.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		if len(results) > 0 {
			if err := jsoniter.Unmarshal(results, &step.ToolResults); err != nil {
				return nil, fmt.Errorf("failed to decode tool results: %w", err)
			}
		}
		if len(annotated) > 0 {
			if err := jsoniter.Unmarshal(annotated, &step.Annotations); err != nil {
				return nil, fmt.Errorf("failed to decode annotations: %w", err)
			}
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
