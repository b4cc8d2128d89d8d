// File: internal/transcript/store_test.go
package transcript

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MissioAI/browserpilot/api/schemas"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for SQL matching.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStoreWithDB(zaptest.NewLogger(t), mock), mock
}

func TestCreateSession(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(flexibleSQLMatcher(`INSERT INTO sessions (id, name) VALUES ($1, $2)`)).
		WithArgs(pgxmock.AnyArg(), "search for cats").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.CreateSession(context.Background(), "search for cats")
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "session id should be a uuid")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSession_PropagatesDBError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(flexibleSQLMatcher(`INSERT INTO sessions`)).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	_, err := store.CreateSession(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAppend(t *testing.T) {
	store, mock := newMockStore(t)

	step := schemas.Step{
		ID:        uuid.NewString(),
		SessionID: "sess-1",
		Role:      schemas.StepAssistant,
		Text:      "Looking at the page.",
		ToolCalls: []schemas.ToolCall{{
			ID: "call-0", Name: "computer",
			Action: schemas.Action{Type: schemas.ActionScreenshot},
		}},
		Annotations: map[string]string{"intent_frame": "observe"},
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	mock.ExpectExec(flexibleSQLMatcher(`INSERT INTO steps`)).
		WithArgs(step.ID, "sess-1", "assistant", "Looking at the page.",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), step.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Append(context.Background(), "sess-1", step))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_FillsMissingTimestamp(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(flexibleSQLMatcher(`INSERT INTO steps`)).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	step := schemas.Step{ID: uuid.NewString(), Role: schemas.StepTool}
	require.NoError(t, store.Append(context.Background(), "sess-1", step))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSteps_RoundTrip(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "role", "text", "tool_calls", "tool_results", "annotations", "created_at",
	}).AddRow(
		"step-1", "tool", "",
		[]byte(`null`),
		[]byte(`[{"call_id":"call-0","outcome":{"kind":"text","text":"ok"}}]`),
		[]byte(`null`),
		created,
	)

	mock.ExpectQuery(flexibleSQLMatcher(`SELECT id, role, text, tool_calls, tool_results, annotations, created_at FROM steps`)).
		WithArgs("sess-1").
		WillReturnRows(rows)

	steps, err := store.Steps(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, steps, 1)

	assert.Equal(t, schemas.StepTool, steps[0].Role)
	assert.Equal(t, "sess-1", steps[0].SessionID)
	require.Len(t, steps[0].ToolResults, 1)
	assert.Equal(t, "call-0", steps[0].ToolResults[0].CallID)
	assert.Equal(t, "ok", steps[0].ToolResults[0].Outcome.Text)
	assert.Equal(t, created, steps[0].CreatedAt)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	id, err := store.CreateSession(context.Background(), "task")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	first := schemas.Step{ID: "a", Role: schemas.StepAssistant, Text: "one"}
	second := schemas.Step{ID: "b", Role: schemas.StepTool}
	require.NoError(t, store.Append(context.Background(), id, first))
	require.NoError(t, store.Append(context.Background(), id, second))

	steps := store.Steps(id)
	require.Len(t, steps, 2)
	assert.Equal(t, "a", steps[0].ID)
	assert.Equal(t, "b", steps[1].ID)

	// Appending under a caller-chosen external id works without CreateSession.
	require.NoError(t, store.Append(context.Background(), "external", first))
	assert.Len(t, store.Steps("external"), 1)

	require.Error(t, store.Append(context.Background(), "", first))
}
