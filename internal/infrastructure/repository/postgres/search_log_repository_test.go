package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*SearchLogRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewSearchLogRepository(db), mock, func() { _ = db.Close() }
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(schemaLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS search_logs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaRollsBackOnDDLFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(schemaLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS search_logs").
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := repo.EnsureSchema(context.Background())
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected ddl error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveSearchLogWritesReasoningColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	quality := 0.74
	createdAt := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	entry := domain.SearchLogEntry{
		ID:             "0d5a3b8e-1c2f-4f7a-9d6e-5b4c3a2f1e0d",
		RequestID:      "req-1",
		Query:          "Was ist eine MaLo?",
		ExpandedQuery:  "Was ist eine MaLo? Marktlokation",
		IntentType:     domain.IntentDefinition,
		Collection:     "mako_ollama_768",
		Method:         "optimized",
		UsedHyDE:       true,
		DurationMs:     142.5,
		Results:        []domain.SearchLogResult{{ID: "p1", ChunkType: "definition", MergedScore: 0.91}},
		FinalQuality:   &quality,
		APICallsUsed:   4,
		ReasoningState: domain.StateDone,
		CreatedAt:      createdAt,
	}

	mock.ExpectExec("INSERT INTO search_logs").
		WithArgs(
			entry.ID, "req-1", entry.Query, entry.ExpandedQuery, string(domain.IntentDefinition), entry.Collection,
			"optimized", true, false, false, false, 142.5, sqlmock.AnyArg(),
			sqlmock.AnyArg(), 4, string(domain.StateDone), createdAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveSearchLog(context.Background(), entry); err != nil {
		t.Fatalf("SaveSearchLog() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveSearchLogWrapsDriverError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO search_logs").WillReturnError(sql.ErrConnDone)

	err := repo.SaveSearchLog(context.Background(), domain.SearchLogEntry{ID: "x", Query: "q"})
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}
