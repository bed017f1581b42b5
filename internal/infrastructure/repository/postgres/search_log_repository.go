package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
)

const schemaLockKey int64 = 2026101601

type SearchLogRepository struct {
	db *sql.DB
}

func NewSearchLogRepository(db *sql.DB) *SearchLogRepository {
	return &SearchLogRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SearchLogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS search_logs (
	id UUID PRIMARY KEY,
	request_id TEXT,
	query TEXT NOT NULL,
	expanded_query TEXT NOT NULL,
	intent_type TEXT NOT NULL,
	collection TEXT NOT NULL,
	method TEXT NOT NULL,
	used_hyde BOOLEAN NOT NULL DEFAULT FALSE,
	used_filters BOOLEAN NOT NULL DEFAULT FALSE,
	is_fallback BOOLEAN NOT NULL DEFAULT FALSE,
	cache_hit BOOLEAN NOT NULL DEFAULT FALSE,
	duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
	results JSONB NOT NULL DEFAULT '[]'::jsonb,
	final_quality DOUBLE PRECISION,
	api_calls_used INTEGER NOT NULL DEFAULT 0,
	reasoning_state TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_logs_created_at ON search_logs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_search_logs_intent_type ON search_logs(intent_type);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SaveSearchLog ignores redelivered entries with a known id.
func (r *SearchLogRepository) SaveSearchLog(ctx context.Context, entry domain.SearchLogEntry) error {
	results := entry.Results
	if results == nil {
		results = []domain.SearchLogResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	var finalQuality sql.NullFloat64
	if entry.FinalQuality != nil {
		finalQuality = sql.NullFloat64{Float64: *entry.FinalQuality, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO search_logs (
	id, request_id, query, expanded_query, intent_type, collection, method,
	used_hyde, used_filters, is_fallback, cache_hit, duration_ms, results,
	final_quality, api_calls_used, reasoning_state, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO NOTHING
`,
		entry.ID, entry.RequestID, entry.Query, entry.ExpandedQuery, string(entry.IntentType), entry.Collection,
		entry.Method, entry.UsedHyDE, entry.UsedFilters, entry.IsFallback, entry.CacheHit, entry.DurationMs,
		resultsJSON, finalQuality, entry.APICallsUsed, string(entry.ReasoningState), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert search log: %w", err)
	}
	return nil
}
