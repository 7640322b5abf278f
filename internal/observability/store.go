package observability

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const insertOperationSQL = `
	INSERT INTO llm_operations (
		completion_id, session_id, workspace_id, agent_id, action_id,
		provider, model, operation,
		prompt_tokens, response_tokens, cached_tokens, cache_write_tokens,
		cost, latency_ms, success, error_message, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

// Store writes operation records to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Insert(ctx context.Context, rec OperationRecord) error {
	_, err := s.pool.Exec(ctx, insertOperationSQL,
		rec.CompletionID, rec.SessionID, rec.WorkspaceID, rec.AgentID, rec.ActionID,
		rec.Provider, rec.Model, rec.Operation,
		rec.PromptTokens, rec.ResponseTokens, rec.CachedTokens, rec.CacheWriteTokens,
		rec.Cost, rec.LatencyMS, rec.Success, rec.ErrorMessage, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert llm operation: %w", err)
	}
	return nil
}

// StorageFunc adapts the store to the collector's callback shape.
func (s *Store) StorageFunc() StorageFunc {
	return s.Insert
}
