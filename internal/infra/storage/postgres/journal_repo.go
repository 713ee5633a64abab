package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/soltide/vrf-oracle/internal/infra/storage"
)

// JournalRepo implements storage.JournalRepository using PostgreSQL.
type JournalRepo struct {
	db *DB
}

// NewJournalRepo creates a new PostgreSQL journal repository.
func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Record inserts a new fulfillment attempt.
func (r *JournalRepo) Record(ctx context.Context, a *storage.Attempt) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO fulfillment_attempts
			(id, request_address, subscription, state, tx_signature, last_error)
		VALUES
			(:id, :request_address, :subscription, :state, :tx_signature, :last_error)`,
		a)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// UpdateState advances an attempt through the pipeline state machine.
// Empty txSignature and lastError leave the existing values untouched.
func (r *JournalRepo) UpdateState(
	ctx context.Context,
	id string,
	state storage.AttemptState,
	txSignature, lastError string,
) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE fulfillment_attempts
		SET state = $2,
		    tx_signature = CASE WHEN $3 = '' THEN tx_signature ELSE $3 END,
		    last_error = CASE WHEN $4 = '' THEN last_error ELSE $4 END,
		    updated_at = now()
		WHERE id = $1`,
		id, state, txSignature, lastError)
	if err != nil {
		return fmt.Errorf("failed to update attempt %s: %w", id, err)
	}
	return nil
}

// Recent returns the most recently updated attempts, newest first.
func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]*storage.Attempt, error) {
	var out []*storage.Attempt
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, request_address, subscription, state, tx_signature, last_error,
		       created_at, updated_at
		FROM fulfillment_attempts
		ORDER BY updated_at DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return out, nil
}

// CountByState counts attempts currently in the given state.
func (r *JournalRepo) CountByState(ctx context.Context, state storage.AttemptState) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM fulfillment_attempts WHERE state = $1`, state)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes attempts last updated before the cutoff.
func (r *JournalRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM fulfillment_attempts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune attempts: %w", err)
	}
	return nil
}
