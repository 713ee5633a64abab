package storage

import (
	"context"
	"time"
)

// AttemptState mirrors the fulfillment pipeline's state machine.
type AttemptState string

const (
	StateDetected       AttemptState = "detected"
	StateProofRequested AttemptState = "proof_requested"
	StateProofReady     AttemptState = "proof_ready"
	StateTxBuilt        AttemptState = "tx_built"
	StateTxSubmitted    AttemptState = "tx_submitted"
	StateConfirmed      AttemptState = "confirmed"
	StateFailed         AttemptState = "failed"
)

// Attempt is one fulfillment attempt as recorded in the journal.
type Attempt struct {
	ID             string       `db:"id"`
	RequestAddress string       `db:"request_address"`
	Subscription   string       `db:"subscription"`
	State          AttemptState `db:"state"`
	TxSignature    string       `db:"tx_signature"`
	LastError      string       `db:"last_error"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

// JournalRepository records fulfillment attempts for operations and audit.
// The journal is observational: losing it never affects correctness.
type JournalRepository interface {
	Record(ctx context.Context, a *Attempt) error
	UpdateState(ctx context.Context, id string, state AttemptState, txSignature, lastError string) error
	Recent(ctx context.Context, limit int) ([]*Attempt, error)
	CountByState(ctx context.Context, state AttemptState) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
}
