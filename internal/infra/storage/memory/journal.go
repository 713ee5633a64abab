package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soltide/vrf-oracle/internal/infra/storage"
)

// Journal is the in-memory journal used when no database is configured.
type Journal struct {
	mu       sync.RWMutex
	attempts map[string]*storage.Attempt
	order    []string
}

func NewJournal() *Journal {
	return &Journal{attempts: make(map[string]*storage.Attempt)}
}

func (j *Journal) Record(ctx context.Context, a *storage.Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	cp := *a
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	j.attempts[cp.ID] = &cp
	j.order = append(j.order, cp.ID)
	return nil
}

func (j *Journal) UpdateState(ctx context.Context, id string, state storage.AttemptState, txSignature, lastError string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	a, ok := j.attempts[id]
	if !ok {
		return fmt.Errorf("attempt %s not found", id)
	}
	a.State = state
	if txSignature != "" {
		a.TxSignature = txSignature
	}
	if lastError != "" {
		a.LastError = lastError
	}
	a.UpdatedAt = time.Now()
	return nil
}

func (j *Journal) Recent(ctx context.Context, limit int) ([]*storage.Attempt, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []*storage.Attempt
	for i := len(j.order) - 1; i >= 0 && len(out) < limit; i-- {
		if a, ok := j.attempts[j.order[i]]; ok {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (j *Journal) CountByState(ctx context.Context, state storage.AttemptState) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	n := 0
	for _, a := range j.attempts {
		if a.State == state {
			n++
		}
	}
	return n, nil
}

func (j *Journal) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	keep := j.order[:0]
	for _, id := range j.order {
		a, ok := j.attempts[id]
		if !ok {
			continue
		}
		if a.UpdatedAt.Before(cutoff) {
			delete(j.attempts, id)
			continue
		}
		keep = append(keep, id)
	}
	j.order = keep
	return nil
}
