package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/soltide/vrf-oracle/internal/core/config"
	"github.com/soltide/vrf-oracle/internal/infra/storage"
)

// Pruner deletes old journal entries based on retention policy.
type Pruner struct {
	cfg     config.RetentionConfig
	journal storage.JournalRepository
}

// NewPruner creates a new Pruner worker.
func NewPruner(cfg config.RetentionConfig, journal storage.JournalRepository) *Pruner {
	return &Pruner{cfg: cfg, journal: journal}
}

// Start runs the pruner loop. Returns immediately when retention is disabled.
func (p *Pruner) Start(ctx context.Context) {
	if p.cfg.Period <= 0 {
		return
	}

	interval := p.cfg.PruneInterval
	if interval <= 0 {
		interval = min(p.cfg.Period/10, time.Hour)
		interval = max(interval, time.Minute)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.Period)
	if err := p.journal.DeleteOlderThan(ctx, cutoff); err != nil {
		slog.Error("failed to prune journal", "cutoff", cutoff, "error", err)
	}
}
