package fulfill

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/soltide/vrf-oracle/internal/core/domain"
	"github.com/soltide/vrf-oracle/internal/metrics"
	"github.com/soltide/vrf-oracle/internal/vrf"
)

// Ready is a proven request awaiting submission.
type Ready struct {
	AttemptID string
	Request   *domain.RandomnessRequest
	Proof     vrf.Proof
}

type submitFunc func(ctx context.Context, items []Ready)

// CoordinatorConfig controls batching behavior.
type CoordinatorConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxSize  int           `yaml:"max_size"`
}

// Coordinator accumulates proven requests and drains them on a timer,
// grouped by subscription so one submission serves one pool.
type Coordinator struct {
	cfg    CoordinatorConfig
	submit submitFunc
	log    *slog.Logger

	mu    sync.Mutex
	queue map[solana.PublicKey][]Ready

	draining atomic.Bool
}

func NewCoordinator(cfg CoordinatorConfig, submit submitFunc) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10
	}
	return &Coordinator{
		cfg:    cfg,
		submit: submit,
		log:    slog.Default().With("component", "batch"),
		queue:  make(map[solana.PublicKey][]Ready),
	}
}

// Add queues a proven request for the next drain.
func (c *Coordinator) Add(r Ready) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := r.Request.Subscription
	c.queue[sub] = append(c.queue[sub], r)
}

// Pending reports how many proven requests are waiting.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, items := range c.queue {
		n += len(items)
	}
	return n
}

// Run drains the queue on each tick. On shutdown it drains one final time
// so proven requests are not dropped.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			c.Drain(final)
			cancel()
			return
		case <-ticker.C:
			c.Drain(ctx)
		}
	}
}

// Drain submits everything queued, one submission per subscription, split
// into chunks of at most MaxSize. Overlapping drains are no-ops.
func (c *Coordinator) Drain(ctx context.Context) int {
	if !c.draining.CompareAndSwap(false, true) {
		return 0
	}
	defer c.draining.Store(false)

	c.mu.Lock()
	pending := c.queue
	c.queue = make(map[solana.PublicKey][]Ready)
	c.mu.Unlock()

	submissions := 0
	for sub, items := range pending {
		for len(items) > 0 {
			n := len(items)
			if n > c.cfg.MaxSize {
				n = c.cfg.MaxSize
			}
			c.submit(ctx, items[:n])
			items = items[n:]
			submissions++
			metrics.BatchSubmissionsTotal.Inc()
		}
		c.log.Debug("drained pool", "subscription", sub.String())
	}
	return submissions
}
