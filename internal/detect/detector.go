package detect

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"

	"github.com/soltide/vrf-oracle/internal/chain/decode"
	"github.com/soltide/vrf-oracle/internal/core/domain"
	"github.com/soltide/vrf-oracle/internal/metrics"
)

// accountFetcher is the slice of the RPC client the detector needs to
// resolve candidates it cannot decode from attached data.
type accountFetcher interface {
	AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error)
	TransactionAccountKeys(ctx context.Context, sig solana.Signature) ([]solana.PublicKey, error)
}

// markerStore mirrors fulfilled request addresses across restarts.
// Best-effort only: the on-chain idempotence check is the real guard.
type markerStore interface {
	Seen(ctx context.Context, id string) bool
}

// subscriptionProbe re-derives and fetches a subscription's recent request
// addresses. The scanner implements it.
type subscriptionProbe interface {
	CheckSubscription(ctx context.Context, sub *domain.Subscription) error
}

// DetectorConfig bounds the ingestion path.
type DetectorConfig struct {
	ProcessedCap     int `yaml:"processed_cap"`
	TxFetchLimit     int `yaml:"tx_fetch_limit"`
	MaxProofAttempts int `yaml:"max_proof_attempts"`
}

// Detector is the single ingestion point both detection channels feed.
// It resolves candidates to typed requests, filters to pending status,
// admits each identifier exactly once, and hands admitted requests to the
// fulfillment side.
type Detector struct {
	cfg     DetectorConfig
	client  accountFetcher
	set     *ProcessedSet
	markers markerStore
	probe   subscriptionProbe
	out     chan<- *domain.RandomnessRequest
	log     *slog.Logger

	mu            sync.Mutex
	proofFailures map[string]int

	admitted atomic.Uint64
}

func NewDetector(cfg DetectorConfig, client accountFetcher, markers markerStore, out chan<- *domain.RandomnessRequest) *Detector {
	if cfg.ProcessedCap <= 0 {
		cfg.ProcessedCap = 10_000
	}
	if cfg.TxFetchLimit <= 0 {
		cfg.TxFetchLimit = 32
	}
	if cfg.MaxProofAttempts <= 0 {
		cfg.MaxProofAttempts = 3
	}
	return &Detector{
		cfg:           cfg,
		client:        client,
		set:           NewProcessedSet(cfg.ProcessedCap),
		markers:       markers,
		out:           out,
		log:           slog.Default().With("component", "detector"),
		proofFailures: make(map[string]int),
	}
}

// Run drains candidates until the input channel closes or ctx is
// cancelled. One bad candidate never stops the loop.
func (d *Detector) Run(ctx context.Context, in <-chan domain.Candidate) {
	for {
		select {
		case <-ctx.Done():
			return
		case cand, ok := <-in:
			if !ok {
				return
			}
			d.handle(ctx, cand)
		}
	}
}

func (d *Detector) handle(ctx context.Context, cand domain.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic while processing candidate", "panic", r, "source", cand.Source)
		}
	}()

	if cand.ByAddress() {
		d.resolveAddress(ctx, cand.Address, cand.Data)
		return
	}
	d.inspectTransaction(ctx, cand.Signature)
}

func (d *Detector) resolveAddress(ctx context.Context, addr solana.PublicKey, data []byte) {
	if data == nil {
		var err error
		data, err = d.client.AccountData(ctx, addr)
		if err != nil {
			d.log.Warn("account fetch failed", "address", addr, "error", err)
			return
		}
		if data == nil {
			// Account not (yet) visible at our commitment level; a later
			// scan will surface it again.
			return
		}
	}

	decoded, err := decode.Decode(addr, data)
	if err != nil {
		metrics.DecodeErrorsTotal.Inc()
		d.log.Debug("discarding malformed candidate", "address", addr, "error", err)
		return
	}
	switch decoded.Kind {
	case decode.KindRequest:
		d.admit(ctx, decoded.Request)
	case decode.KindSubscription:
		d.probeSubscription(ctx, decoded.Subscription)
	}
}

// SetSubscriptionProbe installs the fast-scan hook. When a candidate turns
// out to be a subscription account, the probe re-derives its recent request
// addresses instead of waiting for the next full scan.
func (d *Detector) SetSubscriptionProbe(p subscriptionProbe) { d.probe = p }

func (d *Detector) probeSubscription(ctx context.Context, sub *domain.Subscription) {
	if d.probe == nil {
		return
	}
	// The probe feeds the same candidate channel this detector drains, so
	// it must not run on the drain goroutine.
	go func() {
		if err := d.probe.CheckSubscription(ctx, sub); err != nil {
			d.log.Warn("subscription probe failed", "subscription", sub.Address, "error", err)
		}
	}()
}

// inspectTransaction is the fallback for signature candidates: fetch the
// transaction and probe every referenced account for the request
// discriminator.
func (d *Detector) inspectTransaction(ctx context.Context, sig solana.Signature) {
	keys, err := d.client.TransactionAccountKeys(ctx, sig)
	if err != nil {
		d.log.Warn("transaction fetch failed", "signature", sig, "error", err)
		return
	}
	if len(keys) > d.cfg.TxFetchLimit {
		keys = keys[:d.cfg.TxFetchLimit]
	}
	for _, key := range keys {
		d.resolveAddress(ctx, key, nil)
	}
}

func (d *Detector) admit(ctx context.Context, req *domain.RandomnessRequest) {
	// Pending-only dispatch: anything else is already settled on-chain.
	if !req.Fulfillable() {
		return
	}

	id := req.Address.String()
	if d.markers != nil && d.markers.Seen(ctx, id) {
		metrics.DuplicatesTotal.Inc()
		return
	}
	if !d.set.Admit(id) {
		metrics.DuplicatesTotal.Inc()
		return
	}

	metrics.AdmittedTotal.Inc()
	d.admitted.Add(1)
	d.log.Info("request admitted", "address", id, "subscription", req.Subscription, "nonce", req.Nonce)

	select {
	case d.out <- req:
	case <-ctx.Done():
	}
}

// NoteProofFailure records a failed proof attempt for the identifier and,
// while the per-request budget lasts, forgets it so a later scan can
// re-admit and retry. Past the budget the identifier stays admitted and
// the request is abandoned for this process lifetime.
func (d *Detector) NoteProofFailure(id string) {
	d.mu.Lock()
	d.proofFailures[id]++
	failures := d.proofFailures[id]
	d.mu.Unlock()

	if failures < d.cfg.MaxProofAttempts {
		d.set.Forget(id)
		d.log.Warn("proof failed, eligible for retry", "address", id, "attempt", failures)
		return
	}
	d.log.Error("proof failed, giving up on request", "address", id, "attempts", failures)
}

// Admitted returns the number of requests admitted since start.
func (d *Detector) Admitted() uint64 { return d.admitted.Load() }
