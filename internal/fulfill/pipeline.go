package fulfill

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/soltide/vrf-oracle/internal/chain/derive"
	"github.com/soltide/vrf-oracle/internal/chain/keystore"
	"github.com/soltide/vrf-oracle/internal/core/domain"
	rpcinfra "github.com/soltide/vrf-oracle/internal/infra/rpc"
	"github.com/soltide/vrf-oracle/internal/infra/storage"
	"github.com/soltide/vrf-oracle/internal/metrics"
	"github.com/soltide/vrf-oracle/internal/vrf"
)

type chainClient interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
}

// MarkerSink mirrors processed identifiers to shared storage. Optional.
type MarkerSink interface {
	Mark(ctx context.Context, id string) error
}

// proofTracker hears about proof failures so the request can be retried.
type proofTracker interface {
	NoteProofFailure(id string)
}

// Config controls the fulfillment pipeline.
type Config struct {
	ProgramID    solana.PublicKey
	SendAttempts int
	BatchEnabled bool
	Batch        CoordinatorConfig
}

// Pipeline consumes admitted requests, computes proofs, and submits
// fulfillment transactions. Each request runs in its own goroutine;
// Wait blocks until all in-flight attempts finish.
type Pipeline struct {
	cfg      Config
	client   chainClient
	prover   vrf.Prover
	feePayer *keystore.Keystore
	oracle   *keystore.Keystore
	journal  storage.JournalRepository
	markers  MarkerSink
	tracker  proofTracker
	batch    *Coordinator
	log      *slog.Logger

	wg        sync.WaitGroup
	confirmed atomic.Uint64
	failed    atomic.Uint64
}

func NewPipeline(
	cfg Config,
	client chainClient,
	prover vrf.Prover,
	feePayer, oracle *keystore.Keystore,
	journal storage.JournalRepository,
	markers MarkerSink,
	tracker proofTracker,
) *Pipeline {
	if cfg.SendAttempts <= 0 {
		cfg.SendAttempts = 3
	}
	p := &Pipeline{
		cfg:      cfg,
		client:   client,
		prover:   prover,
		feePayer: feePayer,
		oracle:   oracle,
		journal:  journal,
		markers:  markers,
		tracker:  tracker,
		log:      slog.Default().With("component", "pipeline"),
	}
	if cfg.BatchEnabled {
		p.batch = NewCoordinator(cfg.Batch, p.submitBatch)
	}
	return p
}

// Run consumes admitted requests until the context is cancelled or the
// channel closes.
func (p *Pipeline) Run(ctx context.Context, in <-chan *domain.RandomnessRequest) {
	if p.batch != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.batch.Run(ctx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-in:
			if !ok {
				return
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.process(ctx, req)
			}()
		}
	}
}

// Wait blocks until all in-flight fulfillment attempts have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Confirmed reports the number of confirmed fulfillments.
func (p *Pipeline) Confirmed() uint64 { return p.confirmed.Load() }

// Failed reports the number of terminally failed attempts.
func (p *Pipeline) Failed() uint64 { return p.failed.Load() }

func (p *Pipeline) process(ctx context.Context, req *domain.RandomnessRequest) {
	metrics.InflightFulfillments.Inc()
	defer metrics.InflightFulfillments.Dec()

	id := uuid.NewString()
	err := p.journal.Record(ctx, &storage.Attempt{
		ID:             id,
		RequestAddress: req.Address.String(),
		Subscription:   req.Subscription.String(),
		State:          storage.StateDetected,
	})
	if err != nil {
		p.log.Warn("journal record failed", "request", req.Address.String(), "error", err)
	}

	p.setState(ctx, id, storage.StateProofRequested, "", "")
	start := time.Now()
	proof, err := p.prover.Prove(ctx, req.Seed)
	metrics.ProofLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		p.fail(ctx, "proof", err, Ready{AttemptID: id, Request: req})
		if p.tracker != nil {
			p.tracker.NoteProofFailure(req.Address.String())
		}
		return
	}
	p.setState(ctx, id, storage.StateProofReady, "", "")

	ready := Ready{AttemptID: id, Request: req, Proof: proof}
	if p.batch != nil {
		p.batch.Add(ready)
		return
	}
	p.submitBatch(ctx, []Ready{ready})
}

// submitBatch builds, signs, sends, and confirms one transaction carrying
// a fulfillment instruction per item. All items share the outcome.
func (p *Pipeline) submitBatch(ctx context.Context, items []Ready) {
	instrs := make([]solana.Instruction, 0, len(items))
	kept := items[:0]
	for _, item := range items {
		resultAddr, err := derive.ResultAddress(p.cfg.ProgramID, item.Request.Address)
		if err != nil {
			p.fail(ctx, "derive", err, item)
			continue
		}
		instr, err := BuildInstruction(p.cfg.ProgramID, item.Request, resultAddr, p.oracle.PublicKey(), item.Proof)
		if err != nil {
			p.fail(ctx, "build", err, item)
			continue
		}
		instrs = append(instrs, instr)
		kept = append(kept, item)
	}
	items = kept
	if len(items) == 0 {
		return
	}

	for _, item := range items {
		p.setState(ctx, item.AttemptID, storage.StateTxBuilt, "", "")
	}

	sig, err := p.send(ctx, instrs)
	if err != nil {
		p.fail(ctx, "send", err, items...)
		return
	}

	for _, item := range items {
		p.setState(ctx, item.AttemptID, storage.StateTxSubmitted, sig.String(), "")
	}

	if err := p.client.ConfirmTransaction(ctx, sig); err != nil {
		result := "unconfirmed"
		if errors.Is(err, rpcinfra.ErrChainRejected) {
			result = "rejected"
		}
		p.fail(ctx, result, err, items...)
		return
	}

	for _, item := range items {
		p.setState(ctx, item.AttemptID, storage.StateConfirmed, "", "")
		if p.markers != nil {
			if err := p.markers.Mark(ctx, item.Request.Address.String()); err != nil {
				p.log.Warn("marker mirror failed", "request", item.Request.Address.String(), "error", err)
			}
		}
		p.confirmed.Add(1)
		metrics.FulfillmentsTotal.WithLabelValues("confirmed").Inc()
		p.log.Info("request fulfilled",
			"request", item.Request.Address.String(),
			"signature", sig.String())
	}
}

// send builds a fresh transaction per attempt and retries bounded times on
// transient network failures. A fresh blockhash is fetched each attempt so
// resends never go out with an expired one.
func (p *Pipeline) send(ctx context.Context, instrs []solana.Instruction) (solana.Signature, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.SendAttempts; attempt++ {
		blockhash, err := p.client.LatestBlockhash(ctx)
		if err != nil {
			lastErr = err
			if rpcinfra.IsTransient(err) && attempt < p.cfg.SendAttempts {
				continue
			}
			return solana.Signature{}, err
		}

		tx, err := solana.NewTransaction(instrs, blockhash, solana.TransactionPayer(p.feePayer.PublicKey()))
		if err != nil {
			return solana.Signature{}, err
		}
		if err := p.sign(tx); err != nil {
			return solana.Signature{}, err
		}

		sig, err := p.client.SendTransaction(ctx, tx)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		if !rpcinfra.IsTransient(err) {
			return solana.Signature{}, err
		}
		p.log.Warn("broadcast failed, retrying", "attempt", attempt, "error", err)
	}
	return solana.Signature{}, lastErr
}

// sign signs with the fee payer and the oracle identity. On failure the
// keystores are reloaded once and signing retried, covering key rotation
// on disk.
func (p *Pipeline) sign(tx *solana.Transaction) error {
	_, err := tx.Sign(p.signerFor)
	if err == nil {
		return nil
	}
	p.log.Warn("signing failed, reloading keystores", "error", err)
	if rerr := p.feePayer.Reload(); rerr != nil {
		return errors.Join(err, rerr)
	}
	if p.oracle != p.feePayer {
		if rerr := p.oracle.Reload(); rerr != nil {
			return errors.Join(err, rerr)
		}
	}
	_, err = tx.Sign(p.signerFor)
	return err
}

func (p *Pipeline) signerFor(key solana.PublicKey) *solana.PrivateKey {
	if key.Equals(p.feePayer.PublicKey()) {
		k := p.feePayer.Key()
		return &k
	}
	if key.Equals(p.oracle.PublicKey()) {
		k := p.oracle.Key()
		return &k
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, result string, err error, items ...Ready) {
	for _, item := range items {
		p.setState(ctx, item.AttemptID, storage.StateFailed, "", err.Error())
		p.failed.Add(1)
		metrics.FulfillmentsTotal.WithLabelValues(result).Inc()
		p.log.Error("fulfillment failed",
			"request", item.Request.Address.String(),
			"result", result,
			"error", err)
	}
}

func (p *Pipeline) setState(ctx context.Context, id string, state storage.AttemptState, sig, lastErr string) {
	if err := p.journal.UpdateState(ctx, id, state, sig, lastErr); err != nil {
		p.log.Warn("journal update failed", "attempt", id, "state", string(state), "error", err)
	}
}
