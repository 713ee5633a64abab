package detect

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/soltide/vrf-oracle/internal/chain/decode"
	"github.com/soltide/vrf-oracle/internal/chain/derive"
	"github.com/soltide/vrf-oracle/internal/core/domain"
	rpcinfra "github.com/soltide/vrf-oracle/internal/infra/rpc"
	"github.com/soltide/vrf-oracle/internal/metrics"
)

// accountSource is the slice of the RPC client the scanner needs.
type accountSource interface {
	ProgramAccounts(ctx context.Context, programID solana.PublicKey, discriminator []byte, statusOffset uint64, statusByte *byte) ([]rpcinfra.KeyedAccount, error)
	MultipleAccountData(ctx context.Context, addrs []solana.PublicKey) ([][]byte, error)
}

// ScannerConfig controls the periodic backup scan.
type ScannerConfig struct {
	Interval      time.Duration `yaml:"interval"`
	NonceLookback int           `yaml:"nonce_lookback"`
}

// Scanner is the correctness backstop: on a fixed interval it pulls every
// pending request account of the program, so anything the live channel
// missed surfaces within one scan interval.
type Scanner struct {
	cfg       ScannerConfig
	client    accountSource
	programID solana.PublicKey
	out       chan<- domain.Candidate
	log       *slog.Logger

	scanning atomic.Bool
	skipped  atomic.Uint64
	lastScan atomic.Int64
}

func NewScanner(cfg ScannerConfig, client accountSource, programID solana.PublicKey, out chan<- domain.Candidate) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.NonceLookback <= 0 {
		cfg.NonceLookback = 4
	}
	return &Scanner{
		cfg:       cfg,
		client:    client,
		programID: programID,
		out:       out,
		log:       slog.Default().With("component", "scanner"),
	}
}

// Run ticks Scan until ctx is cancelled. An initial scan runs immediately
// so a restart catches up without waiting one interval.
func (s *Scanner) Run(ctx context.Context) {
	if err := s.Scan(ctx); err != nil {
		s.log.Error("initial scan failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Scan(ctx); err != nil {
				s.log.Error("scan failed", "error", err)
			}
		}
	}
}

// Scan performs one full program-account query. Scans never overlap: a
// tick arriving while a scan is active is a no-op.
func (s *Scanner) Scan(ctx context.Context) error {
	if !s.scanning.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		metrics.ScansTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	defer s.scanning.Store(false)

	pending := byte(domain.StatusPending)
	accounts, err := s.client.ProgramAccounts(ctx, s.programID,
		decode.DiscriminatorRequest[:], decode.RequestStatusOffset, &pending)
	if err != nil {
		metrics.ScansTotal.WithLabelValues("error").Inc()
		return err
	}

	for _, acct := range accounts {
		cand := domain.Candidate{
			Address: acct.Address,
			Data:    acct.Data,
			Source:  domain.SourceScan,
		}
		metrics.CandidatesTotal.WithLabelValues(string(cand.Source)).Inc()
		select {
		case s.out <- cand:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.lastScan.Store(time.Now().Unix())
	metrics.ScansTotal.WithLabelValues("ok").Inc()
	s.log.Debug("scan complete", "pending_accounts", len(accounts))
	return nil
}

// CheckSubscription is the cheap variant: from the subscription's current
// nonce it re-derives the last few request addresses and fetches exactly
// those, instead of a full program scan.
func (s *Scanner) CheckSubscription(ctx context.Context, sub *domain.Subscription) error {
	addrs, err := derive.RequestLookback(s.programID, sub.Address, sub.Nonce, s.cfg.NonceLookback)
	if err != nil {
		return err
	}
	datas, err := s.client.MultipleAccountData(ctx, addrs)
	if err != nil {
		return err
	}

	for i, data := range datas {
		if data == nil {
			continue
		}
		cand := domain.Candidate{
			Address: addrs[i],
			Data:    data,
			Source:  domain.SourceDerived,
		}
		metrics.CandidatesTotal.WithLabelValues(string(cand.Source)).Inc()
		select {
		case s.out <- cand:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// SkippedScans returns how many ticks were dropped because a scan was
// already in progress.
func (s *Scanner) SkippedScans() uint64 { return s.skipped.Load() }

// LastScan returns the completion time of the most recent successful scan.
func (s *Scanner) LastScan() time.Time {
	ts := s.lastScan.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}
