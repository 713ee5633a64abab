package detect

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/soltide/vrf-oracle/internal/chain/decode"
	"github.com/soltide/vrf-oracle/internal/chain/derive"
	"github.com/soltide/vrf-oracle/internal/core/domain"
	rpcinfra "github.com/soltide/vrf-oracle/internal/infra/rpc"
)

type fakeAccountSource struct {
	accounts []rpcinfra.KeyedAccount
	byAddr   map[solana.PublicKey][]byte
	block    chan struct{} // when set, ProgramAccounts waits on it
	calls    atomic.Int32  // read by tests while a scan goroutine runs
}

func (f *fakeAccountSource) ProgramAccounts(ctx context.Context, programID solana.PublicKey, disc []byte, statusOffset uint64, statusByte *byte) ([]rpcinfra.KeyedAccount, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.accounts, nil
}

func (f *fakeAccountSource) MultipleAccountData(ctx context.Context, addrs []solana.PublicKey) ([][]byte, error) {
	out := make([][]byte, len(addrs))
	for i, a := range addrs {
		out[i] = f.byAddr[a]
	}
	return out, nil
}

func TestScanEmitsPendingCandidates(t *testing.T) {
	req := &domain.RandomnessRequest{
		Address: solana.NewWallet().PublicKey(),
		Status:  domain.StatusPending,
	}
	src := &fakeAccountSource{
		accounts: []rpcinfra.KeyedAccount{
			{Address: req.Address, Data: decode.EncodeRequest(req)},
		},
	}

	out := make(chan domain.Candidate, 4)
	s := NewScanner(ScannerConfig{Interval: time.Hour}, src, solana.PublicKey{}, out)

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	select {
	case cand := <-out:
		if cand.Address != req.Address {
			t.Errorf("candidate address = %s, want %s", cand.Address, req.Address)
		}
		if cand.Source != domain.SourceScan {
			t.Errorf("source = %s, want scan", cand.Source)
		}
		if cand.Data == nil {
			t.Error("scan candidates should carry account data")
		}
	default:
		t.Fatal("no candidate emitted")
	}

	if s.LastScan().IsZero() {
		t.Error("LastScan not recorded")
	}
}

func TestScanExclusivity(t *testing.T) {
	src := &fakeAccountSource{block: make(chan struct{})}
	out := make(chan domain.Candidate, 1)
	s := NewScanner(ScannerConfig{Interval: time.Hour}, src, solana.PublicKey{}, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Scan(ctx) }()

	// Wait for the first scan to reach the blocking RPC call.
	deadline := time.After(5 * time.Second)
	for src.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first scan never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Concurrent ticks are no-ops, not second scans.
	for i := 0; i < 3; i++ {
		if err := s.Scan(ctx); err != nil {
			t.Fatalf("overlapping Scan returned error: %v", err)
		}
	}
	if got := s.SkippedScans(); got != 3 {
		t.Errorf("SkippedScans = %d, want 3", got)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("ProgramAccounts called %d times, want 1", got)
	}

	close(src.block)
	if err := <-done; err != nil {
		t.Fatalf("blocked scan finished with error: %v", err)
	}

	// With the first scan finished, the next one runs again.
	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan after unblock: %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("ProgramAccounts called %d times after unblock, want 2", got)
	}
}

func TestCheckSubscriptionDerivedLookback(t *testing.T) {
	program := solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	sub := &domain.Subscription{
		Address: solana.NewWallet().PublicKey(),
		Nonce:   5,
	}

	src := &fakeAccountSource{byAddr: map[solana.PublicKey][]byte{}}
	out := make(chan domain.Candidate, 8)
	s := NewScanner(ScannerConfig{Interval: time.Hour, NonceLookback: 3}, src, program, out)

	// Only the request at nonce 4 exists on chain.
	req := &domain.RandomnessRequest{Subscription: sub.Address, Nonce: 4, Status: domain.StatusPending}
	addrs, err := derive.RequestLookback(program, sub.Address, sub.Nonce, 3)
	if err != nil {
		t.Fatal(err)
	}
	src.byAddr[addrs[1]] = decode.EncodeRequest(req)

	if err := s.CheckSubscription(context.Background(), sub); err != nil {
		t.Fatalf("CheckSubscription: %v", err)
	}

	var got []domain.Candidate
	for {
		select {
		case c := <-out:
			got = append(got, c)
			continue
		default:
		}
		break
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].Source != domain.SourceDerived {
		t.Errorf("source = %s, want derived", got[0].Source)
	}
	if got[0].Address != addrs[1] {
		t.Errorf("address = %s, want %s", got[0].Address, addrs[1])
	}
}
