package detect

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/soltide/vrf-oracle/internal/chain/decode"
	"github.com/soltide/vrf-oracle/internal/core/domain"
)

type fakeFetcher struct {
	byAddr  map[solana.PublicKey][]byte
	bySig   map[solana.Signature][]solana.PublicKey
	fetches int
}

func (f *fakeFetcher) AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	f.fetches++
	return f.byAddr[addr], nil
}

func (f *fakeFetcher) TransactionAccountKeys(ctx context.Context, sig solana.Signature) ([]solana.PublicKey, error) {
	return f.bySig[sig], nil
}

func newTestDetector(f *fakeFetcher, out chan *domain.RandomnessRequest) *Detector {
	return NewDetector(DetectorConfig{ProcessedCap: 100, TxFetchLimit: 8, MaxProofAttempts: 3}, f, nil, out)
}

func pendingRequest() *domain.RandomnessRequest {
	return &domain.RandomnessRequest{
		Address:      solana.NewWallet().PublicKey(),
		Subscription: solana.NewWallet().PublicKey(),
		Status:       domain.StatusPending,
		Nonce:        1,
	}
}

func TestDetectorAdmitsPendingOnce(t *testing.T) {
	req := pendingRequest()
	f := &fakeFetcher{byAddr: map[solana.PublicKey][]byte{
		req.Address: decode.EncodeRequest(req),
	}}
	out := make(chan *domain.RandomnessRequest, 4)
	d := newTestDetector(f, out)

	cand := domain.Candidate{Address: req.Address, Source: domain.SourceSubscription}
	d.handle(context.Background(), cand)
	d.handle(context.Background(), cand) // duplicate report from the scanner

	if len(out) != 1 {
		t.Fatalf("admitted %d requests, want exactly 1", len(out))
	}
	got := <-out
	if got.Address != req.Address {
		t.Errorf("admitted %s, want %s", got.Address, req.Address)
	}
	if d.Admitted() != 1 {
		t.Errorf("Admitted() = %d, want 1", d.Admitted())
	}
}

func TestDetectorNeverDispatchesNonPending(t *testing.T) {
	out := make(chan *domain.RandomnessRequest, 4)

	for _, status := range []domain.RequestStatus{domain.StatusFulfilled, domain.StatusCancelled} {
		req := pendingRequest()
		req.Status = status
		f := &fakeFetcher{byAddr: map[solana.PublicKey][]byte{
			req.Address: decode.EncodeRequest(req),
		}}
		d := newTestDetector(f, out)
		d.handle(context.Background(), domain.Candidate{Address: req.Address, Source: domain.SourceScan})
	}

	if len(out) != 0 {
		t.Errorf("%d non-pending requests reached the pipeline, want 0", len(out))
	}
}

func TestDetectorDiscardsForeignAndMalformed(t *testing.T) {
	subAddr := solana.NewWallet().PublicKey()
	f := &fakeFetcher{byAddr: map[solana.PublicKey][]byte{
		subAddr:             decode.EncodeSubscription(&domain.Subscription{Address: subAddr}),
		solana.PublicKey{1}: []byte("FOREIGN0junk"),
		solana.PublicKey{2}: {1, 2, 3},
	}}
	out := make(chan *domain.RandomnessRequest, 4)
	d := newTestDetector(f, out)

	for addr := range f.byAddr {
		d.handle(context.Background(), domain.Candidate{Address: addr, Source: domain.SourceScan})
	}
	if len(out) != 0 {
		t.Errorf("non-request candidates reached the pipeline")
	}
}

func TestDetectorInspectsTransactionFallback(t *testing.T) {
	req := pendingRequest()
	sig := solana.Signature{9}
	f := &fakeFetcher{
		byAddr: map[solana.PublicKey][]byte{
			req.Address: decode.EncodeRequest(req),
		},
		bySig: map[solana.Signature][]solana.PublicKey{
			sig: {solana.NewWallet().PublicKey(), req.Address, solana.NewWallet().PublicKey()},
		},
	}
	out := make(chan *domain.RandomnessRequest, 4)
	d := newTestDetector(f, out)

	d.handle(context.Background(), domain.Candidate{Signature: sig, Source: domain.SourceSubscription})

	if len(out) != 1 {
		t.Fatalf("fallback inspection admitted %d requests, want 1", len(out))
	}
}

func TestDetectorProofFailureAllowsBoundedRetry(t *testing.T) {
	req := pendingRequest()
	f := &fakeFetcher{byAddr: map[solana.PublicKey][]byte{
		req.Address: decode.EncodeRequest(req),
	}}
	out := make(chan *domain.RandomnessRequest, 8)
	d := newTestDetector(f, out)
	cand := domain.Candidate{Address: req.Address, Source: domain.SourceScan}
	id := req.Address.String()

	// Attempt 1 admitted, proof fails -> forgotten -> re-admittable.
	d.handle(context.Background(), cand)
	d.NoteProofFailure(id)
	d.handle(context.Background(), cand)
	d.NoteProofFailure(id)
	d.handle(context.Background(), cand)
	d.NoteProofFailure(id) // third failure exhausts the budget
	d.handle(context.Background(), cand)

	if len(out) != 3 {
		t.Errorf("request admitted %d times, want 3 (bounded proof retries)", len(out))
	}
}

type fakeProbe struct {
	checked chan solana.PublicKey
}

func (f *fakeProbe) CheckSubscription(ctx context.Context, sub *domain.Subscription) error {
	f.checked <- sub.Address
	return nil
}

func TestDetectorProbesDecodedSubscriptions(t *testing.T) {
	subAddr := solana.NewWallet().PublicKey()
	f := &fakeFetcher{byAddr: map[solana.PublicKey][]byte{
		subAddr: decode.EncodeSubscription(&domain.Subscription{Address: subAddr, Nonce: 7}),
	}}
	out := make(chan *domain.RandomnessRequest, 1)
	d := newTestDetector(f, out)
	probe := &fakeProbe{checked: make(chan solana.PublicKey, 1)}
	d.SetSubscriptionProbe(probe)

	d.handle(context.Background(), domain.Candidate{Address: subAddr, Source: domain.SourceSubscription})

	select {
	case got := <-probe.checked:
		if got != subAddr {
			t.Errorf("probed %s, want %s", got, subAddr)
		}
	case <-time.After(time.Second):
		t.Fatal("subscription account never reached the probe")
	}
	if len(out) != 0 {
		t.Errorf("subscription candidate reached the pipeline")
	}
}

func TestDetectorSurvivesPanicInCandidate(t *testing.T) {
	out := make(chan *domain.RandomnessRequest, 1)
	d := newTestDetector(&fakeFetcher{}, out)
	d.client = nil // force a nil-pointer panic inside handle

	d.handle(context.Background(), domain.Candidate{Address: solana.PublicKey{1}, Source: domain.SourceScan})
	// Reaching this line is the assertion: the panic was contained.
}
