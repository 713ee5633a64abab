package detect

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/soltide/vrf-oracle/internal/chain/derive"
	"github.com/soltide/vrf-oracle/internal/core/domain"
)

var (
	parseProgram = solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	parseSub     = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
)

func TestParseLogsStructuredMarker(t *testing.T) {
	sig := solana.Signature{1}
	logs := []string{
		"Program Vote111111111111111111111111111111111111111 invoke [1]",
		"Program log: Instruction: RequestRandomness",
		fmt.Sprintf("Program log: VRF_REQUEST sub=%s nonce=9", parseSub),
		"Program Vote111111111111111111111111111111111111111 success",
	}

	cands := ParseLogs(parseProgram, sig, logs)
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if !cands[0].ByAddress() {
		t.Fatal("structured marker should yield an address candidate")
	}

	want, err := derive.RequestAddress(parseProgram, parseSub, 9)
	if err != nil {
		t.Fatal(err)
	}
	if cands[0].Address != want {
		t.Errorf("derived %s, want %s", cands[0].Address, want)
	}
}

func TestParseLogsFallbackToInspection(t *testing.T) {
	sig := solana.Signature{2}
	logs := []string{
		"Program log: Instruction: RequestRandomness",
		"Program log: VRF_REQUEST sub=not-base58 nonce=x",
	}

	cands := ParseLogs(parseProgram, sig, logs)
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if cands[0].ByAddress() {
		t.Error("garbled marker should yield a signature candidate")
	}
	if cands[0].Signature != sig {
		t.Errorf("signature = %s, want %s", cands[0].Signature, sig)
	}
}

func TestParseLogsIgnoresUnrelatedTransactions(t *testing.T) {
	logs := []string{
		"Program log: Instruction: CreateSubscription",
		"Program log: something else",
	}
	if cands := ParseLogs(parseProgram, solana.Signature{}, logs); len(cands) != 0 {
		t.Errorf("got %d candidates for unrelated tx, want 0", len(cands))
	}
}

func TestParseLogsMultipleRequests(t *testing.T) {
	logs := []string{
		"Program log: Instruction: RequestRandomness",
		fmt.Sprintf("Program log: VRF_REQUEST sub=%s nonce=1", parseSub),
		"Program log: Instruction: RequestRandomness",
		fmt.Sprintf("Program log: VRF_REQUEST sub=%s nonce=2", parseSub),
	}
	cands := ParseLogs(parseProgram, solana.Signature{}, logs)
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if cands[0].Address == cands[1].Address {
		t.Error("distinct nonces must derive distinct addresses")
	}
}

func TestBackoffDelayMonotonicAndCapped(t *testing.T) {
	c := NewChannel(ChannelConfig{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 10,
	}, parseProgram, nil)

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := c.backoffDelay(attempt)
		if d < prev {
			t.Errorf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > 30*time.Second {
			t.Errorf("delay %v exceeds cap at attempt %d", d, attempt)
		}
		prev = d
	}

	if got := c.backoffDelay(1); got != time.Second {
		t.Errorf("first delay = %v, want base 1s", got)
	}
	if got := c.backoffDelay(10); got != 30*time.Second {
		t.Errorf("attempt 10 delay = %v, want cap 30s", got)
	}
}

type scriptedStream struct {
	results chan *ws.LogResult
}

func (s *scriptedStream) Recv(ctx context.Context) (*ws.LogResult, error) {
	select {
	case res, ok := <-s.results:
		if !ok {
			return nil, errors.New("stream closed")
		}
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scriptedStream) Unsubscribe() {}

func TestChannelReconnectsAndResetsAttempts(t *testing.T) {
	out := make(chan domain.Candidate, 8)
	c := NewChannel(ChannelConfig{
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		MaxAttempts: 5,
	}, parseProgram, out)

	dials := 0
	c.dial = func(ctx context.Context) (logStream, func(), error) {
		dials++
		if dials < 3 {
			return nil, nil, errors.New("connection refused")
		}
		s := &scriptedStream{results: make(chan *ws.LogResult, 1)}
		res := &ws.LogResult{}
		res.Value.Signature = solana.Signature{7}
		res.Value.Logs = []string{
			"Program log: Instruction: RequestRandomness",
			fmt.Sprintf("Program log: VRF_REQUEST sub=%s nonce=3", parseSub),
		}
		s.results <- res
		close(s.results)
		return s, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		// Stop after the candidate arrives; the channel keeps redialing
		// the (closing) scripted stream otherwise.
		<-time.After(200 * time.Millisecond)
		cancel()
	}()
	_ = c.Run(ctx)

	if dials < 3 {
		t.Fatalf("dials = %d, want >= 3 (two failures then success)", dials)
	}
	if c.Reconnects() < 2 {
		t.Errorf("Reconnects() = %d, want >= 2", c.Reconnects())
	}

	select {
	case cand := <-out:
		if !cand.ByAddress() {
			t.Error("expected address candidate from parsed logs")
		}
	default:
		t.Error("no candidate emitted after successful subscription")
	}
}

func TestChannelGivesUpAfterMaxAttempts(t *testing.T) {
	c := NewChannel(ChannelConfig{
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		MaxAttempts: 3,
	}, parseProgram, nil)

	c.dial = func(ctx context.Context) (logStream, func(), error) {
		return nil, nil, errors.New("connection refused")
	}

	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("Run should report exhaustion after max attempts")
	}
	if c.Reconnects() != 3 {
		t.Errorf("Reconnects() = %d, want 3", c.Reconnects())
	}
}
