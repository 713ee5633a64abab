package detect

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/soltide/vrf-oracle/internal/chain/derive"
	"github.com/soltide/vrf-oracle/internal/core/domain"
	"github.com/soltide/vrf-oracle/internal/metrics"
)

// Log markers emitted by the randomness program. The instruction marker
// identifies a transaction worth inspecting; the structured marker carries
// enough to derive the request address directly.
const (
	instructionMarker = "Instruction: RequestRandomness"
	structuredMarker  = "VRF_REQUEST "
)

// ChannelConfig controls the live subscription and its reconnect policy.
type ChannelConfig struct {
	WSURL       string        `yaml:"ws_url"`
	Commitment  string        `yaml:"commitment"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// logStream is the slice of ws.LogSubscription the channel consumes.
type logStream interface {
	Recv(ctx context.Context) (*ws.LogResult, error)
	Unsubscribe()
}

// dialFunc opens a log stream; the returned func closes the underlying
// connection.
type dialFunc func(ctx context.Context) (logStream, func(), error)

// Channel maintains the live push feed of program-related events. It owns
// the WebSocket connection and reconnects with exponential backoff on any
// drop; after MaxAttempts consecutive failures it gives up, leaving the
// backup scanner as the only detection path (degraded, not fatal).
type Channel struct {
	cfg       ChannelConfig
	programID solana.PublicKey
	out       chan<- domain.Candidate
	dial      dialFunc
	log       *slog.Logger

	connected  atomic.Bool
	reconnects atomic.Uint64
}

func NewChannel(cfg ChannelConfig, programID solana.PublicKey, out chan<- domain.Candidate) *Channel {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}

	c := &Channel{
		cfg:       cfg,
		programID: programID,
		out:       out,
		log:       slog.Default().With("component", "subscription"),
	}
	c.dial = c.dialWS
	return c
}

func (c *Channel) dialWS(ctx context.Context) (logStream, func(), error) {
	client, err := ws.Connect(ctx, c.cfg.WSURL)
	if err != nil {
		return nil, nil, fmt.Errorf("ws connect: %w", err)
	}
	commitment := solrpc.CommitmentConfirmed
	if c.cfg.Commitment == "finalized" {
		commitment = solrpc.CommitmentFinalized
	}
	sub, err := client.LogsSubscribeMentions(c.programID, commitment)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("logs subscribe: %w", err)
	}
	return sub, client.Close, nil
}

// Run drives the connect/consume/reconnect loop until ctx is cancelled or
// the reconnect budget is exhausted.
func (c *Channel) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		stream, closeConn, err := c.dial(ctx)
		if err != nil {
			attempt++
			metrics.ReconnectsTotal.Inc()
			c.reconnects.Add(1)
			if attempt >= c.cfg.MaxAttempts {
				c.log.Error("subscription gave up, scanner-only mode", "attempts", attempt, "error", err)
				return fmt.Errorf("subscription channel exhausted %d attempts: %w", attempt, err)
			}
			delay := c.backoffDelay(attempt)
			c.log.Warn("subscription connect failed, backing off", "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		// Successful re-subscription resets the attempt counter.
		attempt = 0
		c.connected.Store(true)
		c.log.Info("subscription established", "program", c.programID)

		err = c.consume(ctx, stream)
		c.connected.Store(false)
		stream.Unsubscribe()
		closeConn()

		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("subscription dropped, reconnecting", "error", err)
	}
}

func (c *Channel) consume(ctx context.Context, stream logStream) error {
	for {
		res, err := stream.Recv(ctx)
		if err != nil {
			return err
		}
		if res == nil {
			continue
		}
		// Failed transactions cannot have created a request account.
		if res.Value.Err != nil {
			continue
		}

		for _, cand := range ParseLogs(c.programID, res.Value.Signature, res.Value.Logs) {
			metrics.CandidatesTotal.WithLabelValues(string(cand.Source)).Inc()
			select {
			case c.out <- cand:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// backoffDelay computes min(base * 2^(attempt-1), cap).
func (c *Channel) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.cfg.MaxDelay {
			return c.cfg.MaxDelay
		}
	}
	if delay > c.cfg.MaxDelay {
		return c.cfg.MaxDelay
	}
	return delay
}

// Connected reports whether the channel currently holds a live stream.
func (c *Channel) Connected() bool { return c.connected.Load() }

// Reconnects returns the number of reconnect attempts made so far.
func (c *Channel) Reconnects() uint64 { return c.reconnects.Load() }

// ParseLogs extracts request candidates from one transaction's ordered log
// lines. When the structured marker parses, the request address is derived
// directly; when the instruction marker is present but extraction fails,
// the whole transaction is marked for account-level inspection instead.
func ParseLogs(programID solana.PublicKey, sig solana.Signature, logs []string) []domain.Candidate {
	sawInstruction := false
	var out []domain.Candidate

	for _, line := range logs {
		if strings.Contains(line, instructionMarker) {
			sawInstruction = true
			continue
		}
		if !sawInstruction {
			continue
		}

		idx := strings.Index(line, structuredMarker)
		if idx < 0 {
			continue
		}
		sub, nonce, err := parseStructured(line[idx+len(structuredMarker):])
		if err != nil {
			continue
		}
		addr, err := derive.RequestAddress(programID, sub, nonce)
		if err != nil {
			continue
		}
		out = append(out, domain.Candidate{
			Address: addr,
			Source:  domain.SourceSubscription,
		})
	}

	if sawInstruction && len(out) == 0 {
		// Extraction failed: fall back to inspecting every account the
		// transaction references.
		out = append(out, domain.Candidate{
			Signature: sig,
			Source:    domain.SourceSubscription,
		})
	}
	return out
}

func parseStructured(s string) (solana.PublicKey, uint64, error) {
	var subStr, nonceStr string
	for _, field := range strings.Fields(s) {
		switch {
		case strings.HasPrefix(field, "sub="):
			subStr = strings.TrimPrefix(field, "sub=")
		case strings.HasPrefix(field, "nonce="):
			nonceStr = strings.TrimPrefix(field, "nonce=")
		}
	}
	if subStr == "" || nonceStr == "" {
		return solana.PublicKey{}, 0, fmt.Errorf("missing sub/nonce in %q", s)
	}
	sub, err := solana.PublicKeyFromBase58(subStr)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("bad sub key: %w", err)
	}
	nonce, err := strconv.ParseUint(nonceStr, 10, 64)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("bad nonce: %w", err)
	}
	return sub, nonce, nil
}
