package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
)

// ErrChainRejected marks a transaction that landed but was rejected by the
// program (already fulfilled, insufficient balance, ...). Never retried.
var ErrChainRejected = errors.New("transaction rejected on chain")

// KeyedAccount pairs an account address with its raw data.
type KeyedAccount struct {
	Address solana.PublicKey
	Data    []byte
}

// ClientConfig configures the guarded Solana RPC client.
type ClientConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	Commitment  string        `yaml:"commitment"`
	ConfirmPoll time.Duration `yaml:"confirm_poll"`
	ConfirmWait time.Duration `yaml:"confirm_wait"`
	Guard       GuardConfig   `yaml:"guard"`
}

// Client is a typed wrapper over one or more JSON-RPC endpoints. Every call
// goes through the rate-limit guard; when one endpoint stays throttled past
// the guard's retry budget the next endpoint is tried in order.
type Client struct {
	endpoints   []*solrpc.Client
	names       []string
	guard       *Guard
	commitment  solrpc.CommitmentType
	confirmPoll time.Duration
	confirmWait time.Duration
	log         *slog.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("no rpc endpoints configured")
	}
	commitment := solrpc.CommitmentConfirmed
	if cfg.Commitment == "finalized" {
		commitment = solrpc.CommitmentFinalized
	}
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = 2 * time.Second
	}
	if cfg.ConfirmWait <= 0 {
		cfg.ConfirmWait = 90 * time.Second
	}

	c := &Client{
		guard:       NewGuard(cfg.Guard),
		commitment:  commitment,
		confirmPoll: cfg.ConfirmPoll,
		confirmWait: cfg.ConfirmWait,
		log:         slog.Default().With("component", "rpc"),
	}
	for _, url := range cfg.Endpoints {
		c.endpoints = append(c.endpoints, solrpc.New(url))
		c.names = append(c.names, url)
	}
	return c, nil
}

// call runs fn against each endpoint in order, moving on only when an
// endpoint exhausts the guard's rate-limit budget.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context, ep *solrpc.Client) error) error {
	var lastErr error
	for i, ep := range c.endpoints {
		err := c.guard.Do(ctx, op, func(ctx context.Context) error {
			return fn(ctx, ep)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRateLimited(err) {
			return err
		}
		if i < len(c.endpoints)-1 {
			c.log.Warn("endpoint throttled, failing over", "op", op, "endpoint", c.names[i])
		}
	}
	return fmt.Errorf("all endpoints failed for %s: %w", op, lastErr)
}

// AccountData fetches raw account bytes. A missing account is (nil, nil).
func (c *Client) AccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	var out []byte
	err := c.call(ctx, "getAccountInfo", func(ctx context.Context, ep *solrpc.Client) error {
		res, err := ep.GetAccountInfoWithOpts(ctx, addr, &solrpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		})
		if err != nil {
			if errors.Is(err, solrpc.ErrNotFound) {
				out = nil
				return nil
			}
			return err
		}
		if res == nil || res.Value == nil {
			out = nil
			return nil
		}
		out = res.Value.Data.GetBinary()
		return nil
	})
	return out, err
}

// MultipleAccountData fetches raw bytes for several addresses in one call.
// Missing accounts come back as nil entries, positions preserved.
func (c *Client) MultipleAccountData(ctx context.Context, addrs []solana.PublicKey) ([][]byte, error) {
	out := make([][]byte, len(addrs))
	err := c.call(ctx, "getMultipleAccounts", func(ctx context.Context, ep *solrpc.Client) error {
		res, err := ep.GetMultipleAccountsWithOpts(ctx, addrs, &solrpc.GetMultipleAccountsOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		})
		if err != nil {
			return err
		}
		for i, acct := range res.Value {
			if acct == nil {
				out[i] = nil
				continue
			}
			out[i] = acct.Data.GetBinary()
		}
		return nil
	})
	return out, err
}

// ProgramAccounts fetches all program accounts whose first 8 bytes equal
// discriminator. When statusByte is non-nil an additional memcmp filter on
// statusOffset narrows the result server-side.
func (c *Client) ProgramAccounts(ctx context.Context, programID solana.PublicKey, discriminator []byte, statusOffset uint64, statusByte *byte) ([]KeyedAccount, error) {
	filters := []solrpc.RPCFilter{
		{Memcmp: &solrpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(discriminator)}},
	}
	if statusByte != nil {
		filters = append(filters, solrpc.RPCFilter{
			Memcmp: &solrpc.RPCFilterMemcmp{Offset: statusOffset, Bytes: solana.Base58([]byte{*statusByte})},
		})
	}

	var out []KeyedAccount
	err := c.call(ctx, "getProgramAccounts", func(ctx context.Context, ep *solrpc.Client) error {
		res, err := ep.GetProgramAccountsWithOpts(ctx, programID, &solrpc.GetProgramAccountsOpts{
			Commitment: c.commitment,
			Encoding:   solana.EncodingBase64,
			Filters:    filters,
		})
		if err != nil {
			return err
		}
		out = out[:0]
		for _, ka := range res {
			if ka == nil || ka.Account == nil {
				continue
			}
			out = append(out, KeyedAccount{
				Address: ka.Pubkey,
				Data:    ka.Account.Data.GetBinary(),
			})
		}
		return nil
	})
	return out, err
}

// TransactionAccountKeys returns every account referenced by the
// transaction with the given signature. Used by the ingestion fallback when
// log extraction fails.
func (c *Client) TransactionAccountKeys(ctx context.Context, sig solana.Signature) ([]solana.PublicKey, error) {
	var keys []solana.PublicKey
	err := c.call(ctx, "getTransaction", func(ctx context.Context, ep *solrpc.Client) error {
		res, err := ep.GetTransaction(ctx, sig, &solrpc.GetTransactionOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		})
		if err != nil {
			return err
		}
		if res == nil || res.Transaction == nil {
			keys = nil
			return nil
		}
		tx, err := res.Transaction.GetTransaction()
		if err != nil {
			return fmt.Errorf("decode transaction %s: %w", sig, err)
		}
		keys = tx.Message.AccountKeys
		return nil
	})
	return keys, err
}

// LatestBlockhash fetches a recent blockhash for transaction assembly.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.call(ctx, "getLatestBlockhash", func(ctx context.Context, ep *solrpc.Client) error {
		res, err := ep.GetLatestBlockhash(ctx, c.commitment)
		if err != nil {
			return err
		}
		hash = res.Value.Blockhash
		return nil
	})
	return hash, err
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := c.call(ctx, "sendTransaction", func(ctx context.Context, ep *solrpc.Client) error {
		s, err := ep.SendTransactionWithOpts(ctx, tx, solrpc.TransactionOpts{
			PreflightCommitment: c.commitment,
		})
		if err != nil {
			return err
		}
		sig = s
		return nil
	})
	return sig, err
}

// ConfirmTransaction polls signature status until the configured commitment
// is reached. A program error reported by the chain returns
// ErrChainRejected; timeouts and network failures return transient errors.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmWait)
	defer cancel()

	ticker := time.NewTicker(c.confirmPoll)
	defer ticker.Stop()

	for {
		var status *solrpc.SignatureStatusesResult
		err := c.call(ctx, "getSignatureStatuses", func(ctx context.Context, ep *solrpc.Client) error {
			res, err := ep.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				return err
			}
			if len(res.Value) > 0 {
				status = res.Value[0]
			}
			return nil
		})
		if err != nil {
			return err
		}

		if status != nil {
			if status.Err != nil {
				return fmt.Errorf("%w: %s: %v", ErrChainRejected, sig, status.Err)
			}
			if confirmed(status.ConfirmationStatus, c.commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation timed out for %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

func confirmed(got solrpc.ConfirmationStatusType, want solrpc.CommitmentType) bool {
	if got == solrpc.ConfirmationStatusFinalized {
		return true
	}
	return got == solrpc.ConfirmationStatusConfirmed && want != solrpc.CommitmentFinalized
}
