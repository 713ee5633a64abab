package vrf

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"

	coniksvrf "github.com/coniks-sys/coniks-go/crypto/vrf"
)

// Local computes ECVRF proofs in-process.
type Local struct {
	sk coniksvrf.PrivateKey
	pk coniksvrf.PublicKey
}

// NewLocal loads a raw 64-byte VRF secret key from path. An empty path
// generates an ephemeral key; proofs then verify only against the public
// key reported alongside them, which is fine for development but means a
// restart changes the oracle identity.
func NewLocal(path string) (*Local, error) {
	var sk coniksvrf.PrivateKey
	if path == "" {
		var err error
		sk, err = coniksvrf.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate vrf key: %w", err)
		}
	} else {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read vrf key: %w", err)
		}
		if len(raw) != coniksvrf.PrivateKeySize {
			return nil, fmt.Errorf("vrf key is %d bytes, want %d", len(raw), coniksvrf.PrivateKeySize)
		}
		sk = coniksvrf.PrivateKey(raw)
	}

	pk, ok := sk.Public()
	if !ok {
		return nil, fmt.Errorf("%w: cannot derive public key", ErrProofFailed)
	}
	return &Local{sk: sk, pk: pk}, nil
}

func (l *Local) Prove(ctx context.Context, seed [32]byte) (Proof, error) {
	if err := ctx.Err(); err != nil {
		return Proof{}, err
	}
	output, proof := l.sk.Prove(seed[:])
	if len(output) == 0 || len(proof) == 0 {
		return Proof{}, fmt.Errorf("%w: empty proof for seed", ErrProofFailed)
	}
	return Proof{Output: output, Proof: proof, PublicKey: []byte(l.pk)}, nil
}

// Verify checks a proof against this prover's public key. Exposed for tests
// and operational spot checks.
func (l *Local) Verify(seed [32]byte, p Proof) bool {
	return l.pk.Verify(seed[:], p.Output, p.Proof)
}
