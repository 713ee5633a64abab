// Package vrf provides the proof capability the fulfillment pipeline calls.
// Proof computation itself is a collaborator: it may run in-process (Local)
// or behind an HTTP endpoint (Remote). Failures are typed errors, never a
// crash.
package vrf

import (
	"context"
	"errors"
)

// ErrProofFailed wraps any failure of the proof collaborator.
var ErrProofFailed = errors.New("vrf proof computation failed")

// Proof is the result of proving a seed: the verifiable output, the proof
// bytes, and the prover's public key for on-chain verification.
type Proof struct {
	Output    []byte
	Proof     []byte
	PublicKey []byte
}

// Prover computes a VRF proof for a 32-byte seed.
type Prover interface {
	Prove(ctx context.Context, seed [32]byte) (Proof, error)
}
