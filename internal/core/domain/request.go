package domain

import (
	"github.com/gagliardetto/solana-go"
)

// RequestStatus is the on-chain lifecycle state of a randomness request.
// The oracle only ever observes it; the value flips on-chain when a
// fulfillment transaction lands.
type RequestStatus uint8

const (
	StatusPending RequestStatus = iota
	StatusFulfilled
	StatusCancelled
)

func (s RequestStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFulfilled:
		return "fulfilled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Valid reports whether the status byte is one the program can emit.
func (s RequestStatus) Valid() bool {
	return s <= StatusCancelled
}

// RandomnessRequest is one randomness request recorded on-chain.
type RandomnessRequest struct {
	// Address is the request account itself; it doubles as the dedup
	// identifier within this process.
	Address solana.PublicKey

	Subscription     solana.PublicKey
	Seed             [32]byte
	Requester        solana.PublicKey
	RequestBlock     uint64
	NumWords         uint32
	CallbackGasLimit uint64
	Nonce            uint64
	Commitment       [32]byte
	Status           RequestStatus
	CallbackData     []byte
}

// Fulfillable reports whether the oracle is allowed to act on this request.
func (r *RandomnessRequest) Fulfillable() bool {
	return r.Status == StatusPending
}

// Subscription is the funding/quota record owning one or more requests.
// Nonce increases monotonically and seeds successive request addresses.
type Subscription struct {
	Address       solana.PublicKey
	Owner         solana.PublicKey
	Balance       uint64
	MinBalance    uint64
	Confirmations uint8
	Nonce         uint64
}
