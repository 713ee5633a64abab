package domain

import (
	"github.com/gagliardetto/solana-go"
)

// CandidateSource records which detection channel surfaced a candidate.
type CandidateSource string

const (
	SourceSubscription CandidateSource = "subscription"
	SourceScan         CandidateSource = "scan"
	SourceDerived      CandidateSource = "derived"
)

// Candidate is an unresolved request identifier flowing from the detection
// channels into the ingestion path. Exactly one of Address or Signature is
// meaningful: an address candidate points at a (possible) request account,
// a signature candidate marks a whole transaction for account-level
// inspection because log extraction failed.
type Candidate struct {
	Address   solana.PublicKey
	Signature solana.Signature
	Source    CandidateSource

	// Data carries raw account bytes when the producer already holds them
	// (the backup scanner does), saving the ingestion path a refetch.
	Data []byte
}

// ByAddress reports whether the candidate identifies a single account.
func (c Candidate) ByAddress() bool {
	return !c.Address.IsZero()
}
