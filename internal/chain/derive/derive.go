// Package derive computes the program-derived addresses the randomness
// program uses for request and result accounts. Derivation must match the
// chain's canonical algorithm bit-exact, so the actual hashing is delegated
// to the SDK; this package owns the seed composition.
package derive

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	requestSeed = "vrf_request"
	resultSeed  = "vrf_result"
)

// RequestAddress derives the address of the request account created for
// the given subscription at the given nonce.
func RequestAddress(programID, subscription solana.PublicKey, nonce uint64) (solana.PublicKey, error) {
	seeds := [][]byte{
		[]byte(requestSeed),
		subscription.Bytes(),
		nonceBytes(nonce),
	}
	addr, _, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive request address (nonce %d): %w", nonce, err)
	}
	return addr, nil
}

// ResultAddress derives the address of the result account a fulfillment
// writes its proof output into.
func ResultAddress(programID, request solana.PublicKey) (solana.PublicKey, error) {
	seeds := [][]byte{
		[]byte(resultSeed),
		request.Bytes(),
	}
	addr, _, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive result address for %s: %w", request, err)
	}
	return addr, nil
}

// RequestLookback derives the request addresses for nonce, nonce-1, ...
// down to at most k steps back. Used by the scanner's cheap per-subscription
// check instead of a full program scan.
func RequestLookback(programID, subscription solana.PublicKey, nonce uint64, k int) ([]solana.PublicKey, error) {
	addrs := make([]solana.PublicKey, 0, k)
	for i := 0; i < k; i++ {
		n := nonce - uint64(i)
		addr, err := RequestAddress(programID, subscription, n)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
		if n == 0 {
			break
		}
	}
	return addrs, nil
}

func nonceBytes(nonce uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, nonce)
	return b
}
