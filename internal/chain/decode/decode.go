// Package decode turns raw account bytes into typed records.
//
// Every account owned by the randomness program starts with an 8-byte
// ASCII discriminator identifying its type. Decoding is offset-based and
// fixed-order: little-endian integers, fixed-length arrays copied verbatim,
// variable-length byte slices prefixed with a u32 length. Anything short or
// inconsistent is an error, never a panic.
package decode

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/soltide/vrf-oracle/internal/core/domain"
)

var (
	// DiscriminatorRequest tags randomness request accounts.
	DiscriminatorRequest = [8]byte{'R', 'E', 'Q', 'U', 'E', 'S', 'T', 0}
	// DiscriminatorSubscription tags subscription accounts.
	DiscriminatorSubscription = [8]byte{'S', 'U', 'B', 'S', 'C', 'R', 'I', 'P'}
)

// RequestStatusOffset is the byte offset of the status field inside a
// request account, used by the scanner's memcmp filter.
// 8 (discriminator) + 32 + 32 + 32 + 8 + 4 + 8 + 8 + 32.
const RequestStatusOffset = 164

// RequestMinSize is the size of a request account with empty callback data.
const RequestMinSize = RequestStatusOffset + 1 + 4

var (
	ErrMalformed          = errors.New("malformed account data")
	ErrWrongDiscriminator = errors.New("discriminator mismatch")
	ErrUnknownStatus      = errors.New("unknown status byte")
	ErrShortDiscriminator = errors.New("data shorter than discriminator")
)

// Kind tags the outcome of the generic Decode entry point.
type Kind int

const (
	KindRequest Kind = iota
	KindSubscription
	KindUnrecognized
)

// Decoded is the tagged result of decoding arbitrary program account bytes.
// Exactly one of Request/Subscription is non-nil for the matching Kind.
type Decoded struct {
	Kind         Kind
	Request      *domain.RandomnessRequest
	Subscription *domain.Subscription
}

// Decode inspects the discriminator and dispatches to the matching typed
// decoder. Accounts with an unknown discriminator come back as
// KindUnrecognized with a nil error so callers can skip them quietly;
// accounts that match a known discriminator but fail field decode are
// malformed and return an error.
func Decode(addr solana.PublicKey, data []byte) (Decoded, error) {
	if len(data) < 8 {
		return Decoded{}, fmt.Errorf("%w: %d bytes", ErrShortDiscriminator, len(data))
	}
	switch {
	case bytes.Equal(data[:8], DiscriminatorRequest[:]):
		req, err := Request(addr, data)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: KindRequest, Request: req}, nil
	case bytes.Equal(data[:8], DiscriminatorSubscription[:]):
		sub, err := Subscription(addr, data)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: KindSubscription, Subscription: sub}, nil
	default:
		return Decoded{Kind: KindUnrecognized}, nil
	}
}

// Request decodes a randomness request account. The discriminator must match.
func Request(addr solana.PublicKey, data []byte) (*domain.RandomnessRequest, error) {
	if err := checkDiscriminator(data, DiscriminatorRequest); err != nil {
		return nil, err
	}

	dec := bin.NewBinDecoder(data[8:])
	req := &domain.RandomnessRequest{Address: addr}

	if err := readKey(dec, &req.Subscription); err != nil {
		return nil, malformed("subscription", err)
	}
	if err := read32(dec, &req.Seed); err != nil {
		return nil, malformed("seed", err)
	}
	if err := readKey(dec, &req.Requester); err != nil {
		return nil, malformed("requester", err)
	}

	var err error
	if req.RequestBlock, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, malformed("request_block", err)
	}
	if req.NumWords, err = dec.ReadUint32(bin.LE); err != nil {
		return nil, malformed("num_words", err)
	}
	if req.CallbackGasLimit, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, malformed("callback_gas_limit", err)
	}
	if req.Nonce, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, malformed("nonce", err)
	}
	if err = read32(dec, &req.Commitment); err != nil {
		return nil, malformed("commitment", err)
	}

	status, err := dec.ReadUint8()
	if err != nil {
		return nil, malformed("status", err)
	}
	req.Status = domain.RequestStatus(status)
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownStatus, status)
	}

	cbLen, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, malformed("callback_data length", err)
	}
	if uint64(cbLen) > uint64(dec.Remaining()) {
		return nil, malformed("callback_data", fmt.Errorf("length %d exceeds remaining %d", cbLen, dec.Remaining()))
	}
	if req.CallbackData, err = dec.ReadNBytes(int(cbLen)); err != nil {
		return nil, malformed("callback_data", err)
	}

	return req, nil
}

// Subscription decodes a subscription account. The discriminator must match.
func Subscription(addr solana.PublicKey, data []byte) (*domain.Subscription, error) {
	if err := checkDiscriminator(data, DiscriminatorSubscription); err != nil {
		return nil, err
	}

	dec := bin.NewBinDecoder(data[8:])
	sub := &domain.Subscription{Address: addr}

	if err := readKey(dec, &sub.Owner); err != nil {
		return nil, malformed("owner", err)
	}

	var err error
	if sub.Balance, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, malformed("balance", err)
	}
	if sub.MinBalance, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, malformed("min_balance", err)
	}
	if sub.Confirmations, err = dec.ReadUint8(); err != nil {
		return nil, malformed("confirmations", err)
	}
	if sub.Nonce, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, malformed("nonce", err)
	}

	return sub, nil
}

func checkDiscriminator(data []byte, want [8]byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: %d bytes", ErrShortDiscriminator, len(data))
	}
	if !bytes.Equal(data[:8], want[:]) {
		return fmt.Errorf("%w: got %q", ErrWrongDiscriminator, data[:8])
	}
	return nil
}

func readKey(dec *bin.Decoder, out *solana.PublicKey) error {
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return err
	}
	copy(out[:], b)
	return nil
}

func read32(dec *bin.Decoder, out *[32]byte) error {
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return err
	}
	copy(out[:], b)
	return nil
}

func malformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
}
