package decode

import (
	"bytes"

	bin "github.com/gagliardetto/binary"

	"github.com/soltide/vrf-oracle/internal/core/domain"
)

// EncodeRequest serializes a request using the canonical account layout.
// The program is the only writer of these accounts in production; this
// encoder exists for tests and local fixtures.
func EncodeRequest(req *domain.RandomnessRequest) []byte {
	var buf bytes.Buffer
	enc := bin.NewBinEncoder(&buf)

	_ = enc.WriteBytes(DiscriminatorRequest[:], false)
	_ = enc.WriteBytes(req.Subscription.Bytes(), false)
	_ = enc.WriteBytes(req.Seed[:], false)
	_ = enc.WriteBytes(req.Requester.Bytes(), false)
	_ = enc.WriteUint64(req.RequestBlock, bin.LE)
	_ = enc.WriteUint32(req.NumWords, bin.LE)
	_ = enc.WriteUint64(req.CallbackGasLimit, bin.LE)
	_ = enc.WriteUint64(req.Nonce, bin.LE)
	_ = enc.WriteBytes(req.Commitment[:], false)
	_ = enc.WriteByte(byte(req.Status))
	_ = enc.WriteUint32(uint32(len(req.CallbackData)), bin.LE)
	_ = enc.WriteBytes(req.CallbackData, false)

	return buf.Bytes()
}

// EncodeSubscription serializes a subscription using the canonical layout.
func EncodeSubscription(sub *domain.Subscription) []byte {
	var buf bytes.Buffer
	enc := bin.NewBinEncoder(&buf)

	_ = enc.WriteBytes(DiscriminatorSubscription[:], false)
	_ = enc.WriteBytes(sub.Owner.Bytes(), false)
	_ = enc.WriteUint64(sub.Balance, bin.LE)
	_ = enc.WriteUint64(sub.MinBalance, bin.LE)
	_ = enc.WriteByte(sub.Confirmations)
	_ = enc.WriteUint64(sub.Nonce, bin.LE)

	return buf.Bytes()
}
