package fulfill

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/soltide/vrf-oracle/internal/core/domain"
	"github.com/soltide/vrf-oracle/internal/vrf"
)

// fulfillTag identifies the FulfillRandomness instruction to the program.
var fulfillTag = []byte("FULFILL\x00")

// BuildInstruction assembles the fulfillment instruction for one request.
// The data carries the proof, the verifiable output, and the prover's
// public key; the program verifies the proof against the stored commitment
// before writing the result account.
func BuildInstruction(
	programID solana.PublicKey,
	req *domain.RandomnessRequest,
	resultAddress, oracle solana.PublicKey,
	proof vrf.Proof,
) (solana.Instruction, error) {
	if len(proof.Proof) == 0 {
		return nil, fmt.Errorf("empty proof for request %s", req.Address)
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)

	if err := enc.WriteBytes(fulfillTag, false); err != nil {
		return nil, err
	}
	for _, chunk := range [][]byte{proof.Proof, proof.Output, proof.PublicKey} {
		if err := enc.WriteUint32(uint32(len(chunk)), bin.LE); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes(chunk, false); err != nil {
			return nil, err
		}
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(req.Address).WRITE(),
		solana.Meta(req.Subscription).WRITE(),
		solana.Meta(resultAddress).WRITE(),
		solana.Meta(oracle).SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}

	return solana.NewInstruction(programID, accounts, buf.Bytes()), nil
}
