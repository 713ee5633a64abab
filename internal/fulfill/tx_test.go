package fulfill

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/soltide/vrf-oracle/internal/vrf"
)

func TestBuildInstruction(t *testing.T) {
	program := solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	req := testRequest()
	result := solana.NewWallet().PublicKey()
	oracle := solana.NewWallet().PublicKey()
	proof := vrf.Proof{Output: []byte("out"), Proof: []byte("proof"), PublicKey: []byte("pk")}

	instr, err := BuildInstruction(program, req, result, oracle, proof)
	if err != nil {
		t.Fatalf("BuildInstruction: %v", err)
	}

	data, err := instr.Data()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, fulfillTag) {
		t.Error("instruction data missing fulfill tag")
	}

	accounts := instr.Accounts()
	if len(accounts) != 5 {
		t.Fatalf("got %d accounts, want 5", len(accounts))
	}
	if accounts[0].PublicKey != req.Address || !accounts[0].IsWritable {
		t.Error("request account must be first and writable")
	}
	if accounts[3].PublicKey != oracle || !accounts[3].IsSigner {
		t.Error("oracle must be the signing account")
	}
}

func TestBuildInstructionRejectsEmptyProof(t *testing.T) {
	program := solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	_, err := BuildInstruction(program, testRequest(), solana.PublicKey{}, solana.PublicKey{}, vrf.Proof{})
	if err == nil {
		t.Error("expected error for empty proof")
	}
}
