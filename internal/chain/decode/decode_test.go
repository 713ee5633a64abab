package decode

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/soltide/vrf-oracle/internal/core/domain"
)

func sampleRequest() *domain.RandomnessRequest {
	req := &domain.RandomnessRequest{
		Address:          solana.NewWallet().PublicKey(),
		Subscription:     solana.NewWallet().PublicKey(),
		Requester:        solana.NewWallet().PublicKey(),
		RequestBlock:     123456,
		NumWords:         3,
		CallbackGasLimit: 200000,
		Nonce:            42,
		Status:           domain.StatusPending,
		CallbackData:     []byte{0xde, 0xad, 0xbe, 0xef},
	}
	for i := range req.Seed {
		req.Seed[i] = byte(i)
	}
	for i := range req.Commitment {
		req.Commitment[i] = byte(255 - i)
	}
	return req
}

func TestRequestRoundTrip(t *testing.T) {
	want := sampleRequest()
	data := EncodeRequest(want)

	got, err := Request(want.Address, data)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	if got.Subscription != want.Subscription {
		t.Errorf("subscription = %s, want %s", got.Subscription, want.Subscription)
	}
	if got.Seed != want.Seed {
		t.Errorf("seed mismatch")
	}
	if got.Requester != want.Requester {
		t.Errorf("requester mismatch")
	}
	if got.RequestBlock != want.RequestBlock {
		t.Errorf("request_block = %d, want %d", got.RequestBlock, want.RequestBlock)
	}
	if got.NumWords != want.NumWords {
		t.Errorf("num_words = %d, want %d", got.NumWords, want.NumWords)
	}
	if got.CallbackGasLimit != want.CallbackGasLimit {
		t.Errorf("callback_gas_limit = %d, want %d", got.CallbackGasLimit, want.CallbackGasLimit)
	}
	if got.Nonce != want.Nonce {
		t.Errorf("nonce = %d, want %d", got.Nonce, want.Nonce)
	}
	if got.Commitment != want.Commitment {
		t.Errorf("commitment mismatch")
	}
	if got.Status != domain.StatusPending {
		t.Errorf("status = %v, want pending", got.Status)
	}
	if string(got.CallbackData) != string(want.CallbackData) {
		t.Errorf("callback_data = %x, want %x", got.CallbackData, want.CallbackData)
	}
}

func TestSubscriptionRoundTrip(t *testing.T) {
	want := &domain.Subscription{
		Address:       solana.NewWallet().PublicKey(),
		Owner:         solana.NewWallet().PublicKey(),
		Balance:       1_000_000,
		MinBalance:    5_000,
		Confirmations: 2,
		Nonce:         17,
	}

	got, err := Subscription(want.Address, EncodeSubscription(want))
	if err != nil {
		t.Fatalf("Subscription: %v", err)
	}
	if got.Owner != want.Owner || got.Balance != want.Balance ||
		got.MinBalance != want.MinBalance || got.Confirmations != want.Confirmations ||
		got.Nonce != want.Nonce {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDiscriminatorRejection(t *testing.T) {
	data := EncodeRequest(sampleRequest())
	copy(data[:8], []byte("WHATEVER"))

	if _, err := Request(solana.PublicKey{}, data); !errors.Is(err, ErrWrongDiscriminator) {
		t.Errorf("Request with foreign tag: err = %v, want ErrWrongDiscriminator", err)
	}
	if _, err := Subscription(solana.PublicKey{}, data); !errors.Is(err, ErrWrongDiscriminator) {
		t.Errorf("Subscription with foreign tag: err = %v, want ErrWrongDiscriminator", err)
	}
}

func TestDecodeTagged(t *testing.T) {
	addr := solana.NewWallet().PublicKey()

	d, err := Decode(addr, EncodeRequest(sampleRequest()))
	if err != nil || d.Kind != KindRequest || d.Request == nil {
		t.Errorf("Decode(request) = %+v, %v", d, err)
	}

	d, err = Decode(addr, EncodeSubscription(&domain.Subscription{}))
	if err != nil || d.Kind != KindSubscription || d.Subscription == nil {
		t.Errorf("Decode(subscription) = %+v, %v", d, err)
	}

	d, err = Decode(addr, []byte("FOREIGN0 trailing bytes"))
	if err != nil || d.Kind != KindUnrecognized {
		t.Errorf("Decode(foreign) = %+v, %v, want unrecognized without error", d, err)
	}

	if _, err = Decode(addr, []byte{1, 2, 3}); !errors.Is(err, ErrShortDiscriminator) {
		t.Errorf("Decode(short) err = %v, want ErrShortDiscriminator", err)
	}
}

func TestTruncatedDataFailsClosed(t *testing.T) {
	full := EncodeRequest(sampleRequest())

	// Every truncation point past the discriminator must produce an error,
	// never a partially populated record.
	for cut := 8; cut < len(full); cut += 7 {
		if _, err := Request(solana.PublicKey{}, full[:cut]); err == nil {
			t.Errorf("Request with %d/%d bytes decoded without error", cut, len(full))
		}
	}
}

func TestCallbackLengthPastBuffer(t *testing.T) {
	req := sampleRequest()
	req.CallbackData = nil
	data := EncodeRequest(req)

	// Claim 100 callback bytes while providing none.
	data[len(data)-4] = 100

	if _, err := Request(solana.PublicKey{}, data); !errors.Is(err, ErrMalformed) {
		t.Errorf("oversized length: err = %v, want ErrMalformed", err)
	}
}

func TestUnknownStatusByte(t *testing.T) {
	req := sampleRequest()
	data := EncodeRequest(req)
	data[RequestStatusOffset] = 9

	if _, err := Request(solana.PublicKey{}, data); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("status 9: err = %v, want ErrUnknownStatus", err)
	}
}

func TestStatusOffsetMatchesLayout(t *testing.T) {
	req := sampleRequest()
	req.Status = domain.StatusCancelled
	data := EncodeRequest(req)

	if data[RequestStatusOffset] != byte(domain.StatusCancelled) {
		t.Errorf("status byte at offset %d = %d, want %d",
			RequestStatusOffset, data[RequestStatusOffset], domain.StatusCancelled)
	}
}
