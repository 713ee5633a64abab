package vrf

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Remote calls an external proving service over HTTP JSON. The service
// contract is a single POST endpoint taking a base64 seed and returning
// base64 proof material.
type Remote struct {
	url    string
	client *http.Client
}

func NewRemote(url string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type proveRequest struct {
	Seed string `json:"seed"`
}

type proveResponse struct {
	Output    string `json:"output"`
	Proof     string `json:"proof"`
	PublicKey string `json:"publicKey"`
	Error     string `json:"error,omitempty"`
}

func (r *Remote) Prove(ctx context.Context, seed [32]byte) (Proof, error) {
	body, err := json.Marshal(proveRequest{Seed: base64.StdEncoding.EncodeToString(seed[:])})
	if err != nil {
		return Proof{}, fmt.Errorf("%w: %v", ErrProofFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return Proof{}, fmt.Errorf("%w: %v", ErrProofFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Proof{}, fmt.Errorf("%w: %v", ErrProofFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Proof{}, fmt.Errorf("%w: prover returned %s", ErrProofFailed, resp.Status)
	}

	var pr proveResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Proof{}, fmt.Errorf("%w: bad response: %v", ErrProofFailed, err)
	}
	if pr.Error != "" {
		return Proof{}, fmt.Errorf("%w: %s", ErrProofFailed, pr.Error)
	}

	out, err := decodeB64(pr.Output)
	if err != nil {
		return Proof{}, err
	}
	proof, err := decodeB64(pr.Proof)
	if err != nil {
		return Proof{}, err
	}
	pub, err := decodeB64(pr.PublicKey)
	if err != nil {
		return Proof{}, err
	}
	return Proof{Output: out, Proof: proof, PublicKey: pub}, nil
}

func decodeB64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 in response: %v", ErrProofFailed, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty field in response", ErrProofFailed)
	}
	return b, nil
}
