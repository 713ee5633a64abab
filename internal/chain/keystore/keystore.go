// Package keystore loads the oracle's signing keypairs from disk.
//
// Two formats are accepted: the standard solana-keygen JSON array of 64
// secret-key bytes, and a JSON object carrying a "secretKey" field (either
// the same byte array or a base58 string). Anything else is a load error.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gagliardetto/solana-go"
)

var ErrUnsupportedFormat = errors.New("unsupported keystore format")

const secretKeyLen = 64

// Keystore holds one signing keypair and remembers where it came from so
// the key can be reloaded explicitly after a signing failure.
type Keystore struct {
	path string

	mu  sync.RWMutex
	key solana.PrivateKey
}

// Open loads the keypair at path. A missing or malformed file is a fatal
// configuration error for the caller.
func Open(path string) (*Keystore, error) {
	key, err := load(path)
	if err != nil {
		return nil, err
	}
	return &Keystore{path: path, key: key}, nil
}

// Key returns the current keypair. Safe for concurrent use; signing is a
// pure function of the transaction bytes so callers may share the result.
func (k *Keystore) Key() solana.PrivateKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key
}

// PublicKey returns the public half of the current keypair.
func (k *Keystore) PublicKey() solana.PublicKey {
	return k.Key().PublicKey()
}

// Reload re-reads the key file. Invoked by the fulfillment pipeline's error
// handler as a recoverable operation, never as a transport side effect.
func (k *Keystore) Reload() error {
	key, err := load(k.path)
	if err != nil {
		return fmt.Errorf("reload %s: %w", k.path, err)
	}
	k.mu.Lock()
	k.key = key
	k.mu.Unlock()
	return nil
}

func load(path string) (solana.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}

	// Format 1: bare JSON array of secret-key bytes. Decoded as []int
	// because encoding/json treats []byte as base64.
	var arr []int
	if err := json.Unmarshal(raw, &arr); err == nil {
		return fromInts(arr)
	}

	// Format 2: JSON object with a secretKey field.
	var obj struct {
		SecretKey json.RawMessage `json:"secretKey"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj.SecretKey) > 0 {
		if err := json.Unmarshal(obj.SecretKey, &arr); err == nil {
			return fromInts(arr)
		}
		var b58 string
		if err := json.Unmarshal(obj.SecretKey, &b58); err == nil {
			key, err := solana.PrivateKeyFromBase58(b58)
			if err != nil {
				return nil, fmt.Errorf("%w: bad base58 secretKey: %v", ErrUnsupportedFormat, err)
			}
			return key, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

func fromInts(arr []int) (solana.PrivateKey, error) {
	if len(arr) != secretKeyLen {
		return nil, fmt.Errorf("%w: secret key is %d bytes, want %d", ErrUnsupportedFormat, len(arr), secretKeyLen)
	}
	b := make([]byte, secretKeyLen)
	for i, v := range arr {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: secret key byte out of range", ErrUnsupportedFormat)
		}
		b[i] = byte(v)
	}
	return solana.PrivateKey(b), nil
}
