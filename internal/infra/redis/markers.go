package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MarkerStore mirrors fulfilled request identifiers to Redis so a restarted
// or co-deployed oracle can skip work already done. The chain remains the
// source of truth; markers only save RPC round trips.
type MarkerStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarkerStore creates a marker store. A zero TTL keeps markers for 24h.
func NewMarkerStore(client *Client, ttl time.Duration) *MarkerStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MarkerStore{rdb: client.rdb, ttl: ttl}
}

func markerKey(id string) string {
	return fmt.Sprintf("vrf:fulfilled:%s", id)
}

// Mark records a request identifier as fulfilled.
func (m *MarkerStore) Mark(ctx context.Context, id string) error {
	if err := m.rdb.SetNX(ctx, markerKey(id), time.Now().Unix(), m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set marker: %w", err)
	}
	return nil
}

// Seen reports whether a request identifier is already marked fulfilled.
func (m *MarkerStore) Seen(ctx context.Context, id string) (bool, error) {
	_, err := m.rdb.Get(ctx, markerKey(id)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get marker: %w", err)
	}
	return true, nil
}
