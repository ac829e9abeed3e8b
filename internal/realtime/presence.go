package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PresencePrefix is the Redis key prefix for channel rosters.
const PresencePrefix = "presence:"

// presenceStore keeps each channel's roster in a Redis hash keyed by client
// id. The hash is the authoritative snapshot: readers take the whole thing
// rather than applying deltas.
type presenceStore struct {
	rdb *redis.Client
}

func newPresenceStore(rdb *redis.Client) *presenceStore {
	return &presenceStore{rdb: rdb}
}

func presenceKey(channel string) string {
	return PresencePrefix + channel
}

func (s *presenceStore) enter(ctx context.Context, channel, clientID string, data []byte) error {
	if err := s.rdb.HSet(ctx, presenceKey(channel), clientID, data).Err(); err != nil {
		return fmt.Errorf("realtime: presence enter %s: %w", channel, err)
	}
	return nil
}

func (s *presenceStore) leave(ctx context.Context, channel, clientID string) error {
	if err := s.rdb.HDel(ctx, presenceKey(channel), clientID).Err(); err != nil {
		return fmt.Errorf("realtime: presence leave %s: %w", channel, err)
	}
	return nil
}

func (s *presenceStore) roster(ctx context.Context, channel string) ([]PresenceMember, error) {
	entries, err := s.rdb.HGetAll(ctx, presenceKey(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("realtime: presence get %s: %w", channel, err)
	}

	members := make([]PresenceMember, 0, len(entries))
	for clientID, data := range entries {
		members = append(members, PresenceMember{ClientID: clientID, Data: []byte(data)})
	}
	return members, nil
}
