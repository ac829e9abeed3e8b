package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// HistoryPrefix is the Redis key prefix for channel history lists.
	HistoryPrefix = "history:"

	// DefaultHistoryDepth is how many events each channel retains.
	DefaultHistoryDepth = 200
)

// historyStore keeps a bounded per-channel event buffer in a Redis list,
// oldest at the head. Appends trim the list so the buffer never grows past
// its depth.
type historyStore struct {
	rdb   *redis.Client
	depth int64
}

func newHistoryStore(rdb *redis.Client, depth int64) *historyStore {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &historyStore{rdb: rdb, depth: depth}
}

func historyKey(channel string) string {
	return HistoryPrefix + channel
}

// append pushes a raw wire event onto the channel's buffer.
func (s *historyStore) append(ctx context.Context, channel string, raw []byte) error {
	key := historyKey(channel)
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, raw)
	pipe.LTrim(ctx, key, -s.depth, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("realtime: history append %s: %w", channel, err)
	}
	return nil
}

// page returns up to limit raw events, newest first.
func (s *historyStore) page(ctx context.Context, channel string, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = int(s.depth)
	}

	vals, err := s.rdb.LRange(ctx, historyKey(channel), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("realtime: history read %s: %w", channel, err)
	}

	// LRange yields oldest to newest; history pages are newest first.
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[len(vals)-1-i] = []byte(v)
	}
	return out, nil
}
