package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BlockStore holds short-lived dedup keys for the view tracker.
type BlockStore interface {
	// Claim atomically checks that none of keys exist and, if so, sets all of
	// them with ttl. It returns false when at least one key was already set.
	Claim(ctx context.Context, keys []string, ttl time.Duration) (bool, error)
}

// claimScript runs check-all/set-all as one step so concurrent requests
// cannot both observe "absent".
var claimScript = redis.NewScript(`
for _, key in ipairs(KEYS) do
	if redis.call('EXISTS', key) == 1 then
		return 0
	end
end
for _, key in ipairs(KEYS) do
	redis.call('SET', key, ARGV[1], 'PX', ARGV[2])
end
return 1
`)

const blockSentinel = "1"

type blockStore struct {
	redis *RedisDB
}

func NewBlockStore(redis *RedisDB) BlockStore {
	return &blockStore{redis: redis}
}

func (s *blockStore) Claim(ctx context.Context, keys []string, ttl time.Duration) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}

	res, err := claimScript.Run(ctx, s.redis.Client, keys, blockSentinel, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim block keys: %w", err)
	}

	return res == 1, nil
}
