package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"topictree/internal/treestore"
	"topictree/internal/util"
)

const (
	lockRetryInterval = 25 * time.Millisecond
	unlockTimeout     = 5 * time.Second
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a treestore.Locker shared by every process using the same Redis.
type Locker struct {
	client *redis.Client
	prefix string
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client, prefix: defaultPrefix + "lock:"}
}

// Lock polls SET NX until it wins or ctx ends. The lock expires after ttl
// if the holder never releases it.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (treestore.UnlockFunc, error) {
	token := util.NewID("")
	lockKey := l.prefix + key

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
