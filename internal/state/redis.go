package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each set as a Redis list under <prefix>:<name>.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps an existing client. The backend owns the client and
// closes it on Close.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, prefix string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisBackend(client, prefix), nil
}

func (b *RedisBackend) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + ":" + name
}

// Load returns the list stored under name.
func (b *RedisBackend) Load(ctx context.Context, name string) ([]string, error) {
	key := b.key(name)

	exists, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("exists %s: %w", key, err)
	}
	if exists == 0 {
		return nil, nil
	}

	ids, err := b.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if strings.HasPrefix(err.Error(), "WRONGTYPE") {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
		}
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return ids, nil
}

// Save replaces the list under name in a single MULTI/EXEC.
func (b *RedisBackend) Save(ctx context.Context, name string, ids []string) error {
	key := b.key(name)

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(ids) > 0 {
			values := make([]any, len(ids))
			for i, id := range ids {
				values[i] = id
			}
			pipe.RPush(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
