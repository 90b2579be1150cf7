package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// RedisStore shares limiter state between API instances. Each key holds
// the JSON encoded State and expires after the configured TTL.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Update reads, modifies and writes the state under WATCH, retrying when
// another instance wrote the key in between.
func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(*State)) error {
	fullKey := s.prefix + ":" + key

	txf := func(tx *redis.Tx) error {
		var st State
		raw, err := tx.Get(ctx, fullKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &st); err != nil {
				// corrupt entries are treated as a fresh client
				st = State{}
			}
		}

		fn(&st)

		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, data, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, fullKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: too much contention", fullKey)
}
