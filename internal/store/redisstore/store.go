package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// AllowTurn is a fixed-window rate limit on turns per thread. The first hit in
// a window sets the expiry; the call reports whether the caller is under limit.
func (s *Store) AllowTurn(ctx context.Context, threadID string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf("rl:turn:%s", threadID)

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(limit), nil
}
