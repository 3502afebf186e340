package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/common"
	"github.com/redis/go-redis/v9"
)

const DefaultChallengeTTL = 5 * time.Minute

// NonceStore keeps one outstanding login challenge per address. Take
// consumes it, so each challenge verifies at most once.
type NonceStore interface {
	Put(ctx context.Context, address, nonce string, ttl time.Duration) error
	// Take returns common.ErrChallengeExpired if no live nonce exists.
	Take(ctx context.Context, address string) (string, error)
}

// RedisClient is the part of *redis.Client used by RedisNonceStore.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

type RedisNonceStore struct {
	rdb RedisClient
}

func NewRedisNonceStore(rdb RedisClient) *RedisNonceStore {
	return &RedisNonceStore{rdb: rdb}
}

func nonceKey(address string) string { return "nonce:" + address }

func (s *RedisNonceStore) Put(ctx context.Context, address, nonce string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, nonceKey(address), nonce, ttl).Err(); err != nil {
		return fmt.Errorf("storing nonce: %w", err)
	}
	return nil
}

func (s *RedisNonceStore) Take(ctx context.Context, address string) (string, error) {
	nonce, err := s.rdb.GetDel(ctx, nonceKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", common.ErrChallengeExpired
	}
	if err != nil {
		return "", fmt.Errorf("reading nonce: %w", err)
	}
	return nonce, nil
}

// MemoryNonceStore is a NonceStore for single-instance deployments.
type MemoryNonceStore struct {
	mu      sync.Mutex
	entries map[string]memoryNonce
	now     func() time.Time
}

type memoryNonce struct {
	nonce   string
	expires time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{entries: map[string]memoryNonce{}, now: time.Now}
}

func (s *MemoryNonceStore) Put(_ context.Context, address, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
	s.entries[address] = memoryNonce{nonce: nonce, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryNonceStore) Take(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[address]
	delete(s.entries, address)
	if !ok || !s.now().Before(e.expires) {
		return "", common.ErrChallengeExpired
	}
	return e.nonce, nil
}
