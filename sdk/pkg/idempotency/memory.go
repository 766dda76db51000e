package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore 进程内 LRU，容量满时淘汰最久未用的 key；ttl<=0 的 key 不过期
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
	now   func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(size int) (*MemoryStore, error) {
	cache, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create idempotency cache: %w", err)
	}
	return &MemoryStore{cache: cache, now: time.Now}, nil
}

func (s *MemoryStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiresAt, ok := s.cache.Get(key); ok && (expiresAt.IsZero() || now.Before(expiresAt)) {
		return false, nil
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}
	s.cache.Add(key, expiresAt)
	return true, nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key)
	return nil
}

// Len 当前保存的 key 数量
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
