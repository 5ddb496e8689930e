package csrf

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store for development and tests. Not for
// multi-instance deployments; use RedisStore there.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]memoryToken
	now    func() time.Time
}

type memoryToken struct {
	clientKey string
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:    ttl,
		tokens: make(map[string]memoryToken),
		now:    time.Now,
	}
}

func (s *MemoryStore) Issue(_ context.Context, clientKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	token := uuid.NewString()
	s.tokens[token] = memoryToken{clientKey: clientKey, expiresAt: s.now().Add(s.ttl)}
	return token, nil
}

func (s *MemoryStore) Redeem(_ context.Context, clientKey, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[token]
	if !ok {
		return ErrInvalidToken
	}
	delete(s.tokens, token)

	if s.now().After(entry.expiresAt) || entry.clientKey != clientKey {
		return ErrInvalidToken
	}
	return nil
}

// sweep drops expired entries; called under the lock on each Issue.
func (s *MemoryStore) sweep() {
	now := s.now()
	for token, entry := range s.tokens {
		if now.After(entry.expiresAt) {
			delete(s.tokens, token)
		}
	}
}
