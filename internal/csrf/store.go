package csrf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrInvalidToken = errors.New("csrf token invalid or already used")

// Store issues and redeems single-use form tokens. A token is bound to the
// client fingerprint it was issued for and is consumed on first redemption.
type Store interface {
	Issue(ctx context.Context, clientKey string) (string, error)
	Redeem(ctx context.Context, clientKey, token string) error
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Issue(ctx context.Context, clientKey string) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, tokenKey(token), clientKey, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("issue csrf token: %w", err)
	}
	return token, nil
}

// Redeem consumes the token. GETDEL makes redemption atomic, so two requests
// racing on the same token cannot both pass.
func (s *RedisStore) Redeem(ctx context.Context, clientKey, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	boundTo, err := s.client.GetDel(ctx, tokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrInvalidToken
		}
		return fmt.Errorf("redeem csrf token: %w", err)
	}

	if boundTo != clientKey {
		return ErrInvalidToken
	}
	return nil
}

func tokenKey(token string) string {
	return "csrf:token:" + token
}

// Fingerprint derives the client key a token is bound to from the request's
// remote address and user agent.
func Fingerprint(remoteAddr, userAgent string) string {
	sum := sha256.Sum256([]byte(remoteAddr + "|" + userAgent))
	return hex.EncodeToString(sum[:16])
}
