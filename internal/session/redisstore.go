package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisGetter is the subset of *redis.Client used by RedisStore.
type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// redisSession is the JSON document an auth service stores per session.
type redisSession struct {
	Subject     string    `json:"subject,omitempty"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// RedisStore serves sessions written to Redis by an external auth service.
type RedisStore struct {
	client     redisGetter
	prefix     string
	cookieName string
}

// NewRedisStore creates a RedisStore. Keys are prefix + cookie value.
func NewRedisStore(client *redis.Client, prefix, cookieName string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, cookieName: cookieName}
}

// GetSession implements Provider.
func (s *RedisStore) GetSession(r *http.Request) (*Session, error) {
	id := sessionID(r, s.cookieName)
	if id == "" {
		return nil, nil
	}

	raw, err := s.client.Get(r.Context(), s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var doc redisSession
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &Session{Subject: doc.Subject, AccessToken: doc.AccessToken, Expiry: doc.ExpiresAt}, nil
}
