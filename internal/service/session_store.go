package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"coglex/internal/domain"
)

// ErrSessionNotFound indica que el id de cookie no corresponde a una sesión emitida o vigente.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore guarda sesiones del lado servidor indexadas por id de cookie.
type SessionStore interface {
	Load(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type memorySession struct {
	session *domain.Session
	expires time.Time
}

type memorySessionStore struct {
	mu    sync.Mutex
	items map[string]memorySession
}

func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		items: make(map[string]memorySession),
	}
}

func (s *memorySessionStore) Load(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if time.Now().UTC().After(item.expires) {
		delete(s.items, id)
		return nil, ErrSessionNotFound
	}
	return item.session.Clone(), nil
}

func (s *memorySessionStore) Save(_ context.Context, session *domain.Session, ttl time.Duration) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[session.ID] = memorySession{session: session.Clone(), expires: time.Now().UTC().Add(ttl)}
	return nil
}

func (s *memorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

type redisKVClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisSessionStore struct {
	client  redisKVClient
	prefix  string
	timeout time.Duration
}

func NewRedisSessionStore(client *redis.Client) SessionStore {
	if client == nil {
		return nil
	}
	return &redisSessionStore{
		client:  client,
		prefix:  "auth:session:",
		timeout: 500 * time.Millisecond,
	}
}

func (s *redisSessionStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	sess := domain.NewSession(id)
	if err := json.Unmarshal(raw, sess); err != nil {
		return nil, ErrSessionNotFound
	}
	sess.ID = id
	if sess.Tokens == nil {
		sess.Tokens = make(map[string]string)
	}
	return sess, nil
}

func (s *redisSessionStore) Save(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Set(ctx, s.prefix+strings.TrimSpace(session.ID), payload, ttl).Err()
}

func (s *redisSessionStore) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Del(ctx, s.prefix+id).Err()
}
