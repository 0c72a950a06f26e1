// Package lock serializes invoice generation runs.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker grants exclusive, expiring ownership of a key. TryLock never
// blocks: ok is false when another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

var (
	errEmptyKey   = errors.New("lock key is empty")
	errInvalidTTL = errors.New("lock ttl must be positive")
)

func checkArgs(key string, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	if ttl <= 0 {
		return errInvalidTTL
	}
	return nil
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	held  map[string]holder
	clock func() time.Time
}

type holder struct {
	token   string
	expires time.Time
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]holder), clock: time.Now}
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := checkArgs(key, ttl); err != nil {
		return "", false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = holder{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// Release frees key when token still owns it.
func (l *Local) Release(_ context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[key]; ok && h.token == token {
		delete(l.held, key)
	}
	return nil
}
