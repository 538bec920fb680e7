package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringService is the keyring service name session entries are stored under.
const KeyringService = "sfexplain-session"

// Cache stores sessions keyed by normalised API host.
type Cache interface {
	Get(host string) (Session, bool)
	Put(host string, s Session) error
	Delete(host string) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{sessions: make(map[string]Session)}
}

func (c *MemoryCache) Get(host string) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[host]
	return s, ok
}

func (c *MemoryCache) Put(host string, s Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[host] = s
	return nil
}

func (c *MemoryCache) Delete(host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, host)
	return nil
}

// KeyringCache persists sessions in the OS keyring so they survive between
// CLI invocations for the length of the TTL.
type KeyringCache struct {
	service string
}

// NewKeyringCache creates a KeyringCache under KeyringService.
func NewKeyringCache() *KeyringCache {
	return &KeyringCache{service: KeyringService}
}

func (c *KeyringCache) Get(host string) (Session, bool) {
	raw, err := keyring.Get(c.service, host)
	if err != nil {
		return Session{}, false
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, false
	}
	return s, true
}

func (c *KeyringCache) Put(host string, s Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := keyring.Set(c.service, host, string(b)); err != nil {
		return fmt.Errorf("failed to store session in keyring: %w", err)
	}
	return nil
}

func (c *KeyringCache) Delete(host string) error {
	err := keyring.Delete(c.service, host)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete session from keyring: %w", err)
	}
	return nil
}
