package tokens

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

// Token is a host-scoped opaque credential with a bounded lifetime.
type Token struct {
	Host     string        `json:"host"`
	Value    string        `json:"value"`
	IssuedAt time.Time     `json:"issued_at"`
	TTL      time.Duration `json:"ttl"`
}

// ExpiresAt returns the instant the token stops being valid.
func (t Token) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.TTL)
}

// Remaining returns the token lifetime left at now.
func (t Token) Remaining(now time.Time) time.Duration {
	return t.ExpiresAt().Sub(now)
}

// Cache stores per-host auth tokens encrypted at rest. TTL is enforced at
// read time rather than by a background sweep, which keeps the cache free
// of timer-driven mutation races. One instance is created explicitly at
// daemon start and passed to the components that need it.
type Cache struct {
	mu     sync.Mutex
	path   string
	key    [32]byte
	tokens map[string]Token
	now    func() time.Time
}

const keyFileName = "tokens.key"

// Open loads (or initializes) the encrypted token cache under dir. The
// encryption key lives next to the cache file and is created on first use.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure token directory: %w", err)
	}

	cache := &Cache{
		path:   filepath.Join(dir, "tokens.dat"),
		tokens: make(map[string]Token),
		now:    time.Now,
	}
	if err := cache.loadKey(filepath.Join(dir, keyFileName)); err != nil {
		return nil, err
	}
	if err := cache.load(); err != nil {
		return nil, err
	}
	return cache, nil
}

func (c *Cache) loadKey(path string) error {
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(raw) != len(c.key) {
			return fmt.Errorf("token key file %s has unexpected size %d", path, len(raw))
		}
		copy(c.key[:], raw)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if _, err := rand.Read(c.key[:]); err != nil {
			return fmt.Errorf("generate token key: %w", err)
		}
		if err := os.WriteFile(path, c.key[:], 0o600); err != nil {
			return fmt.Errorf("write token key: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("read token key: %w", err)
	}
}

func (c *Cache) load() error {
	sealed, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read token cache: %w", err)
	}
	if len(sealed) < 24 {
		return errors.New("token cache file truncated")
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &c.key)
	if !ok {
		return errors.New("token cache decryption failed")
	}

	var tokens map[string]Token
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return fmt.Errorf("decode token cache: %w", err)
	}
	c.tokens = tokens
	return nil
}

func (c *Cache) persistLocked() error {
	plain, err := json.Marshal(c.tokens)
	if err != nil {
		return fmt.Errorf("encode token cache: %w", err)
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &c.key)
	if err := os.WriteFile(c.path, sealed, 0o600); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}
	return nil
}

// Get returns the token for host. A token past its TTL is treated as absent
// and removed, so callers never read a stale credential.
func (c *Cache) Get(host string) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, ok := c.tokens[host]
	if !ok {
		return Token{}, false
	}
	if token.TTL <= 0 || !c.now().Before(token.ExpiresAt()) {
		delete(c.tokens, host)
		_ = c.persistLocked()
		return Token{}, false
	}
	return token, true
}

// NeedsRefresh reports whether host has no usable token once the proactive
// refresh margin is applied. A token that would expire within slack is
// refreshed before starting a transfer rather than mid-flight.
func (c *Cache) NeedsRefresh(host string, slack time.Duration) bool {
	token, ok := c.Get(host)
	if !ok {
		return true
	}
	return token.Remaining(c.now()) < slack
}

// Put stores a fresh token for host.
func (c *Cache) Put(host, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokens[host] = Token{
		Host:     host,
		Value:    value,
		IssuedAt: c.now(),
		TTL:      ttl,
	}
	return c.persistLocked()
}

// Close flushes the cache to disk. Mutations persist eagerly, so this is a
// final sync for shutdown paths.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistLocked()
}

// Invalidate drops the token for host, typically after the host rejected it.
func (c *Cache) Invalidate(host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tokens[host]; !ok {
		return nil
	}
	delete(c.tokens, host)
	return c.persistLocked()
}
