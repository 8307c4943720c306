package cipher

import (
	"crypto/sha1"
	"encoding/hex"
	"sync"
)

// Fingerprint returns the cache key of one player script version: the SHA-1
// of its full text, hex encoded.
func Fingerprint(js string) string {
	h := sha1.Sum([]byte(js))
	return hex.EncodeToString(h[:])
}

// Cache memoizes compiled Ciphers by script content hash. It is an explicit
// value owned by the caller, not package state. The first caller for a key
// compiles; concurrent callers for the same key wait on the entry's once and
// share the result, including a compilation error.
type Cache struct {
	opts []Option

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once   sync.Once
	cipher *Cipher
	err    error
}

// NewCache creates a cipher cache. The options are applied to every Cipher
// the cache constructs.
func NewCache(opts ...Option) *Cache {
	return &Cache{opts: opts, entries: make(map[string]*cacheEntry)}
}

// Get returns the Cipher compiled from js, constructing it once per distinct
// script text.
func (c *Cache) Get(js string) (*Cipher, error) {
	key := Fingerprint(js)

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.cipher, e.err = New(js, c.opts...)
	})
	return e.cipher, e.err
}

// Len reports the number of distinct script versions seen.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Forget drops the entry for one script text, forcing recompilation on the
// next Get. Useful after an EVALUATION_TIMEOUT, which is safe to retry only
// against a freshly compiled program.
func (c *Cache) Forget(js string) {
	c.mu.Lock()
	delete(c.entries, Fingerprint(js))
	c.mu.Unlock()
}
