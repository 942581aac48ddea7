package source

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// DefaultCacheTTL is spec §6.5's default floating-reference staleness
// window.
const DefaultCacheTTL = 24 * time.Hour

// CacheEntry is spec §6.5's metadata record for one fetched source.
type CacheEntry struct {
	Key         string    `json:"key"`
	Dir         string    `json:"dir"`
	ContentHash string    `json:"content_hash"`
	FetchedAt   time.Time `json:"fetched_at"`
	Pinned      bool      `json:"pinned"`
}

// Cache is the content-addressed on-disk cache for fetched remote sources
// (spec §6.5), keyed by a normalized reference plus version/commit.
type Cache struct {
	root string
	ttl  time.Duration
}

// NewCache returns a Cache rooted at root with the given TTL (zero means
// DefaultCacheTTL).
func NewCache(root string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{root: root, ttl: ttl}
}

// Key computes the content-addressing key for a normalized reference plus
// an optional version/commit qualifier (spec §6.5: "a normalized
// reference plus version/commit").
func Key(normalizedRef, versionOrCommit string) string {
	sum := sha256.Sum256([]byte(normalizedRef + "@" + versionOrCommit))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.root, key, "entry.json")
}

// Dir returns the directory a cache entry's fetched content lives in.
func (c *Cache) Dir(key string) string {
	return filepath.Join(c.root, key, "content")
}

// Lookup returns the entry for key if present and not stale. Pinned
// entries (a specific commit/tag, not a floating branch) never expire
// (spec §6.5: "pinned references never expire").
func (c *Cache) Lookup(key string) (CacheEntry, bool) {
	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		return CacheEntry{}, false
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return CacheEntry{}, false
	}
	if !entry.Pinned && time.Since(entry.FetchedAt) > c.ttl {
		return CacheEntry{}, false
	}
	if _, err := os.Stat(entry.Dir); err != nil {
		return CacheEntry{}, false
	}
	return entry, true
}

// Put records a freshly fetched entry's metadata.
func (c *Cache) Put(entry CacheEntry) error {
	if err := os.MkdirAll(filepath.Dir(c.entryPath(entry.Key)), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.entryPath(entry.Key), data, 0o644)
}
