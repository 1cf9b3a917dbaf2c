// Package cache provides caching for dataset payloads and small
// metadata responses.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	PayloadSizeMB int
	PayloadTTL    time.Duration
	MetaCacheSize int
}

// Manager manages the payload and metadata caches. Payloads are the
// (typically gzip) dataset bodies served verbatim; metadata covers
// gene lists, palettes and cluster tables.
type Manager struct {
	payloadCache *bigcache.BigCache
	metaCache    *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	payloadConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.PayloadTTL,
		CleanWindow:        cfg.PayloadTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       4 * 1024 * 1024, // contour payloads run to a few MB
		HardMaxCacheSize:   cfg.PayloadSizeMB,
		Verbose:            false,
	}

	payloadCache, err := bigcache.New(context.Background(), payloadConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create payload cache: %w", err)
	}

	metaCache, err := lru.New[string, []byte](cfg.MetaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create meta cache: %w", err)
	}

	return &Manager{
		payloadCache: payloadCache,
		metaCache:    metaCache,
	}, nil
}

// GetPayload retrieves a dataset payload from cache.
func (m *Manager) GetPayload(key string) ([]byte, bool) {
	data, err := m.payloadCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetPayload stores a dataset payload in cache.
func (m *Manager) SetPayload(key string, data []byte) error {
	return m.payloadCache.Set(key, data)
}

// GetMeta retrieves a metadata response from cache.
func (m *Manager) GetMeta(key string) ([]byte, bool) {
	return m.metaCache.Get(key)
}

// SetMeta stores a metadata response in cache.
func (m *Manager) SetMeta(key string, data []byte) {
	m.metaCache.Add(key, data)
}

// PayloadKey generates a cache key for a contour payload.
func PayloadKey(variant, kind string, z int, plain bool) string {
	suffix := "gz"
	if plain {
		suffix = "plain"
	}
	return fmt.Sprintf("payload:%s:%s:z%d:%s", variant, kind, z, suffix)
}

// GeneKey generates a cache key for a gene payload.
func GeneKey(variant, gene string, plain bool) string {
	suffix := "gz"
	if plain {
		suffix = "plain"
	}
	return fmt.Sprintf("gene:%s:%s:%s", variant, gene, suffix)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"payload_cache_len": m.payloadCache.Len(),
		"payload_cache_cap": m.payloadCache.Capacity(),
		"meta_cache_len":    m.metaCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.payloadCache.Close()
}
