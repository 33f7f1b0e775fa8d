package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cinefluent/sublearn/internal/persistence"
	"github.com/cinefluent/sublearn/internal/subtitle"
	"github.com/cinefluent/sublearn/pkg/log"
)

const (
	DefaultMaxMemoryItems = 200
	DefaultTTL            = 24 * time.Hour
	DefaultExternalTTL    = 48 * time.Hour
)

// PersistentStore is the persistent cache tier. *persistence.SQLiteStore
// satisfies it.
type PersistentStore interface {
	PutSubtitleCache(ctx context.Context, row persistence.CacheRow) error
	GetSubtitleCache(ctx context.Context, cacheKey string, now time.Time) ([]subtitle.Metadata, bool, error)
	DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error)
}

type memoryEntry struct {
	subtitles  []subtitle.Metadata
	expiresAt  time.Time
	accessedAt time.Time
	createdAt  time.Time
}

// Manager is a two-tier subtitle descriptor cache: a bounded in-process
// map in front of a persistent store. All memory-tier access is mutex
// guarded; persistent-tier failures degrade to a miss.
type Manager struct {
	store          PersistentStore
	maxMemoryItems int
	defaultTTL     time.Duration
	externalTTL    time.Duration
	now            func() time.Time

	mu          sync.Mutex
	memory      map[string]*memoryEntry
	hits        uint64
	misses      uint64
	lastCleanup time.Time
}

// Config configures a cache Manager. Zero values fall back to defaults;
// Store may be nil for a memory-only cache.
type Config struct {
	Store          PersistentStore
	MaxMemoryItems int
	DefaultTTL     time.Duration
	ExternalTTL    time.Duration
}

// Stats is a snapshot of cache effectiveness counters
type Stats struct {
	Hits           uint64    `json:"cache_hits"`
	Misses         uint64    `json:"cache_misses"`
	HitRatio       float64   `json:"hit_ratio"` // percent
	TotalRequests  uint64    `json:"total_requests"`
	MemorySize     int       `json:"memory_cache_size"`
	MaxMemoryItems int       `json:"max_memory_items"`
	LastCleanup    time.Time `json:"last_cleanup"`
}

func NewManager(cfg Config) *Manager {
	maxItems := cfg.MaxMemoryItems
	if maxItems <= 0 {
		maxItems = DefaultMaxMemoryItems
	}
	defaultTTL := cfg.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	externalTTL := cfg.ExternalTTL
	if externalTTL <= 0 {
		externalTTL = DefaultExternalTTL
	}

	return &Manager{
		store:          cfg.Store,
		maxMemoryItems: maxItems,
		defaultTTL:     defaultTTL,
		externalTTL:    externalTTL,
		now:            time.Now,
		memory:         make(map[string]*memoryEntry),
		lastCleanup:    time.Now().UTC(),
	}
}

// ExternalTTL is the TTL callers should use for externally sourced results
func (m *Manager) ExternalTTL() time.Duration {
	return m.externalTTL
}

// Key derives the stable cache key for a (video, language, title) triple
func Key(videoID, language, title string) string {
	content := fmt.Sprintf("%s:%s:%s", videoID, language, strings.ToLower(strings.TrimSpace(title)))
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Get checks the fast tier, then the persistent tier. A persistent hit is
// promoted into the fast tier. Reports whether the lookup hit.
func (m *Manager) Get(ctx context.Context, videoID, language, title string) ([]subtitle.Metadata, bool) {
	cacheKey := Key(videoID, language, title)
	now := m.now().UTC()

	m.mu.Lock()
	if entry, ok := m.memory[cacheKey]; ok {
		if entry.expiresAt.After(now) {
			entry.accessedAt = now
			subtitles := entry.subtitles
			m.hits++
			m.mu.Unlock()
			return subtitles, true
		}
		// expired, drop lazily
		delete(m.memory, cacheKey)
	}
	m.mu.Unlock()

	if m.store != nil {
		subtitles, ok, err := m.store.GetSubtitleCache(ctx, cacheKey, now)
		if err != nil {
			// a broken persistent tier must not fail the lookup
			log.Warn("Persistent cache lookup failed for key %s: %v", cacheKey, err)
		} else if ok {
			m.storeInMemory(cacheKey, subtitles, now.Add(m.defaultTTL), now)
			m.mu.Lock()
			m.hits++
			m.mu.Unlock()
			return subtitles, true
		}
	}

	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
	return nil, false
}

// Put writes the descriptor list into both tiers. A non-positive ttl uses
// the default.
func (m *Manager) Put(ctx context.Context, videoID, language, title string, subtitles []subtitle.Metadata, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	cacheKey := Key(videoID, language, title)
	now := m.now().UTC()
	expiresAt := now.Add(ttl)

	m.storeInMemory(cacheKey, subtitles, expiresAt, now)

	if m.store == nil {
		return
	}
	err := m.store.PutSubtitleCache(ctx, persistence.CacheRow{
		CacheKey:   cacheKey,
		VideoID:    videoID,
		Language:   language,
		VideoTitle: title,
		Subtitles:  subtitles,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		log.Warn("Persistent cache store failed for key %s: %v", cacheKey, err)
	}
}

// storeInMemory inserts into the fast tier, evicting the least recently
// accessed entry under capacity pressure.
func (m *Manager) storeInMemory(cacheKey string, subtitles []subtitle.Metadata, expiresAt, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.memory[cacheKey]; !exists && len(m.memory) >= m.maxMemoryItems {
		var oldestKey string
		var oldestAccess time.Time
		for key, entry := range m.memory {
			if oldestKey == "" || entry.accessedAt.Before(oldestAccess) {
				oldestKey = key
				oldestAccess = entry.accessedAt
			}
		}
		delete(m.memory, oldestKey)
	}

	m.memory[cacheKey] = &memoryEntry{
		subtitles:  subtitles,
		expiresAt:  expiresAt,
		accessedAt: now,
		createdAt:  now,
	}
}

// Cleanup sweeps expired entries from both tiers
func (m *Manager) Cleanup(ctx context.Context) {
	now := m.now().UTC()

	m.mu.Lock()
	for key, entry := range m.memory {
		if !entry.expiresAt.After(now) {
			delete(m.memory, key)
		}
	}
	m.lastCleanup = now
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	deleted, err := m.store.DeleteExpiredCache(ctx, now)
	if err != nil {
		log.Warn("Persistent cache cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Info("Removed %d expired cache entries", deleted)
	}
}

// Stats returns a snapshot of the hit/miss counters
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.hits + m.misses
	ratio := 0.0
	if total > 0 {
		ratio = float64(m.hits) / float64(total) * 100
	}

	return Stats{
		Hits:           m.hits,
		Misses:         m.misses,
		HitRatio:       ratio,
		TotalRequests:  total,
		MemorySize:     len(m.memory),
		MaxMemoryItems: m.maxMemoryItems,
		LastCleanup:    m.lastCleanup,
	}
}
