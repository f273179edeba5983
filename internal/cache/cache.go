// Package cache implements the in-memory media cache used by the streaming
// proxy: a byte-budgeted LRU whose entry lifetimes depend on the provider's
// reliability and on any expiry the origin embedded in the URL.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"vidgate/internal/media"
)

const (
	DefaultMaxBytes       = 1 << 30
	DefaultMaxObjectBytes = 50 << 20
	DefaultPlaylistTTL    = 2 * time.Minute
	DefaultMediaTTL       = 30 * time.Minute
	DefaultMinTTL         = 60 * time.Second
	DefaultSweepInterval  = time.Minute
)

// Options configures a Cache. Zero values take the defaults above.
type Options struct {
	MaxBytes       int64
	MaxObjectBytes int64
	PlaylistTTL    time.Duration
	MediaTTL       time.Duration
	MinTTL         time.Duration
	SweepInterval  time.Duration
	// Reliability scores the provider behind a URL on a 0-10 scale.
	// Nil means every URL scores 0.
	Reliability func(rawURL string) int
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type entry struct {
	key            string
	data           []byte
	sum            uint64
	contentType    string
	size           int64
	createdAt      time.Time
	ttl            time.Duration
	expiresAt      time.Time // zero when the URL carries no expiry
	lastAccessedAt time.Time
	accessCount    int64
	isHLS          bool
	reliability    int
}

func (e *entry) expired(now time.Time) bool {
	if !now.Before(e.createdAt.Add(e.ttl)) {
		return true
	}
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Stats is a point-in-time snapshot of cache occupancy and counters.
type Stats struct {
	Entries     int     `json:"entries"`
	TotalSize   int64   `json:"totalSize"`
	MaxSize     int64   `json:"maxSize"`
	Utilization float64 `json:"utilization"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expired     uint64  `json:"expired"`
	Rejected    uint64  `json:"rejected"`
}

// Cache is safe for concurrent use. Concurrent writers of the same key are
// last-write-wins.
type Cache struct {
	opts Options

	mu    sync.Mutex
	ll    *list.List // front = most recently accessed
	items map[string]*list.Element
	size  int64

	hits, misses, evictions, expiredN, rejected uint64
}

// New creates an empty cache.
func New(opts Options) *Cache {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxObjectBytes <= 0 {
		opts.MaxObjectBytes = DefaultMaxObjectBytes
	}
	if opts.PlaylistTTL <= 0 {
		opts.PlaylistTTL = DefaultPlaylistTTL
	}
	if opts.MediaTTL <= 0 {
		opts.MediaTTL = DefaultMediaTTL
	}
	if opts.MinTTL <= 0 {
		opts.MinTTL = DefaultMinTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Reliability == nil {
		opts.Reliability = func(string) int { return 0 }
	}
	return &Cache{
		opts:  opts,
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached body and content type for rawURL. Expired and
// corrupted entries are removed and reported as misses. The returned slice
// is shared with the cache and must not be modified.
func (c *Cache) Get(rawURL string) ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[rawURL]
	if !ok {
		c.misses++
		return nil, "", false
	}
	e := el.Value.(*entry)
	now := c.opts.Now()
	if e.expired(now) {
		c.removeElement(el)
		c.expiredN++
		c.misses++
		return nil, "", false
	}
	if xxhash.Sum64(e.data) != e.sum {
		c.removeElement(el)
		c.misses++
		return nil, "", false
	}

	e.lastAccessedAt = now
	e.accessCount++
	c.ll.MoveToFront(el)
	c.hits++
	return e.data, e.contentType, true
}

// Has reports whether a live entry exists for rawURL without touching its
// recency.
func (c *Cache) Has(rawURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[rawURL]
	if !ok {
		return false
	}
	if el.Value.(*entry).expired(c.opts.Now()) {
		c.removeElement(el)
		c.expiredN++
		return false
	}
	return true
}

// Set stores data under rawURL if it passes admission and reports whether
// it was stored. Least recently accessed entries are evicted to make room.
func (c *Cache) Set(rawURL string, data []byte, contentType string) bool {
	size := int64(len(data))
	isHLS := IsPlaylist(rawURL, contentType)
	if !c.admit(rawURL, contentType, size, isHLS) {
		c.mu.Lock()
		c.rejected++
		c.mu.Unlock()
		return false
	}

	now := c.opts.Now()
	rel := c.opts.Reliability(rawURL)
	ttl, expiresAt, ok := c.ttlFor(rawURL, isHLS, rel, now)
	if !ok {
		c.mu.Lock()
		c.rejected++
		c.mu.Unlock()
		return false
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	e := &entry{
		key:            rawURL,
		data:           buf,
		sum:            xxhash.Sum64(buf),
		contentType:    contentType,
		size:           size,
		createdAt:      now,
		ttl:            ttl,
		expiresAt:      expiresAt,
		lastAccessedAt: now,
		isHLS:          isHLS,
		reliability:    rel,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[rawURL]; ok {
		c.removeElement(el)
	}
	for c.size+size > c.opts.MaxBytes {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
		c.evictions++
	}
	c.items[rawURL] = c.ll.PushFront(e)
	c.size += size
	return true
}

// Delete removes rawURL and reports whether it was present.
func (c *Cache) Delete(rawURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[rawURL]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Stats returns a snapshot of the cache.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:     len(c.items),
		TotalSize:   c.size,
		MaxSize:     c.opts.MaxBytes,
		Utilization: float64(c.size) / float64(c.opts.MaxBytes),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expired:     c.expiredN,
		Rejected:    c.rejected,
	}
}

// Sweep drops every entry whose TTL or embedded expiry has passed and
// returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	n := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry).expired(now) {
			c.removeElement(el)
			n++
		}
		el = next
	}
	c.expiredN += uint64(n)
	return n
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// MaxObjectBytes is the admission limit for non-playlist bodies.
func (c *Cache) MaxObjectBytes() int64 {
	return c.opts.MaxObjectBytes
}

// Admit reports whether a body of the given type and size would be stored.
// Playlists are always admitted; MP4 and WebM bodies up to MaxObjectBytes
// are admitted; everything else is not.
func (c *Cache) Admit(rawURL, contentType string, size int64) bool {
	return c.admit(rawURL, contentType, size, IsPlaylist(rawURL, contentType))
}

func (c *Cache) admit(rawURL, contentType string, size int64, isHLS bool) bool {
	if size <= 0 || size > c.opts.MaxBytes {
		return false
	}
	if isHLS {
		return true
	}
	if size > c.opts.MaxObjectBytes {
		return false
	}
	switch kindOf(rawURL, contentType) {
	case media.MP4, media.WebM:
		return true
	}
	return false
}

// removeElement must be called with mu held.
func (c *Cache) removeElement(el *list.Element) {
	e := c.ll.Remove(el).(*entry)
	delete(c.items, e.key)
	c.size -= e.size
}

// IsPlaylist reports whether a URL or content type denotes an HLS playlist.
func IsPlaylist(rawURL, contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "mpegurl") {
		return true
	}
	return media.KindFromURL(rawURL) == media.HLS
}

func kindOf(rawURL, contentType string) media.Kind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "video/mp4"):
		return media.MP4
	case strings.HasPrefix(ct, "video/webm"):
		return media.WebM
	}
	return media.KindFromURL(rawURL)
}
