package cache

import (
	"net/url"
	"strconv"
	"time"
)

// expiryParams are the query keys origins use for signed-URL expiry, in
// lookup order.
var expiryParams = []string{"expires", "exp", "e"}

// expiryWindow bounds how far from now a parameter may be and still be
// treated as a unix timestamp; values outside it are unrelated numbers.
const expiryWindow = 24 * time.Hour

// TTLFor returns the lifetime an entry for rawURL would get if stored now.
// ok is false when the URL has already expired and must not be cached.
func (c *Cache) TTLFor(rawURL string, isHLS bool) (ttl time.Duration, expiresAt time.Time, ok bool) {
	now := c.opts.Now()
	return c.ttlFor(rawURL, isHLS, c.opts.Reliability(rawURL), now)
}

// ttlFor scales the base TTL by max(0.5, reliability/10), applies the
// MinTTL floor, then caps at 80% of the time left before an expiry embedded
// in the URL. The cap wins over the floor.
func (c *Cache) ttlFor(rawURL string, isHLS bool, reliability int, now time.Time) (time.Duration, time.Time, bool) {
	base := c.opts.MediaTTL
	if isHLS {
		base = c.opts.PlaylistTTL
	}
	ttl := base * time.Duration(min(max(reliability, 5), 10)) / 10
	if ttl < c.opts.MinTTL {
		ttl = c.opts.MinTTL
	}

	expiresAt, found := URLExpiry(rawURL, now)
	if !found {
		return ttl, time.Time{}, true
	}
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0, expiresAt, false
	}
	if limit := remaining * 8 / 10; ttl > limit {
		ttl = limit
	}
	if ttl <= 0 {
		return 0, expiresAt, false
	}
	return ttl, expiresAt, true
}

// URLExpiry returns the expiry timestamp encoded in rawURL's query, if any.
// Values are read as unix seconds, or milliseconds when too large for
// seconds, and only accepted within ±24h of now.
func URLExpiry(rawURL string, now time.Time) (time.Time, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, false
	}
	q := u.Query()
	for _, key := range expiryParams {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		ts := time.Unix(n, 0)
		if n > 1e12 {
			ts = time.UnixMilli(n)
		}
		d := ts.Sub(now)
		if d < -expiryWindow || d > expiryWindow {
			continue
		}
		return ts, true
	}
	return time.Time{}, false
}
