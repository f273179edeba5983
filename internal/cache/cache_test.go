package cache

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(clock *fakeClock, maxBytes int64) *Cache {
	return New(Options{MaxBytes: maxBytes, Now: clock.Now})
}

func TestSetGetAndExpire(t *testing.T) {
	clock := newClock()
	c := newTestCache(clock, 1<<20)

	body := []byte("#EXTM3U\n#EXTINF:4,\nseg0.ts\n")
	require.True(t, c.Set("https://cdn.example.com/a.m3u8", body, "application/vnd.apple.mpegurl"))

	data, ct, ok := c.Get("https://cdn.example.com/a.m3u8")
	require.True(t, ok)
	assert.Equal(t, body, data)
	assert.Equal(t, "application/vnd.apple.mpegurl", ct)
	assert.Equal(t, 1, c.Stats().Entries)

	// Playlist base TTL is 2m, scaled by 0.5 for an unknown provider.
	clock.Advance(61 * time.Second)
	_, _, ok = c.Get("https://cdn.example.com/a.m3u8")
	assert.False(t, ok)
	st := c.Stats()
	assert.Equal(t, 0, st.Entries)
	assert.Equal(t, int64(0), st.TotalSize)
	assert.Equal(t, uint64(1), st.Expired)
}

func TestSetCopiesInput(t *testing.T) {
	c := newTestCache(newClock(), 1<<20)
	body := []byte("0123456789")
	require.True(t, c.Set("https://cdn.example.com/a.mp4", body, "video/mp4"))
	body[0] = 'X'

	data, _, ok := c.Get("https://cdn.example.com/a.mp4")
	require.True(t, ok)
	assert.Equal(t, "0123456789", string(data))
}

func TestLRUEvictsLeastRecentlyAccessed(t *testing.T) {
	clock := newClock()
	c := newTestCache(clock, 30)
	ten := bytes.Repeat([]byte("x"), 10)

	require.True(t, c.Set("https://h.example/a.mp4", ten, "video/mp4"))
	clock.Advance(time.Second)
	require.True(t, c.Set("https://h.example/b.mp4", ten, "video/mp4"))
	clock.Advance(time.Second)
	require.True(t, c.Set("https://h.example/c.mp4", ten, "video/mp4"))
	clock.Advance(time.Second)

	// a is the oldest insert but the most recently read.
	_, _, ok := c.Get("https://h.example/a.mp4")
	require.True(t, ok)

	require.True(t, c.Set("https://h.example/d.mp4", ten, "video/mp4"))

	assert.True(t, c.Has("https://h.example/a.mp4"))
	assert.False(t, c.Has("https://h.example/b.mp4"))
	assert.True(t, c.Has("https://h.example/c.mp4"))
	assert.True(t, c.Has("https://h.example/d.mp4"))

	st := c.Stats()
	assert.Equal(t, int64(30), st.TotalSize)
	assert.Equal(t, uint64(1), st.Evictions)
	assert.InDelta(t, 1.0, st.Utilization, 0.0001)
}

func TestEvictsSeveralForLargeEntry(t *testing.T) {
	c := newTestCache(newClock(), 30)
	for i := 0; i < 3; i++ {
		require.True(t, c.Set(fmt.Sprintf("https://h.example/%d.mp4", i), bytes.Repeat([]byte("x"), 10), "video/mp4"))
	}
	require.True(t, c.Set("https://h.example/big.mp4", bytes.Repeat([]byte("y"), 25), "video/mp4"))

	st := c.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(25), st.TotalSize)
	assert.Equal(t, uint64(3), st.Evictions)
}

func TestOverwriteKeepsSizeConsistent(t *testing.T) {
	c := newTestCache(newClock(), 1<<20)
	require.True(t, c.Set("https://h.example/a.mp4", make([]byte, 100), "video/mp4"))
	require.True(t, c.Set("https://h.example/a.mp4", make([]byte, 40), "video/mp4"))

	st := c.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(40), st.TotalSize)
}

func TestAdmission(t *testing.T) {
	c := New(Options{MaxBytes: 1 << 30, MaxObjectBytes: 1000, Now: newClock().Now})

	tests := []struct {
		name string
		url  string
		ct   string
		size int64
		want bool
	}{
		{"playlist by url", "https://h.example/index.m3u8", "text/plain", 500, true},
		{"playlist by content type", "https://h.example/play?id=1", "application/x-mpegURL", 500, true},
		{"large playlist still admitted", "https://h.example/index.m3u8", "", 5000, true},
		{"small mp4", "https://h.example/v.mp4", "video/mp4", 1000, true},
		{"small webm by content type", "https://h.example/v", "video/webm", 10, true},
		{"mp4 over object limit", "https://h.example/v.mp4", "video/mp4", 1001, false},
		{"transport stream segment", "https://h.example/seg1.ts", "video/mp2t", 100, false},
		{"mkv", "https://h.example/v.mkv", "video/x-matroska", 100, false},
		{"unknown", "https://h.example/blob", "application/octet-stream", 100, false},
		{"empty body", "https://h.example/v.mp4", "video/mp4", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Admit(tt.url, tt.ct, tt.size))
		})
	}

	assert.False(t, c.Set("https://h.example/seg1.ts", []byte("ts"), "video/mp2t"))
	assert.Equal(t, uint64(1), c.Stats().Rejected)
}

func TestRejectsObjectLargerThanBudget(t *testing.T) {
	c := newTestCache(newClock(), 10)
	require.True(t, c.Set("https://h.example/a.mp4", make([]byte, 5), "video/mp4"))
	assert.False(t, c.Set("https://h.example/b.mp4", make([]byte, 11), "video/mp4"))
	assert.True(t, c.Has("https://h.example/a.mp4"))
}

func TestTTLFor(t *testing.T) {
	clock := newClock()
	now := clock.Now()
	reliability := map[string]int{
		"https://good.example": 10,
		"https://mid.example":  7,
		"https://low.example":  2,
	}
	c := New(Options{
		Now: clock.Now,
		Reliability: func(raw string) int {
			for prefix, r := range reliability {
				if len(raw) >= len(prefix) && raw[:len(prefix)] == prefix {
					return r
				}
			}
			return 0
		},
	})
	unix := func(d time.Duration) string { return strconv.FormatInt(now.Add(d).Unix(), 10) }

	tests := []struct {
		name    string
		url     string
		isHLS   bool
		want    time.Duration
		wantOK  bool
		wantExp bool
	}{
		{"reliable media", "https://good.example/v.mp4", false, 30 * time.Minute, true, false},
		{"mid media", "https://mid.example/v.mp4", false, 21 * time.Minute, true, false},
		{"unknown media halves", "https://other.example/v.mp4", false, 15 * time.Minute, true, false},
		{"low reliability floors at half", "https://low.example/v.mp4", false, 15 * time.Minute, true, false},
		{"reliable playlist", "https://good.example/a.m3u8", true, 2 * time.Minute, true, false},
		{"unknown playlist hits min floor", "https://other.example/a.m3u8", true, 60 * time.Second, true, false},
		{"expiry caps ttl", "https://good.example/v.mp4?e=" + unix(100*time.Second), false, 80 * time.Second, true, true},
		{"expiry cap beats floor", "https://good.example/v.mp4?expires=" + unix(30*time.Second), false, 24 * time.Second, true, true},
		{"far expiry leaves ttl", "https://good.example/v.mp4?exp=" + unix(20*time.Hour), false, 30 * time.Minute, true, true},
		{"expiry outside window ignored", "https://good.example/v.mp4?e=" + unix(48*time.Hour), false, 30 * time.Minute, true, false},
		{"non-timestamp e ignored", "https://good.example/v.mp4?e=1", false, 30 * time.Minute, true, false},
		{"millisecond expiry", "https://good.example/v.mp4?expires=" + strconv.FormatInt(now.Add(50*time.Second).UnixMilli(), 10), false, 40 * time.Second, true, true},
		{"already expired", "https://good.example/v.mp4?exp=" + unix(-10*time.Second), false, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl, exp, ok := c.TTLFor(tt.url, tt.isHLS)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, ttl)
			assert.Equal(t, tt.wantExp, !exp.IsZero())
		})
	}
}

func TestEmbeddedExpiryEndsEntry(t *testing.T) {
	clock := newClock()
	c := New(Options{Now: clock.Now, Reliability: func(string) int { return 10 }})
	u := "https://h.example/v.mp4?expires=" + strconv.FormatInt(clock.Now().Add(100*time.Second).Unix(), 10)

	require.True(t, c.Set(u, []byte("data"), "video/mp4"))
	clock.Advance(79 * time.Second)
	assert.True(t, c.Has(u))
	clock.Advance(2 * time.Second)
	_, _, ok := c.Get(u)
	assert.False(t, ok)
}

func TestExpiredURLNotCached(t *testing.T) {
	clock := newClock()
	c := New(Options{Now: clock.Now})
	u := "https://h.example/v.mp4?exp=" + strconv.FormatInt(clock.Now().Add(-time.Minute).Unix(), 10)

	assert.False(t, c.Set(u, []byte("data"), "video/mp4"))
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	c := newTestCache(newClock(), 1<<20)
	require.True(t, c.Set("https://h.example/a.mp4", []byte("abcdef"), "video/mp4"))

	c.mu.Lock()
	c.items["https://h.example/a.mp4"].Value.(*entry).data[0] = 'Z'
	c.mu.Unlock()

	_, _, ok := c.Get("https://h.example/a.mp4")
	assert.False(t, ok)
	st := c.Stats()
	assert.Equal(t, 0, st.Entries)
	assert.Equal(t, int64(0), st.TotalSize)
}

func TestDelete(t *testing.T) {
	c := newTestCache(newClock(), 1<<20)
	require.True(t, c.Set("https://h.example/a.mp4", []byte("abc"), "video/mp4"))

	assert.True(t, c.Delete("https://h.example/a.mp4"))
	assert.False(t, c.Delete("https://h.example/a.mp4"))
	assert.False(t, c.Has("https://h.example/a.mp4"))
	assert.Equal(t, int64(0), c.Stats().TotalSize)
}

func TestSweep(t *testing.T) {
	clock := newClock()
	c := New(Options{Now: clock.Now, Reliability: func(string) int { return 10 }})

	require.True(t, c.Set("https://h.example/a.m3u8", []byte("#EXTM3U"), "application/vnd.apple.mpegurl"))
	require.True(t, c.Set("https://h.example/v.mp4", []byte("data"), "video/mp4"))

	clock.Advance(3 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.False(t, c.Has("https://h.example/a.m3u8"))
	assert.True(t, c.Has("https://h.example/v.mp4"))
	assert.Equal(t, int64(4), c.Stats().TotalSize)
}

func TestRunStopsOnCancel(t *testing.T) {
	c := New(Options{SweepInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentAccessKeepsBudget(t *testing.T) {
	c := newTestCache(newClock(), 1000)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				u := fmt.Sprintf("https://h.example/%d.mp4", (g*7+i)%40)
				c.Set(u, bytes.Repeat([]byte{byte(i)}, 50+i%30), "video/mp4")
				c.Get(u)
			}
		}(g)
	}
	wg.Wait()

	st := c.Stats()
	assert.LessOrEqual(t, st.TotalSize, int64(1000))

	var sum int64
	c.mu.Lock()
	for el := c.ll.Front(); el != nil; el = el.Next() {
		sum += el.Value.(*entry).size
	}
	c.mu.Unlock()
	assert.Equal(t, st.TotalSize, sum)
}
