// Package provider holds the registry of known video hosting domains and
// their reliability scores.
package provider

import (
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/net/publicsuffix"
)

// MaxReliability is the top of the reliability scale; 0 means unknown.
const MaxReliability = 10

// Profile describes one hosting provider.
type Profile struct {
	Name string `toml:"name" json:"name"`
	// Hosts are matched against a URL hostname. An entry containing a dot
	// matches that host and its subdomains; a bare label ("streamtape")
	// matches any registered domain with that label, which covers the
	// mirror TLDs these hosts rotate through.
	Hosts         []string `toml:"hosts" json:"hosts"`
	Reliability   int      `toml:"reliability" json:"reliability"`
	KnownPatterns []string `toml:"known_patterns" json:"knownPatterns,omitempty"`
	KnownIssues   []string `toml:"known_issues" json:"knownIssues,omitempty"`
}

// Registry resolves URLs to provider profiles. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles []Profile
}

// NewRegistry creates a registry from profiles. Reliability values are
// clamped to 0..MaxReliability and host patterns are lowercased.
func NewRegistry(profiles ...Profile) *Registry {
	r := &Registry{}
	r.Merge(profiles...)
	return r
}

// Merge adds profiles, replacing any existing profile with the same name.
func (r *Registry) Merge(profiles ...Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range profiles {
		p = normalizeProfile(p)
		_, idx, found := lo.FindIndexOf(r.profiles, func(existing Profile) bool {
			return strings.EqualFold(existing.Name, p.Name)
		})
		if found {
			r.profiles[idx] = p
			continue
		}
		r.profiles = append(r.profiles, p)
	}
}

func normalizeProfile(p Profile) Profile {
	p.Reliability = max(0, min(MaxReliability, p.Reliability))
	p.Hosts = lo.Map(p.Hosts, func(h string, _ int) string {
		return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "www.")
	})
	p.Hosts = lo.Compact(p.Hosts)
	return p
}

// Profiles returns a copy of the registered profiles in registration order.
func (r *Registry) Profiles() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Lookup returns the profile whose host pattern matches rawURL, trying exact
// host matches first, then subdomain matches, then registered-domain label
// matches. It returns nil when nothing matches or the URL is malformed.
func (r *Registry) Lookup(rawURL string) *Profile {
	host := hostOf(rawURL)
	if host == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, match := range []func(pattern string) bool{
		func(p string) bool { return strings.Contains(p, ".") && host == p },
		func(p string) bool { return strings.Contains(p, ".") && strings.HasSuffix(host, "."+p) },
		func(p string) bool { return !strings.Contains(p, ".") && registeredLabel(host) == p },
	} {
		for i := range r.profiles {
			if lo.ContainsBy(r.profiles[i].Hosts, match) {
				p := r.profiles[i]
				return &p
			}
		}
	}
	return nil
}

// Reliability returns the reliability score for rawURL, 0 when unknown.
func (r *Registry) Reliability(rawURL string) int {
	if p := r.Lookup(rawURL); p != nil {
		return p.Reliability
	}
	return 0
}

// Rank returns urls stable-sorted by descending reliability.
func (r *Registry) Rank(urls []string) []string {
	scores := make(map[string]int, len(urls))
	for _, u := range urls {
		if _, ok := scores[u]; !ok {
			scores[u] = r.Reliability(u)
		}
	}
	out := make([]string, len(urls))
	copy(out, urls)
	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i]] > scores[out[j]]
	})
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.TrimSuffix(strings.ToLower(u.Hostname()), "."), "www.")
}

// registeredLabel returns the leftmost label of the registrable domain:
// "cdn.streamtape.to" -> "streamtape".
func registeredLabel(host string) string {
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	label, _, _ := strings.Cut(etld1, ".")
	return label
}
