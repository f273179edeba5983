package resolve

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vidgate/internal/extract"
	"vidgate/internal/httputil"
	"vidgate/internal/media"
)

// Page is the fetched embed page handed to a Heuristic.
type Page struct {
	URL       string
	HTML      string
	Referer   string
	UserAgent string
}

// FetchFunc performs a rate-limited, SSRF-gated auxiliary request bounded by
// the resolver's auxiliary timeout.
type FetchFunc func(ctx context.Context, rawURL string, opts httputil.RequestOptions) ([]byte, error)

// Heuristic is a provider-specific extraction strategy. It runs only for
// pages whose host maps to one of its provider names in the registry.
type Heuristic interface {
	Name() string
	Providers() []string
	Extract(ctx context.Context, page Page, fetch FetchFunc) ([]media.Candidate, error)
}

// DefaultHeuristics returns the built-in heuristics.
func DefaultHeuristics() []Heuristic {
	return []Heuristic{
		streamtape{},
		mixdrop{},
		megacloud{},
	}
}

// streamtape writes the download link into a hidden element in two halves:
// a URL prefix and a token string trimmed with chained substring calls.
type streamtape struct{}

var (
	streamtapeLink = regexp.MustCompile(`getElementById\(\s*['"](?:robotlink|ideoolink|botlink|norobotlink)['"]\s*\)\.innerHTML\s*=\s*['"]([^'"]+)['"]\s*\+\s*\(?\s*['"]([^'"]+)['"]\s*\)?((?:\.substring\(\s*\d+\s*\))*)`)
	substringCall  = regexp.MustCompile(`\.substring\(\s*(\d+)\s*\)`)
	streamtapeDiv  = regexp.MustCompile(`id\s*=\s*["']?robotlink["']?[^>]*>([^<]+)<`)
)

func (streamtape) Name() string        { return "streamtape" }
func (streamtape) Providers() []string { return []string{"streamtape"} }

func (streamtape) Extract(_ context.Context, page Page, _ FetchFunc) ([]media.Candidate, error) {
	var link string
	for _, m := range streamtapeLink.FindAllStringSubmatch(page.HTML, -1) {
		token := m[2]
		for _, sub := range substringCall.FindAllStringSubmatch(m[3], -1) {
			n, _ := strconv.Atoi(sub[1])
			if n > len(token) {
				n = len(token)
			}
			token = token[n:]
		}
		link = m[1] + token
	}
	if link == "" {
		if m := streamtapeDiv.FindStringSubmatch(page.HTML); m != nil {
			// The div holds the link minus its leading slash.
			link = strings.TrimSpace(m[1])
			if strings.HasPrefix(link, "/") && !strings.HasPrefix(link, "//") {
				link = "/" + link
			}
		}
	}
	if link == "" {
		return nil, fmt.Errorf("robotlink not found")
	}

	abs, ok := httputil.Resolve(page.URL, link)
	if !ok {
		return nil, fmt.Errorf("unusable robotlink %q", link)
	}
	if !strings.Contains(abs, "stream=") {
		sep := "?"
		if strings.Contains(abs, "?") {
			sep = "&"
		}
		abs += sep + "stream=1"
	}
	return []media.Candidate{{URL: abs, Kind: media.MP4, Quality: media.ParseQuality(abs)}}, nil
}

// mixdrop keeps the player configuration on an MDCore object inside a
// packed script; wurl is usually protocol-relative and extensionless.
type mixdrop struct{}

var mdCoreField = regexp.MustCompile(`MDCore\.(wurl|vsrc|vsr|vfile|furl)\s*=\s*["']([^"']+)["']`)

func (mixdrop) Name() string        { return "mixdrop" }
func (mixdrop) Providers() []string { return []string{"mixdrop"} }

func (mixdrop) Extract(_ context.Context, page Page, _ FetchFunc) ([]media.Candidate, error) {
	sources := append([]string{page.HTML}, extract.UnpackAll(page.HTML)...)

	var out []media.Candidate
	seen := make(map[string]bool)
	for _, src := range sources {
		for _, m := range mdCoreField.FindAllStringSubmatch(src, -1) {
			abs, ok := httputil.Resolve(page.URL, m[2])
			if !ok || seen[abs] {
				continue
			}
			seen[abs] = true
			kind := media.KindFromURL(abs)
			if kind == media.Unknown {
				kind = media.MP4
			}
			out = append(out, media.Candidate{URL: abs, Kind: kind, Quality: media.ParseQuality(abs)})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no MDCore source")
	}
	return out, nil
}
