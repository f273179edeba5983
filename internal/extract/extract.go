// Package extract recovers media URLs from HTML, JavaScript and JSON text.
//
// Extraction is purely textual: packed scripts are unpacked by dictionary
// substitution and base64 literals are decoded, but no script is executed.
// Every step is best-effort; an empty result means "try something else".
package extract

import (
	"strings"

	"vidgate/internal/httputil"
	"vidgate/internal/media"
)

const (
	// maxAtobDepth bounds how many nested atob() layers are decoded.
	maxAtobDepth = 1
	// maxPackDepth bounds nested packer unwrapping.
	maxPackDepth = 2
	// maxNestedDepth bounds re-scanning of captured config fragments.
	maxNestedDepth = 2
)

// Extractor scans text for media URLs with an ordered pattern battery.
type Extractor struct {
	patterns []Pattern
}

// New returns an Extractor using DefaultPatterns.
func New() *Extractor {
	return &Extractor{patterns: DefaultPatterns}
}

// NewWithPatterns returns an Extractor with a custom battery.
func NewWithPatterns(patterns []Pattern) *Extractor {
	return &Extractor{patterns: patterns}
}

// Scan returns the media candidates found in text, in discovery order and
// deduplicated by normalized URL. Relative URLs are resolved against base;
// candidates that cannot be resolved to an absolute http(s) URL are dropped.
func (e *Extractor) Scan(text, base string) []media.Candidate {
	s := &scan{base: base, seen: make(map[string]bool)}
	e.scan(s, text, depth{atob: maxAtobDepth, pack: maxPackDepth, nested: maxNestedDepth})
	return s.out
}

type depth struct {
	atob, pack, nested int
}

type scan struct {
	base string
	seen map[string]bool
	out  []media.Candidate
}

func (e *Extractor) scan(s *scan, text string, d depth) {
	if text == "" {
		return
	}
	text = unescapeJS(text)

	for _, p := range e.patterns {
		for _, loc := range p.Re.FindAllStringSubmatchIndex(text, -1) {
			if len(loc) < 4 || loc[2] < 0 || loc[2] == loc[3] {
				continue
			}
			m := []string{text[loc[0]:loc[1]], text[loc[2]:loc[3]]}
			switch p.Mode {
			case ModeNested:
				if d.nested > 0 {
					inner := d
					inner.nested--
					e.scan(s, m[1], inner)
					for _, b := range bareString.FindAllStringSubmatch(m[1], -1) {
						s.add(b[1], media.Unknown, false)
					}
				}
			case ModeAssignment:
				s.add(m[1], p.Kind, !insideTag(text, loc[0]))
			default:
				s.add(m[1], p.Kind, false)
			}
		}
	}

	if d.pack > 0 {
		inner := d
		inner.pack--
		for _, src := range UnpackAll(text) {
			e.scan(s, src, inner)
		}
	}

	if d.atob > 0 {
		inner := d
		inner.atob--
		for _, dec := range DecodeAtob(text) {
			e.scan(s, dec, inner)
		}
	}
}

// add records raw as a candidate. Without a forced kind the URL must carry a
// recognizable media extension, except that assignment values may also be
// extensionless absolute URLs (player configs often point at tokenized
// endpoints).
func (s *scan) add(raw string, kind media.Kind, assignment bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "blob:") {
		return
	}
	abs, ok := httputil.Resolve(s.base, raw)
	if !ok {
		return
	}

	if kind == media.Unknown {
		kind = media.KindFromURL(abs)
	}
	if kind == media.Unknown {
		if !assignment || !isAbsolute(raw) || looksStatic(abs) {
			return
		}
	}

	key := media.Normalize(abs)
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.out = append(s.out, media.Candidate{
		URL:     abs,
		Kind:    kind,
		Quality: media.ParseQuality(abs),
	})
}

// insideTag reports whether pos falls within an HTML start tag, where a
// src attribute usually names a frame or an image rather than a stream.
func insideTag(text string, pos int) bool {
	lt := strings.LastIndexByte(text[:pos], '<')
	if lt < 0 || lt+1 >= len(text) || strings.LastIndexByte(text[:pos], '>') > lt {
		return false
	}
	c := text[lt+1]
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isAbsolute(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(raw, "//")
}

var staticExts = []string{
	".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico",
	".vtt", ".srt", ".woff", ".woff2", ".ttf", ".html", ".htm", ".php", ".json", ".xml",
}

// looksStatic filters page assets that share key names with media sources.
func looksStatic(abs string) bool {
	lower := strings.ToLower(abs)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range staticExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return strings.HasSuffix(lower, "/")
}

var jsUnescaper = strings.NewReplacer(
	`\/`, `/`,
	`\u0026`, `&`,
	`\u002F`, `/`,
	`\u002f`, `/`,
	`\u003D`, `=`,
	`\u003d`, `=`,
	`\x26`, `&`,
	`&amp;`, `&`,
)

// unescapeJS undoes the escapes commonly applied to URLs embedded in
// JavaScript strings and JSON.
func unescapeJS(s string) string {
	if !strings.ContainsAny(s, `\&`) {
		return s
	}
	return jsUnescaper.Replace(s)
}
