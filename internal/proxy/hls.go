package proxy

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"vidgate/internal/httputil"
)

// Link builds /proxy URLs. Empty fields are omitted from the query.
type Link struct {
	// Path is the proxy endpoint, e.g. "/proxy" or "https://gw.example/proxy".
	Path      string
	Referer   string
	Origin    string
	UserAgent string
	// Rewrite appends rewrite=1.
	Rewrite bool
}

// For returns the proxy URL that fetches target.
func (l Link) For(target string) string {
	var b strings.Builder
	b.WriteString(l.Path)
	b.WriteString("?url=")
	b.WriteString(url.QueryEscape(target))
	if l.Referer != "" {
		b.WriteString("&referer=")
		b.WriteString(url.QueryEscape(l.Referer))
	}
	if l.Origin != "" {
		b.WriteString("&origin=")
		b.WriteString(url.QueryEscape(l.Origin))
	}
	if l.UserAgent != "" {
		b.WriteString("&ua=")
		b.WriteString(url.QueryEscape(l.UserAgent))
	}
	if l.Rewrite {
		b.WriteString("&rewrite=1")
	}
	return b.String()
}

// uriAttr matches URI="..." on tag lines: EXT-X-KEY, EXT-X-MAP, EXT-X-MEDIA,
// EXT-X-PART, EXT-X-PRELOAD-HINT, EXT-X-I-FRAME-STREAM-INF,
// EXT-X-SESSION-KEY and EXT-X-RENDITION-REPORT all use the same form.
var uriAttr = regexp.MustCompile(`URI="([^"]*)"`)

// RewritePlaylist routes every URI in an HLS playlist through the proxy.
// References are resolved against playlistURL. Line order, blank lines and
// line endings are kept, so the output has exactly as many lines as the
// input. URIs that do not resolve to http(s), such as skd:// key URIs, are
// left untouched.
func RewritePlaylist(body []byte, playlistURL string, link Link) []byte {
	lines := bytes.Split(body, []byte("\n"))
	for i, raw := range lines {
		line := string(raw)
		cr := strings.HasSuffix(line, "\r")
		line = strings.TrimSuffix(line, "\r")

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "#"):
			if !strings.Contains(line, `URI="`) {
				continue
			}
			line = uriAttr.ReplaceAllStringFunc(line, func(m string) string {
				ref := uriAttr.FindStringSubmatch(m)[1]
				abs, ok := httputil.Resolve(playlistURL, ref)
				if !ok {
					return m
				}
				return `URI="` + link.For(abs) + `"`
			})
		default:
			abs, ok := httputil.Resolve(playlistURL, trimmed)
			if !ok {
				continue
			}
			line = link.For(abs)
		}

		if cr {
			line += "\r"
		}
		lines[i] = []byte(line)
	}
	return bytes.Join(lines, []byte("\n"))
}

// looksLikePlaylist reports whether body starts with the #EXTM3U header,
// ignoring a UTF-8 BOM and leading whitespace.
func looksLikePlaylist(body []byte) bool {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("#EXTM3U"))
}
