// Package media defines shared types for the vidgate application.
package media

import (
	"net/url"
	"path"
	"strings"
)

// Kind is the container/delivery format of a media URL.
type Kind int

const (
	Unknown Kind = iota
	HLS
	MP4
	WebM
	MKV
	DASH
)

func (k Kind) String() string {
	switch k {
	case HLS:
		return "hls"
	case MP4:
		return "mp4"
	case WebM:
		return "webm"
	case MKV:
		return "mkv"
	case DASH:
		return "dash"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as its lowercase name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText; anything else is Unknown.
func (k *Kind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "hls":
		*k = HLS
	case "mp4":
		*k = MP4
	case "webm":
		*k = WebM
	case "mkv":
		*k = MKV
	case "dash":
		*k = DASH
	default:
		*k = Unknown
	}
	return nil
}

// SortRank orders kinds for presentation: HLS first, then progressive
// formats, then DASH, then anything else.
func (k Kind) SortRank() int {
	switch k {
	case HLS:
		return 0
	case MP4:
		return 1
	case WebM:
		return 2
	case DASH:
		return 3
	default:
		return 4
	}
}

// Candidate is a media URL recovered from a page, before ranking.
type Candidate struct {
	URL     string // absolute, scheme-validated
	Kind    Kind
	Quality string // e.g. "1080p"; empty if unknown
}

// KindFromURL classifies a URL by the extension of its path.
// Playlists served through query-string endpoints (".../master.m3u8?token=")
// are still recognized because only the path is inspected.
func KindFromURL(raw string) Kind {
	u, err := url.Parse(raw)
	if err != nil {
		return Unknown
	}
	p := strings.ToLower(u.Path)
	switch path.Ext(p) {
	case ".m3u8", ".m3u":
		return HLS
	case ".mp4", ".m4v":
		return MP4
	case ".webm":
		return WebM
	case ".mkv":
		return MKV
	case ".mpd":
		return DASH
	}
	// Some hosts put the playlist name before a trailing path segment.
	if strings.Contains(p, ".m3u8/") {
		return HLS
	}
	return Unknown
}

// Normalize returns the canonical form used to deduplicate candidates:
// lowercase scheme and host, default ports stripped, fragment dropped.
// Unparseable input is returned unchanged.
func Normalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
