package extract

import (
	"regexp"

	"vidgate/internal/media"
)

// Mode says how a pattern's first capture group is interpreted.
type Mode int

const (
	// ModeURL: the capture is a media URL, possibly relative.
	ModeURL Mode = iota
	// ModeAssignment: the capture is the value of a file/src/url style key.
	// Values without a media extension are kept only when absolute.
	ModeAssignment
	// ModeNested: the capture is a config fragment (a sources array, a
	// player setup object) that is scanned again with the whole battery
	// plus a bare-string pass.
	ModeNested
)

// Pattern is one entry of the extraction battery.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
	// Kind forces the candidate type; media.Unknown classifies by extension.
	Kind media.Kind
	Mode Mode
}

const urlChars = `[^\s"'<>()\\\x60]`

// DefaultPatterns is the ordered battery applied by Scan. Earlier patterns
// win when the same URL is matched more than once.
var DefaultPatterns = []Pattern{
	{
		Name: "absolute-literal",
		Re:   regexp.MustCompile(`(?i)((?:https?:)?//` + urlChars + `+\.(?:m3u8|mp4|webm|mkv|mpd)(?:[?#]` + urlChars + `*)?)(?:[^\w./-]|$)`),
		Mode: ModeURL,
	},
	{
		Name: "quoted-relative",
		Re:   regexp.MustCompile(`(?i)["'\x60]([^"'\x60\s<>:]+\.(?:m3u8|mp4|webm|mkv|mpd)(?:\?[^"'\x60\s<>]*)?)["'\x60]`),
		Mode: ModeURL,
	},
	{
		Name: "json-field",
		Re:   regexp.MustCompile(`(?i)"(?:file|src|source|url|hls|hls2|playlist|videoUrl|video_url|stream_url|streamUrl|hlsManifestUrl)"\s*:\s*"([^"]+)"`),
		Mode: ModeAssignment,
	},
	{
		Name: "assignment",
		Re:   regexp.MustCompile(`(?i)\b(?:file|src|source|url|hls|hls2|playlist|videoUrl|video_url|wurl)\s*[:=]\s*["'\x60]([^"'\x60\s]+)["'\x60]`),
		Mode: ModeAssignment,
	},
	{
		Name: "html-source",
		Re:   regexp.MustCompile(`(?i)<(?:source|video)\b[^>]*?\ssrc\s*=\s*["']([^"']+)["']`),
		Mode: ModeAssignment,
	},
	{
		Name: "sources-array",
		Re:   regexp.MustCompile(`(?is)\bsources["']?\s*[:=]\s*(\[.*?\])`),
		Mode: ModeNested,
	},
	{
		Name: "videojs-src",
		Re:   regexp.MustCompile(`(?is)videojs\([^)]*\)\s*\.src\(\s*(.*?)\s*\)\s*;`),
		Mode: ModeNested,
	},
	{
		Name: "jwplayer-setup",
		Re:   regexp.MustCompile(`(?is)jwplayer\([^)]*\)\s*\.setup\(\s*(\{.*?\})\s*\)`),
		Mode: ModeNested,
	},
	{
		Name: "hls-load-source",
		Re:   regexp.MustCompile(`(?i)\.loadSource\(\s*["'\x60]([^"'\x60]+)["'\x60]\s*\)`),
		Kind: media.HLS,
		Mode: ModeURL,
	},
}

// bareString pulls quoted strings out of nested fragments such as
// sources: ["a.m3u8", "b.mp4"].
var bareString = regexp.MustCompile(`["'\x60]([^"'\x60\s]+)["'\x60]`)
