package proxy

import (
	"net/url"
	"regexp"
	"strings"
	"testing"
)

const masterURL = "https://cdn.example/hls/index.m3u8"

const mixedPlaylist = `#EXTM3U
#EXT-X-VERSION:7
#EXT-X-KEY:METHOD=AES-128,URI="key.bin",IV=0x01
#EXT-X-MAP:URI="init.mp4"

#EXTINF:4.0,
seg-1.ts
#EXTINF:4.0,
https://other.example/abs/seg-2.ts?tok=a&b=c
#EXTINF:4.0,
//edge.example/seg-3.ts
#EXT-X-ENDLIST
`

var proxiedInAttr = regexp.MustCompile(`URI="([^"]*)"`)

func decodedTarget(t *testing.T, proxied string) string {
	t.Helper()
	u, err := url.Parse(proxied)
	if err != nil {
		t.Fatalf("rewritten URI %q does not parse: %v", proxied, err)
	}
	if u.Path != "/proxy" {
		t.Fatalf("rewritten URI %q does not point at /proxy", proxied)
	}
	return u.Query().Get("url")
}

func TestRewritePlaylist(t *testing.T) {
	out := string(RewritePlaylist([]byte(mixedPlaylist), masterURL, Link{Path: "/proxy"}))

	inLines := strings.Split(mixedPlaylist, "\n")
	outLines := strings.Split(out, "\n")
	if len(inLines) != len(outLines) {
		t.Fatalf("line count changed: %d -> %d", len(inLines), len(outLines))
	}

	wantAttr := map[int]string{
		2: "https://cdn.example/hls/key.bin",
		3: "https://cdn.example/hls/init.mp4",
	}
	wantBare := map[int]string{
		6:  "https://cdn.example/hls/seg-1.ts",
		8:  "https://other.example/abs/seg-2.ts?tok=a&b=c",
		10: "https://edge.example/seg-3.ts",
	}

	for i, line := range outLines {
		switch {
		case wantAttr[i] != "":
			m := proxiedInAttr.FindStringSubmatch(line)
			if m == nil {
				t.Fatalf("line %d lost its URI attribute: %q", i, line)
			}
			if got := decodedTarget(t, m[1]); got != wantAttr[i] {
				t.Errorf("line %d: url = %q, want %q", i, got, wantAttr[i])
			}
			if !strings.HasPrefix(line, strings.SplitN(inLines[i], "URI=", 2)[0]) {
				t.Errorf("line %d: tag prefix changed: %q", i, line)
			}
		case wantBare[i] != "":
			if got := decodedTarget(t, line); got != wantBare[i] {
				t.Errorf("line %d: url = %q, want %q", i, got, wantBare[i])
			}
		default:
			if line != inLines[i] {
				t.Errorf("line %d changed: %q -> %q", i, inLines[i], line)
			}
		}
	}
}

func TestRewritePlaylistCarriesHeaders(t *testing.T) {
	link := Link{Path: "/proxy", Referer: "https://embed.example/e/1", Origin: "https://embed.example", UserAgent: "TestUA/1"}
	out := string(RewritePlaylist([]byte("#EXTM3U\nseg.ts\n"), masterURL, link))

	line := strings.Split(out, "\n")[1]
	u, err := url.Parse(line)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("referer") != link.Referer || q.Get("origin") != link.Origin || q.Get("ua") != link.UserAgent {
		t.Errorf("header parameters not carried: %q", line)
	}
	if q.Has("rewrite") {
		t.Errorf("nested URIs should rely on the rewrite default: %q", line)
	}
}

func TestRewritePlaylistLeavesUnfetchableURIs(t *testing.T) {
	in := "#EXTM3U\r\n#EXT-X-KEY:METHOD=SAMPLE-AES,URI=\"skd://key-id\"\r\nseg.ts\r\n"
	out := string(RewritePlaylist([]byte(in), masterURL, Link{Path: "/proxy"}))

	lines := strings.Split(out, "\n")
	if lines[1] != "#EXT-X-KEY:METHOD=SAMPLE-AES,URI=\"skd://key-id\"\r" {
		t.Errorf("skd key line changed: %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "\r") {
		t.Errorf("CRLF line ending lost: %q", lines[2])
	}
	if got := decodedTarget(t, strings.TrimSuffix(lines[2], "\r")); got != "https://cdn.example/hls/seg.ts" {
		t.Errorf("segment url = %q", got)
	}
}

func TestLinkFor(t *testing.T) {
	tests := []struct {
		name string
		link Link
		want string
	}{
		{
			name: "resolver form",
			link: Link{Path: "/proxy", Rewrite: true},
			want: "/proxy?url=https%3A%2F%2Fexample.com%2Fvideo.mp4&rewrite=1",
		},
		{
			name: "with referer",
			link: Link{Path: "/proxy", Referer: "https://example.com/embed/abc", Rewrite: true},
			want: "/proxy?url=https%3A%2F%2Fexample.com%2Fvideo.mp4&referer=https%3A%2F%2Fexample.com%2Fembed%2Fabc&rewrite=1",
		},
		{
			name: "public base",
			link: Link{Path: "https://gw.example/proxy"},
			want: "https://gw.example/proxy?url=https%3A%2F%2Fexample.com%2Fvideo.mp4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.link.For("https://example.com/video.mp4"); got != tt.want {
				t.Errorf("For() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLooksLikePlaylist(t *testing.T) {
	tests := map[string]bool{
		"#EXTM3U\n#EXTINF:1,\na.ts": true,
		"\xef\xbb\xbf#EXTM3U\n":      true,
		"  \n#EXTM3U":               true,
		"<!doctype html><html>":     false,
		"":                          false,
	}
	for in, want := range tests {
		if got := looksLikePlaylist([]byte(in)); got != want {
			t.Errorf("looksLikePlaylist(%q) = %v, want %v", in, got, want)
		}
	}
}
