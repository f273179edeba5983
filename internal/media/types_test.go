package media

import "testing"

func TestKindFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want Kind
	}{
		{"https://cdn.example.com/hls/master.m3u8", HLS},
		{"https://cdn.example.com/hls/master.M3U8?token=abc&e=1", HLS},
		{"https://cdn.example.com/v/movie.mp4", MP4},
		{"https://cdn.example.com/v/clip.webm", WebM},
		{"https://cdn.example.com/v/film.mkv", MKV},
		{"https://cdn.example.com/dash/manifest.mpd", DASH},
		{"https://cdn.example.com/stream/index.m3u8/seg", HLS},
		{"https://cdn.example.com/watch?v=1", Unknown},
		{"%%%", Unknown},
	}

	for _, tt := range tests {
		if got := KindFromURL(tt.url); got != tt.want {
			t.Errorf("KindFromURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestKindText(t *testing.T) {
	for _, k := range []Kind{HLS, MP4, WebM, MKV, DASH, Unknown} {
		b, _ := k.MarshalText()
		var got Kind
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", b, err)
		}
		if got != k {
			t.Errorf("round trip %v -> %q -> %v", k, b, got)
		}
	}
}

func TestSortRank(t *testing.T) {
	order := []Kind{HLS, MP4, WebM, DASH, MKV}
	for i := 1; i < len(order); i++ {
		if order[i-1].SortRank() >= order[i].SortRank() {
			t.Errorf("%v should sort before %v", order[i-1], order[i])
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM/a/b.mp4#t=10", "https://example.com/a/b.mp4"},
		{"https://example.com:443/x.m3u8", "https://example.com/x.m3u8"},
		{"http://example.com:80/x.m3u8", "http://example.com/x.m3u8"},
		{"http://example.com:8080/x.m3u8", "http://example.com:8080/x.m3u8"},
		{"https://example.com/Path/Keep.mp4?Q=1", "https://example.com/Path/Keep.mp4?Q=1"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://cdn.example.com/movie_1080p.mp4", "1080p"},
		{"https://cdn.example.com/720p/index.m3u8", "720p"},
		{"https://cdn.example.com/v.mp4?res=480p", "480p"},
		{"https://cdn.example.com/fhd/index.m3u8", "1080p"},
		{"https://cdn.example.com/movie-4k.mp4", "2160p"},
		{"https://hd.example.com/movie.mp4", ""},
		{"https://cdn.example.com/a1080px/movie.mp4", ""},
		{"https://cdn.example.com/movie.mp4", ""},
	}

	for _, tt := range tests {
		if got := ParseQuality(tt.url); got != tt.want {
			t.Errorf("ParseQuality(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestQualityValue(t *testing.T) {
	if got := QualityValue("1080p"); got != 1080 {
		t.Errorf("QualityValue(1080p) = %d", got)
	}
	if got := QualityValue(""); got != 0 {
		t.Errorf("QualityValue(\"\") = %d", got)
	}
}
