package resolve

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"testing"
)

func TestParseEmbedURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantHost   string
		wantPrefix string
		wantID     string
		wantErr    bool
	}{
		{
			name:       "v3 embed",
			url:        "https://megacloud.blog/embed-2/v3/e-1/AbCdEf?z=",
			wantHost:   "megacloud.blog",
			wantPrefix: "embed-2",
			wantID:     "AbCdEf",
		},
		{
			name:       "legacy embed-1 path",
			url:        "https://rabbitstream.net/embed-1/e-4/xyz",
			wantHost:   "rabbitstream.net",
			wantPrefix: "embed-1",
			wantID:     "xyz",
		},
		{
			name:       "unknown prefix defaults to embed-2",
			url:        "https://megacloud.tv/e/abc123",
			wantHost:   "megacloud.tv",
			wantPrefix: "embed-2",
			wantID:     "abc123",
		},
		{
			name:    "empty path",
			url:     "https://megacloud.blog/",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, prefix, id, err := parseEmbedURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseEmbedURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if host != tt.wantHost || prefix != tt.wantPrefix || id != tt.wantID {
				t.Errorf("parseEmbedURL(%q) = (%q, %q, %q), want (%q, %q, %q)",
					tt.url, host, prefix, id, tt.wantHost, tt.wantPrefix, tt.wantID)
			}
		})
	}
}

func TestStreamtapeFallsBackToRobotlinkDiv(t *testing.T) {
	page := Page{
		URL:  "https://streamtape.com/e/Q1",
		HTML: `<div id="robotlink" style="display:none;">/streamtape.com/get_video?id=Q1&token=abc</div>`,
	}
	got, err := streamtape{}.Extract(context.Background(), page, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "https://streamtape.com/get_video?id=Q1&token=abc&stream=1"
	if len(got) != 1 || got[0].URL != want {
		t.Errorf("Extract() = %+v, want %s", got, want)
	}
}

func TestStreamtapeWithoutLink(t *testing.T) {
	_, err := streamtape{}.Extract(context.Background(), Page{URL: "https://streamtape.com/e/Q1", HTML: "<p>removed</p>"}, nil)
	if err == nil {
		t.Fatal("expected an error for a page without robotlink")
	}
}

func TestMixdropReadsPackedConfig(t *testing.T) {
	packed := `eval(function(p,a,c,k,e,d){return p}('0.1="//2.3/4.5";',6,6,'MDCore|wurl|delivery7|mxdcontent|v|mp4'.split('|'),0,{}))`
	page := Page{URL: "https://mixdrop.ag/e/abc", HTML: "<script>" + packed + "</script>"}

	got, err := mixdrop{}.Extract(context.Background(), page, nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 1 || got[0].URL != "https://delivery7.mxdcontent/v.mp4" {
		t.Errorf("Extract() = %+v", got)
	}
}

func TestScriptSourcesOrdering(t *testing.T) {
	doc := parseDocument([]byte(`<html><head>
		<script src="/a.js"></script>
		<script src="https://code.jquery.com/jquery-3.7.1.min.js"></script>
		<script src="/assets/jwplayer.js"></script>
		<script src="/a.js"></script>
		<script src="/b.js"></script>
		<script src="/video-init.js"></script>
	</head></html>`))

	got := scriptSources(doc, "https://site.example/watch/1", 3)
	want := []string{
		"https://site.example/assets/jwplayer.js",
		"https://site.example/video-init.js",
		"https://site.example/a.js",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("scriptSources() = %v, want %v", got, want)
	}
}

func TestIframeSourcesLimitAndSelf(t *testing.T) {
	doc := parseDocument([]byte(`<body>
		<iframe src="#top"></iframe>
		<iframe src="/f/1"></iframe>
		<iframe data-lazy-src="/f/2"></iframe>
		<iframe src="/f/1"></iframe>
		<iframe src="javascript:void(0)"></iframe>
		<iframe src="/f/3"></iframe>
	</body>`))

	got := iframeSources(doc, "https://site.example/watch/1", 2)
	want := []string{"https://site.example/f/1", "https://site.example/f/2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("iframeSources() = %v, want %v", got, want)
	}
}

func TestProbeTextDecodesJSON(t *testing.T) {
	got := probeText([]byte(`{"b":"https:\/\/x.example\/b.mp4","a":["https://x.example/a.m3u8"]}`))
	if !strings.Contains(got, `"https://x.example/b.mp4"`) {
		t.Errorf("decoded value missing from %q", got)
	}
	if strings.Index(got, "\n\"https://x.example/a.m3u8\"") > strings.Index(got, "\n\"https://x.example/b.mp4\"") {
		t.Errorf("values not in key order: %q", got)
	}

	if got := probeText([]byte("not json")); got != "not json" {
		t.Errorf("probeText(non-JSON) = %q", got)
	}
}

func TestReasonHTTPStatus(t *testing.T) {
	tests := map[Reason]int{
		"":                  http.StatusOK,
		ReasonNoMedia:       http.StatusOK,
		ReasonInvalidInput:  http.StatusBadRequest,
		ReasonInvalidScheme: http.StatusBadRequest,
		ReasonBlocked:       http.StatusBadRequest,
		ReasonFetchTimeout:  http.StatusBadGateway,
		ReasonNetworkError:  http.StatusBadGateway,
		ReasonHTTPError:     http.StatusBadGateway,
		ReasonCancelled:     499,
	}
	for reason, want := range tests {
		if got := reason.HTTPStatus(); got != want {
			t.Errorf("%q.HTTPStatus() = %d, want %d", reason, got, want)
		}
	}
}
