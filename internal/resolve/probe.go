package resolve

import (
	"context"
	"encoding/json"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"vidgate/internal/httputil"
	"vidgate/internal/media"
)

// probeTemplates are API shapes common to embed hosts. %s is the id taken
// from the last segment of the page path.
var probeTemplates = []string{
	"/api/source/%s",
	"/api/sources/%s",
	"/ajax/embed/getSources?id=%s",
	"/api/video/%s",
	"/embed/api/source/%s",
}

// probeURLs derives API endpoints from the page path. Pages without an id
// segment get no probes.
func probeURLs(pageURL string) []string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil
	}
	id := path.Base(strings.TrimSuffix(u.Path, "/"))
	if ext := path.Ext(id); ext != "" {
		id = strings.TrimSuffix(id, ext)
	}
	if id == "" || id == "." || id == "/" {
		return nil
	}

	origin := u.Scheme + "://" + u.Host
	out := make([]string, 0, len(probeTemplates))
	for _, tmpl := range probeTemplates {
		out = append(out, origin+strings.Replace(tmpl, "%s", url.PathEscape(id), 1))
	}
	return out
}

type probeResult struct {
	url   string
	found []media.Candidate
	err   error
}

// probe queries every endpoint with at most limit requests in flight.
// Results are returned in probe order regardless of completion order.
func (r *Resolver) probe(ctx context.Context, page Page, endpoints []string, limit int) []probeResult {
	results := make([]probeResult, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, endpoint := range endpoints {
		g.Go(func() error {
			results[i].url = endpoint
			body, err := r.fetchAux(gctx, endpoint, httputil.RequestOptions{
				Referer:   page.URL,
				UserAgent: page.UserAgent,
				Accept:    httputil.AcceptJSON,
				XHR:       true,
			})
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].found = r.extractor.Scan(probeText(body), httputil.Origin(endpoint)+"/")
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// probeText returns the text to scan for a probe response. JSON bodies are
// decoded first so escaped URLs come out literal; their string values are
// appended to the raw body.
func probeText(body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	var b strings.Builder
	b.Write(body)
	walkStrings(v, func(s string) {
		b.WriteString("\n\"")
		b.WriteString(s)
		b.WriteString("\"")
	})
	return b.String()
}

func walkStrings(v any, fn func(string)) {
	switch t := v.(type) {
	case string:
		fn(t)
	case []any:
		for _, e := range t {
			walkStrings(e, fn)
		}
	case map[string]any:
		keys := lo.Keys(t)
		sort.Strings(keys)
		for _, k := range keys {
			walkStrings(t[k], fn)
		}
	}
}
