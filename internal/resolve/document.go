package resolve

import (
	"bytes"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"vidgate/internal/httputil"
)

// playerScript marks script names likely to hold the player setup.
var playerScript = regexp.MustCompile(`(?i)player|video|stream|embed|jw|source`)

// libraryScript marks well-known third-party scripts that never carry media.
var libraryScript = regexp.MustCompile(`(?i)jquery|bootstrap|analytics|gtag|googletagmanager|recaptcha|hcaptcha|cloudflare|fontawesome|disqus|adsbygoogle|popper|lazysizes`)

func parseDocument(body []byte) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	return doc
}

// inlineScripts returns the bodies of <script> elements without a src.
func inlineScripts(doc *goquery.Document) []string {
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("src"); ok {
			return
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// iframeSources returns up to limit distinct absolute iframe targets, in
// document order. Lazy-loaded frames often carry data-src instead of src.
func iframeSources(doc *goquery.Document, pageURL string, limit int) []string {
	var out []string
	doc.Find("iframe").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		ref := lo.CoalesceOrEmpty(attr(s, "src"), attr(s, "data-src"), attr(s, "data-lazy-src"))
		abs, ok := httputil.Resolve(pageURL, ref)
		if !ok || sameDocument(abs, pageURL) || lo.Contains(out, abs) {
			return true
		}
		out = append(out, abs)
		return len(out) < limit
	})
	return out
}

// scriptSources returns up to limit external script URLs. Scripts whose
// names suggest a player come first; known libraries are skipped.
func scriptSources(doc *goquery.Document, pageURL string, limit int) []string {
	var all []string
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		abs, ok := httputil.Resolve(pageURL, attr(s, "src"))
		if !ok || lo.Contains(all, abs) || libraryScript.MatchString(scriptName(abs)) {
			return
		}
		all = append(all, abs)
	})

	sort.SliceStable(all, func(i, j int) bool {
		return playerScript.MatchString(scriptName(all[i])) && !playerScript.MatchString(scriptName(all[j]))
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func scriptName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return path.Base(u.Path)
}

func sameDocument(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	ua.Fragment, ub.Fragment = "", ""
	return ua.String() == ub.String()
}
