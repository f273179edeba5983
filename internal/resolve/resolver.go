// Package resolve turns an embed page URL into ranked, proxy-ready media
// URLs. It runs an ordered chain of strategies and stops at the first one
// that yields candidates:
//
//  1. validate the URL
//  2. fetch the page
//  3. scan the raw HTML
//  4. scan each inline <script>
//  5. provider-specific heuristics
//  6. follow iframes and external scripts
//  7. probe provider-shaped API endpoints
//
// The surviving candidates are deduplicated, joined with their provider
// profile and sorted by type, quality and reliability.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"vidgate/internal/extract"
	"vidgate/internal/httputil"
	"vidgate/internal/logging"
	"vidgate/internal/media"
	"vidgate/internal/metrics"
	"vidgate/internal/provider"
)

const (
	DefaultPageTimeout      = 15 * time.Second
	DefaultAuxTimeout       = 6 * time.Second
	DefaultMaxIframes       = 3
	DefaultMaxScripts       = 5
	DefaultProbeConcurrency = 3
	DefaultRatePerSecond    = 10
	DefaultBurst            = 20
)

// Stage names as reported in debug output.
const (
	StagePage      = "page"
	StageScripts   = "inline-scripts"
	StageHeuristic = "heuristic"
	StageIframe    = "iframe"
	StageScriptSrc = "script-src"
	StageProbe     = "api-probe"
)

// Config wires a Resolver. Zero values take the defaults above.
type Config struct {
	Client     *http.Client
	Registry   *provider.Registry
	Extractor  *extract.Extractor
	Heuristics []Heuristic
	Logger     logrus.FieldLogger
	Metrics    *metrics.Metrics

	PageTimeout      time.Duration
	AuxTimeout       time.Duration
	MaxIframes       int
	MaxScripts       int
	ProbeConcurrency int
	// Exhaustive runs every stage and merges the results.
	Exhaustive    bool
	RatePerSecond float64
	Burst         int

	// PublicBase prefixes proxiedUrl; empty yields "/proxy?...".
	PublicBase   string
	UserAgent    string
	AllowPrivate bool
}

// Options are the per-call parameters of Resolve.
type Options struct {
	Referer   string
	UserAgent string
	Debug     bool
	// Exhaustive forces every stage to run for this call.
	Exhaustive bool
}

// Resolver is safe for concurrent use.
type Resolver struct {
	cfg        Config
	client     *http.Client
	registry   *provider.Registry
	extractor  *extract.Extractor
	heuristics []Heuristic
	limiter    *rate.Limiter
	log        *logrus.Entry
	metrics    *metrics.Metrics
	proxyPath  string
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	if cfg.Client == nil {
		cfg.Client = httputil.NewClient(cfg.AllowPrivate)
	}
	if cfg.Registry == nil {
		cfg.Registry = provider.Default()
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.New()
	}
	if cfg.Heuristics == nil {
		cfg.Heuristics = DefaultHeuristics()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultPageTimeout
	}
	if cfg.AuxTimeout <= 0 {
		cfg.AuxTimeout = DefaultAuxTimeout
	}
	if cfg.MaxIframes <= 0 {
		cfg.MaxIframes = DefaultMaxIframes
	}
	if cfg.MaxScripts <= 0 {
		cfg.MaxScripts = DefaultMaxScripts
	}
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = DefaultProbeConcurrency
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	return &Resolver{
		cfg:        cfg,
		client:     cfg.Client,
		registry:   cfg.Registry,
		extractor:  cfg.Extractor,
		heuristics: cfg.Heuristics,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		log:        logging.Component(cfg.Logger, "resolve"),
		metrics:    cfg.Metrics,
		proxyPath:  strings.TrimSuffix(cfg.PublicBase, "/") + "/proxy",
	}
}

// Resolve runs the fallback chain for pageURL. It never returns a Go error:
// failures are reported through Result.Reason.
func (r *Resolver) Resolve(ctx context.Context, pageURL string, opts Options) *Result {
	start := time.Now()
	run := &run{
		r:          r,
		opts:       opts,
		exhaustive: r.cfg.Exhaustive || opts.Exhaustive,
		seen:       make(map[string]bool),
		debug:      &Debug{PageURL: strings.TrimSpace(pageURL)},
	}
	if run.opts.UserAgent == "" {
		run.opts.UserAgent = r.cfg.UserAgent
	}

	res := run.resolve(ctx, strings.TrimSpace(pageURL))
	if opts.Debug {
		res.Debug = run.debug
	}

	outcome := string(res.Reason)
	if res.OK {
		outcome = "ok"
	}
	r.metrics.ObserveResolve(outcome)
	r.log.WithFields(logrus.Fields{
		"url":      pageURL,
		"outcome":  outcome,
		"found":    len(res.URLs),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("resolve finished")
	return res
}

// run holds the state of one Resolve call.
type run struct {
	r          *Resolver
	opts       Options
	exhaustive bool
	page       Page
	found      []media.Candidate
	seen       map[string]bool
	debug      *Debug
}

func (x *run) resolve(ctx context.Context, pageURL string) *Result {
	if res := x.validate(pageURL); res != nil {
		return res
	}

	body, finalURL, res := x.fetchPage(ctx, pageURL)
	if res != nil {
		return res
	}
	// Mirrors redirect to rotating domains; everything after the fetch
	// works from where the page actually lives.
	if finalURL != pageURL {
		x.r.log.WithFields(logrus.Fields{"url": pageURL, "final": finalURL}).Debug("page redirected")
		pageURL = finalURL
		x.debug.PageURL = finalURL
	}
	x.page = Page{URL: pageURL, HTML: string(body), Referer: x.opts.Referer, UserAgent: x.opts.UserAgent}
	base := httputil.Origin(pageURL) + "/"
	doc := parseDocument(body)

	x.collect(StagePage, "", x.r.extractor.Scan(x.page.HTML, base), nil)

	if x.next() && doc != nil {
		var found []media.Candidate
		for _, script := range inlineScripts(doc) {
			found = append(found, x.r.extractor.Scan(script, base)...)
		}
		x.collect(StageScripts, "", found, nil)
	}

	if x.next() {
		x.runHeuristics(ctx)
	}

	if x.next() && doc != nil {
		x.followResources(ctx, doc)
	}

	if x.next() {
		if endpoints := probeURLs(pageURL); len(endpoints) > 0 {
			for _, pr := range x.r.probe(ctx, x.page, endpoints, x.r.cfg.ProbeConcurrency) {
				x.collect(StageProbe, pr.url, pr.found, pr.err)
			}
		}
	}

	if ctx.Err() != nil {
		return failure(ReasonCancelled, "resolve cancelled")
	}
	if len(x.found) == 0 {
		return failure(ReasonNoMedia, "no playable media found on the page")
	}
	return x.finish()
}

// next reports whether the chain should continue to the next stage.
func (x *run) next() bool {
	return len(x.found) == 0 || x.exhaustive
}

func (x *run) validate(pageURL string) *Result {
	if pageURL == "" {
		return failure(ReasonInvalidInput, "missing url")
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return failure(ReasonInvalidInput, fmt.Sprintf("malformed url: %v", err))
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return failure(ReasonInvalidScheme, fmt.Sprintf("only http and https URLs can be resolved, got %q", u.Scheme))
	}
	if u.Host == "" {
		return failure(ReasonInvalidInput, "url has no host")
	}
	if x.r.cfg.AllowPrivate {
		return nil
	}
	if _, err := httputil.CheckTarget(pageURL); err != nil {
		if errors.Is(err, httputil.ErrBlocked) {
			return failure(ReasonBlocked, "target is not allowed")
		}
		return failure(ReasonInvalidInput, err.Error())
	}
	return nil
}

func (x *run) fetchPage(ctx context.Context, pageURL string) ([]byte, string, *Result) {
	pctx, cancel := context.WithTimeout(ctx, x.r.cfg.PageTimeout)
	defer cancel()

	body, finalURL, err := httputil.FetchPage(pctx, x.r.client, pageURL, httputil.RequestOptions{
		Referer:   x.opts.Referer,
		UserAgent: x.opts.UserAgent,
		Accept:    httputil.AcceptHTML,
	})
	if err == nil {
		return body, finalURL, nil
	}

	x.debug.Stages = append(x.debug.Stages, StageReport{Stage: StagePage, Source: pageURL, Error: err.Error()})
	var se *httputil.StatusError
	switch {
	case ctx.Err() != nil:
		return nil, "", failure(ReasonCancelled, "resolve cancelled")
	case errors.As(err, &se):
		res := failure(ReasonHTTPError, fmt.Sprintf("page returned HTTP %d", se.Code))
		res.Status = se.Code
		return nil, "", res
	case errors.Is(err, httputil.ErrBlocked):
		return nil, "", failure(ReasonBlocked, "page redirected to a blocked address")
	case httputil.IsTimeout(err):
		return nil, "", failure(ReasonFetchTimeout, fmt.Sprintf("page did not respond within %s", x.r.cfg.PageTimeout))
	default:
		return nil, "", failure(ReasonNetworkError, fmt.Sprintf("page fetch failed: %v", err))
	}
}

func (x *run) runHeuristics(ctx context.Context) {
	profile := x.r.registry.Lookup(x.page.URL)
	if profile == nil {
		return
	}
	x.debug.Provider = profile.Name

	for _, h := range x.r.heuristics {
		if !lo.ContainsBy(h.Providers(), func(name string) bool { return strings.EqualFold(name, profile.Name) }) {
			continue
		}
		found, err := h.Extract(ctx, x.page, x.r.fetchAux)
		x.collect(StageHeuristic, h.Name(), found, err)
		if !x.next() {
			return
		}
	}
}

// followResources fetches iframes, then external scripts, one at a time,
// until one of them yields candidates.
func (x *run) followResources(ctx context.Context, doc *goquery.Document) {
	frames := iframeSources(doc, x.page.URL, x.r.cfg.MaxIframes)
	scripts := scriptSources(doc, x.page.URL, x.r.cfg.MaxScripts)

	for _, frame := range frames {
		body, err := x.r.fetchAux(ctx, frame, httputil.RequestOptions{
			Referer:   x.page.URL,
			UserAgent: x.opts.UserAgent,
			Accept:    httputil.AcceptHTML,
		})
		if err != nil {
			x.collect(StageIframe, frame, nil, err)
			continue
		}
		base := httputil.Origin(frame) + "/"
		found := x.r.extractor.Scan(string(body), base)
		if len(found) == 0 {
			if fdoc := parseDocument(body); fdoc != nil {
				for _, script := range inlineScripts(fdoc) {
					found = append(found, x.r.extractor.Scan(script, base)...)
				}
			}
		}
		x.collect(StageIframe, frame, found, nil)
		if !x.next() {
			return
		}
	}

	for _, script := range scripts {
		body, err := x.r.fetchAux(ctx, script, httputil.RequestOptions{
			Referer:   x.page.URL,
			UserAgent: x.opts.UserAgent,
			Accept:    httputil.AcceptAny,
		})
		if err != nil {
			x.collect(StageScriptSrc, script, nil, err)
			continue
		}
		x.collect(StageScriptSrc, script, x.r.extractor.Scan(string(body), httputil.Origin(script)+"/"), nil)
		if !x.next() {
			return
		}
	}
}

// collect merges a stage's candidates, dropping URLs already seen, and
// records the stage for debug output.
func (x *run) collect(stage, source string, found []media.Candidate, err error) {
	report := StageReport{Stage: stage, Source: source}
	if err != nil {
		report.Error = err.Error()
		x.r.log.WithFields(logrus.Fields{"stage": stage, "source": source}).WithError(err).Debug("stage failed")
	}
	for _, c := range found {
		if httputil.ValidateURL(c.URL) != nil {
			continue
		}
		key := media.Normalize(c.URL)
		if x.seen[key] {
			continue
		}
		x.seen[key] = true
		x.found = append(x.found, c)
		report.Found++
	}
	x.debug.Stages = append(x.debug.Stages, report)
	if report.Found > 0 {
		x.r.log.WithFields(logrus.Fields{"stage": stage, "source": source, "found": report.Found}).Debug("stage yielded candidates")
	}
}

// fetchAux is the FetchFunc handed to heuristics and used for iframes,
// scripts and probes.
func (r *Resolver) fetchAux(ctx context.Context, rawURL string, opts httputil.RequestOptions) ([]byte, error) {
	if !r.cfg.AllowPrivate {
		if _, err := httputil.CheckTarget(rawURL); err != nil {
			return nil, err
		}
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	actx, cancel := context.WithTimeout(ctx, r.cfg.AuxTimeout)
	defer cancel()

	if opts.UserAgent == "" {
		opts.UserAgent = r.cfg.UserAgent
	}
	return httputil.Fetch(actx, r.client, rawURL, opts)
}

func failure(reason Reason, msg string) *Result {
	return &Result{OK: false, URLs: []Resolved{}, Message: msg, Reason: reason}
}
