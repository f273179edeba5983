// Package proxy implements the streaming media proxy: it gates targets
// against SSRF, fetches them with browser-like headers, rewrites HLS
// playlists so every segment and key is fetched through the proxy again,
// and streams everything else unchanged with opportunistic caching.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"vidgate/internal/cache"
	"vidgate/internal/httputil"
	"vidgate/internal/logging"
	"vidgate/internal/media"
	"vidgate/internal/metrics"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	maxPlaylistBytes    = 8 << 20
	playlistTimeout     = 20 * time.Second
	copyBufferSize      = 64 << 10
)

// X-Cache values.
const (
	cacheHit    = "HIT"
	cacheMiss   = "MISS"
	cacheBypass = "BYPASS"
)

// forwardHeaders is the allow-list of upstream response headers passed to
// the client.
var forwardHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Accept-Ranges",
	"Content-Range",
	"Cache-Control",
	"Last-Modified",
	"ETag",
}

// Config wires a Proxy. Only Client may be shared with other components.
type Config struct {
	Client  *http.Client
	Cache   *cache.Cache
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger
	// AllowPrivate disables the SSRF gate. Tests and local development only.
	AllowPrivate bool
	// PublicBase prefixes rewritten playlist URLs; empty yields "/proxy?...".
	PublicBase string
	UserAgent  string
}

// Options are the per-request parameters of a proxied fetch.
type Options struct {
	Referer   string
	Origin    string
	UserAgent string
	Rewrite   bool
	Range     string
}

// OptionsFromRequest reads referer, origin, ua and rewrite from the query and
// Range from the request header. rewrite defaults to on.
func OptionsFromRequest(r *http.Request) Options {
	q := r.URL.Query()
	return Options{
		Referer:   strings.TrimSpace(q.Get("referer")),
		Origin:    strings.TrimSpace(q.Get("origin")),
		UserAgent: strings.TrimSpace(q.Get("ua")),
		Rewrite:   parseRewrite(q.Get("rewrite")),
		Range:     r.Header.Get("Range"),
	}
}

func parseRewrite(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}

// Proxy is an http.Handler for /proxy.
type Proxy struct {
	client       *http.Client
	cache        *cache.Cache
	metrics      *metrics.Metrics
	log          *logrus.Entry
	allowPrivate bool
	proxyPath    string
	userAgent    string

	playlists singleflight.Group
}

// New creates a Proxy.
func New(cfg Config) *Proxy {
	if cfg.Client == nil {
		cfg.Client = httputil.NewClient(cfg.AllowPrivate)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Proxy{
		client:       cfg.Client,
		cache:        cfg.Cache,
		metrics:      cfg.Metrics,
		log:          logging.Component(cfg.Logger, "proxy"),
		allowPrivate: cfg.AllowPrivate,
		proxyPath:    strings.TrimSuffix(cfg.PublicBase, "/") + "/proxy",
		userAgent:    cfg.UserAgent,
	}
}

// SetCORS sets the permissive CORS headers every media response carries.
func SetCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Expose-Headers", "Content-Type, Content-Length, Accept-Ranges, Content-Range, X-Cache")
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	SetCORS(w.Header())

	switch r.Method {
	case http.MethodOptions:
		h := w.Header()
		h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Range, Content-Type, Accept, Origin")
		h.Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		WriteError(w, newError(http.StatusMethodNotAllowed, KindInvalidInput, nil, "method %s not allowed", r.Method))
		return
	}

	q := r.URL.Query()
	target, err := httputil.RequestTarget(q)
	if err != nil {
		p.fail(w, "", newError(http.StatusBadRequest, KindInvalidInput, err, "%v", err))
		return
	}

	if err := p.Stream(r.Context(), w, target, OptionsFromRequest(r), r.Method == http.MethodHead); err != nil {
		p.fail(w, target, err)
	}
}

// Stream fetches target and writes it to w. Failures before the response
// header is written are returned as *Error and nothing has been written;
// once the body has started, upstream or client errors only end it early.
func (p *Proxy) Stream(ctx context.Context, w http.ResponseWriter, target string, opts Options, headOnly bool) error {
	if err := p.gate(target); err != nil {
		return err
	}

	if opts.Range == "" && p.cache != nil {
		if data, ct, ok := p.cache.Get(target); ok {
			return p.writeCached(w, target, data, ct, opts, headOnly)
		}
	}

	// Playlists are small text: fetch them whole, even for Range requests.
	if cache.IsPlaylist(target, "") {
		pl, err := p.fetchPlaylist(ctx, target, opts)
		if err != nil {
			return err
		}
		state := cacheMiss
		if opts.Range != "" {
			state = cacheBypass
		}
		return p.writePlaylist(w, target, pl.body, pl.contentType, opts, state, headOnly)
	}

	resp, err := p.do(ctx, target, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusOK && cache.IsPlaylist("", ct) {
		body, err := readPlaylist(resp, target)
		if err != nil {
			return err
		}
		state := cacheBypass
		if opts.Range == "" && p.cache != nil && p.cache.Set(target, body, ct) {
			state = cacheMiss
		}
		return p.writePlaylist(w, target, body, ct, opts, state, headOnly)
	}
	if isSuccess(resp.StatusCode) && isHTML(ct) {
		return newError(http.StatusBadGateway, KindUnexpectedContent, nil,
			"upstream returned an HTML page instead of media; the URL is probably an embed page, resolve it first")
	}
	return p.pipe(ctx, w, target, resp, opts, headOnly)
}

func (p *Proxy) gate(target string) error {
	var err error
	if p.allowPrivate {
		err = httputil.ValidateURL(target)
	} else {
		_, err = httputil.CheckTarget(target)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, httputil.ErrBlocked):
		return newError(http.StatusBadRequest, KindBlocked, err, "target is not allowed")
	default:
		return newError(http.StatusBadRequest, KindInvalidInput, err, "target must be an absolute http(s) URL")
	}
}

// do sends the upstream request. The Referer defaults to the target's own
// origin.
func (p *Proxy) do(ctx context.Context, target string, opts Options) (*http.Response, error) {
	referer := opts.Referer
	if referer == "" {
		referer = httputil.Origin(target) + "/"
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = p.userAgent
	}

	req, err := httputil.NewRequest(ctx, http.MethodGet, target, httputil.RequestOptions{
		Referer:   referer,
		Origin:    opts.Origin,
		UserAgent: ua,
		Accept:    httputil.AcceptAny,
		Range:     opts.Range,
	})
	if err != nil {
		return nil, newError(http.StatusBadRequest, KindInvalidInput, err, "cannot build upstream request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return resp, nil
}

func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return errClientGone
	case errors.Is(err, httputil.ErrBlocked):
		return newError(http.StatusBadRequest, KindBlocked, err, "upstream address is not allowed")
	case httputil.IsTimeout(err):
		return newError(http.StatusBadGateway, KindUpstreamUnreachable, err, "upstream timed out")
	default:
		return newError(http.StatusBadGateway, KindUpstreamUnreachable, err, "upstream unreachable")
	}
}

type playlist struct {
	body        []byte
	contentType string
}

// fetchPlaylist coalesces concurrent fetches of the same playlist with the
// same upstream headers. The shared fetch outlives a single caller's
// cancellation but is bounded by playlistTimeout.
func (p *Proxy) fetchPlaylist(ctx context.Context, target string, opts Options) (*playlist, error) {
	store := opts.Range == "" && p.cache != nil
	key := strings.Join([]string{target, opts.Referer, opts.Origin, opts.UserAgent, strconv.FormatBool(store)}, "\x00")

	ch := p.playlists.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), playlistTimeout)
		defer cancel()

		o := opts
		o.Range = ""
		resp, err := p.do(fctx, target, o)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if !isSuccess(resp.StatusCode) {
			status := resp.StatusCode
			if status < 400 || status > 499 {
				status = http.StatusBadGateway
			}
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			return nil, newError(status, KindUpstreamRejected, nil, "upstream returned %d for playlist", resp.StatusCode)
		}

		body, err := readPlaylist(resp, target)
		if err != nil {
			return nil, err
		}
		ct := resp.Header.Get("Content-Type")
		if store {
			p.cache.Set(target, body, ct)
		}
		return &playlist{body: body, contentType: ct}, nil
	})

	select {
	case <-ctx.Done():
		return nil, errClientGone
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*playlist), nil
	}
}

func readPlaylist(resp *http.Response, target string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes+1))
	if err != nil {
		return nil, newError(http.StatusBadGateway, KindUpstreamUnreachable, err, "reading playlist failed")
	}
	if len(body) > maxPlaylistBytes {
		return nil, newError(http.StatusBadGateway, KindUnexpectedContent, nil, "playlist larger than %d bytes", maxPlaylistBytes)
	}
	if isHTML(resp.Header.Get("Content-Type")) && !looksLikePlaylist(body) {
		return nil, newError(http.StatusBadGateway, KindUnexpectedContent, nil, "upstream returned an HTML page instead of a playlist for %s", target)
	}
	return body, nil
}

// writePlaylist rewrites a raw playlist for this caller and writes it.
// Cached playlists are stored raw, so each caller gets URIs carrying its own
// referer, origin and user agent.
func (p *Proxy) writePlaylist(w http.ResponseWriter, target string, body []byte, ct string, opts Options, state string, headOnly bool) error {
	if opts.Rewrite {
		body = RewritePlaylist(body, target, Link{
			Path:      p.proxyPath,
			Referer:   opts.Referer,
			Origin:    opts.Origin,
			UserAgent: opts.UserAgent,
		})
	}
	if !strings.Contains(strings.ToLower(ct), "mpegurl") {
		ct = playlistContentType
	}

	h := w.Header()
	h.Set("Content-Type", ct)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Cache", state)
	w.WriteHeader(http.StatusOK)

	if headOnly {
		p.metrics.ObserveProxy(media.HLS.String(), strings.ToLower(state), 0)
		return nil
	}
	n, _ := w.Write(body)
	p.metrics.ObserveProxy(media.HLS.String(), strings.ToLower(state), int64(n))
	return nil
}

func (p *Proxy) writeCached(w http.ResponseWriter, target string, data []byte, ct string, opts Options, headOnly bool) error {
	if cache.IsPlaylist(target, ct) {
		return p.writePlaylist(w, target, data, ct, opts, cacheHit, headOnly)
	}

	h := w.Header()
	if ct != "" {
		h.Set("Content-Type", ct)
	}
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Accept-Ranges", "bytes")
	h.Set("X-Cache", cacheHit)
	w.WriteHeader(http.StatusOK)

	kind := kindLabel(target, ct)
	if headOnly {
		p.metrics.ObserveProxy(kind, "hit", 0)
		return nil
	}
	n, _ := w.Write(data)
	p.metrics.ObserveProxy(kind, "hit", int64(n))
	return nil
}

// pipe streams a non-playlist response. The body is teed into the cache only
// for a complete 200 response of known, admissible size to a request
// without Range.
func (p *Proxy) pipe(ctx context.Context, w http.ResponseWriter, target string, resp *http.Response, opts Options, headOnly bool) error {
	ct := resp.Header.Get("Content-Type")
	store := p.cache != nil &&
		opts.Range == "" &&
		resp.StatusCode == http.StatusOK &&
		resp.ContentLength > 0 &&
		p.cache.Admit(target, ct, resp.ContentLength)

	state := cacheBypass
	if store {
		state = cacheMiss
	}

	h := w.Header()
	for _, k := range forwardHeaders {
		if v := resp.Header.Values(k); len(v) > 0 {
			h[k] = v
		}
	}
	h.Set("X-Cache", state)
	w.WriteHeader(resp.StatusCode)

	kind := kindLabel(target, ct)
	if headOnly {
		p.metrics.ObserveProxy(kind, strings.ToLower(state), 0)
		return nil
	}

	var tee *bytes.Buffer
	if store {
		tee = bytes.NewBuffer(make([]byte, 0, resp.ContentLength))
	}
	n, err := copyFlush(w, resp.Body, tee)
	p.metrics.ObserveProxy(kind, strings.ToLower(state), n)

	if err != nil {
		entry := p.log.WithFields(logrus.Fields{"url": target, "bytes": n})
		if ctx.Err() != nil {
			entry.Debug("client disconnected mid-stream")
		} else {
			entry.WithError(err).Warn("stream ended early")
		}
		return nil
	}
	if store && int64(tee.Len()) == resp.ContentLength {
		p.cache.Set(target, tee.Bytes(), ct)
	}
	return nil
}

// copyFlush copies src to w, flushing after every chunk so players start
// receiving data before the upstream body completes.
func copyFlush(w http.ResponseWriter, src io.Reader, tee *bytes.Buffer) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if tee != nil {
				tee.Write(buf[:nr])
			}
			_ = rc.Flush()
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func (p *Proxy) fail(w http.ResponseWriter, target string, err error) {
	if errors.Is(err, errClientGone) {
		return
	}

	entry := p.log.WithField("url", target).WithError(err)
	var pe *Error
	if errors.As(err, &pe) {
		p.metrics.ObserveUpstreamError(string(pe.Kind))
		entry = entry.WithField("kind", pe.Kind)
		if pe.Status < 500 {
			entry.Info("proxy request rejected")
		} else {
			entry.Warn("proxy request failed")
		}
	} else {
		p.metrics.ObserveUpstreamError(string(KindUpstreamUnreachable))
		entry.Warn("proxy request failed")
	}
	WriteError(w, err)
}

func isSuccess(status int) bool { return status >= 200 && status <= 299 }

func isHTML(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

func kindLabel(target, ct string) string {
	if cache.IsPlaylist(target, ct) {
		return media.HLS.String()
	}
	if k := media.KindFromURL(target); k != media.Unknown {
		return k.String()
	}
	ct = strings.ToLower(ct)
	switch {
	case strings.HasPrefix(ct, "video/mp4"):
		return media.MP4.String()
	case strings.HasPrefix(ct, "video/webm"):
		return media.WebM.String()
	case strings.HasPrefix(ct, "video/x-matroska"):
		return media.MKV.String()
	case strings.Contains(ct, "dash+xml"):
		return media.DASH.String()
	}
	return "other"
}
