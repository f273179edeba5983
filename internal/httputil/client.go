// Package httputil provides a security-hardened HTTP client, outbound target
// validation and request helpers shared by the resolver and the proxy.
package httputil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// DefaultUserAgent is sent when the caller does not supply one. Many media
// hosts reject requests without a plausible desktop browser fingerprint.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const (
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	AcceptJSON = "application/json, text/javascript, */*; q=0.01"
	AcceptAny  = "*/*"
)

// MaxPageBytes bounds how much of a page or script body is read for extraction.
const MaxPageBytes = 10 * 1024 * 1024

const maxRedirects = 10

// NewClient creates a hardened HTTP client with secure defaults.
//
// Unless allowPrivate is set, the dialer refuses loopback, private,
// link-local and multicast addresses after DNS resolution, and every redirect
// hop is re-checked with CheckTarget. The client has no overall timeout:
// callers bound each request with their context.
func NewClient(allowPrivate bool) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !allowPrivate {
		dialer.Control = guardDial
	}

	return &http.Client{
		Transport: &http.Transport{
			DialContext: dialer.DialContext,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          64,
			IdleConnTimeout:       30 * time.Second,
			DisableCompression:    false,
			MaxIdleConnsPerHost:   8,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 20 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if allowPrivate {
				return nil
			}
			_, err := CheckTarget(req.URL.String())
			return err
		},
	}
}

// guardDial runs after name resolution, so it also catches public hostnames
// whose records point at internal addresses.
func guardDial(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlocked, address)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: unparseable dial address %s", ErrBlocked, address)
	}
	if blockedAddr(addr) {
		return fmt.Errorf("%w: %s resolves to a non-public address", ErrBlocked, host)
	}
	return nil
}

// RequestOptions carries the per-request header overrides callers may supply.
type RequestOptions struct {
	Referer   string
	Origin    string
	UserAgent string
	Accept    string
	Range     string
	// XHR marks the request as an XMLHttpRequest, which some player APIs require.
	XHR bool
}

// NewRequest builds a GET request with browser-like headers.
func NewRequest(ctx context.Context, method, rawURL string, opts RequestOptions) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	accept := opts.Accept
	if accept == "" {
		accept = AcceptHTML
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}
	if opts.Origin != "" {
		req.Header.Set("Origin", opts.Origin)
	}
	if opts.Range != "" {
		req.Header.Set("Range", opts.Range)
	}
	if opts.XHR {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	return req, nil
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// Fetch performs a GET and returns at most MaxPageBytes of the body.
// Non-2xx responses are returned as *StatusError.
func Fetch(ctx context.Context, client *http.Client, rawURL string, opts RequestOptions) ([]byte, error) {
	body, _, err := FetchPage(ctx, client, rawURL, opts)
	return body, err
}

// FetchPage is Fetch that also returns the URL the body was served from
// once redirects have been followed.
func FetchPage(ctx context.Context, client *http.Client, rawURL string, opts RequestOptions) ([]byte, string, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}

	req, err := NewRequest(ctx, http.MethodGet, rawURL, opts)
	if err != nil {
		return nil, "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, final, &StatusError{Code: resp.StatusCode, URL: final}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageBytes))
	if err != nil {
		return nil, final, fmt.Errorf("reading response: %w", err)
	}
	return body, final, nil
}

// IsTimeout reports whether err came from a deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
