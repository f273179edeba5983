package httputil

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ValidateURL checks that a URL is well-formed, absolute and uses HTTP(S).
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("only HTTP(S) URLs are allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// Origin returns "scheme://host" for rawURL, or "" if it cannot be parsed.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Resolve resolves ref against base and reports whether the result is an
// absolute HTTP(S) URL. Protocol-relative references ("//cdn/x.m3u8")
// inherit the base scheme.
func Resolve(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if !r.IsAbs() {
		b, err := url.Parse(base)
		if err != nil || !b.IsAbs() {
			return "", false
		}
		r = b.ResolveReference(r)
	}
	out := r.String()
	if ValidateURL(out) != nil {
		return "", false
	}
	return out, true
}

// ownParams are the query keys /proxy and /resolve consume themselves.
var ownParams = map[string]bool{
	"url": true, "u64": true, "referer": true, "origin": true,
	"ua": true, "rewrite": true, "debug": true, "exhaustive": true,
}

// TargetFromQuery returns the target URL from either the url parameter or
// the u64 parameter (base64url of the UTF-8 URL, padding optional).
func TargetFromQuery(q url.Values) (string, error) {
	if enc := q.Get("u64"); enc != "" {
		dec, err := decodeBase64URL(enc)
		if err != nil {
			return "", fmt.Errorf("%w: malformed u64 parameter", ErrInvalidURL)
		}
		return strings.TrimSpace(dec), nil
	}
	target := strings.TrimSpace(q.Get("url"))
	if target == "" {
		return "", fmt.Errorf("%w: missing url parameter", ErrInvalidURL)
	}
	return target, nil
}

// RequestTarget is TargetFromQuery followed by MergeStrayParams for plain
// url targets. A u64 target arrives whole, so the rest of the query is
// left off it.
func RequestTarget(q url.Values) (string, error) {
	target, err := TargetFromQuery(q)
	if err != nil {
		return "", err
	}
	if q.Get("u64") != "" {
		return target, nil
	}
	return MergeStrayParams(target, q), nil
}

func decodeBase64URL(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.StdEncoding, base64.RawStdEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return string(b), nil
		}
	}
	return "", fmt.Errorf("not base64url")
}

// MergeStrayParams re-attaches query parameters that belonged to the target
// but were split off because the caller did not encode it: for
// "/proxy?url=https://h/a.m3u8?token=1&sig=2" the sig parameter lands on the
// proxy request. Keys the target already carries are left alone.
func MergeStrayParams(target string, q url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	existing := u.Query()

	var keys []string
	for k := range q {
		if ownParams[k] || existing.Has(k) {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return target
	}
	sort.Strings(keys)

	extra := url.Values{}
	for _, k := range keys {
		for _, v := range q[k] {
			extra.Add(k, v)
		}
	}
	if u.RawQuery == "" {
		u.RawQuery = extra.Encode()
	} else {
		u.RawQuery += "&" + extra.Encode()
	}
	return u.String()
}
