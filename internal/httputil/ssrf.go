package httputil

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrInvalidURL marks input that is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrBlocked marks targets the proxy must never contact.
	ErrBlocked = errors.New("blocked target")
)

// extraBlocked covers ranges netip does not classify as private.
var extraBlocked = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

// numericHost matches the shorthand IPv4 spellings (decimal, octal, hex)
// that some resolvers accept but netip rejects.
var numericHost = regexp.MustCompile(`^(0x[0-9a-f]+|[0-9]+)(\.(0x[0-9a-f]+|[0-9]+)){0,3}$`)

var blockedNames = map[string]bool{
	"localhost":                true,
	"ip6-localhost":            true,
	"ip6-loopback":             true,
	"metadata":                 true,
	"metadata.google.internal": true,
}

var blockedSuffixes = []string{".localhost", ".local", ".internal", ".home.arpa"}

// CheckTarget is the gate every outbound proxy/resolver URL passes before
// any network activity. It returns the parsed URL when the target is an
// absolute http(s) URL without credentials whose host is not a loopback,
// private, link-local or multicast address or a local-only name.
func CheckTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q not allowed", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: embedded credentials", ErrBlocked)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if blockedNames[host] {
		return nil, fmt.Errorf("%w: local hostname %q", ErrBlocked, host)
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return nil, fmt.Errorf("%w: local hostname %q", ErrBlocked, host)
		}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr) {
			return nil, fmt.Errorf("%w: non-public address %s", ErrBlocked, addr)
		}
		return u, nil
	}
	if numericHost.MatchString(host) {
		return nil, fmt.Errorf("%w: ambiguous numeric host %q", ErrBlocked, host)
	}
	return u, nil
}

func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap().WithZone("")
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast() {
		return true
	}
	for _, p := range extraBlocked {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
