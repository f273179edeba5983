package extract

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoClientKey is returned when none of the known key placements match.
var ErrNoClientKey = errors.New("no client key found")

type keyPlacement struct {
	name string
	re   *regexp.Regexp
	// read pulls the key out of the submatches of re.
	read func(m []string) string
}

func firstGroup(m []string) string { return m[1] }

// keyPlacements lists where MegaCloud-style embed pages hide the key that
// getSources requires, in the order they are tried. The page rotates
// between these per request.
var keyPlacements = []keyPlacement{
	{"meta", regexp.MustCompile(`<meta name="_gg_fb" content="([a-zA-Z0-9]+)">`), firstGroup},
	{"comment", regexp.MustCompile(`<!--\s+_is_th:([0-9a-zA-Z]+)\s+-->`), firstGroup},
	{
		"lk_db",
		regexp.MustCompile(`window\._lk_db\s*=\s*\{\s*x:\s*["']([a-zA-Z0-9]+)["'],\s*y:\s*["']([a-zA-Z0-9]+)["'],\s*z:\s*["']([a-zA-Z0-9]+)["']\s*\}`),
		func(m []string) string { return m[1] + m[2] + m[3] },
	},
	{"data-dpi", regexp.MustCompile(`<div\s+data-dpi="([0-9a-zA-Z]+)"`), firstGroup},
	{"nonce", regexp.MustCompile(`<script nonce="([0-9a-zA-Z]+)">`), firstGroup},
	{"xy_ws", regexp.MustCompile(`window\._xy_ws\s*=\s*['"\x60]([0-9a-zA-Z]+)['"\x60]`), firstGroup},
}

// ClientKey extracts the obfuscated client key from an embed page.
func ClientKey(html string) (string, error) {
	for _, p := range keyPlacements {
		if m := p.re.FindStringSubmatch(html); m != nil {
			if key := strings.TrimSpace(p.read(m)); key != "" {
				return key, nil
			}
		}
	}
	return "", ErrNoClientKey
}
