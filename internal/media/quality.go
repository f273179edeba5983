package media

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var numericQuality = regexp.MustCompile(`(?i)(?:^|[^0-9a-z])(\d{3,4})p(?:[^0-9a-z]|$)`)

// namedQualities maps tier names found in URLs to their line count.
var namedQualities = map[string]int{
	"4k":     2160,
	"uhd":    2160,
	"2k":     1440,
	"qhd":    1440,
	"fhd":    1080,
	"fullhd": 1080,
	"hd":     720,
	"sd":     480,
	"ld":     360,
}

// ParseQuality extracts a quality token such as "720p" from the path and
// query of a media URL. Named tiers ("fhd", "4k") are normalized to their
// line count. The hostname is ignored so "hd.cdn.net" does not count.
func ParseQuality(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	s := u.Path + "?" + u.RawQuery
	if m := numericQuality.FindStringSubmatch(s); m != nil {
		return m[1] + "p"
	}
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, tok := range tokens {
		if n, ok := namedQualities[tok]; ok {
			return strconv.Itoa(n) + "p"
		}
	}
	return ""
}

// QualityValue returns the numeric line count of a quality label, or 0.
func QualityValue(q string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(q), "p"))
	if err != nil {
		return 0
	}
	return n
}
