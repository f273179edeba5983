package extract

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"
)

var atobLiteral = regexp.MustCompile(`atob\(\s*["'\x60]([A-Za-z0-9+/_=-]{8,})["'\x60]\s*\)`)

// DecodeAtob decodes every atob("...") string literal in text. Literals that
// do not decode to valid UTF-8 text are skipped.
func DecodeAtob(text string) []string {
	if !strings.Contains(text, "atob") {
		return nil
	}
	var out []string
	for _, m := range atobLiteral.FindAllStringSubmatch(text, -1) {
		if dec, ok := decodeBase64(m[1]); ok {
			out = append(out, dec)
		}
	}
	return out
}

// decodeBase64 tries the standard and URL-safe alphabets, padded and raw.
func decodeBase64(s string) (string, bool) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err != nil {
			continue
		}
		if !utf8.Valid(b) || !printable(b) {
			continue
		}
		return string(b), true
	}
	return "", false
}

func printable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
			return false
		}
	}
	return true
}
