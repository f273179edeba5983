package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// packedPatterns detect the eval(function(p,a,c,k,e,d){...}(...)) packer,
// from the canonical form to looser variants that only anchor on the
// argument list. Capture groups: payload, radix, count, keywords.
var packedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)eval\(function\(p,a,c,k,e,[dr]\)\{.*?\}\('((?:[^'\\]|\\.)*)',(\d+),(\d+),'((?:[^'\\]|\\.)*)'\.split\('\|'\)`),
	regexp.MustCompile(`(?s)eval\(\s*function\s*\(\s*p\s*,\s*a\s*,\s*c\s*,\s*k\s*,\s*e\s*,\s*[dr]\s*\)\s*\{.*?\}\s*\(\s*'((?:[^'\\]|\\.)*)'\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*'((?:[^'\\]|\\.)*)'\s*\.split\(\s*'\|'\s*\)`),
	regexp.MustCompile(`(?s)\}\s*\(\s*"((?:[^"\\]|\\.)*)"\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*"((?:[^"\\]|\\.)*)"\s*\.split\(\s*["']\|["']\s*\)`),
	regexp.MustCompile(`(?s)\}\s*\(\s*'((?:[^'\\]|\\.)*)'\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*'((?:[^'\\]|\\.)*)'\s*\.split\(\s*["']\|["']\s*\)`),
}

const packerAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var wordToken = regexp.MustCompile(`\b\w+\b`)

// IsPacked reports whether code contains a packer invocation.
func IsPacked(code string) bool {
	return strings.Contains(code, "p,a,c,k,e,") || packedPatterns[len(packedPatterns)-1].MatchString(code)
}

// Deobfuscate unpacks the first packed block in code. It returns "" when no
// block is found or its arguments are inconsistent. The transformation is a
// pure dictionary substitution; nothing is evaluated.
func Deobfuscate(code string) string {
	for _, re := range packedPatterns {
		m := re.FindStringSubmatch(code)
		if m == nil {
			continue
		}
		if src, ok := unpackArgs(m[1], m[2], m[3], m[4]); ok {
			return src
		}
	}
	return ""
}

// UnpackAll returns the unpacked source of every packed block in text.
func UnpackAll(text string) []string {
	if !strings.Contains(text, ".split(") {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, re := range packedPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			key := strings.Join(m[1:], "\x00")
			if seen[key] {
				continue
			}
			seen[key] = true
			if src, ok := unpackArgs(m[1], m[2], m[3], m[4]); ok {
				out = append(out, src)
			}
		}
	}
	return out
}

func unpackArgs(payload, radixStr, countStr, keywords string) (string, bool) {
	radix, err := strconv.Atoi(radixStr)
	if err != nil || radix < 2 || radix > len(packerAlphabet) {
		return "", false
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 0 {
		return "", false
	}
	dict := strings.Split(unquoteJS(keywords), "|")
	if len(dict) != count {
		return "", false
	}
	return Unpack(unquoteJS(payload), radix, dict), true
}

// Unpack substitutes every word token of payload that is the base-radix
// encoding of an index into dict with that keyword. Tokens whose keyword is
// empty are left as-is, matching the packer's own fallback.
//
// Substitution is done in a single pass over the original tokens, so a
// keyword that itself looks like an encoded index is never re-substituted.
func Unpack(payload string, radix int, dict []string) string {
	return wordToken.ReplaceAllStringFunc(payload, func(tok string) string {
		n, ok := decodeBase(tok, radix)
		if !ok || n >= len(dict) || dict[n] == "" {
			return tok
		}
		return dict[n]
	})
}

// Pack is the inverse of Unpack for a given dictionary: it replaces every
// whole-word occurrence of dict[i] in src with the base-radix encoding of i.
// It exists to build packed fixtures and diagnostics.
func Pack(src string, radix int, dict []string) string {
	index := make(map[string]int, len(dict))
	for i, w := range dict {
		if w != "" {
			index[w] = i
		}
	}
	return wordToken.ReplaceAllStringFunc(src, func(tok string) string {
		if i, ok := index[tok]; ok {
			return EncodeBase(i, radix)
		}
		return tok
	})
}

// EncodeBase renders n the way the packer names its tokens: digits 0-9,
// then a-z, then A-Z for radixes above 36.
func EncodeBase(n, radix int) string {
	if n < radix {
		return string(packerAlphabet[n])
	}
	return EncodeBase(n/radix, radix) + string(packerAlphabet[n%radix])
}

// decodeBase parses tok as a packer token. Only canonical encodings (no
// leading zeros) are accepted, since the packer only ever emits those.
func decodeBase(tok string, radix int) (int, bool) {
	if tok == "" || len(tok) > 6 || (len(tok) > 1 && tok[0] == '0') {
		return 0, false
	}
	n := 0
	for i := 0; i < len(tok); i++ {
		d := strings.IndexByte(packerAlphabet, tok[i])
		if d < 0 || d >= radix {
			return 0, false
		}
		n = n*radix + d
	}
	return n, true
}

// unquoteJS resolves backslash escapes in the body of a JS string literal.
func unquoteJS(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
