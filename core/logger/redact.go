package logger

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenPattern matches Bot API tokens embedded in URLs and error strings.
var tokenPattern = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Redact replaces Bot API tokens in s with a placeholder.
func Redact(s string) string {
	if !strings.Contains(s, "bot") {
		return s
	}
	return tokenPattern.ReplaceAllString(s, "bot<redacted>")
}

// SanitizeLimit drops control and format runes (keeping tab and newline)
// and cuts the result to max runes. User supplied text goes through it
// before it is logged.
func SanitizeLimit(s string, max int) string {
	if max <= 0 || s == "" {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if r != '\n' && r != '\t' && (unicode.IsControl(r) || unicode.Is(unicode.Cf, r)) {
			continue
		}
		if n == max {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
