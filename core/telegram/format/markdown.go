// Package format holds text helpers for Telegram message bodies.
package format

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const (
	mdV1Specials = "_*`["
	mdV2Specials = "_*[]()~`>#+-=|{}.!\\"
)

var (
	mdV1Replacer = newEscaper(mdV1Specials)
	mdV2Replacer = newEscaper(mdV2Specials)
)

func newEscaper(specials string) *strings.Replacer {
	pairs := make([]string, 0, len(specials)*2)
	for _, r := range specials {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Replacer.Replace(text), nil
	case MarkdownV2:
		return mdV2Replacer.Replace(text), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// EscapeV1 is EscapeMarkdown for version 1, which cannot fail.
func EscapeV1(text string) string {
	return mdV1Replacer.Replace(text)
}

// Truncate cuts s to at most max runes. A non-positive max yields "".
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
