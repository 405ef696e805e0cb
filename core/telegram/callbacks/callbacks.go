// Package callbacks decodes inline button callback data.
package callbacks

import (
	"strconv"
	"strings"
)

// Parse splits callback data into a key and an optional payload.
// Both plain "key" and Telebot's "\f<key>|<payload>" encodings are accepted.
func Parse(data string) (string, string) {
	raw := strings.TrimPrefix(data, "\f")
	key, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}

// Key returns the key part of callback data.
func Key(data string) string {
	k, _ := Parse(data)
	return k
}

// Payload returns the part after '|', if any.
func Payload(data string) string {
	_, p := Parse(data)
	return p
}

// PayloadInt64 parses the callback payload as int64.
func PayloadInt64(data string) (int64, error) {
	return strconv.ParseInt(Payload(data), 10, 64)
}

// Encode builds data in the "\f<key>|<payload>" form.
func Encode(key, payload string) string {
	if payload == "" {
		return "\f" + key
	}
	return "\f" + key + "|" + payload
}
