package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// fields is the flattened key space of one log line.
type fields map[string]any

func (f fields) setDefault(key string, v any) {
	if s, ok := stringField(f, key); ok && s != "" {
		return
	}
	f[key] = v
}

// add flattens a into f under prefix, normalizing its value.
func (f fields) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if d, ok := asDuration(v); ok {
		f[durationKey(key)] = RoundMS(d).Milliseconds()
		return
	}
	if val, ok := plainValue(v); ok {
		f[key] = val
	}
}

// prune drops empty strings and nil values.
func (f fields) prune() {
	for k, v := range f {
		switch val := v.(type) {
		case nil:
			delete(f, k)
		case string:
			if val == "" {
				delete(f, k)
			}
		case fmt.Stringer:
			if val.String() == "" {
				delete(f, k)
			}
		}
	}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

func asDuration(v slog.Value) (time.Duration, bool) {
	if v.Kind() == slog.KindDuration {
		return v.Duration(), true
	}
	if v.Kind() == slog.KindAny {
		d, ok := v.Any().(time.Duration)
		return d, ok
	}
	return 0, false
}

// plainValue converts v to a JSON friendly value. Strings and errors are
// trimmed and redacted.
func plainValue(v slog.Value) (any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return Redact(strings.TrimSpace(v.String())), true
	case slog.KindBool:
		return v.Bool(), true
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return int64(u), true
		}
		return v.Uint64(), true
	case slog.KindFloat64:
		return v.Float64(), true
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return nil, false
	case error:
		return Redact(x.Error()), true
	case string:
		return strings.TrimSpace(x), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

// durationKey rewrites duration attribute names to carry the _ms suffix.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_duration"):
		return strings.TrimSuffix(key, "_duration") + "_duration_ms"
	case !strings.HasSuffix(key, "_ms"):
		return key + "_ms"
	}
	return key
}

// lineEncoder writes f to buf in order, without the trailing newline.
type lineEncoder func(buf *bytes.Buffer, f fields, order []string) error

func encodeJSON(buf *bytes.Buffer, f fields, order []string) error {
	buf.WriteByte('{')
	for i, key := range orderedKeys(f, order) {
		data, err := json.Marshal(f[key])
		if err != nil {
			return fmt.Errorf("logger: encode %s: %w", key, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(key))
		buf.WriteByte(':')
		buf.Write(data)
	}
	buf.WriteByte('}')
	return nil
}

func encodeKV(buf *bytes.Buffer, f fields, order []string) error {
	for i, key := range orderedKeys(f, order) {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(key)
		buf.WriteByte('=')
		writeKVValue(buf, f[key])
	}
	return nil
}

func writeKVValue(buf *bytes.Buffer, v any) {
	var s string
	switch x := v.(type) {
	case bool:
		buf.WriteString(strconv.FormatBool(x))
		return
	case int:
		buf.WriteString(strconv.Itoa(x))
		return
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
		return
	case uint64:
		buf.WriteString(strconv.FormatUint(x, 10))
		return
	case float64:
		buf.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		return
	case string:
		s = x
	default:
		s = fmt.Sprint(x)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		s = strconv.Quote(s)
	}
	buf.WriteString(s)
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}

// orderedKeys lists the keys named by order first, then the rest sorted.
func orderedKeys(f fields, order []string) []string {
	keys := make([]string, 0, len(f))
	known := make(map[string]struct{}, len(order))
	for _, key := range order {
		known[key] = struct{}{}
		if _, ok := f[key]; ok {
			keys = append(keys, key)
		}
	}
	var rest []string
	for key := range f {
		if _, ok := known[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func stringField(f fields, key string) (string, bool) {
	v, ok := f[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	default:
		return fmt.Sprint(val), true
	}
}
