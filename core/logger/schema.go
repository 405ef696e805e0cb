package logger

import (
	"log/slog"
	"slices"
	"strings"
)

// enumField lists the accepted values of a closed vocabulary field. An
// unknown value is kept, replaced by fallback, or dropped when fallback
// is empty and drop is set.
type enumField struct {
	values   []string
	fallback string
	drop     bool
}

var enumFields = map[string]enumField{
	"status":      {values: []string{"ok", "fail", "skip", "retry", "rate_limited", "cancelled"}},
	"outcome":     {values: []string{"ok", "fail", "cancelled", "rate_limited"}, drop: true},
	"error_class": {values: []string{"timeout", "dns", "dial", "tls", "http_4xx", "http_5xx", "rate_limited", "circuit_open", "cancelled", "other"}, fallback: "other"},
}

// levelName maps a slog level to the upper case name written to output.
// Levels between the named ones keep slog's "INFO+2" form.
func levelName(l slog.Level) string {
	return strings.ToUpper(l.String())
}

// normalizeEnums lower cases the closed vocabulary fields and applies the
// unknown value policy of enumFields.
func normalizeEnums(f fields) {
	for key, rule := range enumFields {
		raw, ok := stringField(f, key)
		if !ok {
			continue
		}
		v := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case v == "":
			delete(f, key)
		case slices.Contains(rule.values, v):
			f[key] = v
		case rule.fallback != "":
			f[key] = rule.fallback
		case rule.drop:
			delete(f, key)
		default:
			f[key] = v
		}
	}
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"method",
	"state",
	"from_state",
	"to_state",
	"anonymous",
	"cb_key",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"questions",
	"skipped",
	"polls_sent",
	"polls_failed",
	"quiz_count",
	"store",
	"sessions",
	"swept",
	"mode",
	"listen",
	"public_url",
	"path",
	"http_code",
	"db",
	"driver",
	"host",
	"port",
	"err",
	"err_code",
	"error_class",
	"retryable",
	"attempt",
	"attempts",
	"backoff_ms",
	"retry_after_ms",
	"rate_limited",
	"breaker",
	"repeats",
	"pending_count",
}
