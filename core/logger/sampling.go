package logger

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"

	coreconfig "github.com/m3rciful/quizbot/core/config"
)

const defaultDebugEvery = 50

// debugSampling lets the first high-volume debug event through and then
// one in every N. N == 0 disables sampling entirely.
type debugSampling struct {
	every     atomic.Pointer[rate.Sometimes]
	trace     atomic.Bool
	unlimited atomic.Bool
}

var sampling = newDebugSampling(defaultDebugEvery)

func newDebugSampling(every int) *debugSampling {
	s := &debugSampling{}
	s.set(every)
	return s
}

func (s *debugSampling) set(every int) {
	if every <= 1 {
		s.unlimited.Store(true)
		return
	}
	s.unlimited.Store(false)
	s.every.Store(&rate.Sometimes{First: 1, Every: every})
}

func (s *debugSampling) allow() bool {
	if s.trace.Load() || s.unlimited.Load() {
		return true
	}
	allowed := false
	s.every.Load().Do(func() { allowed = true })
	return allowed
}

// parseDebugEvery reads logging.debug_sample, written either as "N" or
// as a ratio "1/N". "0" or "off" logs every event.
func parseDebugEvery(cfg *coreconfig.Config) int {
	if cfg == nil {
		return defaultDebugEvery
	}
	raw := strings.ToLower(strings.TrimSpace(cfg.Logging.DebugSample))
	switch raw {
	case "":
		return defaultDebugEvery
	case "0", "off", "none", "all":
		return 0
	}
	num, den := 1, 0
	if before, after, ok := strings.Cut(raw, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(before))
		d, err2 := strconv.Atoi(strings.TrimSpace(after))
		if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
			return defaultDebugEvery
		}
		num, den = n, d
	} else {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			return defaultDebugEvery
		}
		den = d
	}
	if num >= den {
		return 0
	}
	return den / num
}

func traceRequested() bool {
	for _, key := range []string{"TRACE", "LOG_TRACE"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "on", "yes":
			return true
		}
	}
	return false
}

// ShouldSampleDebug reports whether a high-volume debug event should be
// written. TRACE=1 in the environment lets every event through.
func ShouldSampleDebug() bool {
	return sampling.allow()
}
