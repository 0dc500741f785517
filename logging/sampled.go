package logging

import (
	"time"

	"golang.org/x/time/rate"
)

// Sampled passes at most `burst` messages at once and then one per `every`
// to the underlying logger. Suppressed messages are counted and reported
// on the next message that gets through.
type Sampled struct {
	base       Logger
	limiter    *rate.Limiter
	suppressed int
}

// NewSampled wraps base with a token-bucket limiter
func NewSampled(base Logger, every time.Duration, burst int) *Sampled {
	return &Sampled{
		base:    base,
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

// Suppressed returns the number of messages dropped since the last one logged
func (s *Sampled) Suppressed() int {
	return s.suppressed
}

func (s *Sampled) allow(now time.Time) (Fields, bool) {
	if !s.limiter.AllowN(now, 1) {
		s.suppressed++
		return nil, false
	}
	if s.suppressed == 0 {
		return nil, true
	}
	f := Fields{"suppressed": s.suppressed}
	s.suppressed = 0
	return f, true
}

// WarnAt logs a warning if the limiter permits at time now
func (s *Sampled) WarnAt(now time.Time, msg string, fields ...Fields) bool {
	extra, ok := s.allow(now)
	if !ok {
		return false
	}
	if extra != nil {
		fields = append(fields, extra)
	}
	s.base.Warn(msg, fields...)
	return true
}

// DebugAt logs a debug message if the limiter permits at time now
func (s *Sampled) DebugAt(now time.Time, msg string, fields ...Fields) bool {
	extra, ok := s.allow(now)
	if !ok {
		return false
	}
	if extra != nil {
		fields = append(fields, extra)
	}
	s.base.Debug(msg, fields...)
	return true
}
