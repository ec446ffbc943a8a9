package repository

import "time"

// Option applies a configuration option to the SessionStore.
type Option func(*SessionStore)

// WithMetricsUpdateInterval sets the interval of the background loop that
// sweeps idle sessions and publishes the session gauge.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *SessionStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithIdleTTL drops sessions not updated within ttl. Zero keeps them forever.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *SessionStore) {
		if ttl >= 0 {
			s.idleTTL = ttl
		}
	}
}

// WithClock overrides the time source used by the sweeper.
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}
