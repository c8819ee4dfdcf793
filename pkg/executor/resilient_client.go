package executor

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ResilienceConfig guards the transport, not the commands: the backoff only
// spaces out dial attempts and the breaker only trips on failures to open
// a session. A command that ran is never re-run.
type ResilienceConfig struct {
	NewDialBackOff         func() backoff.BackOff
	CircuitBreakerSettings gobreaker.Settings
}

func DefaultResilienceConfig(name string) ResilienceConfig {
	return ResilienceConfig{
		NewDialBackOff: func() backoff.BackOff {
			return &backoff.ExponentialBackOff{
				InitialInterval:     500 * time.Millisecond,
				MaxInterval:         5 * time.Second,
				Multiplier:          1.5,
				RandomizationFactor: 0.5,
				MaxElapsedTime:      time.Minute,
				Stop:                backoff.Stop,
				Clock:               backoff.SystemClock,
			}
		},
		CircuitBreakerSettings: gobreaker.Settings{
			Name:        "ssh-session:" + name,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		},
	}
}

// dialBackOff bounds the dial policy to retries extra attempts.
func (r ResilienceConfig) dialBackOff(retries int) backoff.BackOff {
	if retries < 0 {
		retries = 0
	}
	var b backoff.BackOff = &backoff.StopBackOff{}
	if r.NewDialBackOff != nil {
		b = r.NewDialBackOff()
	}
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(retries))
}
