package usecase

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultStatusTimeout bounds the gateway status query inside callback processing.
const DefaultStatusTimeout = 5 * time.Second

type options struct {
	now           func() time.Time
	newID         func() string
	statusTimeout time.Duration
}

// Option customizes a use case. Tests use it to pin the clock.
type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.newID = gen }
}

func WithStatusTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.statusTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return ulid.Make().String() },
		statusTimeout: DefaultStatusTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
