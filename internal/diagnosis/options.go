package diagnosis

import (
	"time"

	"github.com/google/uuid"

	"github.com/mrsinham/selfdiag/internal/logger"
	"github.com/mrsinham/selfdiag/internal/metrics"
)

type options struct {
	listener  func(Message)
	phone     string
	sessionID string
	now       func() time.Time
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// Option configures a Session or an Orchestrator.
type Option func(*options)

// WithListener registers fn to receive every appended message, in order,
// outside the session lock. fn may read the session but must not call
// Start, SubmitAnswer or SubmitImage.
func WithListener(fn func(Message)) Option {
	return func(o *options) { o.listener = fn }
}

// WithPhone seeds the contact phone of every draft.
func WithPhone(phone string) Option {
	return func(o *options) { o.phone = phone }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// WithClock sets the time source used for visit dates and record numbers.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the metrics sink. A nil value disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func applyOptions(opts []Option) options {
	o := options{
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Discard()
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	return o
}
