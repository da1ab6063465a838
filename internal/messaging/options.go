package messaging

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const (
	// MaxContentLength is the longest message body accepted, in runes.
	MaxContentLength = 4000

	defaultDedupWindow = 10 * time.Second
	defaultPageSize    = 50
)

type options struct {
	log          zerolog.Logger
	dedupWindow  time.Duration
	dismissAfter time.Duration
	pageSize     int
	now          func() time.Time
	newTempID    func() string
}

// Option configures a Client.
type Option func(*options)

func defaultOptions() options {
	return options{
		log:         zerolog.Nop(),
		dedupWindow: defaultDedupWindow,
		pageSize:    defaultPageSize,
		now:         time.Now,
		newTempID:   func() string { return "tmp_" + ulid.Make().String() },
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithDedupWindow sets how far apart an own feed message and an unconfirmed
// local entry may be and still be treated as the same message. Only used when
// the server does not echo the client id.
func WithDedupWindow(d time.Duration) Option {
	return func(o *options) { o.dedupWindow = d }
}

// WithDismissAfter removes FAILED entries automatically after d. Zero keeps
// them until dismissed or retried.
func WithDismissAfter(d time.Duration) Option {
	return func(o *options) { o.dismissAfter = d }
}

func WithHistoryPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithClock replaces the clock that stamps PENDING entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTempIDs replaces the temporary id generator.
func WithTempIDs(gen func() string) Option {
	return func(o *options) { o.newTempID = gen }
}
