package builder

import (
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/t7a/pitdelta/fileversion"
)

type options struct {
	workers  int
	versions fileversion.Reader
	now      func() time.Time
	rootURL  string
	newID    func() string
}

// Option configures BuildPackage and BuildProjection.
type Option func(*options)

// WithWorkers bounds the number of files hashed, diffed or uploaded at
// once.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithVersionReader replaces the reader of embedded file versions.
func WithVersionReader(r fileversion.Reader) Option {
	return func(o *options) { o.versions = r }
}

// WithClock sets the source of the publish date.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRootURL records where clients should fetch hosted files from, if
// that differs from the host the projection is stored on.
func WithRootURL(u string) Option {
	return func(o *options) { o.rootURL = u }
}

func newOptions(opts []Option) *options {
	o := &options{
		workers:  runtime.NumCPU(),
		versions: fileversion.Default,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
