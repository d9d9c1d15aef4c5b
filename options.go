package shmdf

import (
	"log/slog"
	"time"

	"gosuda.org/shmdf/internal/node"
	"gosuda.org/shmdf/internal/shm"
)

// NumSlots is the maximum number of sources per segment.
const NumSlots = node.NumSlots

// Option configures a Sink, a Source or a segment utility.
type Option func(*options)

type options struct {
	dir           string
	logger        *slog.Logger
	attachTimeout time.Duration
	dataCapacity  int
	unlink        bool
}

func newOptions(opts []Option) options {
	o := options{
		dir:           shm.DefaultDir(),
		logger:        slog.Default(),
		attachTimeout: time.Second,
		unlink:        true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithDir places segments in dir instead of /dev/shm.
func WithDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.dir = dir
		}
	}
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAttachTimeout bounds how long an attaching process waits for the
// segment's creator to finish initializing it, and how long a restarted sink
// waits for sources still reading the previous sink's last value. Zero waits
// forever.
func WithAttachTimeout(d time.Duration) Option {
	return func(o *options) {
		o.attachTimeout = d
	}
}

// WithDataCapacity reserves n bytes for trailing payload data when the sink
// creates the segment. The area grows on demand either way.
func WithDataCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.dataCapacity = n
		}
	}
}

// WithUnlink controls whether the last party to leave a segment unlinks it.
// Default true.
func WithUnlink(unlink bool) Option {
	return func(o *options) {
		o.unlink = unlink
	}
}
