package installer

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultProgressInterval = 100 * time.Millisecond

type options struct {
	observer Observer
	hosts    HostResolver
	rt       http.RoundTripper
	workers  int
	interval time.Duration
	newID    func() string
}

// Option configures an Installer.
type Option func(*options)

// WithObserver sets the callback target. Defaults to NopObserver.
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithHosts sets how host references are turned into Hosts.
func WithHosts(r HostResolver) Option {
	return func(opts *options) { opts.hosts = r }
}

// WithTransport sets the transport handed to Host.FetchAndInstall.
func WithTransport(rt http.RoundTripper) Option {
	return func(opts *options) { opts.rt = rt }
}

// WithWorkers sets the number of worker goroutines. One is enough; more let
// the descriptor and download stages overlap.
func WithWorkers(n int) Option {
	return func(opts *options) { opts.workers = n }
}

// WithProgressInterval sets the DownloadProgress sampling period.
func WithProgressInterval(d time.Duration) Option {
	return func(opts *options) { opts.interval = d }
}

// WithIDSource replaces the run id generator.
func WithIDSource(fn func() string) Option {
	return func(opts *options) { opts.newID = fn }
}

func newOptions(opts []Option) options {
	o := options{
		observer: NopObserver{},
		rt:       http.DefaultTransport,
		workers:  1,
		interval: defaultProgressInterval,
		newID:    uuid.NewString,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	if o.hosts == nil {
		o.hosts = HostResolverFunc(func(ref string) (Host, error) { return nil, ErrUnknownHost })
	}
	if o.interval <= 0 {
		o.interval = defaultProgressInterval
	}
	return o
}
