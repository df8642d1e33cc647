// Package location models the device location provider as a cancellable
// stream of position fixes.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrUnsupported is returned by Watch when no provider is available.
	ErrUnsupported = errors.New("geolocation not supported")
	// ErrPermission is returned when the provider refuses access.
	ErrPermission = errors.New("geolocation permission denied")
	// ErrUnavailable is reported when the provider cannot determine a position.
	ErrUnavailable = errors.New("position unavailable")
	// ErrTimeout is reported when no fix arrived within Options.Timeout.
	ErrTimeout = errors.New("timeout expired waiting for position")
)

// Fix is one reported device position. Accuracy is the radius of uncertainty
// in meters.
type Fix struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

func (f Fix) String() string {
	return fmt.Sprintf("%.5f,%.5f acc:%g", f.Latitude, f.Longitude, f.Accuracy)
}

// Options tunes a watch.
type Options struct {
	// HighAccuracy asks the provider for its most precise mode.
	HighAccuracy bool
	// MaximumAge drops fixes whose timestamp is older than this. Zero disables
	// the check.
	MaximumAge time.Duration
	// Timeout bounds the wait for each fix. Zero waits forever.
	Timeout time.Duration
}

// DefaultOptions returns high accuracy, 3s maximum age and a 10s timeout.
func DefaultOptions() Options {
	return Options{
		HighAccuracy: true,
		MaximumAge:   3 * time.Second,
		Timeout:      10 * time.Second,
	}
}

// Source produces fixes once watching begins.
type Source interface {
	Watch(ctx context.Context, opts Options) (*Watch, error)
}

// Watch is an active subscription. Fixes and Errors are closed after Stop
// or when the watch context ends.
type Watch struct {
	fixes  chan Fix
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Fixes returns the stream of delivered fixes.
func (w *Watch) Fixes() <-chan Fix { return w.fixes }

// Errors returns the stream of provider errors.
func (w *Watch) Errors() <-chan error { return w.errs }

// Done is closed once the watch has ended.
func (w *Watch) Done() <-chan struct{} { return w.done }

// Stop cancels future deliveries. It is safe to call more than once.
func (w *Watch) Stop() {
	w.once.Do(w.cancel)
}

// Producer is the provider side of a watch. Provider goroutines call Emit and
// Fail; both become no-ops once the watch is stopped.
type Producer struct {
	ctx  context.Context
	w    *Watch
	opts Options
	now  func() time.Time
	seen chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewWatch creates a watch and its producer. The caller runs the provider
// loop with the producer and must call Close when the loop returns.
func NewWatch(ctx context.Context, opts Options) (*Watch, *Producer) {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		fixes:  make(chan Fix, 16),
		errs:   make(chan error, 4),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p := &Producer{ctx: ctx, w: w, opts: opts, now: time.Now, seen: make(chan struct{}, 1)}
	if opts.Timeout > 0 {
		go p.timeoutLoop()
	}
	return w, p
}

// Context is cancelled when the watch stops.
func (p *Producer) Context() context.Context { return p.ctx }

// Options returns the options the watch was created with.
func (p *Producer) Options() Options { return p.opts }

// Emit delivers a fix unless it is older than MaximumAge. It blocks while the
// consumer is behind and returns false once the watch is stopped.
func (p *Producer) Emit(f Fix) bool {
	if p.opts.MaximumAge > 0 && !f.Timestamp.IsZero() && p.now().Sub(f.Timestamp) > p.opts.MaximumAge {
		return p.ctx.Err() == nil
	}
	select {
	case p.seen <- struct{}{}:
	default:
	}
	select {
	case p.w.fixes <- f:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Fail reports a provider error without ending the watch. Errors are dropped
// when the consumer is not reading them.
func (p *Producer) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.ctx.Err() != nil {
		return
	}
	select {
	case p.w.errs <- err:
	default:
	}
}

// Close ends the watch and closes its channels. Only the provider loop calls it.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.w.Stop()
	close(p.w.fixes)
	close(p.w.errs)
	close(p.w.done)
}

func (p *Producer) timeoutLoop() {
	timer := time.NewTimer(p.opts.Timeout)
	defer timer.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.seen:
			timer.Reset(p.opts.Timeout)
		case <-timer.C:
			p.Fail(ErrTimeout)
			timer.Reset(p.opts.Timeout)
		}
	}
}
