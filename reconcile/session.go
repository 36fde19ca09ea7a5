// Package reconcile drives a remote file server whose answers are
// unreliable: listings are parsed in one place, existence is three-valued
// and confirmed by polling, clocks are calibrated per server, and mutating
// path operations never touch the configured root.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/listing"
	"github.com/olegkotsar/ftpreconcile/logger"
	"github.com/olegkotsar/ftpreconcile/metrics"
	"github.com/olegkotsar/ftpreconcile/remotepath"
	"github.com/olegkotsar/ftpreconcile/transport"
)

const (
	DefaultPollAttempts = 10
	DefaultPollInterval = time.Second
	DefaultCallTimeout  = 30 * time.Second
)

// errCallTimeout is the cause recorded when a transport call overruns.
var errCallTimeout = errors.New("transport call timed out")

// Sleeper waits between existence polls. It returns early with the context
// error when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options configures a Session. Zero values select the defaults.
type Options struct {
	// Root is the remote directory every sub-path is relative to.
	Root string
	// CallTimeout bounds a single transport call.
	CallTimeout  time.Duration
	PollAttempts int
	PollInterval time.Duration
	// FutureGrace is handed to the listing parser.
	FutureGrace time.Duration
	// DegradedClock lets freshness checks run with a zero offset when the
	// server was never calibrated.
	DegradedClock bool

	Clock   *ClockBook
	Sleeper Sleeper
	// Now is the local clock.
	Now     func() time.Time
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// OptionsFromConfig maps the reconcile and remote config sections onto
// Options.
func OptionsFromConfig(cfg *config.AppConfig) Options {
	return Options{
		Root:          cfg.Remote.BasePath(),
		CallTimeout:   time.Duration(cfg.Remote.Common.TimeoutSeconds) * time.Second,
		PollAttempts:  cfg.Reconcile.PollAttempts,
		PollInterval:  cfg.Reconcile.PollInterval(),
		FutureGrace:   cfg.Reconcile.FutureGrace(),
		DegradedClock: cfg.Reconcile.DegradedClock,
	}
}

// Session owns one transport connection. Every transport call runs under the
// session mutex with explicit paths, so a Session may be shared between
// goroutines but never issues two calls at once. Use one Session per worker
// for parallelism.
type Session struct {
	transport transport.Transport
	root      string
	opts      Options
	log       logger.Logger

	mu        sync.Mutex
	connected bool
}

// NewSession wraps t. The connection is opened lazily on first use.
func NewSession(t transport.Transport, opts Options) *Session {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = DefaultPollAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.FutureGrace <= 0 {
		opts.FutureGrace = listing.DefaultFutureGrace
	}
	if opts.Sleeper == nil {
		opts.Sleeper = SleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Clock == nil {
		opts.Clock = NewClockBook(nil, opts.Logger, opts.Metrics)
	}

	return &Session{
		transport: t,
		root:      remotepath.Root(opts.Root),
		opts:      opts,
		log:       logger.OrNoOp(opts.Logger).WithFields(map[string]interface{}{"component": "session", "server": t.Identity()}),
	}
}

// Identity names the server behind the session.
func (s *Session) Identity() string {
	return s.transport.Identity()
}

// Root returns the canonical remote root.
func (s *Session) Root() string {
	return s.root
}

// Clock returns the clock book the session reads offsets from.
func (s *Session) Clock() *ClockBook {
	return s.opts.Clock
}

func (s *Session) now() time.Time {
	return s.opts.Now()
}

// Close disconnects the transport. The session reconnects if used again.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.transport.Disconnect()
}

// invoke runs one transport operation under the session lock with a
// deadline. On timeout or cancellation the transport is disconnected so the
// blocked call returns; the next call reconnects.
func invoke[T any](ctx context.Context, s *Session, op, p string, fn func() (T, error)) (T, error) {
	var zero T

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return zero, &TransportError{Op: op, Path: p, Err: err}
	}

	if !s.connected {
		cctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		err := s.transport.Connect(cctx)
		cancel()
		if err != nil {
			s.opts.Metrics.RecordTransportCall("connect", 0, err)
			return zero, &TransportError{Op: "connect", Path: s.Identity(), Err: err}
		}
		s.connected = true
		s.log.Debug("connected")
	}

	type reply struct {
		v   T
		err error
	}
	start := time.Now()
	done := make(chan reply, 1)
	go func() {
		v, err := fn()
		done <- reply{v, err}
	}()

	timer := time.NewTimer(s.opts.CallTimeout)
	defer timer.Stop()

	var r reply
	select {
	case r = <-done:
	case <-timer.C:
		r.err = errCallTimeout
		s.abandon(op, p)
	case <-ctx.Done():
		r.err = ctx.Err()
		s.abandon(op, p)
	}

	s.opts.Metrics.RecordTransportCall(op, time.Since(start), r.err)
	if r.err != nil {
		return zero, &TransportError{Op: op, Path: p, Err: r.err}
	}
	return r.v, nil
}

// call is invoke for operations without a result.
func (s *Session) call(ctx context.Context, op, p string, fn func() error) error {
	_, err := invoke(ctx, s, op, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// abandon drops a connection whose call did not return in time. Caller holds
// s.mu.
func (s *Session) abandon(op, p string) {
	s.log.Warn("%s %s did not complete, dropping connection", op, p)
	if err := s.transport.Disconnect(); err != nil {
		s.log.Debug("disconnect after abandoned call: %v", err)
	}
	s.connected = false
}
