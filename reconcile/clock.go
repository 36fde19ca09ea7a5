package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/olegkotsar/ftpreconcile/logger"
	"github.com/olegkotsar/ftpreconcile/metrics"
	"github.com/olegkotsar/ftpreconcile/model"
	"github.com/olegkotsar/ftpreconcile/remotepath"
)

const markerPrefix = ".ftpreconcile-clock-"

// OffsetStore persists offsets between runs.
type OffsetStore interface {
	LoadOffset(server string) (time.Duration, bool, error)
	SaveOffset(server string, offset time.Duration) error
}

// ClockBook holds the remote-minus-local clock offset of every server the
// process talks to. Offsets are measured at most once per server; concurrent
// Calibrate calls for the same server share one measurement.
type ClockBook struct {
	store   OffsetStore
	log     logger.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	offsets map[string]time.Duration
	warned  map[string]bool

	group singleflight.Group
}

// NewClockBook creates an empty book. store may be nil.
func NewClockBook(store OffsetStore, log logger.Logger, m *metrics.Metrics) *ClockBook {
	return &ClockBook{
		store:   store,
		log:     logger.OrNoOp(log).With("component", "clock"),
		metrics: m,
		offsets: make(map[string]time.Duration),
		warned:  make(map[string]bool),
	}
}

// Offset returns the known offset for server.
func (b *ClockBook) Offset(server string) (time.Duration, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	off, ok := b.offsets[server]
	return off, ok
}

// Set records a known offset, bypassing calibration.
func (b *ClockBook) Set(server string, offset time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offsets[server] = offset
}

// Seed records several known offsets at once.
func (b *ClockBook) Seed(offsets map[string]time.Duration) {
	for server, off := range offsets {
		b.Set(server, off)
	}
}

// Forget drops the offset so the next Calibrate measures again.
func (b *ClockBook) Forget(server string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.offsets, server)
}

// LoadStored copies the persisted offset for server into the book. It
// reports whether one was found.
func (b *ClockBook) LoadStored(server string) (bool, error) {
	if b.store == nil {
		return false, nil
	}
	off, ok, err := b.store.LoadOffset(server)
	if err != nil || !ok {
		return false, err
	}
	b.Set(server, off)
	b.log.Info("reusing stored clock offset %s for %s", off, server)
	return true, nil
}

// warnDegradedOnce reports whether this is the first degraded use for server.
func (b *ClockBook) warnDegradedOnce(server string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.warned[server] {
		return false
	}
	b.warned[server] = true
	return true
}

// Calibrate returns the offset of the server behind s, measuring it by
// uploading a marker file into remoteDir if it is not known yet.
func (b *ClockBook) Calibrate(ctx context.Context, s *Session, remoteDir string) (time.Duration, error) {
	server := s.Identity()
	if off, ok := b.Offset(server); ok {
		return off, nil
	}

	v, err, _ := b.group.Do(server, func() (interface{}, error) {
		if off, ok := b.Offset(server); ok {
			return off, nil
		}

		off, err := b.measure(ctx, s, remoteDir)
		b.metrics.RecordCalibration(server, off, err)
		if err != nil {
			return time.Duration(0), &CalibrationError{Server: server, Err: err}
		}

		b.Set(server, off)
		b.log.Info("clock offset for %s is %s", server, off)
		if b.store != nil {
			if err := b.store.SaveOffset(server, off); err != nil {
				b.log.Warn("could not persist clock offset for %s: %v", server, err)
			}
		}
		return off, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(time.Duration), nil
}

// measure uploads a marker, reads its timestamp back from the listing and
// compares it with the local time right after the upload.
func (b *ClockBook) measure(ctx context.Context, s *Session, remoteDir string) (time.Duration, error) {
	local, err := os.CreateTemp("", markerPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("create marker: %w", err)
	}
	defer func() {
		if err := os.Remove(local.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.log.Warn("could not remove local marker %s: %v", local.Name(), err)
		}
	}()

	_, werr := fmt.Fprintf(local, "clock marker written %s\n", s.now().Format(time.RFC3339Nano))
	if cerr := local.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return 0, fmt.Errorf("write marker: %w", werr)
	}

	name := filepath.Base(local.Name())
	sub := remotepath.Join(remoteDir, name)

	if err := s.PutFile(ctx, local.Name(), sub, true); err != nil {
		return 0, fmt.Errorf("upload marker: %w", err)
	}
	reference := s.now()

	defer func() {
		if err := s.RemoveFile(ctx, sub); err != nil {
			b.log.Warn("could not remove remote marker %s: %v", sub, err)
		}
	}()

	entries, _, err := s.List(ctx, remoteDir)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", remotepath.Dir(s.Root(), remoteDir), err)
	}

	for _, e := range entries {
		if e.Name != name {
			continue
		}
		if e.IsDir() {
			return 0, fmt.Errorf("marker %s listed as a directory", name)
		}
		remote := nearestYear(e, reference)
		return remote.Sub(reference).Truncate(time.Second), nil
	}
	return 0, fmt.Errorf("marker %s missing from listing of %s", name, remotepath.Dir(s.Root(), remoteDir))
}

// nearestYear picks the year for the marker's timestamp closest to the
// local reference. Listings that omit the year are anchored to a "now" the
// book does not know yet, so the parser's guess may be a year off.
func nearestYear(e model.DirectoryEntry, reference time.Time) time.Time {
	best := e.Timestamp
	for _, years := range []int{-1, 1} {
		candidate := e.Timestamp.AddDate(years, 0, 0)
		if absDuration(candidate.Sub(reference)) < absDuration(best.Sub(reference)) {
			best = candidate
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
