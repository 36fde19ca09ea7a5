package reconcile

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memOffsets struct {
	mu      sync.Mutex
	offsets map[string]time.Duration
}

func (m *memOffsets) LoadOffset(server string) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	off, ok := m.offsets[server]
	return off, ok, nil
}

func (m *memOffsets) SaveOffset(server string, offset time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsets[server] = offset
	return nil
}

func TestCalibrate_OffsetSign(t *testing.T) {
	tests := []struct {
		name string
		skew time.Duration
	}{
		{"remote ahead", 2 * time.Hour},
		{"remote behind", -3 * time.Hour},
		{"in sync", 0},
		{"ahead by a day and a half", 36 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TMPDIR", t.TempDir())
			f := newFixture(t)
			f.remote.Now = func() time.Time { return base.Add(tt.skew) }

			book := f.session.Clock()
			off, err := book.Calibrate(context.Background(), f.session, "")
			require.NoError(t, err)
			require.Equal(t, tt.skew, off)

			stored, ok := book.Offset(f.session.Identity())
			require.True(t, ok)
			require.Equal(t, tt.skew, stored)
		})
	}
}

func TestCalibrate_YearBoundary(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	local := time.Date(2026, time.December, 31, 23, 55, 0, 0, time.UTC)
	f := newFixture(t, func(o *Options) { o.Now = func() time.Time { return local } })
	f.remote.Now = func() time.Time { return local.Add(10 * time.Minute) }

	off, err := f.session.Clock().Calibrate(context.Background(), f.session, "")
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, off)
}

func TestCalibrate_CleansUp(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	f := newFixture(t)
	f.remote.Now = func() time.Time { return base.Add(time.Hour) }

	_, err := f.session.Clock().Calibrate(context.Background(), f.session, "probe")
	require.NoError(t, err)

	require.Equal(t, []string{"/pub", "/pub/probe"}, f.remote.Paths())

	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	require.Empty(t, left)

	puts := f.remote.CallsOf("put")
	require.Len(t, puts, 1)
	require.True(t, strings.HasPrefix(puts[0], "put /pub/probe/"+markerPrefix))
}

func TestCalibrate_OnlyOnce(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	f := newFixture(t)
	book := f.session.Clock()

	errs := make([]error, 5)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = book.Calibrate(context.Background(), f.session, "")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, f.remote.CallsOf("put"), 1)

	f.remote.ResetCalls()
	_, err := book.Calibrate(context.Background(), f.session, "")
	require.NoError(t, err)
	require.Empty(t, f.remote.Calls())
}

func TestCalibrate_ListingFails(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	f := newFixture(t)
	f.remote.Fail("list", "/pub", errors.New("425 no data connection"))

	book := f.session.Clock()
	_, err := book.Calibrate(context.Background(), f.session, "")
	require.ErrorIs(t, err, ErrCalibration)

	var cerr *CalibrationError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, f.session.Identity(), cerr.Server)

	_, ok := book.Offset(f.session.Identity())
	require.False(t, ok)

	// The marker is still removed
	require.Len(t, f.remote.CallsOf("rmfile"), 1)
	require.Equal(t, []string{"/pub"}, f.remote.Paths())
}

func TestCalibrate_MarkerNotListed(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	f := newFixture(t)
	f.remote.HideFromListing = func(name string) bool { return strings.HasPrefix(name, markerPrefix) }

	book := f.session.Clock()
	_, err := book.Calibrate(context.Background(), f.session, "")
	require.ErrorIs(t, err, ErrCalibration)
	require.Contains(t, err.Error(), "missing from listing")

	_, ok := book.Offset(f.session.Identity())
	require.False(t, ok)

	require.Len(t, f.remote.CallsOf("put"), 1)
	require.Len(t, f.remote.CallsOf("rmfile"), 1)
	require.Equal(t, []string{"/pub"}, f.remote.Paths())

	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestClockBook_Store(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	store := &memOffsets{offsets: map[string]time.Duration{}}
	f := newFixture(t, func(o *Options) { o.Clock = NewClockBook(store, nil, nil) })
	f.remote.Now = func() time.Time { return base.Add(-5 * time.Minute) }

	_, err := f.session.Clock().Calibrate(context.Background(), f.session, "")
	require.NoError(t, err)
	require.Equal(t, -5*time.Minute, store.offsets[f.session.Identity()])

	fresh := NewClockBook(store, nil, nil)
	found, err := fresh.LoadStored(f.session.Identity())
	require.NoError(t, err)
	require.True(t, found)
	off, ok := fresh.Offset(f.session.Identity())
	require.True(t, ok)
	require.Equal(t, -5*time.Minute, off)

	found, err = fresh.LoadStored("unknown:21")
	require.NoError(t, err)
	require.False(t, found)
}

func TestClockBook_SeedAndForget(t *testing.T) {
	book := NewClockBook(nil, nil, nil)
	book.Seed(map[string]time.Duration{"a:21": time.Minute, "b:22": -time.Minute})

	off, ok := book.Offset("b:22")
	require.True(t, ok)
	require.Equal(t, -time.Minute, off)

	book.Forget("b:22")
	_, ok = book.Offset("b:22")
	require.False(t, ok)

	found, err := book.LoadStored("a:21")
	require.NoError(t, err)
	require.False(t, found)
}
