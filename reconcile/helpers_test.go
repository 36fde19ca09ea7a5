package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegkotsar/ftpreconcile/testutils"
)

var base = time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)

// sleepCounter replaces real sleeping in poll loops.
type sleepCounter struct {
	mu sync.Mutex
	n  int
}

func (c *sleepCounter) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return ctx.Err()
}

func (c *sleepCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fixture struct {
	session *Session
	remote  *testutils.FakeTransport
	sleeps  *sleepCounter
}

// newFixture builds a session rooted at /pub over a fake server whose clock
// agrees with the local one.
func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()

	remote := testutils.NewFakeTransport()
	remote.Now = func() time.Time { return base }
	remote.AddDir("/pub")

	sleeps := &sleepCounter{}
	opts := Options{
		Root:        "/pub",
		CallTimeout: 5 * time.Second,
		Sleeper:     sleeps.sleep,
		Now:         func() time.Time { return base },
	}
	for _, m := range mutate {
		m(&opts)
	}

	s := NewSession(remote, opts)
	t.Cleanup(func() { s.Close() })
	return &fixture{session: s, remote: remote, sleeps: sleeps}
}

func writeLocal(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}
