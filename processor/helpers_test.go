package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegkotsar/ftpreconcile/cache"
	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/model"
	"github.com/olegkotsar/ftpreconcile/reconcile"
	"github.com/olegkotsar/ftpreconcile/source"
	"github.com/olegkotsar/ftpreconcile/testutils"
)

var base = time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)

type env struct {
	dir      string
	manifest *cache.BboltCache
	remote   *testutils.FakeTransport
	opts     Options
	factory  SessionFactory
}

func newEnv(t *testing.T, files map[string]string) *env {
	t.Helper()

	dir := t.TempDir()
	manifest, err := cache.NewBboltCache(&config.BboltConfig{Path: filepath.Join(t.TempDir(), "manifest.db")})
	require.NoError(t, err)
	t.Cleanup(func() { manifest.Close() })

	remote := testutils.NewFakeTransport()
	remote.Now = func() time.Time { return base }
	remote.AddDir("/pub")

	e := &env{
		dir:      dir,
		manifest: manifest,
		remote:   remote,
		opts:     Options{Workers: 1},
	}
	e.factory = sessionFactory(remote)

	for rel, content := range files {
		e.write(t, rel, content)
	}
	return e
}

func sessionFactory(remote *testutils.FakeTransport) SessionFactory {
	clock := reconcile.NewClockBook(nil, nil, nil)
	return func() (*reconcile.Session, error) {
		return reconcile.NewSession(remote, reconcile.Options{
			Root:          "/pub",
			CallTimeout:   5 * time.Second,
			Sleeper:       func(ctx context.Context, d time.Duration) error { return ctx.Err() },
			Now:           func() time.Time { return base },
			DegradedClock: true,
			Clock:         clock,
		}), nil
	}
}

func (e *env) write(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(e.dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (e *env) runner() *Runner {
	src := source.NewLocalSource(&config.LocalConfig{Path: e.dir}, nil)
	return NewRunner(e.manifest, src, e.factory, e.opts)
}

func (e *env) run(t *testing.T) *Report {
	t.Helper()
	report, err := e.runner().Run(context.Background())
	require.NoError(t, err)
	return report
}

func (e *env) status(t *testing.T, key string) model.FileMeta {
	t.Helper()
	meta, err := e.manifest.Get(key)
	require.NoError(t, err)
	return *meta
}
