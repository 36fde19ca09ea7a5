package transport

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/listing"
	"github.com/olegkotsar/ftpreconcile/model"
)

type fakeInfo struct {
	name  string
	size  int64
	mode  fs.FileMode
	mtime time.Time
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() fs.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return f.mtime }
func (f fakeInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeInfo) Sys() interface{}   { return nil }

func TestFileInfoLine(t *testing.T) {
	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	parser := &listing.Parser{Now: func() time.Time { return now }}

	file, err := parser.ParseLine(fileInfoLine(fakeInfo{name: "a b.png", size: 77, mtime: now.Add(-48 * time.Hour)}, now))
	require.NoError(t, err)
	require.Equal(t, model.EntryFile, file.Kind)
	require.Equal(t, "a b.png", file.Name)
	require.Equal(t, int64(77), file.Size)
	require.Equal(t, now.Add(-48*time.Hour), file.Timestamp)

	dir, err := parser.ParseLine(fileInfoLine(fakeInfo{name: "raw", mode: fs.ModeDir | 0o755, mtime: now}, now))
	require.NoError(t, err)
	require.True(t, dir.IsDir())

	_, err = parser.ParseLine(fileInfoLine(fakeInfo{name: "l", mode: fs.ModeSymlink, mtime: now}, now))
	require.Error(t, err)
}

func TestSFTPTransport_MissingKnownHosts(t *testing.T) {
	tr := NewSFTPTransport(&config.SFTPConfig{
		Host:       "127.0.0.1",
		Username:   "user",
		KnownHosts: filepath.Join(t.TempDir(), "missing_known_hosts"),
	}, &config.CommonRemoteConfig{TimeoutSeconds: 1})

	err := tr.Connect(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "known_hosts")
}
