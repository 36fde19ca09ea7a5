package processor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/model"
)

func TestDatePath(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"a.jpg", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), "2026/2026-01-05/a.jpg"},
		{"b.png", time.Date(1999, 12, 31, 23, 59, 0, 0, time.UTC), "1999/1999-12-31/b.png"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, datePath(tt.name, tt.t))
	}
}

func TestCaptureTime_Fallback(t *testing.T) {
	fallback := time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"plain.txt", "text"},
		{"broken.jpeg", "not a jpeg"},
		{"empty.tif", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(p, []byte(tt.content), 0o644))
			require.Equal(t, fallback, captureTime(p, fallback))
		})
	}

	require.Equal(t, fallback, captureTime(filepath.Join(dir, "missing.jpg"), fallback))
}

func TestRemotePath(t *testing.T) {
	r := &Runner{mirror: config.MirrorConfig{Layout: config.LayoutMirror}}
	require.Equal(t, "a/b/c.txt", r.remotePath("/a//b/c.txt", "", model.FileMeta{}))

	r.mirror.Layout = config.LayoutDate
	meta := model.FileMeta{ModTime: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC).Unix()}
	require.Equal(t, "2023/2023-06-01/c.txt", r.remotePath("a/b/c.txt", "/nowhere/c.txt", meta))
}

func TestPathClaims(t *testing.T) {
	c := &pathClaims{owner: map[string]string{
		"2026/2026-01-05/a.jpg":   "x/a.jpg",
		"2026/2026-01-05/a_1.jpg": "y/a.jpg",
	}}

	tests := []struct {
		key  string
		want string
		got  string
	}{
		{"x/a.jpg", "2026/2026-01-05/a.jpg", "2026/2026-01-05/a.jpg"},
		{"y/a.jpg", "2026/2026-01-05/a.jpg", "2026/2026-01-05/a_1.jpg"},
		{"z/a.jpg", "2026/2026-01-05/a.jpg", "2026/2026-01-05/a_2.jpg"},
		{"z/a.jpg", "2026/2026-01-05/a.jpg", "2026/2026-01-05/a_2.jpg"},
		{"z/README", "2026/2026-01-05/README", "2026/2026-01-05/README"},
		{"w/README", "2026/2026-01-05/README", "2026/2026-01-05/README_1"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.got, c.claim(tt.key, tt.want), tt.key)
	}
}
