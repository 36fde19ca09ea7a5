package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/model"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func keys(files []model.SourceFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Key)
	}
	return out
}

func TestLocalSource_List(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":              "aaa",
		"sub/b.txt":          "b",
		"sub/.hidden":        "h",
		".git/config":        "x",
		"deep/er/still/c.md": "cc",
	})
	mtime := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.txt"), mtime, mtime))

	tests := []struct {
		name       string
		skipHidden bool
		want       []string
	}{
		{"skip hidden", true, []string{"a.txt", "deep/er/still/c.md", "sub/b.txt"}},
		{"everything", false, []string{".git/config", "a.txt", "deep/er/still/c.md", "sub/.hidden", "sub/b.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewLocalSource(&config.LocalConfig{Path: root, SkipHidden: tt.skipHidden}, nil)
			files, err := src.List(context.Background())
			require.NoError(t, err)
			require.Equal(t, tt.want, keys(files))
		})
	}

	src := NewLocalSource(&config.LocalConfig{Path: root, SkipHidden: true}, nil)
	files, err := src.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), files[0].Size)
	require.Equal(t, mtime.Unix(), files[0].ModTime)
	require.Empty(t, files[0].Hash)
}

func TestLocalSource_ListMissingRoot(t *testing.T) {
	src := NewLocalSource(&config.LocalConfig{Path: filepath.Join(t.TempDir(), "nope")}, nil)
	_, err := src.List(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocalSource_ListCanceled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewLocalSource(&config.LocalConfig{Path: root}, nil)
	_, err := src.List(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLocalSource_Open(t *testing.T) {
	root := writeTree(t, map[string]string{"sub/b.txt": "b"})
	src := NewLocalSource(&config.LocalConfig{Path: root}, nil)

	p, cleanup, err := src.Open(context.Background(), "sub/b.txt")
	require.NoError(t, err)
	cleanup()
	require.Equal(t, filepath.Join(root, "sub", "b.txt"), p)

	// The file stays where it is
	_, err = os.Stat(p)
	require.NoError(t, err)

	_, _, err = src.Open(context.Background(), "../outside.txt")
	require.Error(t, err)

	_, _, err = src.Open(context.Background(), "missing.txt")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateSource(t *testing.T) {
	src, err := CreateSource(&config.SourceConfig{
		SourceType: config.SourceTypeLocal,
		Local:      &config.LocalConfig{Path: t.TempDir()},
	}, nil)
	require.NoError(t, err)
	require.IsType(t, &LocalSource{}, src)

	_, err = CreateSource(&config.SourceConfig{SourceType: config.SourceTypeLocal}, nil)
	require.Error(t, err)

	_, err = CreateSource(&config.SourceConfig{SourceType: "gcs"}, nil)
	require.Error(t, err)
}
