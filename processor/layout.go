package processor

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/model"
	"github.com/olegkotsar/ftpreconcile/remotepath"
)

var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
}

// remotePath decides where key is published under the remote root.
func (r *Runner) remotePath(key, localPath string, meta model.FileMeta) string {
	if r.mirror.Layout != config.LayoutDate {
		return remotepath.Normalize(key)
	}
	taken := captureTime(localPath, time.Unix(meta.ModTime, 0))
	return datePath(path.Base(remotepath.Normalize(key)), taken)
}

// pathClaims records which manifest key owns each remote path, so two keys
// never publish to the same place.
type pathClaims struct {
	mu    sync.Mutex
	owner map[string]string
}

// loadClaims collects the remote paths already held by manifest entries.
func (r *Runner) loadClaims(ctx context.Context) (*pathClaims, error) {
	c := &pathClaims{owner: make(map[string]string)}
	err := r.forEachEntry(ctx, func(key string, meta model.FileMeta) {
		if meta.RemotePath != "" {
			c.owner[meta.RemotePath] = key
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// claim reserves want for key. When another key already holds it, the first
// free name_N.ext variant is used instead. Paths stay reserved for the rest
// of the run even when their owner moves away.
func (c *pathClaims) claim(key, want string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	got := want
	ext := path.Ext(want)
	stem := strings.TrimSuffix(want, ext)
	for n := 1; ; n++ {
		if owner, taken := c.owner[got]; !taken || owner == key {
			break
		}
		got = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	c.owner[got] = key
	return got
}

// datePath is YYYY/YYYY-MM-DD/name.
func datePath(name string, t time.Time) string {
	return t.Format("2006") + "/" + t.Format("2006-01-02") + "/" + name
}

// captureTime returns the EXIF capture time of a photo, or fallback for
// everything else.
func captureTime(localPath string, fallback time.Time) time.Time {
	if !photoExtensions[strings.ToLower(filepath.Ext(localPath))] {
		return fallback.UTC()
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fallback.UTC()
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return fallback.UTC()
	}
	t, err := x.DateTime()
	if err != nil || t.IsZero() {
		return fallback.UTC()
	}
	return t
}
