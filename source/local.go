package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/logger"
	"github.com/olegkotsar/ftpreconcile/model"
)

var _ SourceProvider = (*LocalSource)(nil)

// LocalSource publishes the regular files below a local directory.
type LocalSource struct {
	root       string
	skipHidden bool
	log        logger.Logger
}

func NewLocalSource(cfg *config.LocalConfig, log logger.Logger) *LocalSource {
	return &LocalSource{
		root:       filepath.Clean(cfg.Path),
		skipHidden: cfg.SkipHidden,
		log:        logger.OrNoOp(log).With("source", "local"),
	}
}

func (s *LocalSource) List(ctx context.Context) ([]model.SourceFile, error) {
	var files []model.SourceFile

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == s.root {
			return nil
		}

		if s.skipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			if !d.IsDir() {
				s.log.Debug("skipping %s: not a regular file", p)
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		files = append(files, model.SourceFile{
			Key:     filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", s.root, err)
	}

	return files, nil
}

// Open returns the file in place; there is nothing to clean up.
func (s *LocalSource) Open(ctx context.Context, key string) (string, func(), error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if rel, err := filepath.Rel(s.root, p); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", nil, fmt.Errorf("key %q escapes the source root", key)
	}
	if _, err := os.Stat(p); err != nil {
		return "", nil, err
	}
	return p, func() {}, nil
}
