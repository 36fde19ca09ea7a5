package reconcile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/olegkotsar/ftpreconcile/model"
	"github.com/olegkotsar/ftpreconcile/remotepath"
)

// SizeCache remembers parsed directory listings so comparing many files of
// one directory costs a single listing. It is meant to live for one pass
// over a tree; entries never expire on their own.
type SizeCache struct {
	mu   sync.Mutex
	dirs map[string][]model.DirectoryEntry
}

func NewSizeCache() *SizeCache {
	return &SizeCache{dirs: make(map[string][]model.DirectoryEntry)}
}

// Invalidate forgets the listing of directory sub.
func (c *SizeCache) Invalidate(sub string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.dirs, remotepath.Normalize(sub))
}

func (c *SizeCache) entries(ctx context.Context, s *Session, dir string) ([]model.DirectoryEntry, error) {
	c.mu.Lock()
	cached, ok := c.dirs[dir]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	entries, _, err := s.List(ctx, dir)
	if err != nil {
		// A directory that is not there simply has no entries
		if res := s.Exists(ctx, dir, model.ExpectNothing); !res.IsAbsent() {
			return nil, err
		}
		entries = []model.DirectoryEntry{}
	}

	c.mu.Lock()
	c.dirs[dir] = entries
	c.mu.Unlock()
	return entries, nil
}

// lookup finds file sub in its parent's listing, preferring an exact name
// match over a case-insensitive one.
func (s *Session) lookup(ctx context.Context, n string, cache *SizeCache) (model.DirectoryEntry, bool, error) {
	if cache == nil {
		cache = NewSizeCache()
	}

	entries, err := cache.entries(ctx, s, remotepath.Parent(n))
	if err != nil {
		return model.DirectoryEntry{}, false, err
	}

	name := remotepath.Base(n)
	var folded *model.DirectoryEntry
	for i := range entries {
		if entries[i].Name == name {
			return entries[i], true, nil
		}
		if folded == nil && entries[i].MatchesName(name) {
			folded = &entries[i]
		}
	}
	if folded != nil {
		return *folded, true, nil
	}
	return model.DirectoryEntry{}, false, nil
}

// IsFileSame reports whether remote file sub has the size of localPath.
// Only sizes are compared. A missing remote entry, a directory or an entry
// listed without size all count as different. cache may be nil.
func (s *Session) IsFileSame(ctx context.Context, localPath, sub string, cache *SizeCache) (bool, error) {
	n, err := checkSub(sub, false)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return false, err
	}

	e, ok, err := s.lookup(ctx, n, cache)
	if err != nil {
		return false, err
	}
	if !ok || e.IsDir() || !e.HasSize {
		return false, nil
	}
	return e.Size == info.Size(), nil
}

// offset returns the clock offset freshness decisions must use.
func (s *Session) offset() (time.Duration, error) {
	server := s.Identity()
	if off, ok := s.opts.Clock.Offset(server); ok {
		return off, nil
	}
	if !s.opts.DegradedClock {
		return 0, fmt.Errorf("%s: %w", server, ErrUncalibrated)
	}
	if s.opts.Clock.warnDegradedOnce(server) {
		s.log.Warn("clock offset of %s unknown, comparing timestamps as if clocks agreed", server)
	}
	return 0, nil
}

// RemoteModTime returns the modification time of sub on the local clock.
func (s *Session) RemoteModTime(ctx context.Context, sub string, cache *SizeCache) (time.Time, error) {
	n, err := checkSub(sub, false)
	if err != nil {
		return time.Time{}, err
	}
	offset, err := s.offset()
	if err != nil {
		return time.Time{}, err
	}

	e, ok, err := s.lookup(ctx, n, cache)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%s: %w", remotepath.File(s.root, n), ErrNotFound)
	}
	e.Offset = offset
	return e.Corrected(), nil
}

// IsRemoteFresh reports whether remote file sub is at least as new as
// localPath. Listings carry minute precision, so a remote time up to a
// minute older than the local one still counts as fresh.
func (s *Session) IsRemoteFresh(ctx context.Context, localPath, sub string, cache *SizeCache) (bool, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return false, err
	}

	remote, err := s.RemoteModTime(ctx, sub, cache)
	if err != nil {
		return false, err
	}
	return !remote.Add(time.Minute).Before(info.ModTime()), nil
}
