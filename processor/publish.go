package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olegkotsar/ftpreconcile/model"
	"github.com/olegkotsar/ftpreconcile/reconcile"
	"github.com/olegkotsar/ftpreconcile/remotepath"
)

const (
	actionUploaded = "uploaded"
	actionSkipped  = "skipped"
	actionFailed   = "failed"
	actionDeleted  = "deleted"

	maxLoggedFiles = 10
)

// collect returns the manifest entries with status, keyed and sorted.
func (r *Runner) collect(ctx context.Context, status model.FileStatus) (map[string]model.FileMeta, []string, error) {
	found := make(map[string]model.FileMeta)
	err := r.forEachEntry(ctx, func(key string, meta model.FileMeta) {
		if meta.Status == status {
			found[key] = meta
		}
	})
	if err != nil {
		return nil, nil, err
	}

	keys := make([]string, 0, len(found))
	for key := range found {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return found, keys, nil
}

func (r *Runner) logSample(what string, keys []string) {
	for i, key := range keys {
		if i >= maxLoggedFiles {
			r.logger.Debug("... and %d more files", len(keys)-maxLoggedFiles)
			return
		}
		r.logger.Debug("  %s %s", what, key)
	}
}

// publishNewFiles uploads every NEW entry with a bounded number of workers,
// each on its own session. A file that fails is marked ERROR and retried on
// the next run.
func (r *Runner) publishNewFiles(ctx context.Context, pool *sessionPool) (*PublishStats, error) {
	stats := &PublishStats{}

	newFiles, keys, err := r.collect(ctx, model.StatusNew)
	if err != nil {
		return stats, err
	}
	for _, meta := range newFiles {
		stats.NewFilesFound++
		stats.TotalSizeBytes += meta.Size
	}

	if len(keys) == 0 {
		r.logger.Info("No NEW files to publish")
		return stats, nil
	}

	if r.dryRun {
		stats.WouldPublish = int64(len(keys))
		r.logger.Info("Dry-run mode: would publish %d NEW files", len(keys))
		r.logSample("would publish", keys)
		return stats, nil
	}

	r.logger.Info("Found %d NEW files to publish", len(keys))

	claims, err := r.loadClaims(ctx)
	if err != nil {
		return stats, err
	}

	var (
		mu      sync.Mutex
		updates = make(map[string]model.FileMeta)
		done    int64
	)
	flush := func() error {
		if err := r.applyUpdates(updates); err != nil {
			return fmt.Errorf("failed to update manifest: %w", err)
		}
		updates = make(map[string]model.FileMeta)
		return nil
	}

	stopProgress := r.reportProgress(ctx, &done, int64(len(keys)))
	defer stopProgress()

	sizes := reconcile.NewSizeCache()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}
		meta := newFiles[key]

		g.Go(func() error {
			s, aerr := pool.acquire(gctx)
			if aerr != nil {
				return aerr
			}
			defer pool.release(s)

			var (
				remote, action string
				err            error
			)
			for attempt := 1; ; attempt++ {
				remote, action, err = r.publishOne(gctx, s, sizes, claims, key, meta)
				if err == nil || gctx.Err() != nil || attempt >= r.attempts {
					break
				}
				r.logger.Debug("Attempt %d/%d for %s failed: %v", attempt, r.attempts, key, err)
			}
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				meta.Status = model.StatusError
				stats.Failed++
				action = actionFailed
				r.logger.Warn("Marked %s as ERROR: %v", key, err)
			} else {
				meta.Status = model.StatusSynced
				meta.RemotePath = remote
				if action == actionUploaded {
					stats.Uploaded++
					stats.UploadedBytes += meta.Size
				} else {
					stats.Skipped++
				}
				r.logger.Verbose("%s %s -> %s", action, key, remote)
			}
			r.metrics.RecordMirrorFile(action, meta.Size)
			atomic.AddInt64(&done, 1)

			updates[key] = meta
			if len(updates) >= writeBatchSize {
				return flush()
			}
			return nil
		})
	}

	werr := g.Wait()

	mu.Lock()
	ferr := flush()
	mu.Unlock()

	if werr != nil {
		return stats, werr
	}
	if ferr != nil {
		return stats, ferr
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	r.logger.Info("Publish completed: %d uploaded, %d skipped, %d failed", stats.Uploaded, stats.Skipped, stats.Failed)
	return stats, nil
}

// publishOne makes the remote copy of key match the source. It returns the
// remote path and whether the file was uploaded or already there.
func (r *Runner) publishOne(ctx context.Context, s *reconcile.Session, sizes *reconcile.SizeCache, claims *pathClaims, key string, meta model.FileMeta) (string, string, error) {
	localPath, cleanup, err := r.source.Open(ctx, key)
	if err != nil {
		return "", "", fmt.Errorf("open %s: %w", key, err)
	}
	defer cleanup()

	remote := claims.claim(key, r.remotePath(key, localPath, meta))

	same, err := s.IsFileSame(ctx, localPath, remote, sizes)
	if err != nil {
		r.logger.Debug("Could not compare %s with the remote copy: %v", key, err)
		same = false
	}
	if same && r.mirror.CheckFreshness {
		fresh, err := s.IsRemoteFresh(ctx, localPath, remote, sizes)
		if errors.Is(err, reconcile.ErrUncalibrated) {
			r.logger.Warn("Freshness of %s unknown, clock of %s is not calibrated: re-uploading", remote, s.Identity())
		} else if err != nil {
			r.logger.Debug("Could not judge freshness of %s: %v", remote, err)
		}
		same = fresh
	}
	if same {
		return remote, actionSkipped, nil
	}

	if err := s.PutFile(ctx, localPath, remote, true); err != nil {
		return "", "", err
	}

	if meta.RemotePath != "" && meta.RemotePath != remote {
		// The layout moved the file
		if err := s.RemoveFile(ctx, meta.RemotePath); err != nil {
			r.logger.Warn("Failed to remove previous copy %s: %v", meta.RemotePath, err)
		}
	}
	return remote, actionUploaded, nil
}

// reportProgress logs done/total every second until stop is called.
func (r *Runner) reportProgress(ctx context.Context, done *int64, total int64) (stop func()) {
	progressCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-progressCtx.Done():
				return
			case <-ticker.C:
				processed := atomic.LoadInt64(done)
				if processed > 0 && processed < total {
					r.logger.Info("Publish progress: %d/%d files (%.1f%%)", processed, total, float64(processed)/float64(total)*100)
				}
			}
		}
	}()
	return cancel
}

// deleteRemovedFiles removes the remote copies of DELETED_IN_SOURCE entries
// and drops them from the manifest. Without delete_extraneous they are kept.
func (r *Runner) deleteRemovedFiles(ctx context.Context, pool *sessionPool) (*DeleteStats, error) {
	stats := &DeleteStats{}

	gone, keys, err := r.collect(ctx, model.StatusDeletedInSource)
	if err != nil {
		return stats, err
	}
	stats.Found = int64(len(keys))

	switch {
	case len(keys) == 0:
		r.logger.Info("No DELETED_IN_SOURCE files to delete")
		return stats, nil
	case !r.mirror.DeleteExtraneous:
		stats.Kept = stats.Found
		r.logger.Info("Keeping %d remote files removed from the source (delete_extraneous is off)", len(keys))
		return stats, nil
	case r.dryRun:
		stats.WouldDelete = stats.Found
		r.logger.Info("Dry-run mode: would delete %d remote files", len(keys))
		r.logSample("would delete", keys)
		return stats, nil
	}

	s, err := pool.acquire(ctx)
	if err != nil {
		return stats, err
	}
	defer pool.release(s)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		remote := gone[key].RemotePath
		if remote == "" {
			remote = key
		}

		if err := s.RemoveFile(ctx, remote); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			if !s.Exists(ctx, remote, model.ExpectNothing).IsAbsent() {
				r.logger.Error("Failed to delete %s: %v", remote, err)
				stats.Failed++
				continue
			}
			r.logger.Debug("%s was already gone", remote)
		}

		stats.Deleted++
		r.metrics.RecordMirrorFile(actionDeleted, 0)
		if err := r.cache.Delete(key); err != nil {
			r.logger.Warn("Failed to remove %s from manifest: %v", key, err)
		}
	}

	r.logger.Info("Deletion completed: %d succeeded, %d failed", stats.Deleted, stats.Failed)
	return stats, nil
}

// pruneRemoteDirs removes top-level remote directories that hold no file
// of the manifest.
func (r *Runner) pruneRemoteDirs(ctx context.Context, pool *sessionPool) (*PruneStats, error) {
	stats := &PruneStats{}
	if pool.empty() {
		r.logger.Info("No remote configured, nothing to prune")
		return stats, nil
	}

	keep := make(map[string]bool)
	err := r.forEachEntry(ctx, func(key string, meta model.FileMeta) {
		p := meta.RemotePath
		if p == "" {
			p = remotepath.Normalize(key)
		}
		if i := strings.Index(p, "/"); i > 0 {
			keep[p[:i]] = true
		}
	})
	if err != nil {
		return stats, err
	}

	s, err := pool.acquire(ctx)
	if err != nil {
		return stats, err
	}
	defer pool.release(s)

	entries, _, err := s.List(ctx, "")
	if err != nil {
		return stats, fmt.Errorf("failed to list remote root: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		stats.Checked++
		if keep[e.Name] {
			continue
		}

		if r.dryRun {
			stats.WouldRemove++
			r.logger.Info("Dry-run mode: would remove remote directory %s", e.Name)
			continue
		}

		if err := s.RemoveDirectoryTree(ctx, e.Name); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			r.logger.Error("Failed to remove remote directory %s: %v", e.Name, err)
			stats.Failed++
			continue
		}
		r.logger.Info("Removed remote directory %s", e.Name)
		stats.Removed++
	}
	return stats, nil
}
