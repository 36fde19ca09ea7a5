package processor

import (
	"context"
	"errors"
	"time"

	"github.com/olegkotsar/ftpreconcile/cache"
	"github.com/olegkotsar/ftpreconcile/model"
)

// forEachEntry streams the whole manifest through fn. fn must not write to
// the manifest; callers collect their updates and apply them afterwards.
func (r *Runner) forEachEntry(ctx context.Context, fn func(key string, meta model.FileMeta)) error {
	batchCh, errCh := r.cache.IterateBatches(ctx, manifestBatchSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		case batch, ok := <-batchCh:
			if !ok {
				if errCh != nil {
					if err := <-errCh; err != nil {
						return err
					}
				}
				return nil
			}
			for key, meta := range batch {
				fn(key, meta)
			}
		}
	}
}

func (r *Runner) applyUpdates(updates map[string]model.FileMeta) error {
	if len(updates) == 0 {
		return nil
	}
	r.logger.Debug("Applying %d updates to manifest...", len(updates))
	return r.cache.BatchSet(updates)
}

// prepareForScan marks every SYNCED entry TEMP_DELETED. The scan flips the
// ones still present in the source back.
func (r *Runner) prepareForScan(ctx context.Context) (*PrepareStats, error) {
	stats := &PrepareStats{}
	updates := make(map[string]model.FileMeta)

	err := r.forEachEntry(ctx, func(key string, meta model.FileMeta) {
		stats.TotalProcessed++
		switch meta.Status {
		case model.StatusSynced:
			meta.Status = model.StatusTempDeleted
			updates[key] = meta
			stats.SyncedToTempDeleted++
		case model.StatusNew:
			stats.NewRemained++
		case model.StatusDeletedInSource:
			stats.DeletedRemained++
		case model.StatusError:
			stats.ErrorRemained++
		}
	})
	if err != nil {
		return stats, err
	}
	return stats, r.applyUpdates(updates)
}

// finalizeStatesAfterScan marks TEMP_DELETED entries, the ones the source no
// longer lists, DELETED_IN_SOURCE.
func (r *Runner) finalizeStatesAfterScan(ctx context.Context) (*FinalizeStats, error) {
	stats := &FinalizeStats{}
	updates := make(map[string]model.FileMeta)

	err := r.forEachEntry(ctx, func(key string, meta model.FileMeta) {
		stats.TotalProcessed++
		switch meta.Status {
		case model.StatusTempDeleted:
			meta.Status = model.StatusDeletedInSource
			updates[key] = meta
			stats.TempDeletedToGone++
		case model.StatusSynced:
			stats.SyncedRemained++
		case model.StatusNew:
			stats.NewRemained++
		case model.StatusDeletedInSource:
			stats.DeletedRemained++
		}
	})
	if err != nil {
		return stats, err
	}
	return stats, r.applyUpdates(updates)
}

type rpsReporter interface {
	GetCurrentRPS() int64
}

// scanSource lists the source and moves each key to the state it deserves.
func (r *Runner) scanSource(ctx context.Context) (*ScanStats, error) {
	stats := &ScanStats{}

	stop := r.reportRPS(ctx)
	files, err := r.source.List(ctx)
	stop()
	if err != nil {
		return stats, err
	}

	updates := make(map[string]model.FileMeta, writeBatchSize)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.TotalProcessed++
		stats.TotalSizeBytes += file.Size

		meta, err := r.cache.Get(file.Key)
		if err != nil && !errors.Is(err, cache.ErrKeyNotFound) {
			return stats, err
		}

		if meta == nil {
			stats.NewFiles++
			updates[file.Key] = model.FileMeta{
				Size:    file.Size,
				ModTime: file.ModTime,
				Hash:    file.Hash,
				Status:  model.StatusNew,
			}
		} else {
			next := *meta
			next.Size, next.ModTime, next.Hash = file.Size, file.ModTime, file.Hash

			switch meta.Status {
			case model.StatusTempDeleted, model.StatusSynced:
				if unchanged(*meta, file) {
					stats.TempDeletedToSynced++
					next.Status = model.StatusSynced
				} else {
					stats.TempDeletedToNew++
					next.Status = model.StatusNew
				}
			case model.StatusNew:
				stats.NewUpdated++
			case model.StatusDeletedInSource:
				stats.DeletedToNew++
				next.Status = model.StatusNew
			case model.StatusError:
				// Failed last time, try again
				stats.Retried++
				next.Status = model.StatusNew
			default:
				next.Status = model.StatusNew
			}
			updates[file.Key] = next
		}

		if len(updates) >= writeBatchSize {
			if err := r.applyUpdates(updates); err != nil {
				return stats, err
			}
			updates = make(map[string]model.FileMeta, writeBatchSize)
		}
	}

	return stats, r.applyUpdates(updates)
}

func unchanged(meta model.FileMeta, file model.SourceFile) bool {
	return meta.Size == file.Size && meta.ModTime == file.ModTime && meta.Hash == file.Hash
}

// reportRPS logs the request rate of sources that track one until stop is
// called.
func (r *Runner) reportRPS(ctx context.Context) (stop func()) {
	rep, ok := r.source.(rpsReporter)
	if !ok {
		return func() {}
	}

	rpsCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-rpsCtx.Done():
				return
			case <-ticker.C:
				if rps := rep.GetCurrentRPS(); rps > 0 {
					r.logger.Info("Source listing: current RPS = %d req/s", rps)
				}
			}
		}
	}()
	return cancel
}
