package processor

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/olegkotsar/ftpreconcile/cache"
	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/logger"
	"github.com/olegkotsar/ftpreconcile/metrics"
	"github.com/olegkotsar/ftpreconcile/reconcile"
	"github.com/olegkotsar/ftpreconcile/source"
)

const (
	manifestBatchSize = 10000
	writeBatchSize    = 1000
	defaultWorkers    = 5
)

// SessionFactory opens a new session on its own connection. All sessions
// of one run should share a ClockBook.
type SessionFactory func() (*reconcile.Session, error)

// Options configures a Runner.
type Options struct {
	Mirror     config.MirrorConfig
	Workers    int
	MaxRetries int // attempts per file, at least one
	DryRun     bool
	Logger     logger.Logger
	Metrics    *metrics.Metrics
}

// Runner mirrors a source onto the remote server, tracking what it
// published in the manifest.
type Runner struct {
	cache    cache.CacheProvider
	source   source.SourceProvider
	sessions SessionFactory
	mirror   config.MirrorConfig
	workers  int
	attempts int
	dryRun   bool
	logger   logger.Logger
	metrics  *metrics.Metrics
}

// NewRunner creates a Runner. With a nil sessions factory the runner only
// updates the manifest and reports what it would do.
func NewRunner(store cache.CacheProvider, src source.SourceProvider, sessions SessionFactory, opts Options) *Runner {
	opts.Mirror.ApplyDefaults()
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	return &Runner{
		cache:    store,
		source:   src,
		sessions: sessions,
		mirror:   opts.Mirror,
		workers:  opts.Workers,
		attempts: opts.MaxRetries,
		dryRun:   opts.DryRun || sessions == nil,
		logger:   logger.OrNoOp(opts.Logger).With("component", "runner"),
		metrics:  opts.Metrics,
	}
}

// PrepareStats contains statistics from the prepare step
type PrepareStats struct {
	TotalProcessed      int64 // Total entries processed from the manifest
	SyncedToTempDeleted int64 // SYNCED entries changed to TEMP_DELETED
	NewRemained         int64
	DeletedRemained     int64
	ErrorRemained       int64
}

func (s *PrepareStats) String() string {
	return fmt.Sprintf("Prepare: processed=%d, SYNCED→TEMP_DELETED=%d, NEW=%d, DELETED_IN_SOURCE=%d, ERROR=%d",
		s.TotalProcessed, s.SyncedToTempDeleted, s.NewRemained, s.DeletedRemained, s.ErrorRemained)
}

// ScanStats contains statistics from the source scan
type ScanStats struct {
	TotalProcessed      int64 // Files listed by the source
	NewFiles            int64 // Keys not in the manifest yet
	TempDeletedToSynced int64 // Unchanged files
	TempDeletedToNew    int64 // Changed files
	DeletedToNew        int64 // Files that reappeared in the source
	Retried             int64 // ERROR entries queued again
	NewUpdated          int64 // Still NEW from an earlier run
	TotalSizeBytes      int64
}

func (s *ScanStats) String() string {
	return fmt.Sprintf("Scan: total=%d (%s), new=%d, TEMP_DELETED→SYNCED=%d, TEMP_DELETED→NEW=%d, DELETED_IN_SOURCE→NEW=%d, ERROR→NEW=%d, NEW(updated)=%d",
		s.TotalProcessed, humanize.Bytes(uint64(s.TotalSizeBytes)), s.NewFiles, s.TempDeletedToSynced, s.TempDeletedToNew, s.DeletedToNew, s.Retried, s.NewUpdated)
}

// FinalizeStats contains statistics from the finalize step
type FinalizeStats struct {
	TotalProcessed    int64
	TempDeletedToGone int64 // TEMP_DELETED entries not seen in the source
	SyncedRemained    int64
	NewRemained       int64
	DeletedRemained   int64
}

func (s *FinalizeStats) String() string {
	return fmt.Sprintf("Finalize: processed=%d, TEMP_DELETED→DELETED_IN_SOURCE=%d, SYNCED=%d, NEW=%d, DELETED_IN_SOURCE=%d",
		s.TotalProcessed, s.TempDeletedToGone, s.SyncedRemained, s.NewRemained, s.DeletedRemained)
}

// PublishStats contains statistics from the publish step
type PublishStats struct {
	NewFilesFound  int64
	TotalSizeBytes int64
	Uploaded       int64
	UploadedBytes  int64
	Skipped        int64 // Already present with the same size (and fresh)
	Failed         int64
	WouldPublish   int64 // dry-run
}

func (s *PublishStats) String() string {
	if s.WouldPublish > 0 {
		return fmt.Sprintf("Publish (dry-run): NEW=%d, would_publish=%d, total_size=%s",
			s.NewFilesFound, s.WouldPublish, humanize.Bytes(uint64(s.TotalSizeBytes)))
	}
	return fmt.Sprintf("Publish: NEW=%d, uploaded=%d (%s), skipped=%d, failed=%d",
		s.NewFilesFound, s.Uploaded, humanize.Bytes(uint64(s.UploadedBytes)), s.Skipped, s.Failed)
}

// DeleteStats contains statistics from the delete step
type DeleteStats struct {
	Found       int64 // DELETED_IN_SOURCE entries
	Deleted     int64
	Failed      int64
	WouldDelete int64 // dry-run
	Kept        int64 // delete_extraneous is off
}

func (s *DeleteStats) String() string {
	return fmt.Sprintf("Delete: DELETED_IN_SOURCE=%d, deleted=%d, failed=%d, would_delete=%d, kept=%d",
		s.Found, s.Deleted, s.Failed, s.WouldDelete, s.Kept)
}

// PruneStats contains statistics from the prune step
type PruneStats struct {
	Checked     int64 // Top-level remote directories
	Removed     int64
	Failed      int64
	WouldRemove int64 // dry-run
}

func (s *PruneStats) String() string {
	return fmt.Sprintf("Prune: checked=%d, removed=%d, failed=%d, would_remove=%d",
		s.Checked, s.Removed, s.Failed, s.WouldRemove)
}

// Report collects the statistics of one run.
type Report struct {
	Prepare  *PrepareStats
	Scan     *ScanStats
	Finalize *FinalizeStats
	Publish  *PublishStats
	Delete   *DeleteStats
	Prune    *PruneStats
}

// Run performs one mirror pass. Failures of individual files are recorded
// in the manifest and do not fail the run; manifest and source errors do.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	r.logger.Info("Starting mirror run (dry_run=%t, layout=%s)", r.dryRun, r.mirror.Layout)

	r.logger.Debug("Step 1: Preparing manifest for scan")
	prepare, err := r.prepareForScan(ctx)
	if err != nil {
		r.logger.Error("Failed to prepare manifest: %v", err)
		return report, err
	}
	report.Prepare = prepare
	r.logger.Info(prepare.String())

	r.logger.Debug("Step 2: Scanning source")
	scan, err := r.scanSource(ctx)
	if err != nil {
		r.logger.Error("Failed to scan source: %v", err)
		return report, err
	}
	report.Scan = scan
	r.logger.Info(scan.String())

	r.logger.Debug("Step 3: Finalizing states after scan")
	finalize, err := r.finalizeStatesAfterScan(ctx)
	if err != nil {
		r.logger.Error("Failed to finalize states: %v", err)
		return report, err
	}
	report.Finalize = finalize
	r.logger.Info(finalize.String())

	pool, err := r.openSessions()
	if err != nil {
		r.logger.Error("Failed to open sessions: %v", err)
		return report, err
	}
	defer pool.close(r.logger)

	r.logger.Debug("Step 4: Publishing NEW files")
	publish, err := r.publishNewFiles(ctx, pool)
	if err != nil {
		r.logger.Error("Failed to publish files: %v", err)
		return report, err
	}
	report.Publish = publish
	r.logger.Info(publish.String())

	r.logger.Debug("Step 5: Deleting files removed from the source")
	del, err := r.deleteRemovedFiles(ctx, pool)
	if err != nil {
		r.logger.Error("Failed to delete removed files: %v", err)
		return report, err
	}
	report.Delete = del
	r.logger.Info(del.String())

	if r.mirror.PruneRemoteDirs {
		r.logger.Debug("Step 6: Pruning remote directories")
		prune, err := r.pruneRemoteDirs(ctx, pool)
		if err != nil {
			r.logger.Error("Failed to prune remote directories: %v", err)
			return report, err
		}
		report.Prune = prune
		r.logger.Info(prune.String())
	}

	r.logger.Info("Mirror run completed")
	return report, nil
}

// sessionPool hands out one session per concurrent worker.
type sessionPool struct {
	sessions chan *reconcile.Session
	all      []*reconcile.Session
}

// openSessions opens the worker sessions. Dry runs still open them when a
// factory is configured; they only read.
func (r *Runner) openSessions() (*sessionPool, error) {
	pool := &sessionPool{sessions: make(chan *reconcile.Session, r.workers)}
	if r.sessions == nil {
		return pool, nil
	}
	for i := 0; i < r.workers; i++ {
		s, err := r.sessions()
		if err != nil {
			pool.close(r.logger)
			return nil, err
		}
		pool.all = append(pool.all, s)
		pool.sessions <- s
	}
	return pool, nil
}

func (p *sessionPool) empty() bool {
	return len(p.all) == 0
}

func (p *sessionPool) acquire(ctx context.Context) (*reconcile.Session, error) {
	select {
	case s := <-p.sessions:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *sessionPool) release(s *reconcile.Session) {
	p.sessions <- s
}

func (p *sessionPool) close(log logger.Logger) {
	for _, s := range p.all {
		if err := s.Close(); err != nil {
			log.Warn("Failed to close session to %s: %v", s.Identity(), err)
		}
	}
}
