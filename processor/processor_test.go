package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegkotsar/ftpreconcile/cache"
	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/logger"
	"github.com/olegkotsar/ftpreconcile/model"
	"github.com/olegkotsar/ftpreconcile/reconcile"
	"github.com/olegkotsar/ftpreconcile/testutils"
)

func TestRun_PublishesNewFiles(t *testing.T) {
	e := newEnv(t, map[string]string{
		"a.txt":     "aaa",
		"sub/b.txt": "bb",
	})

	report := e.run(t)

	require.Equal(t, int64(2), report.Scan.NewFiles)
	require.Equal(t, int64(2), report.Publish.Uploaded)
	require.Equal(t, int64(5), report.Publish.UploadedBytes)
	require.Equal(t, []string{"/pub", "/pub/a.txt", "/pub/sub", "/pub/sub/b.txt"}, e.remote.Paths())
	require.Equal(t, "bb", string(e.remote.Data("/pub/sub/b.txt")))

	meta := e.status(t, "sub/b.txt")
	require.Equal(t, model.StatusSynced, meta.Status)
	require.Equal(t, "sub/b.txt", meta.RemotePath)
	require.Equal(t, int64(2), meta.Size)

	// Sessions are closed at the end of the run
	require.Equal(t, e.remote.Connects(), e.remote.Disconnects())
}

func TestRun_SecondRunIsQuiet(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "aaa", "sub/b.txt": "bb"})
	e.run(t)
	e.remote.ResetCalls()

	report := e.run(t)

	require.Equal(t, int64(2), report.Prepare.SyncedToTempDeleted)
	require.Equal(t, int64(2), report.Scan.TempDeletedToSynced)
	require.Equal(t, int64(0), report.Finalize.TempDeletedToGone)
	require.Equal(t, int64(0), report.Publish.NewFilesFound)
	require.Empty(t, e.remote.Calls())
}

func TestRun_ChangedFileIsUploadedAgain(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "aaa"})
	e.run(t)

	p := e.write(t, "a.txt", "aaaa")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(p, later, later))

	report := e.run(t)

	require.Equal(t, int64(1), report.Scan.TempDeletedToNew)
	require.Equal(t, int64(1), report.Publish.Uploaded)
	require.Equal(t, "aaaa", string(e.remote.Data("/pub/a.txt")))
	require.Equal(t, model.StatusSynced, e.status(t, "a.txt").Status)
}

func TestRun_SkipsSameSizedRemoteFile(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "aaa"})
	e.remote.AddFile("/pub/a.txt", 3)

	report := e.run(t)

	require.Equal(t, int64(1), report.Publish.Skipped)
	require.Empty(t, e.remote.CallsOf("put"))
	require.Equal(t, model.StatusSynced, e.status(t, "a.txt").Status)
}

func TestRun_CheckFreshness(t *testing.T) {
	tests := []struct {
		name       string
		remoteTime time.Time
		wantPut    int
	}{
		{"remote older", base.Add(-3 * time.Hour), 1},
		{"remote newer", base.Add(-time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			p := e.write(t, "a.txt", "aaa")
			require.NoError(t, os.Chtimes(p, base.Add(-time.Hour), base.Add(-time.Hour)))
			e.remote.AddFileAt("/pub/a.txt", 3, tt.remoteTime)
			e.opts.Mirror.CheckFreshness = true

			e.run(t)
			require.Len(t, e.remote.CallsOf("put"), tt.wantPut)
		})
	}
}

func TestRun_CheckFreshnessUncalibrated(t *testing.T) {
	e := newEnv(t, nil)
	p := e.write(t, "a.txt", "aaa")
	require.NoError(t, os.Chtimes(p, base.Add(-time.Hour), base.Add(-time.Hour)))
	e.remote.AddFileAt("/pub/a.txt", 3, base)
	e.opts.Mirror.CheckFreshness = true

	var out bytes.Buffer
	e.opts.Logger = logger.NewLoggerWithWriter(&config.LoggerConfig{Level: config.LogLevelInfo}, &out)
	e.factory = func() (*reconcile.Session, error) {
		return reconcile.NewSession(e.remote, reconcile.Options{
			Root:    "/pub",
			Sleeper: func(ctx context.Context, d time.Duration) error { return ctx.Err() },
			Now:     func() time.Time { return base },
		}), nil
	}

	report := e.run(t)
	require.Equal(t, int64(1), report.Publish.Uploaded)
	require.Len(t, e.remote.CallsOf("put"), 1)
	require.Contains(t, out.String(), "not calibrated")
}

func TestRun_DeleteExtraneous(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "aaa", "sub/b.txt": "bb"})
	e.opts.Mirror.DeleteExtraneous = true
	e.run(t)

	require.NoError(t, os.Remove(filepath.Join(e.dir, "a.txt")))
	report := e.run(t)

	require.Equal(t, int64(1), report.Finalize.TempDeletedToGone)
	require.Equal(t, int64(1), report.Delete.Deleted)
	require.False(t, e.remote.Has("/pub/a.txt"))
	require.True(t, e.remote.Has("/pub/sub/b.txt"))

	_, err := e.manifest.Get("a.txt")
	require.ErrorIs(t, err, cache.ErrKeyNotFound)
}

func TestRun_DeleteAlreadyGone(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "aaa"})
	e.opts.Mirror.DeleteExtraneous = true
	e.run(t)

	require.NoError(t, os.Remove(filepath.Join(e.dir, "a.txt")))
	e.remote.Fail("rmfile", "/pub/a.txt", errors.New("550 No such file"))
	e.remote.Script("/pub/a.txt", testutils.AnswerAbsent)

	report := e.run(t)
	require.Equal(t, int64(1), report.Delete.Deleted)
	require.Equal(t, int64(0), report.Delete.Failed)
}

func TestRun_KeepsRemovedFilesByDefault(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "aaa"})
	e.run(t)

	require.NoError(t, os.Remove(filepath.Join(e.dir, "a.txt")))
	report := e.run(t)

	require.Equal(t, int64(1), report.Delete.Kept)
	require.True(t, e.remote.Has("/pub/a.txt"))
	require.Equal(t, model.StatusDeletedInSource, e.status(t, "a.txt").Status)

	// The file comes back and is recognized on the server
	e.write(t, "a.txt", "aaa")
	report = e.run(t)
	require.Equal(t, int64(1), report.Scan.DeletedToNew)
	require.Equal(t, int64(1), report.Publish.Skipped)
}

func TestRun_FailedUploadIsRetried(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "aaa", "b.txt": "b"})
	e.remote.Fail("put", "/pub/a.txt", errors.New("452 insufficient storage"))

	report := e.run(t)
	require.Equal(t, int64(1), report.Publish.Failed)
	require.Equal(t, int64(1), report.Publish.Uploaded)
	require.Equal(t, model.StatusError, e.status(t, "a.txt").Status)
	require.Equal(t, model.StatusSynced, e.status(t, "b.txt").Status)

	report = e.run(t)
	require.Equal(t, int64(1), report.Prepare.ErrorRemained)
	require.Equal(t, int64(1), report.Scan.Retried)
	require.Equal(t, int64(1), report.Publish.NewFilesFound)
}

func TestRun_DryRun(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "aaa", "sub/b.txt": "bb"})
	e.opts.DryRun = true

	report := e.run(t)

	require.Equal(t, int64(2), report.Publish.WouldPublish)
	require.Equal(t, int64(5), report.Publish.TotalSizeBytes)
	require.Empty(t, e.remote.Calls())
	require.Equal(t, model.StatusNew, e.status(t, "a.txt").Status)
}

func TestRun_WithoutRemote(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "aaa"})
	e.factory = nil
	e.opts.Mirror.PruneRemoteDirs = true

	report := e.run(t)
	require.Equal(t, int64(1), report.Publish.WouldPublish)
	require.Equal(t, int64(0), report.Prune.Checked)
}

func TestRun_PruneRemoteDirs(t *testing.T) {
	e := newEnv(t, map[string]string{"sub/b.txt": "bb", "top.txt": "t"})
	e.remote.AddFile("/pub/old/deep/x.txt", 1)
	e.remote.AddFile("/pub/stray.txt", 1)
	e.opts.Mirror.PruneRemoteDirs = true

	report := e.run(t)

	require.Equal(t, int64(2), report.Prune.Checked)
	require.Equal(t, int64(1), report.Prune.Removed)
	require.Equal(t, []string{"/pub", "/pub/stray.txt", "/pub/sub", "/pub/sub/b.txt", "/pub/top.txt"}, e.remote.Paths())
}

func TestRun_PruneDryRun(t *testing.T) {
	e := newEnv(t, nil)
	e.remote.AddFile("/pub/old/x.txt", 1)
	e.opts.Mirror.PruneRemoteDirs = true
	e.opts.DryRun = true

	report := e.run(t)

	require.Equal(t, int64(1), report.Prune.WouldRemove)
	require.True(t, e.remote.Has("/pub/old/x.txt"))
	require.Empty(t, e.remote.CallsOf("rmdir"))
}

func TestRun_DateLayout(t *testing.T) {
	e := newEnv(t, nil)
	e.opts.Mirror.Layout = config.LayoutDate

	taken := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)
	p := e.write(t, "trip/notes.txt", "n")
	require.NoError(t, os.Chtimes(p, taken, taken))

	// Not a real JPEG, so the capture time falls back to the mtime
	scanned := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	p = e.write(t, "img.JPG", "no exif here")
	require.NoError(t, os.Chtimes(p, scanned, scanned))

	e.run(t)

	require.True(t, e.remote.Has("/pub/2025/2025-07-04/notes.txt"))
	require.True(t, e.remote.Has("/pub/2024/2024-01-02/img.JPG"))
	require.Equal(t, "2025/2025-07-04/notes.txt", e.status(t, "trip/notes.txt").RemotePath)
}

func TestRun_DateLayoutSameName(t *testing.T) {
	e := newEnv(t, nil)
	e.opts.Mirror.Layout = config.LayoutDate

	taken := time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC)
	for rel, content := range map[string]string{
		"cam1/IMG_0001.txt": "from camera one",
		"cam2/IMG_0001.txt": "from camera two!",
	} {
		p := e.write(t, rel, content)
		require.NoError(t, os.Chtimes(p, taken, taken))
	}

	report := e.run(t)
	require.Equal(t, int64(2), report.Publish.Uploaded)
	require.Equal(t, "2025/2025-07-04/IMG_0001.txt", e.status(t, "cam1/IMG_0001.txt").RemotePath)
	require.Equal(t, "2025/2025-07-04/IMG_0001_1.txt", e.status(t, "cam2/IMG_0001.txt").RemotePath)
	require.Equal(t, "from camera one", string(e.remote.Data("/pub/2025/2025-07-04/IMG_0001.txt")))
	require.Equal(t, "from camera two!", string(e.remote.Data("/pub/2025/2025-07-04/IMG_0001_1.txt")))

	// Removing one source file must not touch the other's copy
	require.NoError(t, os.Remove(filepath.Join(e.dir, "cam1", "IMG_0001.txt")))
	e.opts.Mirror.DeleteExtraneous = true
	report = e.run(t)

	require.Equal(t, int64(1), report.Delete.Deleted)
	require.False(t, e.remote.Has("/pub/2025/2025-07-04/IMG_0001.txt"))
	require.Equal(t, "from camera two!", string(e.remote.Data("/pub/2025/2025-07-04/IMG_0001_1.txt")))
}

func TestRun_ManyWorkers(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("d%d/f%02d.txt", i%3, i)] = fmt.Sprintf("content %d", i)
	}
	e := newEnv(t, files)
	e.opts.Workers = 4

	report := e.run(t)

	require.Equal(t, int64(20), report.Publish.Uploaded)
	require.Len(t, e.remote.CallsOf("put"), 20)
	require.Equal(t, 4, e.remote.Connects())
	for key, content := range files {
		require.Equal(t, content, string(e.remote.Data("/pub/"+key)), key)
	}
}

func TestRun_Canceled(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "aaa"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.runner().Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, e.remote.CallsOf("put"))
}

func TestPrepareForScan_LargeManifest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping large manifest test in short mode")
	}

	e := newEnv(t, nil)

	const totalEntries = 100000
	batch := make(map[string]model.FileMeta, 1000)
	for i := 0; i < totalEntries; i++ {
		status := model.StatusSynced
		if i%10 == 0 {
			status = model.StatusNew
		}
		batch[fmt.Sprintf("file%06d", i)] = model.FileMeta{Size: int64(i), Status: status}
		if len(batch) == 1000 {
			require.NoError(t, e.manifest.BatchSet(batch))
			batch = make(map[string]model.FileMeta, 1000)
		}
	}

	stats, err := e.runner().prepareForScan(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(totalEntries), stats.TotalProcessed)
	require.Equal(t, int64(90000), stats.SyncedToTempDeleted)
	require.Equal(t, int64(10000), stats.NewRemained)

	meta := e.status(t, "file000001")
	require.Equal(t, model.StatusTempDeleted, meta.Status)
}

func TestRun_RetriesFailedFile(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "aaa"})
	e.remote.Fail("put", "/pub/a.txt", errors.New("426 transfer aborted"))
	e.opts.MaxRetries = 3

	report := e.run(t)

	require.Equal(t, int64(1), report.Publish.Failed)
	require.Len(t, e.remote.CallsOf("put"), 3)
}
