package reconcile

import (
	"context"
	"fmt"

	"github.com/olegkotsar/ftpreconcile/model"
	"github.com/olegkotsar/ftpreconcile/remotepath"
)

// PutFile uploads localPath to sub.
//
// An existing target is an ErrTargetExists failure unless overwrite is set,
// in which case it is removed first. Otherwise the parent directory tree is
// ensured. Failures of those preparatory steps are only logged: the upload
// is always attempted and its result is the result of PutFile.
func (s *Session) PutFile(ctx context.Context, localPath, sub string, overwrite bool) error {
	n, err := checkSub(sub, false)
	if err != nil {
		return err
	}
	abs := remotepath.File(s.root, n)

	res := s.Exists(ctx, n, model.ExpectNothing)
	switch {
	case res.IsPresent() && !overwrite:
		return fmt.Errorf("%s: %w", abs, ErrTargetExists)

	case res.IsPresent():
		if err := s.rmfile(ctx, abs); err != nil {
			s.log.Warn("removing %s before upload: %v", abs, err)
		}
		if gone := s.Exists(ctx, n, model.ExpectAbsent); !gone.IsAbsent() {
			s.log.Warn("%s not confirmed absent before upload: %s", abs, gone)
		}

	default:
		if parent := remotepath.Parent(n); parent != "" {
			if err := s.EnsureRemoteDirectoryTree(ctx, parent); err != nil {
				s.log.Warn("ensuring directory for %s: %v", abs, err)
			}
		}
	}

	if err := s.put(ctx, localPath, abs); err != nil {
		return err
	}
	s.log.Verbose("uploaded %s", abs)
	return nil
}

// RemoveFile deletes file sub and waits for the server to stop listing it.
func (s *Session) RemoveFile(ctx context.Context, sub string) error {
	n, err := checkSub(sub, false)
	if err != nil {
		return err
	}
	abs := remotepath.File(s.root, n)

	if err := s.rmfile(ctx, abs); err != nil {
		return err
	}

	res := s.Exists(ctx, n, model.ExpectAbsent)
	switch {
	case res.IsPresent():
		return fmt.Errorf("%s: %w", abs, ErrPersisting)
	case res.IsIndeterminate():
		s.log.Warn("removal of %s not confirmed: %s", abs, res.Reason())
	}
	return nil
}
