package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/olegkotsar/ftpreconcile/listing"
	"github.com/olegkotsar/ftpreconcile/model"
	"github.com/olegkotsar/ftpreconcile/remotepath"
)

// checkSub rejects sub-paths that climb above the root and, unless allowRoot
// is set, the root itself. No remote call is made for a rejected path.
func checkSub(sub string, allowRoot bool) (string, error) {
	if remotepath.EscapesRoot(sub) {
		return "", &SafetyError{Path: sub, Reason: "path escapes the remote root"}
	}
	n := remotepath.Normalize(sub)
	if n == "" && !allowRoot {
		return "", &SafetyError{Path: sub, Reason: "path is the remote root"}
	}
	return n, nil
}

// parser builds a listing parser anchored at the server's current time as
// far as the session knows it.
func (s *Session) parser() (*listing.Parser, time.Duration) {
	offset, _ := s.opts.Clock.Offset(s.Identity())
	return &listing.Parser{
		Now:         func() time.Time { return s.now().Add(offset) },
		FutureGrace: s.opts.FutureGrace,
	}, offset
}

// List fetches and parses the listing of directory sub. Entries carry the
// server's known clock offset. Lines that could not be parsed are returned
// separately and logged; the listing itself is still usable.
func (s *Session) List(ctx context.Context, sub string) ([]model.DirectoryEntry, []*listing.ParseError, error) {
	n, err := checkSub(sub, true)
	if err != nil {
		return nil, nil, err
	}
	abs := remotepath.Dir(s.root, n)

	lines, err := s.listing(ctx, abs)
	if err != nil {
		return nil, nil, err
	}

	p, offset := s.parser()
	entries, perrs := p.ParseListing(lines)

	out := entries[:0]
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		e.Offset = offset
		out = append(out, e)
	}
	for _, perr := range perrs {
		s.log.Warn("listing %s: %v", abs, perr)
	}
	return out, perrs, nil
}

// EnsureRemoteDirectoryTree makes sure directory sub exists, creating every
// missing ancestor from the top down. It probes from the leaf upwards and
// stops at the first directory that exists. Directories created before a
// failure are left in place.
func (s *Session) EnsureRemoteDirectoryTree(ctx context.Context, sub string) error {
	n, err := checkSub(sub, true)
	if err != nil {
		return err
	}
	if n == "" {
		return nil
	}

	var missing []string
	for _, dir := range remotepath.Ancestors(n) {
		res := s.Exists(ctx, dir, model.ExpectNothing)
		if res.IsPresent() {
			if res.Kind() != model.EntryDirectory {
				return fmt.Errorf("%s: %w", remotepath.File(s.root, dir), ErrNotDirectory)
			}
			break
		}
		if res.IsIndeterminate() {
			// Treated as missing: creating an existing directory fails
			// and is re-checked below.
			s.log.Debug("existence of %s unknown (%s), will try to create it", dir, res.Reason())
		}
		missing = append(missing, dir)
	}

	if len(missing) == 0 {
		return nil
	}

	for i := len(missing) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		abs := remotepath.Dir(s.root, missing[i])
		if err := s.mkdir(ctx, abs); err != nil {
			// Another session may have created it in the meantime
			res := s.Exists(ctx, missing[i], model.ExpectNothing)
			if res.IsPresent() && res.Kind() == model.EntryDirectory {
				s.log.Debug("mkdir %s failed but directory exists: %v", abs, err)
				continue
			}
			return fmt.Errorf("creating %s: %w", abs, err)
		}
		s.log.Verbose("created %s", abs)
	}

	res := s.Exists(ctx, n, model.ExpectPresent)
	if !res.IsPresent() {
		return fmt.Errorf("%s (%s): %w", remotepath.Dir(s.root, n), res, ErrNotConfirmed)
	}
	if res.Kind() != model.EntryDirectory {
		return fmt.Errorf("%s: %w", remotepath.File(s.root, n), ErrNotDirectory)
	}
	return nil
}

// RemoveDirectoryTree deletes directory sub and everything below it. The
// root and paths above it are refused before any remote call. Removal stops
// at the first failure; what was removed until then stays removed.
func (s *Session) RemoveDirectoryTree(ctx context.Context, sub string) error {
	n, err := checkSub(sub, false)
	if err != nil {
		return err
	}

	if err := s.removeTree(ctx, n); err != nil {
		return err
	}

	res := s.Exists(ctx, n, model.ExpectAbsent)
	switch {
	case res.IsPresent():
		return fmt.Errorf("%s: %w", remotepath.Dir(s.root, n), ErrPersisting)
	case res.IsIndeterminate():
		s.log.Warn("removal of %s not confirmed: %s", remotepath.Dir(s.root, n), res.Reason())
	}
	return nil
}

func (s *Session) removeTree(ctx context.Context, n string) error {
	entries, perrs, err := s.List(ctx, n)
	if err != nil {
		return err
	}
	if len(perrs) > 0 {
		// An entry we cannot classify would keep the directory non-empty
		return fmt.Errorf("listing %s: %w", remotepath.Dir(s.root, n), perrs[0])
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		child := remotepath.Join(n, e.Name)
		if remotepath.Parent(child) != n || remotepath.Base(child) != e.Name {
			return &SafetyError{Path: e.Name, Reason: "listed name is not a plain entry of " + remotepath.Dir(s.root, n)}
		}
		if e.IsDir() {
			if err := s.removeTree(ctx, child); err != nil {
				return err
			}
			continue
		}
		if err := s.rmfile(ctx, remotepath.File(s.root, child)); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.rmdir(ctx, remotepath.Dir(s.root, n))
}
