package reconcile

import (
	"context"
	"fmt"

	"github.com/olegkotsar/ftpreconcile/model"
	"github.com/olegkotsar/ftpreconcile/remotepath"
)

// Exists answers whether sub exists below the root.
//
// With ExpectNothing the server is asked once. With an expectation the
// answer is re-queried, PollInterval apart and at most PollAttempts times,
// until it matches. A presence that never shows up ends Indeterminate; an
// object that never goes away is reported Present. Exists never fails: a
// transport error or cancellation is an Indeterminate answer.
func (s *Session) Exists(ctx context.Context, sub string, expect model.Expectation) model.Existence {
	if remotepath.EscapesRoot(sub) {
		return model.Indeterminate(fmt.Sprintf("%q escapes the remote root", sub))
	}
	abs := remotepath.File(s.root, sub)

	res := s.query(ctx, abs)
	if expect == model.ExpectNothing || res.Satisfies(expect) {
		return res
	}

	for attempt := 1; attempt <= s.opts.PollAttempts; attempt++ {
		if err := s.opts.Sleeper(ctx, s.opts.PollInterval); err != nil {
			s.opts.Metrics.RecordPoll("canceled")
			return model.Indeterminate(fmt.Sprintf("polling %s stopped: %v", abs, err))
		}

		res = s.query(ctx, abs)
		s.log.Verbose("poll %d/%d for %s %s: %s", attempt, s.opts.PollAttempts, abs, expect, res)
		if res.Satisfies(expect) {
			s.opts.Metrics.RecordPoll("converged")
			return res
		}
	}

	s.opts.Metrics.RecordPoll("exhausted")
	if res.IsIndeterminate() {
		return res
	}
	if expect == model.ExpectPresent {
		return model.Indeterminate(fmt.Sprintf("%s did not appear after %d polls", abs, s.opts.PollAttempts))
	}
	s.log.Warn("%s still present after %d polls", abs, s.opts.PollAttempts)
	return res
}

func (s *Session) query(ctx context.Context, abs string) model.Existence {
	kind, found, err := s.exists(ctx, abs)
	switch {
	case err != nil:
		return model.Indeterminate(err.Error())
	case !found:
		return model.Absent()
	default:
		return model.Present(kind)
	}
}

// Thin wrappers giving each transport operation a name and a deadline.

type probe struct {
	kind model.EntryKind
	ok   bool
}

func (s *Session) exists(ctx context.Context, abs string) (model.EntryKind, bool, error) {
	f, err := invoke(ctx, s, "exists", abs, func() (probe, error) {
		kind, ok, err := s.transport.Exists(abs)
		return probe{kind, ok}, err
	})
	return f.kind, f.ok, err
}

func (s *Session) listing(ctx context.Context, abs string) ([]string, error) {
	return invoke(ctx, s, "list", abs, func() ([]string, error) {
		return s.transport.Listing(abs)
	})
}

func (s *Session) put(ctx context.Context, localPath, abs string) error {
	return s.call(ctx, "put", abs, func() error {
		return s.transport.PutFile(localPath, abs)
	})
}

func (s *Session) mkdir(ctx context.Context, abs string) error {
	return s.call(ctx, "mkdir", abs, func() error {
		return s.transport.MakeDirectory(abs)
	})
}

func (s *Session) rmfile(ctx context.Context, abs string) error {
	return s.call(ctx, "rmfile", abs, func() error {
		return s.transport.RemoveFile(abs)
	})
}

func (s *Session) rmdir(ctx context.Context, abs string) error {
	return s.call(ctx, "rmdir", abs, func() error {
		return s.transport.RemoveDirectory(abs)
	})
}
