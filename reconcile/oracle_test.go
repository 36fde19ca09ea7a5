package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegkotsar/ftpreconcile/model"
	"github.com/olegkotsar/ftpreconcile/testutils"
)

func TestExists_SingleQueryWithoutExpectation(t *testing.T) {
	f := newFixture(t)
	f.remote.AddFile("/pub/a.txt", 3)

	res := f.session.Exists(context.Background(), "a.txt", model.ExpectNothing)
	require.True(t, res.IsPresent())
	require.Equal(t, model.EntryFile, res.Kind())

	res = f.session.Exists(context.Background(), "missing", model.ExpectNothing)
	require.True(t, res.IsAbsent())

	require.Equal(t, []string{"exists /pub/a.txt", "exists /pub/missing"}, f.remote.Calls())
	require.Zero(t, f.sleeps.count())
}

func TestExists_ConvergesAfterThreePolls(t *testing.T) {
	f := newFixture(t)
	f.remote.AddFile("/pub/new.jpg", 10)
	f.remote.Script("/pub/new.jpg", testutils.AnswerAbsent, testutils.AnswerAbsent, testutils.AnswerAbsent)

	res := f.session.Exists(context.Background(), "new.jpg", model.ExpectPresent)
	require.True(t, res.IsPresent())
	require.Equal(t, 3, f.sleeps.count())
	require.Len(t, f.remote.CallsOf("exists"), 4)
}

func TestExists_ExpectPresentExhausted(t *testing.T) {
	f := newFixture(t)

	res := f.session.Exists(context.Background(), "never", model.ExpectPresent)
	require.True(t, res.IsIndeterminate())
	require.Contains(t, res.Reason(), "did not appear")
	require.Equal(t, DefaultPollAttempts, f.sleeps.count())
	require.Len(t, f.remote.CallsOf("exists"), DefaultPollAttempts+1)
}

func TestExists_ExpectAbsentButItWontGoAway(t *testing.T) {
	f := newFixture(t)
	f.remote.AddDir("/pub/stuck")

	res := f.session.Exists(context.Background(), "stuck", model.ExpectAbsent)
	require.True(t, res.IsPresent())
	require.Equal(t, model.EntryDirectory, res.Kind())
	require.Equal(t, DefaultPollAttempts, f.sleeps.count())
}

func TestExists_PollAttemptsConfigurable(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.PollAttempts = 2 })

	res := f.session.Exists(context.Background(), "never", model.ExpectPresent)
	require.True(t, res.IsIndeterminate())
	require.Equal(t, 2, f.sleeps.count())
}

func TestExists_TransportErrorIsIndeterminate(t *testing.T) {
	f := newFixture(t)
	f.remote.Fail("exists", "/pub/a", errors.New("421 service not available"))

	res := f.session.Exists(context.Background(), "a", model.ExpectNothing)
	require.True(t, res.IsIndeterminate())
	require.Contains(t, res.Reason(), "421 service not available")

	_, ok := res.Known()
	require.False(t, ok)
}

func TestExists_LastIndeterminateWins(t *testing.T) {
	f := newFixture(t)
	f.remote.Fail("exists", "/pub/a", errors.New("timeout talking to server"))

	res := f.session.Exists(context.Background(), "a", model.ExpectPresent)
	require.True(t, res.IsIndeterminate())
	require.Contains(t, res.Reason(), "timeout talking to server")
	require.Equal(t, DefaultPollAttempts, f.sleeps.count())
}

func TestExists_CanceledWhilePolling(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.session.opts.Sleeper = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res := f.session.Exists(ctx, "never", model.ExpectPresent)
	require.True(t, res.IsIndeterminate())
	require.Contains(t, res.Reason(), "context canceled")
	require.Len(t, f.remote.CallsOf("exists"), 1)
}

func TestExists_EscapingPathMakesNoCall(t *testing.T) {
	f := newFixture(t)

	res := f.session.Exists(context.Background(), "../etc/passwd", model.ExpectNothing)
	require.True(t, res.IsIndeterminate())
	require.Empty(t, f.remote.Calls())
	require.Zero(t, f.remote.Connects())
}
