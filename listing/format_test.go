package listing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegkotsar/ftpreconcile/model"
)

func TestFormatUnixLine_ReadsBack(t *testing.T) {
	now := time.Date(2026, time.January, 5, 9, 30, 0, 0, time.UTC)
	p := fixedParser(now)

	tests := []struct {
		name  string
		mode  Mode
		file  string
		size  int64
		mtime time.Time
		kind  model.EntryKind
	}{
		{"recent file", ModeFile, "a.jpg", 1234, time.Date(2026, time.January, 5, 9, 12, 0, 0, time.UTC), model.EntryFile},
		{"last december", ModeFile, "b.jpg", 1, time.Date(2025, time.December, 28, 23, 59, 0, 0, time.UTC), model.EntryFile},
		{"old directory", ModeDirectory, "2019", 4096, time.Date(2019, time.March, 3, 0, 0, 0, 0, time.UTC), model.EntryDirectory},
		{"name with spaces", ModeFile, "summer trip.mov", 0, time.Date(2025, time.September, 1, 7, 5, 0, 0, time.UTC), model.EntryFile},
		{"inside grace", ModeFile, "c.txt", 5, now.Add(10 * time.Minute), model.EntryFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := FormatUnixLine(tt.mode, tt.file, tt.size, tt.mtime, now)

			e, err := p.ParseLine(line)
			require.NoError(t, err, line)
			require.Equal(t, tt.kind, e.Kind)
			require.Equal(t, tt.file, e.Name)
			require.True(t, e.HasSize)
			require.Equal(t, tt.size, e.Size)
			require.Equal(t, tt.mtime.Truncate(time.Minute), e.Timestamp)
		})
	}
}

func TestFormatUnixLine_LinkIsUnclassifiable(t *testing.T) {
	now := time.Date(2026, time.January, 5, 9, 30, 0, 0, time.UTC)
	line := FormatUnixLine(ModeLink, "latest -> 2025", 4, now.Add(-time.Hour), now)

	_, err := fixedParser(now).ParseLine(line)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}
