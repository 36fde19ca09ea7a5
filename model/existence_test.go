package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExistence_Known(t *testing.T) {
	tests := []struct {
		name       string
		value      Existence
		wantExists bool
		wantOK     bool
	}{
		{"present file", Present(EntryFile), true, true},
		{"present dir", Present(EntryDirectory), true, true},
		{"absent", Absent(), false, true},
		{"indeterminate", Indeterminate("timeout"), false, false},
		{"zero value", Existence{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exists, ok := tt.value.Known()
			require.Equal(t, tt.wantExists, exists)
			require.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestExistence_ZeroValueIsIndeterminate(t *testing.T) {
	var e Existence
	require.True(t, e.IsIndeterminate())
	require.Equal(t, "unknown", e.Reason())
	require.False(t, e.Satisfies(ExpectPresent))
	require.False(t, e.Satisfies(ExpectAbsent))
	require.True(t, e.Satisfies(ExpectNothing))
}

func TestExistence_KindOnlyWhenPresent(t *testing.T) {
	require.Equal(t, EntryDirectory, Present(EntryDirectory).Kind())
	require.Equal(t, EntryKind(0), Absent().Kind())
	require.Equal(t, "present(directory)", Present(EntryDirectory).String())
	require.Equal(t, "indeterminate(550 busy)", Indeterminate("550 busy").String())
}

func TestDirectoryEntry_Corrected(t *testing.T) {
	ts := time.Date(2024, 8, 25, 21, 46, 0, 0, time.UTC)
	e := DirectoryEntry{Kind: EntryFile, Name: "Photo.JPG", Timestamp: ts, Offset: 2 * time.Hour}

	require.Equal(t, ts.Add(-2*time.Hour), e.Corrected())
	require.True(t, e.MatchesName("photo.jpg"))
	require.False(t, e.MatchesName("photo.jpeg"))
	require.False(t, e.IsDir())
}
