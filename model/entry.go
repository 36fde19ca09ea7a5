package model

import (
	"strings"
	"time"
)

// EntryKind classifies a remote filesystem object.
type EntryKind int

const (
	EntryFile EntryKind = iota + 1
	EntryDirectory
)

func (k EntryKind) String() string {
	switch k {
	case EntryFile:
		return "file"
	case EntryDirectory:
		return "directory"
	default:
		return "invalid"
	}
}

// DirectoryEntry is one object parsed out of a remote directory listing.
//
// Timestamp is the remote wall clock exactly as listed. Offset is the
// remote-minus-local clock offset known for the server when the entry was
// produced; Corrected subtracts it to express the time on the local clock.
type DirectoryEntry struct {
	Kind      EntryKind
	Name      string
	Timestamp time.Time
	Offset    time.Duration
	Size      int64
	HasSize   bool
	Raw       string
}

// IsDir reports whether the entry is a directory.
func (e DirectoryEntry) IsDir() bool {
	return e.Kind == EntryDirectory
}

// Corrected returns the timestamp normalized to the local clock.
func (e DirectoryEntry) Corrected() time.Time {
	return e.Timestamp.Add(-e.Offset)
}

// MatchesName compares names the way servers are conventionally matched:
// case-insensitively.
func (e DirectoryEntry) MatchesName(name string) bool {
	return strings.EqualFold(e.Name, name)
}
