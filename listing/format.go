package listing

import (
	"fmt"
	"time"
)

// Mode is the first character of an "ls -l" permission column.
type Mode byte

const (
	ModeFile      Mode = '-'
	ModeDirectory Mode = 'd'
	ModeLink      Mode = 'l'
)

// Entries within six months of now, either side, show a time of day instead
// of a year. Clock skew can put a fresh file in the future.
const recentWindow = 182 * 24 * time.Hour

// FormatUnixLine renders one object as a Unix "ls -l" line that ParseLine
// reads back. Transports whose client library hands out already-parsed
// entries use it so every listing goes through the same parser.
func FormatUnixLine(mode Mode, name string, size int64, mtime, now time.Time) string {
	mtime = mtime.UTC()
	now = now.UTC()

	perm := "rw-r--r--"
	if mode == ModeDirectory {
		perm = "rwxr-xr-x"
	}

	stamp := fmt.Sprintf("%s %2d %5d", mtime.Format("Jan"), mtime.Day(), mtime.Year())
	if d := mtime.Sub(now); d > -recentWindow && d < recentWindow {
		stamp = fmt.Sprintf("%s %2d %s", mtime.Format("Jan"), mtime.Day(), mtime.Format("15:04"))
	}

	return fmt.Sprintf("%c%s   1 owner    group %12d %s %s", mode, perm, size, stamp, name)
}
