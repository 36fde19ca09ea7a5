// Package listing parses remote directory listing text.
//
// Two line formats are recognised: the Windows/IIS "dir" style
//
//	02-12-10  04:13AM       <DIR>          1980s
//
// and the Unix "ls -l" style
//
//	-rw-r--r--   1 user user   4096 Aug 25 21:46 photo.jpg
//
// A line that fits neither produces a *ParseError; the parser never guesses
// an entry kind.
package listing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olegkotsar/ftpreconcile/model"
)

// DefaultFutureGrace is how far past "now" a year-less Unix timestamp may land
// before it is attributed to the previous year.
const DefaultFutureGrace = 12 * time.Minute

const windowsDirMarker = "<DIR>"

var months = map[string]time.Month{
	"jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"aug": time.August,
	"sep": time.September,
	"oct": time.October,
	"nov": time.November,
	"dec": time.December,
}

// ParseError describes one listing line that could not be classified.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable listing line %q: %s", e.Line, e.Reason)
}

// Parser turns listing lines into directory entries. The zero value uses the
// wall clock and the default grace.
type Parser struct {
	// Now returns the remote server's idea of the current time. It anchors
	// Unix timestamps that omit the year. Defaults to time.Now in UTC.
	Now func() time.Time
	// FutureGrace defaults to DefaultFutureGrace when zero.
	FutureGrace time.Duration
}

func (p *Parser) now() time.Time {
	if p == nil || p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

func (p *Parser) grace() time.Duration {
	if p == nil || p.FutureGrace <= 0 {
		return DefaultFutureGrace
	}
	return p.FutureGrace
}

// ParseLine parses one non-blank listing line.
func (p *Parser) ParseLine(line string) (model.DirectoryEntry, error) {
	if fields := splitFields(line, 4); len(fields) == 4 && isWindowsDate(fields[0]) &&
		(fields[2] == windowsDirMarker || isNumeric(fields[2])) {
		return p.parseWindows(line, fields)
	}
	return p.parseUnix(line)
}

func (p *Parser) parseWindows(line string, fields []string) (model.DirectoryEntry, error) {
	date, err := ParseShortDate(fields[0])
	if err != nil {
		return model.DirectoryEntry{}, &ParseError{Line: line, Reason: err.Error()}
	}
	clock, err := time.Parse("3:04PM", strings.ToUpper(fields[1]))
	if err != nil {
		return model.DirectoryEntry{}, &ParseError{Line: line, Reason: fmt.Sprintf("bad time %q", fields[1])}
	}

	entry := model.DirectoryEntry{
		Name:      fields[3],
		Timestamp: time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC),
		Raw:       line,
	}
	if fields[2] == windowsDirMarker {
		entry.Kind = model.EntryDirectory
	} else {
		entry.Kind = model.EntryFile
		entry.Size, entry.HasSize = parseSize(fields[2])
	}
	return entry, nil
}

func (p *Parser) parseUnix(line string) (model.DirectoryEntry, error) {
	fields := splitFields(line, 9)
	if len(fields) < 9 {
		return model.DirectoryEntry{}, &ParseError{Line: line, Reason: fmt.Sprintf("expected 9 fields, got %d", len(fields))}
	}

	var kind model.EntryKind
	switch fields[0][0] {
	case 'd':
		kind = model.EntryDirectory
	case '-':
		kind = model.EntryFile
	default:
		return model.DirectoryEntry{}, &ParseError{Line: line, Reason: fmt.Sprintf("unsupported type in permissions %q", fields[0])}
	}

	month, ok := months[strings.ToLower(fields[5])]
	if !ok {
		return model.DirectoryEntry{}, &ParseError{Line: line, Reason: fmt.Sprintf("unknown month %q", fields[5])}
	}
	day, err := strconv.Atoi(fields[6])
	if err != nil || day < 1 || day > 31 {
		return model.DirectoryEntry{}, &ParseError{Line: line, Reason: fmt.Sprintf("bad day %q", fields[6])}
	}

	ts, err := p.unixTimestamp(month, day, fields[7])
	if err != nil {
		return model.DirectoryEntry{}, &ParseError{Line: line, Reason: err.Error()}
	}

	entry := model.DirectoryEntry{
		Kind:      kind,
		Name:      fields[8],
		Timestamp: ts,
		Raw:       line,
	}
	entry.Size, entry.HasSize = parseSize(fields[4])
	return entry, nil
}

// unixTimestamp resolves the "MMM DD HH:MM" / "MMM DD YYYY" pair.
func (p *Parser) unixTimestamp(month time.Month, day int, yearOrTime string) (time.Time, error) {
	if !strings.Contains(yearOrTime, ":") {
		year, err := strconv.Atoi(yearOrTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad year %q", yearOrTime)
		}
		return checkedDate(year, month, day, 0, 0)
	}

	clock, err := time.Parse("15:04", yearOrTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time %q", yearOrTime)
	}

	now := p.now()
	ts, err := checkedDate(now.Year(), month, day, clock.Hour(), clock.Minute())
	if err != nil || ts.After(now.Add(p.grace())) {
		// Servers drop the year for recent files; a date "in the future"
		// is really last year's.
		return checkedDate(now.Year()-1, month, day, clock.Hour(), clock.Minute())
	}
	return ts, nil
}

func checkedDate(year int, month time.Month, day, hour, minute int) (time.Time, error) {
	t := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	if t.Month() != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %04d-%02d-%02d", year, month, day)
	}
	return t, nil
}

// ParseListing parses every line of a listing. Blank lines and "total N"
// headers are skipped; any other line yields either an entry or a
// *ParseError, and a bad line does not stop the remaining ones.
func (p *Parser) ParseListing(lines []string) ([]model.DirectoryEntry, []*ParseError) {
	entries := make([]model.DirectoryEntry, 0, len(lines))
	var errs []*ParseError

	for _, line := range lines {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" || isTotalLine(line) {
			continue
		}

		entry, err := p.ParseLine(line)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				errs = append(errs, pe)
			} else {
				errs = append(errs, &ParseError{Line: line, Reason: err.Error()})
			}
			continue
		}
		entries = append(entries, entry)
	}

	return entries, errs
}

// ParseText splits raw listing text into lines and parses them.
func (p *Parser) ParseText(text string) ([]model.DirectoryEntry, []*ParseError) {
	return p.ParseListing(strings.Split(text, "\n"))
}

// splitFields splits on runs of whitespace into at most n fields, the last
// one absorbing the rest of the line with its inner spacing intact.
func splitFields(line string, n int) []string {
	fields := make([]string, 0, n)
	rest := strings.TrimLeft(line, " \t")

	for len(fields) < n-1 && rest != "" {
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			fields = append(fields, rest)
			return fields
		}
		fields = append(fields, rest[:i])
		rest = strings.TrimLeft(rest[i:], " \t")
	}

	if rest = strings.TrimRight(rest, " \t\r\n"); rest != "" {
		fields = append(fields, rest)
	}
	return fields
}

func parseSize(tok string) (int64, bool) {
	size, err := strconv.ParseInt(tok, 10, 64)
	if err != nil || size < 0 {
		return 0, false
	}
	return size, true
}

func isNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isWindowsDate(tok string) bool {
	parts := strings.Split(tok, "-")
	if len(parts) != 3 {
		return false
	}
	return len(parts[0]) == 2 && len(parts[1]) == 2 &&
		(len(parts[2]) == 2 || len(parts[2]) == 4) &&
		isNumeric(parts[0]) && isNumeric(parts[1]) && isNumeric(parts[2])
}

func isTotalLine(line string) bool {
	fields := strings.Fields(line)
	return len(fields) == 2 && strings.EqualFold(fields[0], "total") && isNumeric(fields[1])
}
