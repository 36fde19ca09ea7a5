// Package testutils holds test doubles shared across packages.
package testutils

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/olegkotsar/ftpreconcile/listing"
	"github.com/olegkotsar/ftpreconcile/model"
)

// Answer is one scripted reply to an Exists call.
type Answer struct {
	Kind  model.EntryKind
	Found bool
	Err   error
}

var (
	AnswerAbsent    = Answer{}
	AnswerFile      = Answer{Kind: model.EntryFile, Found: true}
	AnswerDirectory = Answer{Kind: model.EntryDirectory, Found: true}
)

// AnswerError replies with a transport failure.
func AnswerError(err error) Answer {
	return Answer{Err: err}
}

type node struct {
	dir   bool
	size  int64
	mtime time.Time
	data  []byte
}

// FakeTransport is an in-memory remote filesystem. It records every call,
// can script the replies to Exists per path and can fail chosen operations.
// Paths are compared after trimming the trailing slash.
type FakeTransport struct {
	// Now is the remote server clock stamped on new objects. Defaults to
	// time.Now.
	Now func() time.Time
	// BeforeCall, when set, runs at the start of every call except Connect
	// and Disconnect, outside the fake's lock.
	BeforeCall func(op, path string)
	// ConnectErr is returned by Connect when set.
	ConnectErr error
	// HideFromListing, when set, drops the entries it matches from Listing
	// while Exists still sees them.
	HideFromListing func(name string) bool

	mu          sync.Mutex
	nodes       map[string]*node
	calls       []string
	scripts     map[string][]Answer
	failures    map[string]error
	extraLines  map[string][]string
	connected   bool
	connects    int
	disconnects int
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		nodes:      map[string]*node{"/": {dir: true}},
		scripts:    make(map[string][]Answer),
		failures:   make(map[string]error),
		extraLines: make(map[string][]string),
	}
}

func clean(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

func (f *FakeTransport) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *FakeTransport) record(op, p string) error {
	if f.BeforeCall != nil {
		f.BeforeCall(op, p)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	call := op + " " + clean(p)
	f.calls = append(f.calls, call)
	if !f.connected {
		return fmt.Errorf("fake: %s: not connected", call)
	}
	if err, ok := f.failures[call]; ok {
		return err
	}
	return nil
}

// AddDir creates a directory and any missing parents.
func (f *FakeTransport) AddDir(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addDirLocked(clean(p))
}

func (f *FakeTransport) addDirLocked(p string) {
	for cur := p; cur != "/"; cur = path.Dir(cur) {
		if _, ok := f.nodes[cur]; !ok {
			f.nodes[cur] = &node{dir: true, mtime: f.now()}
		}
	}
}

// AddFile creates a file of the given size, creating parents as needed.
func (f *FakeTransport) AddFile(p string, size int64) {
	f.AddFileAt(p, size, f.now())
}

// AddFileAt creates a file with an explicit remote modification time.
func (f *FakeTransport) AddFileAt(p string, size int64, mtime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	f.addDirLocked(path.Dir(p))
	f.nodes[p] = &node{size: size, mtime: mtime}
}

// Has reports whether p exists in the fake tree.
func (f *FakeTransport) Has(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.nodes[clean(p)]
	return ok
}

// Data returns the uploaded content of a file.
func (f *FakeTransport) Data(p string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[clean(p)]; ok {
		return n.data
	}
	return nil
}

// Paths lists every object in the tree except the root, sorted.
func (f *FakeTransport) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.nodes {
		if p != "/" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Script queues replies for Exists on p. Once the queue is drained Exists
// answers from the tree again.
func (f *FakeTransport) Script(p string, answers ...Answer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	f.scripts[p] = append(f.scripts[p], answers...)
}

// Fail makes every op call on p return err.
func (f *FakeTransport) Fail(op, p string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+" "+clean(p)] = err
}

// AddListingLines appends raw lines to the listing of directory p.
func (f *FakeTransport) AddListingLines(p string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	f.extraLines[p] = append(f.extraLines[p], lines...)
}

// Calls returns the recorded calls as "op path" strings, paths cleaned.
func (f *FakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsOf returns the recorded calls of one operation.
func (f *FakeTransport) CallsOf(op string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, op+" ") {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets the recorded calls.
func (f *FakeTransport) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Connects and Disconnects count connection lifecycle calls.
func (f *FakeTransport) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *FakeTransport) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func (f *FakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.connected = true
	return nil
}

func (f *FakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	return nil
}

func (f *FakeTransport) Identity() string {
	return "fake.example.com:21"
}

func (f *FakeTransport) Exists(p string) (model.EntryKind, bool, error) {
	if err := f.record("exists", p); err != nil {
		return 0, false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	if queue := f.scripts[p]; len(queue) > 0 {
		a := queue[0]
		f.scripts[p] = queue[1:]
		return a.Kind, a.Found, a.Err
	}

	n, ok := f.nodes[p]
	switch {
	case !ok:
		return 0, false, nil
	case n.dir:
		return model.EntryDirectory, true, nil
	default:
		return model.EntryFile, true, nil
	}
}

func (f *FakeTransport) Listing(p string) ([]string, error) {
	if err := f.record("list", p); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	if n, ok := f.nodes[p]; !ok || !n.dir {
		return nil, fmt.Errorf("fake: list %s: %w", p, os.ErrNotExist)
	}

	var names []string
	for child := range f.nodes {
		if child != "/" && path.Dir(child) == p {
			names = append(names, child)
		}
	}
	sort.Strings(names)

	now := f.now()
	lines := make([]string, 0, len(names))
	for _, child := range names {
		if f.HideFromListing != nil && f.HideFromListing(path.Base(child)) {
			continue
		}
		n := f.nodes[child]
		mode := listing.ModeFile
		if n.dir {
			mode = listing.ModeDirectory
		}
		lines = append(lines, listing.FormatUnixLine(mode, path.Base(child), n.size, n.mtime, now))
	}
	return append(lines, f.extraLines[p]...), nil
}

func (f *FakeTransport) PutFile(localPath, remotePath string) error {
	if err := f.record("put", remotePath); err != nil {
		return err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p := clean(remotePath)
	parent, ok := f.nodes[path.Dir(p)]
	if !ok || !parent.dir {
		return fmt.Errorf("fake: put %s: parent missing", p)
	}
	if n, ok := f.nodes[p]; ok && n.dir {
		return fmt.Errorf("fake: put %s: is a directory", p)
	}
	f.nodes[p] = &node{size: int64(len(data)), mtime: f.now(), data: data}
	return nil
}

func (f *FakeTransport) MakeDirectory(p string) error {
	if err := f.record("mkdir", p); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	if _, ok := f.nodes[p]; ok {
		return fmt.Errorf("fake: mkdir %s: already exists", p)
	}
	if parent, ok := f.nodes[path.Dir(p)]; !ok || !parent.dir {
		return fmt.Errorf("fake: mkdir %s: parent missing", p)
	}
	f.nodes[p] = &node{dir: true, mtime: f.now()}
	return nil
}

func (f *FakeTransport) RemoveFile(p string) error {
	if err := f.record("rmfile", p); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	n, ok := f.nodes[p]
	if !ok || n.dir {
		return fmt.Errorf("fake: rmfile %s: %w", p, os.ErrNotExist)
	}
	delete(f.nodes, p)
	return nil
}

func (f *FakeTransport) RemoveDirectory(p string) error {
	if err := f.record("rmdir", p); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p = clean(p)
	n, ok := f.nodes[p]
	if !ok || !n.dir {
		return fmt.Errorf("fake: rmdir %s: %w", p, os.ErrNotExist)
	}
	for child := range f.nodes {
		if child != p && strings.HasPrefix(child, p+"/") {
			return fmt.Errorf("fake: rmdir %s: directory not empty", p)
		}
	}
	delete(f.nodes, p)
	return nil
}
