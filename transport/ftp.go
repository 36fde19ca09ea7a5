package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/textproto"
	"os"
	"path"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/listing"
	"github.com/olegkotsar/ftpreconcile/model"
)

var _ Transport = (*FTPTransport)(nil)

// FTPTransport implements Transport over a single FTP control connection
type FTPTransport struct {
	config  *config.FTPConfig
	timeout time.Duration
	now     func() time.Time

	mu   sync.Mutex
	conn *ftp.ServerConn
}

// NewFTPTransport creates an FTP transport; call Connect before use
func NewFTPTransport(cfg *config.FTPConfig, common *config.CommonRemoteConfig) *FTPTransport {
	cfg.ApplyDefaults()
	common.ApplyDefaults()

	return &FTPTransport{
		config:  cfg,
		timeout: time.Duration(common.TimeoutSeconds) * time.Second,
		now:     time.Now,
	}
}

func (f *FTPTransport) Identity() string {
	return fmt.Sprintf("%s:%d", f.config.Host, f.config.Port)
}

// Connect dials and logs in. An existing connection is closed first.
func (f *FTPTransport) Connect(ctx context.Context) error {
	_ = f.Disconnect()

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(f.timeout),
		ftp.DialWithLocation(time.UTC),
	}
	if f.config.UseTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         f.config.Host,
			InsecureSkipVerify: f.config.InsecureSkipVerify,
		}))
	}

	conn, err := ftp.Dial(f.Identity(), opts...)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	if err := conn.Login(f.config.Username, f.config.Password); err != nil {
		conn.Quit()
		return fmt.Errorf("failed to login: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	return nil
}

// Disconnect closes the control connection. Safe to call at any time.
func (f *FTPTransport) Disconnect() error {
	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Quit()
}

func (f *FTPTransport) client() (*ftp.ServerConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil, ErrNotConnected
	}
	return f.conn, nil
}

// isNotFound reports a 550 "file unavailable" reply.
func isNotFound(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}

// Exists probes a directory with CWD, then a file with SIZE. Servers without
// SIZE support get a lookup in the parent listing instead.
func (f *FTPTransport) Exists(p string) (model.EntryKind, bool, error) {
	c, err := f.client()
	if err != nil {
		return 0, false, err
	}

	err = c.ChangeDir(p)
	if err == nil {
		return model.EntryDirectory, true, nil
	}
	if !isNotFound(err) {
		return 0, false, err
	}

	_, err = c.FileSize(p)
	switch {
	case err == nil:
		return model.EntryFile, true, nil
	case isNotFound(err):
		return 0, false, nil
	}

	entries, lerr := c.List(path.Dir(path.Clean(p)))
	if lerr != nil {
		return 0, false, fmt.Errorf("size: %v; list parent: %w", err, lerr)
	}
	name := path.Base(path.Clean(p))
	for _, e := range entries {
		if e.Name == name && e.Type == ftp.EntryTypeFile {
			return model.EntryFile, true, nil
		}
	}
	return 0, false, nil
}

// Listing renders the parsed entries the client returns back into "ls -l"
// lines so they are interpreted by the listing parser like any other server.
func (f *FTPTransport) Listing(p string) ([]string, error) {
	c, err := f.client()
	if err != nil {
		return nil, err
	}

	entries, err := c.List(p)
	if err != nil {
		return nil, err
	}

	now := f.now()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		lines = append(lines, ftpEntryLine(e, now))
	}
	return lines, nil
}

func ftpEntryLine(e *ftp.Entry, now time.Time) string {
	switch e.Type {
	case ftp.EntryTypeFolder:
		return listing.FormatUnixLine(listing.ModeDirectory, e.Name, int64(e.Size), e.Time, now)
	case ftp.EntryTypeLink:
		return listing.FormatUnixLine(listing.ModeLink, e.Name+" -> "+e.Target, int64(e.Size), e.Time, now)
	default:
		return listing.FormatUnixLine(listing.ModeFile, e.Name, int64(e.Size), e.Time, now)
	}
}

// PutFile uploads localPath to remotePath, replacing any existing file
func (f *FTPTransport) PutFile(localPath, remotePath string) error {
	c, err := f.client()
	if err != nil {
		return err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return c.Stor(remotePath, file)
}

func (f *FTPTransport) MakeDirectory(p string) error {
	c, err := f.client()
	if err != nil {
		return err
	}
	return c.MakeDir(p)
}

func (f *FTPTransport) RemoveFile(p string) error {
	c, err := f.client()
	if err != nil {
		return err
	}
	return c.Delete(p)
}

func (f *FTPTransport) RemoveDirectory(p string) error {
	c, err := f.client()
	if err != nil {
		return err
	}
	return c.RemoveDir(p)
}
