// Package transport holds the protocol clients a Session drives. A Transport
// is a thin, stateless-path view of one connection: every call names its
// remote path explicitly and nothing is interpreted beyond "found or not".
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/model"
)

// ErrNotConnected is returned by calls made before Connect or after
// Disconnect.
var ErrNotConnected = errors.New("transport not connected")

// Transport is one connection to a remote server.
//
// Implementations are not required to be safe for concurrent calls, with one
// exception: Disconnect may be called while another call is blocked, and must
// make that call return.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error

	// Exists reports whether path names an object and, if so, its kind.
	// A definite "not found" answer is (0, false, nil).
	Exists(path string) (model.EntryKind, bool, error)
	// Listing returns the raw listing lines of a directory.
	Listing(path string) ([]string, error)
	PutFile(localPath, remotePath string) error
	MakeDirectory(path string) error
	RemoveFile(path string) error
	RemoveDirectory(path string) error

	// Identity names the server, e.g. "ftp.example.com:21".
	Identity() string
}

// CreateTransport builds the transport selected by cfg.RemoteType. The
// returned transport is not connected yet.
func CreateTransport(cfg *config.RemoteConfig) (Transport, error) {
	switch cfg.RemoteType {
	case config.RemoteTypeFTP:
		if cfg.FTP != nil {
			cfg.FTP.ApplyDefaults()
		}
	case config.RemoteTypeSFTP:
		if cfg.SFTP != nil {
			cfg.SFTP.ApplyDefaults()
		}
	}
	cfg.Common.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid remote configuration: %w", err)
	}

	switch cfg.RemoteType {
	case config.RemoteTypeFTP:
		return NewFTPTransport(cfg.FTP, &cfg.Common), nil
	case config.RemoteTypeSFTP:
		return NewSFTPTransport(cfg.SFTP, &cfg.Common), nil
	default:
		return nil, fmt.Errorf("unsupported remote type: %s", cfg.RemoteType)
	}
}
