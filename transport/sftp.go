package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/listing"
	"github.com/olegkotsar/ftpreconcile/model"
)

var _ Transport = (*SFTPTransport)(nil)

// SFTPTransport implements Transport over an SSH connection
type SFTPTransport struct {
	config  *config.SFTPConfig
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	ssh    *ssh.Client
	client *sftp.Client
}

// NewSFTPTransport creates an SFTP transport; call Connect before use
func NewSFTPTransport(cfg *config.SFTPConfig, common *config.CommonRemoteConfig) *SFTPTransport {
	cfg.ApplyDefaults()
	common.ApplyDefaults()

	return &SFTPTransport{
		config:  cfg,
		timeout: time.Duration(common.TimeoutSeconds) * time.Second,
		now:     time.Now,
	}
}

func (s *SFTPTransport) Identity() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

func (s *SFTPTransport) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.config.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(s.config.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}

// Connect opens the SSH connection and starts the SFTP subsystem
func (s *SFTPTransport) Connect(ctx context.Context) error {
	_ = s.Disconnect()

	hostKey, err := s.hostKeyCallback()
	if err != nil {
		return err
	}

	sshConfig := &ssh.ClientConfig{
		User:            s.config.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(s.config.Password)},
		HostKeyCallback: hostKey,
		Timeout:         s.timeout,
	}

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.Identity())
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, s.Identity(), sshConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake: %w", err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return fmt.Errorf("create sftp client: %w", err)
	}

	s.mu.Lock()
	s.ssh = sshClient
	s.client = sftpClient
	s.mu.Unlock()
	return nil
}

// Disconnect closes the SFTP session and the SSH connection under it
func (s *SFTPTransport) Disconnect() error {
	s.mu.Lock()
	sshClient, sftpClient := s.ssh, s.client
	s.ssh, s.client = nil, nil
	s.mu.Unlock()

	if sftpClient != nil {
		_ = sftpClient.Close()
	}
	if sshClient != nil {
		return sshClient.Close()
	}
	return nil
}

func (s *SFTPTransport) conn() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

func (s *SFTPTransport) Exists(p string) (model.EntryKind, bool, error) {
	c, err := s.conn()
	if err != nil {
		return 0, false, err
	}

	info, err := c.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if info.IsDir() {
		return model.EntryDirectory, true, nil
	}
	return model.EntryFile, true, nil
}

func (s *SFTPTransport) Listing(p string) ([]string, error) {
	c, err := s.conn()
	if err != nil {
		return nil, err
	}

	infos, err := c.ReadDir(p)
	if err != nil {
		return nil, err
	}

	now := s.now()
	lines := make([]string, 0, len(infos))
	for _, info := range infos {
		lines = append(lines, fileInfoLine(info, now))
	}
	return lines, nil
}

func fileInfoLine(info os.FileInfo, now time.Time) string {
	mode := listing.ModeFile
	switch {
	case info.IsDir():
		mode = listing.ModeDirectory
	case info.Mode()&os.ModeSymlink != 0:
		mode = listing.ModeLink
	}
	return listing.FormatUnixLine(mode, info.Name(), info.Size(), info.ModTime(), now)
}

func (s *SFTPTransport) PutFile(localPath, remotePath string) error {
	c, err := s.conn()
	if err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := c.Create(remotePath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (s *SFTPTransport) MakeDirectory(p string) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	return c.Mkdir(p)
}

func (s *SFTPTransport) RemoveFile(p string) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	return c.Remove(p)
}

func (s *SFTPTransport) RemoveDirectory(p string) error {
	c, err := s.conn()
	if err != nil {
		return err
	}
	return c.RemoveDirectory(p)
}
