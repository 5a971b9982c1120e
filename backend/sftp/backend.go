// Package sftp provides an SFTP object store for omniarchive.
//
// Buckets are directories under Root on the remote server and objects are
// files inside them, laid out the same way as the file backend.
//
// Basic usage with password authentication:
//
//	store, err := sftp.New(sftp.Config{
//	    Host:     "example.com",
//	    User:     "username",
//	    Password: "password",
//	    Root:     "/srv/archives",
//	})
//
// With SSH key authentication and host key verification:
//
//	store, err := sftp.New(sftp.Config{
//	    Host:           "example.com",
//	    User:           "username",
//	    KeyFile:        "/path/to/id_ed25519",
//	    KnownHostsFile: "~/.ssh/known_hosts",
//	})
package sftp

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/grokify/omniarchive"
	"github.com/grokify/omniarchive/internal/dirstore"
)

func init() {
	omniarchive.Register("sftp", NewFromConfig)
}

// Backend implements omniarchive.ObjectStore over SFTP.
type Backend struct {
	*dirstore.Store
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	config     Config
}

// New connects to the server and returns a store rooted at cfg.Root.
func New(cfg Config) (*Backend, error) {
	cfg, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	var authMethods []ssh.AuthMethod
	if cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}
	if cfg.KeyFile != "" {
		keyAuth, err := keyFileAuth(cfg.KeyFile, cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("sftp: loading key file: %w", err)
		}
		authMethods = append(authMethods, keyAuth)
	}

	hostKeyCallback, err := hostKeyCallback(cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("sftp: loading known hosts: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		Timeout:         time.Duration(cfg.Timeout) * time.Second,
		HostKeyCallback: hostKeyCallback,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("sftp: SSH connection failed: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshClient, sftp.MaxConcurrentRequestsPerFile(cfg.Concurrency))
	if err != nil {
		if closeErr := sshClient.Close(); closeErr != nil {
			return nil, fmt.Errorf("sftp: SFTP session failed: %w (also failed to close SSH: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("sftp: SFTP session failed: %w", err)
	}

	b := NewWithClient(sftpClient, cfg.Root)
	b.sshClient = sshClient
	b.config = cfg
	return b, nil
}

// NewWithClient returns a store on an established SFTP session. Closing
// the store closes the session.
func NewWithClient(client *sftp.Client, root string) *Backend {
	b := &Backend{sftpClient: client, config: Config{Root: root}}
	b.Store = dirstore.New(remoteFS{client: client}, root, b.closeClients)
	return b
}

// NewFromConfig creates a new SFTP store from a config map.
// This is used by the omniarchive registry.
func NewFromConfig(configMap map[string]string) (omniarchive.ObjectStore, error) {
	return New(ConfigFromMap(configMap))
}

// keyFileAuth creates an SSH auth method from a private key file.
func keyFileAuth(keyFile, passphrase string) (ssh.AuthMethod, error) {
	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	return ssh.PublicKeys(signer), nil
}

// hostKeyCallback verifies host keys against knownHostsFile. Without a
// file, host keys are not verified.
func hostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // G106: opt-in verification via KnownHostsFile
	}
	return knownhosts.New(knownHostsFile)
}

func (b *Backend) closeClients() error {
	var errs []error
	if b.sftpClient != nil {
		if err := b.sftpClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.sshClient != nil {
		if err := b.sshClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// remoteFS implements dirstore.FS on an SFTP session.
type remoteFS struct {
	client *sftp.Client
}

func (r remoteFS) Stat(name string) (fs.FileInfo, error) {
	info, err := r.client.Stat(name)
	return info, normalizeError(err)
}

func (r remoteFS) ReadDir(name string) ([]fs.FileInfo, error) {
	infos, err := r.client.ReadDir(name)
	return infos, normalizeError(err)
}

func (r remoteFS) ReadFile(name string) ([]byte, error) {
	f, err := r.client.Open(name)
	if err != nil {
		return nil, normalizeError(err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	return data, normalizeError(err)
}

func (r remoteFS) WriteFile(name string, data []byte) error {
	f, err := r.client.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return normalizeError(err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return normalizeError(err)
	}
	return normalizeError(f.Close())
}

// Rename uses the posix-rename extension, which replaces newname.
func (r remoteFS) Rename(oldname, newname string) error {
	return normalizeError(r.client.PosixRename(oldname, newname))
}

func (r remoteFS) Mkdir(name string) error {
	return normalizeError(r.client.Mkdir(name))
}

func (r remoteFS) MkdirAll(name string) error {
	return normalizeError(r.client.MkdirAll(name))
}

func (r remoteFS) Remove(name string) error {
	return normalizeError(r.client.Remove(name))
}

// normalizeError maps SFTP status codes onto io/fs sentinel errors.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	var se *sftp.StatusError
	if errors.As(err, &se) {
		switch se.FxCode() {
		case sftp.ErrSSHFxNoSuchFile:
			return fmt.Errorf("%w: %v", fs.ErrNotExist, err)
		case sftp.ErrSSHFxPermissionDenied:
			return fmt.Errorf("%w: %v", fs.ErrPermission, err)
		}
	}
	return err
}

// Ensure Backend implements omniarchive.ObjectStore
var _ omniarchive.ObjectStore = (*Backend)(nil)
