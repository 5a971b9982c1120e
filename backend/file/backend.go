// Package file provides a local filesystem object store for omniarchive.
//
// Buckets are directories under Root and objects are files inside them.
// It is useful for single-host deployments and for running archives
// against a plain directory in development.
package file

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/grokify/omniarchive"
	"github.com/grokify/omniarchive/internal/dirstore"
)

func init() {
	omniarchive.Register("file", NewFromConfig)
}

// Config holds configuration for the file backend.
type Config struct {
	// Root is the directory holding one subdirectory per bucket.
	Root string

	// DirPermissions is the permission mode for created directories.
	// Default: 0755
	DirPermissions os.FileMode

	// FilePermissions is the permission mode for created files.
	// Default: 0644
	FilePermissions os.FileMode
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Root:            ".",
		DirPermissions:  0755,
		FilePermissions: 0644,
	}
}

// Backend implements omniarchive.ObjectStore on the local filesystem.
type Backend struct {
	*dirstore.Store
	config Config
}

// New creates a new file store with the given configuration.
func New(config Config) *Backend {
	if config.Root == "" {
		config.Root = "."
	}
	if config.DirPermissions == 0 {
		config.DirPermissions = 0755
	}
	if config.FilePermissions == 0 {
		config.FilePermissions = 0644
	}
	fsys := dirstore.OS{DirPerm: config.DirPermissions, FilePerm: config.FilePermissions}
	return &Backend{
		Store:  dirstore.New(fsys, filepath.ToSlash(config.Root), nil),
		config: config,
	}
}

// NewFromConfig creates a new file store from a config map.
// Supported keys:
//   - root: root directory (default: ".")
//   - dir_permissions: octal mode for directories, e.g. "0750"
//   - file_permissions: octal mode for files, e.g. "0640"
func NewFromConfig(configMap map[string]string) (omniarchive.ObjectStore, error) {
	config := DefaultConfig()

	if root, ok := configMap["root"]; ok && root != "" {
		config.Root = root
	}
	for key, dst := range map[string]*os.FileMode{
		"dir_permissions":  &config.DirPermissions,
		"file_permissions": &config.FilePermissions,
	} {
		v, ok := configMap[key]
		if !ok || v == "" {
			continue
		}
		mode, err := strconv.ParseUint(v, 8, 32)
		if err != nil {
			return nil, &omniarchive.Error{Kind: omniarchive.KindValidation, Op: "file config", Msg: key + " must be an octal mode", Err: err}
		}
		*dst = os.FileMode(mode)
	}

	return New(config), nil
}

// Config returns the store configuration.
func (b *Backend) Config() Config {
	return b.config
}

// Ensure Backend implements omniarchive.ObjectStore
var _ omniarchive.ObjectStore = (*Backend)(nil)
