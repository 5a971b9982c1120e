package sftp

import (
	"os"
	"strconv"

	"github.com/mitchellh/go-homedir"

	"github.com/grokify/omniarchive"
)

// Configuration errors.
var (
	ErrHostRequired = &omniarchive.Error{Kind: omniarchive.KindValidation, Op: "sftp config", Msg: "host is required"}
	ErrUserRequired = &omniarchive.Error{Kind: omniarchive.KindValidation, Op: "sftp config", Msg: "user is required"}
	ErrAuthRequired = &omniarchive.Error{Kind: omniarchive.KindValidation, Op: "sftp config", Msg: "password or key_file is required"}
)

// Defaults applied by DefaultConfig and Resolve.
const (
	DefaultPort        = 22
	DefaultTimeout     = 30
	DefaultConcurrency = 5
)

// Config holds configuration for the SFTP backend.
type Config struct {
	Host string
	Port int
	User string

	// Password and KeyFile are alternatives; at least one is required.
	// KeyFile may start with "~".
	Password      string
	KeyFile       string
	KeyPassphrase string

	// Root is the remote directory holding one subdirectory per bucket.
	// Empty means the login directory. A relative Root is resolved
	// against the login directory by the server.
	Root string

	// KnownHostsFile may start with "~". Empty disables host key
	// verification.
	KnownHostsFile string

	// Timeout is the SSH dial timeout in seconds.
	Timeout int

	// Concurrency caps in-flight requests per file transfer.
	Concurrency int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Port:        DefaultPort,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
	}
}

// configKeys maps ConfigFromMap keys to their OMNIARCHIVE_SFTP_ variable.
var configKeys = map[string]string{
	"host":           "HOST",
	"port":           "PORT",
	"user":           "USER",
	"password":       "PASSWORD",
	"key_file":       "KEY_FILE",
	"key_passphrase": "KEY_PASSPHRASE",
	"root":           "ROOT",
	"known_hosts":    "KNOWN_HOSTS",
	"timeout":        "TIMEOUT",
	"concurrency":    "CONCURRENCY",
}

// ConfigFromEnv reads OMNIARCHIVE_SFTP_HOST, _PORT, _USER, _PASSWORD,
// _KEY_FILE, _KEY_PASSPHRASE, _ROOT, _KNOWN_HOSTS, _TIMEOUT and
// _CONCURRENCY. Unset or empty variables keep their defaults.
func ConfigFromEnv() Config {
	return configFrom(func(key string) (string, bool) {
		v := os.Getenv("OMNIARCHIVE_SFTP_" + configKeys[key])
		return v, v != ""
	})
}

// ConfigFromMap builds a Config from registry options. Keys are those of
// ConfigFromEnv in lower case, with "pass" accepted for "password".
func ConfigFromMap(m map[string]string) Config {
	return configFrom(func(key string) (string, bool) {
		v, ok := m[key]
		if !ok && key == "password" {
			v, ok = m["pass"]
		}
		return v, ok
	})
}

func configFrom(lookup func(key string) (string, bool)) Config {
	c := DefaultConfig()
	str := map[string]*string{
		"host":           &c.Host,
		"user":           &c.User,
		"password":       &c.Password,
		"key_file":       &c.KeyFile,
		"key_passphrase": &c.KeyPassphrase,
		"root":           &c.Root,
		"known_hosts":    &c.KnownHostsFile,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	// Malformed or non-positive numbers keep the default.
	num := map[string]*int{
		"port":        &c.Port,
		"timeout":     &c.Timeout,
		"concurrency": &c.Concurrency,
	}
	for key, dst := range num {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	return c
}

// Validate checks that the host, the user and a credential are set.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return ErrHostRequired
	case c.User == "":
		return ErrUserRequired
	case c.Password == "" && c.KeyFile == "":
		return ErrAuthRequired
	}
	return nil
}

// Resolve validates c and returns a copy with zero numeric fields set to
// their defaults and "~" expanded in KeyFile and KnownHostsFile.
func (c Config) Resolve() (Config, error) {
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}

	var err error
	if c.KeyFile, err = homedir.Expand(c.KeyFile); err != nil {
		return Config{}, &omniarchive.Error{Kind: omniarchive.KindValidation, Op: "sftp config", Msg: "key_file", Err: err}
	}
	if c.KnownHostsFile, err = homedir.Expand(c.KnownHostsFile); err != nil {
		return Config{}, &omniarchive.Error{Kind: omniarchive.KindValidation, Op: "sftp config", Msg: "known_hosts", Err: err}
	}
	return c, nil
}
