package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grokify/omniarchive"
)

// opener opens a store by backend name; omniarchive.Open in production.
type opener func(name string, config map[string]string) (omniarchive.ObjectStore, error)

// app holds state shared by the commands of one invocation.
type app struct {
	v        *viper.Viper
	open     opener
	cfgFile  string
	storeOpt map[string]string

	logger *slog.Logger
	store  omniarchive.ObjectStore
	loc    *time.Location
}

func newRootCmd(open opener) *cobra.Command {
	a := &app{v: viper.New(), open: open}

	root := &cobra.Command{
		Use:           "omniarchive",
		Short:         "Versioned archival storage on object stores",
		Long:          `Store dated versions of a logical object under <prefix>.<YYYYMMDD>.<YYYYMMDDHHMMSS> keys and expire them by age and count.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a.store == nil {
				return nil
			}
			return a.store.Close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.omniarchive.yaml)")
	pf.String("backend", "file", "object store backend: "+strings.Join(omniarchive.Backends(), ", "))
	pf.String("bucket", "", "bucket holding the archive")
	pf.StringToStringVar(&a.storeOpt, "store-opt", nil, "backend option key=value, repeatable")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.String("timezone", "Local", "time zone version dates are rendered in")
	pf.Int("page-size", 0, "listing page size (0 uses the store default)")

	for _, key := range []string{"backend", "bucket", "log-level", "timezone", "page-size"} {
		_ = a.v.BindPFlag(key, pf.Lookup(key))
	}

	root.AddCommand(
		a.putCmd(),
		a.getCmd(),
		a.listCmd(),
		a.scratchCmd(),
		a.retentionCmd(),
		a.bucketCmd(),
	)
	return root
}

// setup loads configuration, then builds the logger and opens the store.
func (a *app) setup(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			a.v.AddConfigPath(home)
		}
		a.v.SetConfigName(".omniarchive")
		a.v.SetConfigType("yaml")
	}
	a.v.SetEnvPrefix("OMNIARCHIVE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	level := new(slog.LevelVar)
	if err := level.UnmarshalText([]byte(a.v.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid log level %q", a.v.GetString("log-level"))
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	loc, err := time.LoadLocation(a.v.GetString("timezone"))
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	a.loc = loc

	backend := a.v.GetString("backend")
	store, err := a.openStore(backend, a.v.GetStringMapString("store"), a.storeOpt)
	if err != nil {
		return err
	}

	a.store = store
	return nil
}

// openStore merges config file options with --store-opt options and opens
// the store. A "root" option has ~ expanded.
func (a *app) openStore(backend string, cfg, opts map[string]string) (omniarchive.ObjectStore, error) {
	if cfg == nil {
		cfg = map[string]string{}
	}
	for k, v := range opts {
		cfg[k] = v
	}
	if root, ok := cfg["root"]; ok {
		if expanded, err := homedir.Expand(root); err == nil {
			cfg["root"] = filepath.Clean(expanded)
		}
	}

	a.logger.Debug("opening store", "backend", backend)
	store, err := a.open(backend, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", backend, err)
	}
	return store, nil
}

func (a *app) bucket() (string, error) {
	b := a.v.GetString("bucket")
	if b == "" {
		return "", errors.New("bucket is required (--bucket, OMNIARCHIVE_BUCKET or config)")
	}
	return b, nil
}

// archive returns the archive for prefix in the configured bucket.
func (a *app) archive(prefix string, opts ...omniarchive.Option) (*omniarchive.Archive, error) {
	bucket, err := a.bucket()
	if err != nil {
		return nil, err
	}
	opts = append([]omniarchive.Option{
		omniarchive.WithLogger(a.logger),
		omniarchive.WithLocation(a.loc),
		omniarchive.WithPageSize(a.v.GetInt("page-size")),
	}, opts...)
	return omniarchive.New(a.store, bucket, prefix, opts...)
}
