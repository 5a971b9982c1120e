package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/grokify/omniarchive"
	"github.com/grokify/omniarchive/metrics"
)

func (a *app) putCmd() *cobra.Command {
	var logical string

	cmd := &cobra.Command{
		Use:   "put <prefix> [file]",
		Short: "Store a new version read from a file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := a.archive(args[0])
			if err != nil {
				return err
			}

			date := time.Now().In(a.loc)
			if logical != "" {
				if date, err = omniarchive.ParseLogicalDate(logical, a.loc); err != nil {
					return err
				}
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			data, err := io.ReadAll(in)
			if err != nil {
				return err
			}

			fqon, err := arc.WriteVersion(cmd.Context(), date, func(h *omniarchive.Handle) error {
				_, err := h.Write(data)
				return err
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), fqon)
			return err
		},
	}
	cmd.Flags().StringVar(&logical, "logical-date", "", "logical date YYYYMMDD (default today)")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	var fqon, logical, physical, output string

	cmd := &cobra.Command{
		Use:   "get <prefix>",
		Short: "Write a version to stdout or a file",
		Long: `Write a version to stdout or a file. Without selectors the newest
version is read. --fqon takes precedence over the date selectors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := a.archive(args[0])
			if err != nil {
				return err
			}
			sel, err := omniarchive.ParseSelector(fqon, logical, physical, a.loc)
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				out = f
			}

			return arc.ReadVersion(cmd.Context(), sel, func(h *omniarchive.Handle) error {
				a.logger.Info("reading version", "fqon", h.FQON())
				_, err := io.Copy(out, h)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&fqon, "fqon", "", "fully qualified object name")
	cmd.Flags().StringVar(&logical, "logical-date", "", "logical date YYYYMMDD")
	cmd.Flags().StringVar(&physical, "physical-date", "", "physical date YYYYMMDDHHMMSS")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <prefix>",
		Short: "List the versions of an archive, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := a.archive(args[0])
			if err != nil {
				return err
			}
			keys, err := arc.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range keys {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), k); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) scratchCmd() *cobra.Command {
	var textfile string

	cmd := &cobra.Command{
		Use:   "scratch <prefix>",
		Short: "Delete versions outside the retention policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []omniarchive.Option
			var reg *prometheus.Registry
			if textfile != "" {
				reg = prometheus.NewRegistry()
				c, err := metrics.NewCollector(reg, "omniarchive")
				if err != nil {
					return err
				}
				opts = append(opts, omniarchive.WithObserver(c))
			}

			arc, err := a.archive(args[0], opts...)
			if err != nil {
				return err
			}

			res, scratchErr := arc.Scratch(cmd.Context())
			if res != nil {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "retention: %s\n", res.Retention)
				fmt.Fprintf(w, "versions: %d candidates: %d deleted: %d kept: %d failed: %d\n",
					res.Versions, len(res.Candidates), len(res.Deleted), len(res.Kept), len(res.Failed))
				for _, k := range res.Deleted {
					fmt.Fprintf(w, "deleted %s\n", k)
				}
			}

			if reg != nil {
				if err := prometheus.WriteToTextfile(textfile, reg); err != nil {
					a.logger.Error("writing metrics textfile failed", "path", textfile, "error", err)
					if scratchErr == nil {
						return err
					}
				}
			}
			return scratchErr
		},
	}
	cmd.Flags().StringVar(&textfile, "metrics-textfile", "", "write sweep metrics in Prometheus text format to this file")
	return cmd
}

func (a *app) retentionCmd() *cobra.Command {
	var days, copies int

	cmd := &cobra.Command{
		Use:   "retention <prefix>",
		Short: "Show or set the retention policy",
		Long: `Show the retention policy, or set it when --days or --copies is given.
Unset values keep their current setting.

Copies newest versions are always kept. Older versions are deleted once
older than days; days 0 deletes them at once and a negative value never does.
Negative copies disables deletion.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arc, err := a.archive(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			flags := cmd.Flags()
			setDays, setCopies := flags.Changed("days"), flags.Changed("copies")

			// Setting both never reads the current props, so a corrupt
			// object can be overwritten.
			var cur omniarchive.Retention
			if !setDays || !setCopies {
				if cur, err = arc.Retention(ctx); err != nil {
					return err
				}
			}

			if setDays || setCopies {
				if !setDays {
					days = cur.Days
				}
				if !setCopies {
					copies = cur.Copies
				}
				if err := arc.SetRetention(ctx, days, copies); err != nil {
					return err
				}
				cur = omniarchive.Retention{Days: days, Copies: copies}
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), cur)
			return err
		},
	}
	cmd.Flags().IntVar(&days, "days", omniarchive.DefaultRetentionDays, "age in days after which surplus versions are deleted")
	cmd.Flags().IntVar(&copies, "copies", omniarchive.DefaultRetentionCopies, "number of newest versions always kept")
	return cmd
}

func (a *app) bucketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Manage the configured bucket",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create the bucket if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bucket, err := a.bucket()
			if err != nil {
				return err
			}
			return omniarchive.EnsureBucket(cmd.Context(), a.store, bucket)
		},
	}

	var force bool
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete the bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bucket, err := a.bucket()
			if err != nil {
				return err
			}
			if force {
				return omniarchive.ForceDeleteBucket(cmd.Context(), a.store, bucket)
			}
			return a.store.DeleteBucket(cmd.Context(), bucket)
		},
	}
	del.Flags().BoolVar(&force, "force", false, "delete every object in the bucket first")

	cmd.AddCommand(create, del)
	return cmd
}
