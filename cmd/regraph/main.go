// Command regraph evaluates graph queries over time-stamped records.
//
// Logging:
//   - The root logger is created here from the log section of the config
//   - It is handed to the engine and batch runner explicitly
//   - slog.SetDefault is never called
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aevon-lab/regraph/internal/batch"
	"github.com/aevon-lab/regraph/internal/core/config"
	"github.com/aevon-lab/regraph/internal/core/locale"
	"github.com/aevon-lab/regraph/internal/core/query"
	"github.com/aevon-lab/regraph/internal/logging"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs after the config is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout}

	rootCmd := &cobra.Command{
		Use:          "regraph",
		Short:        "Aggregate time-stamped records into chart series",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			level, _ := logging.ParseLevel(cfg.Log.Level)
			logger, err := logging.New(stderr, level, cfg.Log.Format)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			logger.Debug("[Main] Loaded config",
				"source", cfg.Source.Format,
				"locale", cfg.Query.Locale,
				"saved_queries", len(cfg.SavedQueries.Definitions()),
			)
			return nil
		},
	}
	rootCmd.PersistentFlags().String("config", "", "path to configuration file (YAML)")

	rootCmd.AddCommand(
		a.queryCmd(),
		a.checkCmd(),
		a.runCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(stdout, version)
			},
		},
	)

	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd
}

func (a *app) queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Evaluate a query and print the data collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			records, _ := cmd.Flags().GetString("records")
			tag, _ := cmd.Flags().GetString("locale")

			if name == "" {
				name = a.cfg.Query.DefaultName
			}
			var dates query.DateParser
			if tag != "" {
				l, err := locale.For(tag)
				if err != nil {
					return err
				}
				loc, err := a.cfg.Query.Location()
				if err != nil {
					return err
				}
				dates = l.In(loc)
			}

			b, err := openBackend(cmd.Context(), a.cfg, records, a.logger)
			if err != nil {
				return err
			}
			coll, opts, err := b.Query(args[0], name, dates)
			if err != nil {
				return err
			}
			return a.write(struct {
				Collection *query.DataCollection `json:"collection"`
				Options    query.Options         `json:"options,omitempty"`
			}{coll, opts})
		},
	}
	cmd.Flags().String("name", "", "collection name; also the path of series written as f()")
	cmd.Flags().String("records", "", "record file overriding source.path")
	cmd.Flags().String("locale", "", "locale for the dates in the query (default query.locale)")
	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <text>",
		Short: "Parse a query and print the compiled statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stmt, err := query.Parse(args[0])
			if err != nil {
				return err
			}
			return a.write(stmt)
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate all saved queries, once or on queries.interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			once, _ := cmd.Flags().GetBool("once")
			records, _ := cmd.Flags().GetString("records")

			interval, err := a.cfg.Queries.RunInterval()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			b, err := openBackend(ctx, a.cfg, records, a.logger)
			if err != nil {
				return err
			}

			if once || interval == 0 {
				report, err := b.Run(ctx, a.cfg.SavedQueries.Definitions())
				if report != nil {
					if werr := a.write(report); werr != nil {
						return werr
					}
				}
				if err != nil {
					return err
				}
				if n := report.Failed(); n > 0 {
					return fmt.Errorf("%d of %d saved queries failed", n, len(report.Results))
				}
				return nil
			}

			sched := b.Scheduler(interval, a.cfg.SavedQueries, func(report *batch.Report) {
				if err := a.write(report); err != nil {
					a.logger.Error("[Main] Failed to write report", "run_id", report.RunID, "error", err)
				}
			})
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().Bool("once", false, "run a single time even when queries.interval is set")
	cmd.Flags().String("records", "", "record file overriding source.path")
	return cmd
}

// write encodes v as JSON to output.path, "-" meaning stdout.
func (a *app) write(v any) error {
	out := a.stdout
	if a.cfg.Output.Path != "-" {
		f, err := os.Create(a.cfg.Output.Path)
		if err != nil {
			return fmt.Errorf("opening output: %w", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	if a.cfg.Output.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
