// Package main provides the CLI entry point for ledgerbench, a latency
// benchmark for record insertion and queries on distributed ledgers.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiihann/ledgerbench/config"
	"github.com/weiihann/ledgerbench/harness"
	"github.com/weiihann/ledgerbench/report"
	"github.com/weiihann/ledgerbench/store"
	"github.com/weiihann/ledgerbench/workload"
)

func main() {
	root := newRootCmd(os.Stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app carries state shared by every subcommand.
type app struct {
	logOut    io.Writer
	logLevel  string
	logFormat string
	logger    *slog.Logger
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	a := &app{logOut: logOut}

	root := &cobra.Command{
		Use:   "ledgerbench",
		Short: "Insertion and query latency benchmark for distributed ledgers",
		Long: `Ledgerbench dispatches synthetic records to a ledger in parallel
batches, measures insertion latency per checkpoint, probes key-value and
complex query latency, and optionally measures how long it takes to
replicate the ledger into a downstream database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			logger, err := newLogger(a.logOut, a.logLevel, a.logFormat)
			if err != nil {
				return err
			}

			a.logger = logger

			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "text",
		"Log format: text, json")

	root.AddCommand(
		newRunCmd(a),
		newSyncCmd(a),
		newDBCmd(a),
		newReportCmd(),
		newWorkloadCmd(a),
	)

	return root
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func newRunCmd(a *app) *cobra.Command {
	pf := &profileFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the insertion and query benchmark",
		Long: `Dispatch records through parallel clients, recording the cumulative
insertion latency at every checkpoint together with key-value and complex
query latency probes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := pf.resolve(cmd)
			if err != nil {
				return err
			}

			backend, err := harness.ResolveBackend(p.Backend, p.BackendOptions())
			if err != nil {
				return err
			}
			defer backend.Close()

			runner := harness.NewRunner(backend, a.logger)
			if _, err := runner.Run(cmd.Context(), p.RunConfig()); err != nil {
				return fmt.Errorf("run %s: %w", p.Backend, err)
			}

			return nil
		},
	}

	pf.register(cmd, false)

	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	pf := &profileFlags{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the benchmark and synchronize the ledger into a database",
		Long: `Run the benchmark, then replay every change event into a SQLite
database and record the total synchronization latency. With --resume the
replay starts at the last block already stored in the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := pf.resolve(cmd)
			if err != nil {
				return err
			}

			if p.Sync.Database == "" {
				return fmt.Errorf("a database path must be set via --database or the profile")
			}

			st, err := store.Open(p.Sync.Database)
			if err != nil {
				return err
			}

			backend, err := harness.ResolveBackend(p.Backend, p.BackendOptions())
			if err != nil {
				st.Disconnect()
				return err
			}
			defer backend.Close()

			runner := harness.NewSyncRunner(backend, st, a.logger)
			if _, err := runner.Run(cmd.Context(), p.SyncConfig()); err != nil {
				return fmt.Errorf("sync %s: %w", p.Backend, err)
			}

			return nil
		},
	}

	pf.register(cmd, true)

	return cmd
}

func newDBCmd(a *app) *cobra.Command {
	var (
		database   string
		collection string
		shape      string
		queries    int
		output     string
		throttle   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Measure query latency directly against the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := workload.ParseShape(shape)
			if err != nil {
				return err
			}

			st, err := store.Open(database)
			if err != nil {
				return err
			}

			runner := harness.NewDatabaseRunner(st, a.logger)
			_, err = runner.Run(cmd.Context(), harness.DBConfig{
				Collection: collection,
				Shape:      s,
				NumQueries: queries,
				OutputPath: output,
				Throttle:   throttle,
			})

			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&database, "database", "",
		"Path to the SQLite database")
	flags.StringVar(&collection, "collection", config.DefaultContract,
		"Collection holding the records")
	flags.StringVar(&shape, "shape", string(workload.Simple),
		"Record shape: simple, intermediate, complex")
	flags.IntVar(&queries, "queries", config.DefaultQueries,
		"Number of key-value queries")
	flags.StringVar(&output, "output", "",
		"Base path of the result file (empty logs results)")
	flags.DurationVar(&throttle, "throttle", time.Millisecond,
		"Pause per document and query after each query phase")

	_ = cmd.MarkFlagRequired("database")

	return cmd
}

func newReportCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "report <result.json>...",
		Short: "Compare result snapshots across backends",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snaps, err := report.Load(args)
			if err != nil {
				return err
			}

			if outputJSON {
				if err := report.GenerateJSON(cmd.OutOrStdout(), snaps); err != nil {
					return fmt.Errorf("generate JSON report: %w", err)
				}

				return nil
			}

			if err := report.Generate(cmd.OutOrStdout(), snaps); err != nil {
				return fmt.Errorf("generate report: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false,
		"Output results as JSON instead of table")

	return cmd
}

func newWorkloadCmd(a *app) *cobra.Command {
	var (
		shape  string
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "workload",
		Short: "Dump generated records as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := workload.ParseShape(shape)
			if err != nil {
				return err
			}

			gen, err := workload.NewGenerator(s, limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create workload file: %w", err)
				}
				defer f.Close()

				w = f
			}

			summary, err := gen.Generate(w)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			a.logger.InfoContext(cmd.Context(), "workload generated",
				slog.String("shape", string(summary.Shape)),
				slog.Int("records", summary.Records),
				slog.Int("bytes", summary.Bytes),
			)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&shape, "shape", string(workload.Simple),
		"Record shape: simple, intermediate, complex")
	flags.IntVar(&limit, "limit", workload.DefaultLimit,
		"Number of records to generate")
	flags.StringVarP(&output, "output", "o", "",
		"Output file (default stdout)")

	return cmd
}
