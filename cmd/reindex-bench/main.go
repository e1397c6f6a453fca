// Package main implements the reindex-bench binary.
// It populates a fresh bucket, upgrades its schema and times the reindex
// that follows.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkilian/reindexbench/internal/app"
	"github.com/arkilian/reindexbench/internal/config"
	"github.com/arkilian/reindexbench/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

type flags struct {
	configFile  string
	records     int
	concurrency int
	chunkSize   int
	storeType   string
	addr        string
	dbPath      string
	bucket      string
	faultRate   float64
	reportTo    string
	showVersion bool

	listReports  bool
	showReport   string
	deleteReport string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code. Only command line parse errors are
// non-zero; every other failure is reported on stdout.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reindex-bench", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var f flags
	fs.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML, JSON or TOML)")
	fs.IntVar(&f.records, "n", 0, "Number of test records to create (default 100000)")
	fs.IntVar(&f.concurrency, "c", 0, "Number of records added concurrently (default 100)")
	fs.IntVar(&f.chunkSize, "r", 0, "Number of records to reindex at a time (default 100)")
	fs.StringVar(&f.storeType, "store", "", "Store type: sqlite or grpc")
	fs.StringVar(&f.addr, "addr", "", "gRPC store address")
	fs.StringVar(&f.dbPath, "db", "", "SQLite store path")
	fs.StringVar(&f.bucket, "bucket", "", "Bucket name (default: generated)")
	fs.Float64Var(&f.faultRate, "fault-rate", -1, "Fraction of writes failed with a transient error")
	fs.StringVar(&f.reportTo, "report", "", "Report storage: none, local, s3 or minio")
	fs.BoolVar(&f.showVersion, "version", false, "Show version information")
	fs.BoolVar(&f.listReports, "list-reports", false, "List archived reports and exit")
	fs.StringVar(&f.showReport, "show-report", "", "Print the archived report at this path and exit")
	fs.StringVar(&f.deleteReport, "delete-report", "", "Delete the archived report at this path and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "reindex-bench - measures how long a bucket takes to reindex after a schema upgrade\n\n")
		fmt.Fprintf(stderr, "Usage: reindex-bench [options]\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  reindex-bench -n 10000 -c 50 -r 200\n")
		fmt.Fprintf(stderr, "  reindex-bench -store grpc -addr localhost:9090\n")
		fmt.Fprintf(stderr, "  reindex-bench -config bench.yaml\n")
		fmt.Fprintf(stderr, "  reindex-bench -list-reports\n")
		fmt.Fprintf(stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(stderr, "  REINDEXBENCH_RECORDS       Number of test records\n")
		fmt.Fprintf(stderr, "  REINDEXBENCH_CONCURRENCY   Write concurrency\n")
		fmt.Fprintf(stderr, "  REINDEXBENCH_CHUNK_SIZE    Records reindexed per request\n")
		fmt.Fprintf(stderr, "  REINDEXBENCH_STORE_TYPE    Store type (sqlite, grpc)\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "could not parse command line options: %v\n", err)
		return 1
	}

	if f.showVersion {
		fmt.Fprintf(stdout, "reindex-bench version %s (commit: %s)\n", version, commit)
		return 0
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(stdout, "error: failed to load configuration: %v\n", err)
		return 0
	}

	logger, err := logging.New(cfg.Log, stdout)
	if err != nil {
		fmt.Fprintf(stdout, "error: invalid log configuration: %v\n", err)
		return 0
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdout, "error: %v\n", err)
		return 0
	}

	switch {
	case f.listReports:
		err = listReports(ctx, a, stdout)
	case f.showReport != "":
		err = showReport(ctx, a, f.showReport, stdout)
	case f.deleteReport != "":
		err = a.DeleteReport(ctx, f.deleteReport)
	default:
		runBenchmark(ctx, a, stdout)
		return 0
	}
	if err != nil {
		fmt.Fprintf(stdout, "error: %v\n", err)
	}
	return 0
}

func runBenchmark(ctx context.Context, a *app.App, stdout io.Writer) {
	out, err := a.RunBenchmark(ctx)
	if out != nil && out.Result != nil && out.Result.Succeeded() {
		fmt.Fprintf(stdout, "reindex duration: %.3fms\n", float64(out.Result.ReindexDuration)/float64(time.Millisecond))
	}
	if err != nil {
		fmt.Fprintf(stdout, "error: %v\n", err)
		return
	}

	fmt.Fprintln(stdout, "benchmark completed successfully")
}

func listReports(ctx context.Context, a *app.App, stdout io.Writer) error {
	paths, err := a.ListReports(ctx)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(stdout, p)
	}
	return nil
}

func showReport(ctx context.Context, a *app.App, objectPath string, stdout io.Writer) error {
	r, err := a.ShowReport(ctx, objectPath)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	fmt.Fprintf(stdout, "%s\n", data)
	return nil
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority). Non-positive counts are
	// left for Normalize to replace with defaults.
	if f.records != 0 {
		cfg.Bench.Records = f.records
	}
	if f.concurrency != 0 {
		cfg.Bench.Concurrency = f.concurrency
	}
	if f.chunkSize != 0 {
		cfg.Bench.ChunkSize = f.chunkSize
	}
	if f.storeType != "" {
		cfg.Store.Type = f.storeType
	}
	if f.addr != "" {
		cfg.Store.Addr = f.addr
	}
	if f.dbPath != "" {
		cfg.Store.Path = f.dbPath
	}
	if f.bucket != "" {
		cfg.Bench.BucketName = f.bucket
	}
	if f.faultRate >= 0 {
		cfg.Faults.TransientRate = f.faultRate
	}
	if f.reportTo != "" {
		cfg.Report.Storage = f.reportTo
	}

	return cfg, nil
}
