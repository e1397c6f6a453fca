// Package app wires configuration, the bucket store, the benchmark pipeline
// and report archival together for the reindex-bench and reindex-store
// binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"

	apigrpc "github.com/arkilian/reindexbench/internal/api/grpc"
	"github.com/arkilian/reindexbench/internal/bench"
	"github.com/arkilian/reindexbench/internal/bucketstore"
	"github.com/arkilian/reindexbench/internal/config"
	"github.com/arkilian/reindexbench/internal/logging"
	"github.com/arkilian/reindexbench/internal/observability"
	"github.com/arkilian/reindexbench/internal/report"
	"github.com/arkilian/reindexbench/internal/server"
	"github.com/arkilian/reindexbench/internal/storage"
	"github.com/arkilian/reindexbench/internal/store"
	"github.com/arkilian/reindexbench/pkg/types"
)

// progressSteps is how many progress lines a full insert stage logs.
const progressSteps = 10

// App holds the resolved configuration shared by both binaries.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	serving bool
}

// Outcome is what a benchmark run produced.
type Outcome struct {
	Result *bench.Result
	Report *report.Report

	// ReportPath is the object path of the archived report, empty when
	// archival is disabled or failed.
	ReportPath string

	// InjectedFaults is the number of writes failed by the fault injector.
	InjectedFaults int64
}

// New normalizes and validates cfg and creates the directories it needs.
// A nil logger discards output.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Noop()
	}

	cfg.Normalize()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{cfg: cfg, logger: logger}, nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// OpenStore connects to the configured bucket store. When fault injection is
// enabled the returned client is wrapped and the injector is returned too.
func (a *App) OpenStore() (store.Client, *store.FaultInjector, error) {
	var (
		client store.Client
		err    error
	)

	switch a.cfg.Store.Type {
	case config.StoreSQLite:
		client, err = bucketstore.Open(a.cfg.Store.Path)
	case config.StoreGRPC:
		client, err = apigrpc.NewClient(a.cfg.Store.Addr, a.cfg.Store.RequestTimeout)
	default:
		err = fmt.Errorf("unsupported store type: %s", a.cfg.Store.Type)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.logger.Info("store opened", "type", a.cfg.Store.Type, "path", a.cfg.Store.Path, "addr", a.cfg.Store.Addr)

	if a.cfg.Faults.TransientRate <= 0 {
		return client, nil, nil
	}
	injector := store.NewFaultInjector(client, store.FaultConfig{
		TransientRate: a.cfg.Faults.TransientRate,
		Seed:          a.cfg.Faults.Seed,
	})
	a.logger.Info("fault injection enabled", "transient_rate", a.cfg.Faults.TransientRate, "seed", a.cfg.Faults.Seed)
	return injector, injector, nil
}

// OpenReportStorage returns the object storage reports are archived to, or
// nil when archival is disabled.
func (a *App) OpenReportStorage(ctx context.Context) (storage.ObjectStorage, error) {
	rc := a.cfg.Report

	switch rc.Storage {
	case config.ReportNone:
		return nil, nil
	case config.ReportLocal:
		return storage.NewLocalStorage(rc.Path)
	case config.ReportS3:
		s3Cfg := storage.DefaultS3Config()
		if rc.S3.Region != "" {
			s3Cfg.Region = rc.S3.Region
		}
		s3Cfg.Endpoint = rc.S3.Endpoint
		s3Cfg.UsePathStyle = rc.S3.UsePathStyle
		return storage.NewS3Storage(ctx, rc.S3.Bucket, s3Cfg)
	case config.ReportMinIO:
		return storage.NewMinIOStorage(rc.MinIO.Bucket, storage.MinIOConfig{
			Endpoint:  rc.MinIO.Endpoint,
			AccessKey: rc.MinIO.AccessKey,
			SecretKey: rc.MinIO.SecretKey,
			Secure:    rc.MinIO.Secure,
			Prefix:    rc.MinIO.Prefix,
		})
	default:
		return nil, fmt.Errorf("unsupported report storage: %s", rc.Storage)
	}
}

// BenchConfig translates the configuration into pipeline parameters.
func (a *App) BenchConfig() bench.Config {
	b := a.cfg.Bench
	return bench.Config{
		BucketName:     b.BucketName,
		Records:        b.Records,
		Concurrency:    b.Concurrency,
		ChunkSize:      b.ChunkSize,
		Template:       b.Template,
		IndexField:     b.IndexField,
		IndexFieldType: types.FieldType(b.IndexFieldType),
		WriteRate:      b.WriteRate,
	}
}

// RunBenchmark runs one benchmark and archives its report. The returned
// error is the pipeline's error; report archival failures are only logged.
// The Outcome is nil only when the store could not be opened or the
// pipeline could not be built.
func (a *App) RunBenchmark(ctx context.Context) (*Outcome, error) {
	startedAt := time.Now()

	client, injector, err := a.OpenStore()
	if err != nil {
		return nil, err
	}

	stats := observability.NewRunStats()
	pipeline, err := bench.NewPipeline(client, a.BenchConfig(),
		bench.WithLogger(a.logger),
		bench.WithStats(stats),
		bench.WithWaveObserver(a.progressLogger(a.cfg.Bench.Records)),
	)
	if err != nil {
		client.Close()
		return nil, err
	}

	res, runErr := pipeline.Run(ctx)

	out := &Outcome{Result: res}
	if injector != nil {
		out.InjectedFaults = injector.Injected()
	}
	out.Report = report.New(res, runErr, a.reportParams(), stats.Snapshot(), startedAt)
	if runErr == nil && a.cfg.Store.Type == config.StoreSQLite {
		out.Report.Verification = a.verify(ctx, res.Bucket)
	}
	out.ReportPath = a.archive(ctx, out.Report)

	return out, runErr
}

// verify reopens the embedded store and checks the benchmark bucket. Failures
// are logged and yield nil.
func (a *App) verify(ctx context.Context, bucket string) *bucketstore.Verification {
	db, err := bucketstore.Open(a.cfg.Store.Path)
	if err != nil {
		a.logger.Warn("verification skipped", "bucket", bucket, "error", err)
		return nil
	}
	defer db.Close()

	field := a.cfg.Bench.IndexField
	v, err := db.Verify(ctx, bucket, field, a.cfg.Bench.Template[field])
	if err != nil {
		a.logger.Warn("verification failed", "bucket", bucket, "error", err)
		return nil
	}

	attrs := []any{"bucket", bucket, "records", v.Records, "pending", v.Pending,
		"indexed", v.Indexed, "schema_versions", v.SchemaVersions}
	if v.Complete() {
		a.logger.Info("bucket verified", attrs...)
	} else {
		a.logger.Warn("bucket verification incomplete", attrs...)
	}
	return v
}

func (a *App) reportParams() report.Params {
	return report.Params{
		Records:       a.cfg.Bench.Records,
		Concurrency:   a.cfg.Bench.Concurrency,
		ChunkSize:     a.cfg.Bench.ChunkSize,
		IndexField:    a.cfg.Bench.IndexField,
		WriteRate:     a.cfg.Bench.WriteRate,
		Store:         a.cfg.Store.Type,
		TransientRate: a.cfg.Faults.TransientRate,
	}
}

func (a *App) archive(ctx context.Context, r *report.Report) string {
	objects, err := a.OpenReportStorage(ctx)
	if err != nil {
		a.logger.Warn("report storage unavailable", "error", err)
		return ""
	}
	if objects == nil {
		return ""
	}

	// a cancelled run still gets its report
	writeCtx := context.WithoutCancel(ctx)
	objectPath, err := report.Write(writeCtx, objects, r)
	if err != nil {
		a.logger.Warn("failed to archive report", "error", err)
		return ""
	}
	a.logger.Info("report archived", "storage", a.cfg.Report.Storage, "path", objectPath)
	return objectPath
}

// errNoReportStorage is returned by the report operations when archival is
// disabled.
var errNoReportStorage = fmt.Errorf("report storage is %q", config.ReportNone)

func (a *App) reportStorage(ctx context.Context) (storage.ObjectStorage, error) {
	objects, err := a.OpenReportStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open report storage: %w", err)
	}
	if objects == nil {
		return nil, errNoReportStorage
	}
	return objects, nil
}

// ListReports returns the object paths of archived reports.
func (a *App) ListReports(ctx context.Context) ([]string, error) {
	objects, err := a.reportStorage(ctx)
	if err != nil {
		return nil, err
	}
	return report.List(ctx, objects)
}

// ShowReport reads an archived report.
func (a *App) ShowReport(ctx context.Context, objectPath string) (*report.Report, error) {
	objects, err := a.reportStorage(ctx)
	if err != nil {
		return nil, err
	}
	return report.Read(ctx, objects, objectPath)
}

// DeleteReport removes an archived report.
func (a *App) DeleteReport(ctx context.Context, objectPath string) error {
	objects, err := a.reportStorage(ctx)
	if err != nil {
		return err
	}
	if err := report.Delete(ctx, objects, objectPath); err != nil {
		return err
	}
	a.logger.Info("report deleted", "storage", a.cfg.Report.Storage, "path", objectPath)
	return nil
}

// progressLogger logs insert progress roughly every tenth of the total.
func (a *App) progressLogger(total int) func(bench.WaveOutcome) {
	step := total / progressSteps
	if step < 1 {
		step = 1
	}
	next := step
	return func(w bench.WaveOutcome) {
		if w.Total < next && w.Total < total {
			return
		}
		a.logger.Info("insert progress", "created", w.Total, "of", total, "waves", w.Index+1)
		for next <= w.Total {
			next += step
		}
	}
}

// ServeStore serves the SQLite bucket store over gRPC on the configured
// address until ctx is cancelled or the process is signalled.
func (a *App) ServeStore(ctx context.Context) error {
	lis, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Server.Addr, err)
	}
	return a.Serve(ctx, lis)
}

// Serve serves the SQLite bucket store over gRPC on lis.
func (a *App) Serve(ctx context.Context, lis net.Listener) error {
	a.mu.Lock()
	if a.serving {
		a.mu.Unlock()
		lis.Close()
		return fmt.Errorf("store server is already running")
	}
	a.serving = true
	a.mu.Unlock()

	db, err := bucketstore.Open(a.cfg.Store.Path)
	if err != nil {
		lis.Close()
		return fmt.Errorf("failed to open store: %w", err)
	}

	shutdownCfg := server.DefaultShutdownConfig()
	shutdownCfg.ShutdownTimeout = a.cfg.Server.ShutdownTimeout
	shutdownCfg.Logger = a.logger
	sm := server.NewShutdownManager(shutdownCfg)

	// registered first so it closes after the gRPC server stops
	sm.RegisterCloser(db)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(server.UnaryInterceptor(sm)))
	apigrpc.RegisterBucketStoreServer(grpcServer, apigrpc.NewServer(db, a.logger))
	gs := server.NewGracefulGRPCServer(grpcServer, sm)

	go func() {
		if err := sm.ListenForSignals(ctx); err != nil {
			a.logger.Error("shutdown error", "error", err)
		}
	}()

	a.logger.Info("store server listening", "addr", lis.Addr().String(), "path", a.cfg.Store.Path)
	if err := gs.Serve(lis); err != nil {
		_ = sm.Shutdown(context.Background(), "serve failed")
		return fmt.Errorf("store server failed: %w", err)
	}

	// wait for closers so the database is released before returning
	return sm.Shutdown(context.Background(), "server stopped")
}
