// Package server provides store server lifecycle management including graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ShutdownManager coordinates signal handling, in-flight call tracking and
// resource cleanup for the store server.
type ShutdownManager struct {
	shutdownTimeout time.Duration
	drainTimeout    time.Duration
	logger          *slog.Logger

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
	inFlight     atomic.Int64
	shuttingDown atomic.Bool

	// Closers run in reverse order of registration
	closers   []io.Closer
	closersMu sync.Mutex
}

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// DrainTimeout is the time to wait for in-flight calls to complete.
	// Default: 15 seconds
	DrainTimeout time.Duration

	// Logger receives shutdown progress. Nil discards it.
	Logger *slog.Logger
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		ShutdownTimeout: 30 * time.Second,
		DrainTimeout:    15 * time.Second,
	}
}

// NewShutdownManager creates a new shutdown manager with the given configuration.
func NewShutdownManager(config ShutdownConfig) *ShutdownManager {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = 15 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	return &ShutdownManager{
		shutdownTimeout: config.ShutdownTimeout,
		drainTimeout:    config.DrainTimeout,
		logger:          config.Logger,
		shutdownCh:      make(chan struct{}),
	}
}

// RegisterCloser adds a closer to be called during shutdown.
// Closers are called in reverse order of registration (LIFO).
func (sm *ShutdownManager) RegisterCloser(closer io.Closer) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.closers = append(sm.closers, closer)
}

// ListenForSignals blocks until SIGTERM, SIGINT, ctx cancellation or an
// explicit Shutdown, then shuts down.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(context.Background(), fmt.Sprintf("received signal: %v", sig))
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.shutdownCh:
		return sm.shutdownErr
	}
}

// Shutdown stops accepting calls, waits for in-flight calls to drain and
// closes every registered closer. Only the first call does any work; later
// calls return its result.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	sm.shutdownOnce.Do(func() {
		sm.logger.Info("shutting down", "reason", reason, "in_flight", sm.inFlight.Load())
		sm.shuttingDown.Store(true)
		close(sm.shutdownCh)

		shutdownCtx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
		defer cancel()

		var errs []error
		if err := sm.drainInFlight(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain failed: %w", err))
		}

		sm.closersMu.Lock()
		closers := sm.closers
		sm.closersMu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				errs = append(errs, fmt.Errorf("close failed: %w", err))
			}
		}

		sm.shutdownErr = errors.Join(errs...)
		sm.logger.Info("shutdown complete", "error", sm.shutdownErr)
	})

	return sm.shutdownErr
}

func (sm *ShutdownManager) drainInFlight(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, sm.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if sm.inFlight.Load() == 0 {
			return nil
		}

		select {
		case <-drainCtx.Done():
			if remaining := sm.inFlight.Load(); remaining > 0 {
				return fmt.Errorf("timeout waiting for %d in-flight calls", remaining)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// TrackRequest increments the in-flight counter.
// Returns false if shutdown is in progress and the call should be rejected.
func (sm *ShutdownManager) TrackRequest() bool {
	if sm.shuttingDown.Load() {
		return false
	}
	sm.inFlight.Add(1)
	return true
}

// UntrackRequest decrements the in-flight counter.
func (sm *ShutdownManager) UntrackRequest() {
	sm.inFlight.Add(-1)
}

// IsShuttingDown returns true if shutdown has been initiated.
func (sm *ShutdownManager) IsShuttingDown() bool {
	return sm.shuttingDown.Load()
}

// InFlightCount returns the current number of in-flight calls.
func (sm *ShutdownManager) InFlightCount() int64 {
	return sm.inFlight.Load()
}

// ShutdownCh returns a channel that is closed when shutdown begins.
func (sm *ShutdownManager) ShutdownCh() <-chan struct{} {
	return sm.shutdownCh
}

// UnaryInterceptor tracks in-flight calls and rejects new calls with
// Unavailable once shutdown has started. Clients treat that as transient.
func UnaryInterceptor(sm *ShutdownManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !sm.TrackRequest() {
			return nil, status.Error(codes.Unavailable, "server is shutting down")
		}
		defer sm.UntrackRequest()

		return handler(ctx, req)
	}
}

// GracefulGRPCServer wraps a grpc.Server with graceful shutdown support.
type GracefulGRPCServer struct {
	server   *grpc.Server
	shutdown *ShutdownManager
	stopWait time.Duration
}

// NewGracefulGRPCServer creates a new graceful gRPC server. The server should
// be built with UnaryInterceptor(shutdown) so in-flight calls are tracked.
func NewGracefulGRPCServer(server *grpc.Server, shutdown *ShutdownManager) *GracefulGRPCServer {
	gs := &GracefulGRPCServer{
		server:   server,
		shutdown: shutdown,
		stopWait: 10 * time.Second,
	}
	shutdown.RegisterCloser(&grpcServerCloser{server: server, wait: gs.stopWait})
	return gs
}

// Serve accepts connections on lis until the shutdown manager stops the server.
func (gs *GracefulGRPCServer) Serve(lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := gs.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-gs.shutdown.ShutdownCh():
		// the shutdown manager stops the server
		return <-errCh
	}
}

// grpcServerCloser stops a grpc.Server gracefully, forcing it after wait.
type grpcServerCloser struct {
	server *grpc.Server
	wait   time.Duration
}

func (c *grpcServerCloser) Close() error {
	done := make(chan struct{})
	go func() {
		c.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.wait):
		c.server.Stop()
	}
	return nil
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
