package stack

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"demostack/internal/process"
)

// StartTimeoutError indicates a launched service never opened its port
// within the readiness budget.
type StartTimeoutError struct {
	Service string
	Port    int
	Retries int
}

func (e *StartTimeoutError) Error() string {
	return fmt.Sprintf("service %s did not accept connections on port %d after %d checks", e.Service, e.Port, e.Retries)
}

// Launcher starts stack services and waits for them to become reachable.
type Launcher struct {
	logger       *slog.Logger
	pollInterval time.Duration
	dialTimeout  time.Duration
}

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithPollInterval overrides the delay between readiness checks.
func WithPollInterval(d time.Duration) LauncherOption {
	return func(l *Launcher) {
		l.pollInterval = d
	}
}

// WithDialTimeout overrides the per-check connect timeout.
func WithDialTimeout(d time.Duration) LauncherOption {
	return func(l *Launcher) {
		l.dialTimeout = d
	}
}

// NewLauncher creates a launcher. Readiness is checked once per second
// by default, matching the original bring-up cadence.
func NewLauncher(logger *slog.Logger, opts ...LauncherOption) *Launcher {
	l := &Launcher{
		logger:       logger,
		pollInterval: time.Second,
		dialTimeout:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the service command in the background and blocks until
// its TCP port accepts a connection. On readiness failure the process is
// shut down before returning, so callers never receive a half-started
// handle. The returned Process stays running; the caller owns its
// shutdown. The exit channel receives the exit code once the process
// finally stops.
func (l *Launcher) Start(ctx context.Context, id, command string, port, retries int, handler process.OutputHandler) (*process.Process, <-chan int, error) {
	proc := process.NewWithOutput(id, command, l.logger, handler)

	exited := make(chan int, 1)
	go func() {
		code, _ := proc.RunContext(context.Background())
		exited <- code
	}()

	l.logger.Info("Launching service", "service", id, "port", port)

	if err := l.waitReady(ctx, id, port, retries, exited); err != nil {
		proc.Shutdown()
		return nil, nil, err
	}

	l.logger.Info("Service ready", "service", id, "port", port)
	return proc, exited, nil
}

// waitReady polls the port until it accepts a connection, the budget is
// exhausted, the process dies, or the context is cancelled.
func (l *Launcher) waitReady(ctx context.Context, id string, port, retries int, exited <-chan int) error {
	if retries <= 0 {
		retries = DefaultReadyRetries
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	for attempt := 1; attempt <= retries; attempt++ {
		conn, err := net.DialTimeout("tcp", addr, l.dialTimeout)
		if err == nil {
			conn.Close()
			return nil
		}

		l.logger.Debug("Service not ready yet", "service", id, "port", port, "attempt", attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case code := <-exited:
			return fmt.Errorf("service %s exited with code %d before opening port %d", id, code, port)
		case <-time.After(l.pollInterval):
		}
	}

	return &StartTimeoutError{Service: id, Port: port, Retries: retries}
}
