// Package ports implements port lease allocation for external services.
//
// A caller asks for a port near a preferred base; the allocator scans
// upward one port at a time, confirming each candidate is free before
// handing out a lease. Confirmation is a double bind check with a short
// delay between checks to absorb TIME_WAIT and close/reopen races.
package ports

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"time"
)

// Status describes the lifecycle of a port lease.
type Status string

// Lease statuses.
const (
	StatusFree      Status = "free"      // Confirmed free, reserved for the caller to bind
	StatusBound     Status = "bound"     // A listener was observed on the port after launch
	StatusAbandoned Status = "abandoned" // Attempt budget exhausted
)

// Lease records a claimed port for a named service.
type Lease struct {
	Port     int
	Service  string
	Status   Status
	Attempts int // candidates tried before this port was confirmed
}

// ExhaustedError reports that no free port was found within the attempt budget.
type ExhaustedError struct {
	Service  string
	Base     int
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no free port for %s in [%d, %d) after %d attempts",
		e.Service, e.Base, e.Base+e.Attempts, e.Attempts)
}

// ReclaimFunc forcibly frees a port held by another process.
// It is only invoked when destructive reclamation is enabled.
type ReclaimFunc func(ctx context.Context, port int) error

// Allocator hands out port leases.
type Allocator struct {
	logger     *slog.Logger
	checkDelay time.Duration
	reclaim    ReclaimFunc
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithCheckDelay sets the delay between the two free-port checks.
// Default is 250ms.
func WithCheckDelay(d time.Duration) Option {
	return func(a *Allocator) {
		a.checkDelay = d
	}
}

// WithReclaim enables destructive reclamation with a custom function.
// The allocator terminates whatever holds a candidate port before
// re-checking it, matching the original kill-first policy. Without this
// option occupied ports are skipped cooperatively.
func WithReclaim(fn ReclaimFunc) Option {
	return func(a *Allocator) {
		a.reclaim = fn
	}
}

// WithDestructiveReclaim enables the default reclaim via fuser.
// A single-user local policy: any process on the candidate port is
// terminated without negotiation.
func WithDestructiveReclaim() Option {
	return WithReclaim(fuserReclaim)
}

// NewAllocator creates a port allocator.
func NewAllocator(logger *slog.Logger, opts ...Option) *Allocator {
	a := &Allocator{
		logger:     logger,
		checkDelay: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate claims a free port for the named service, scanning upward from
// base by 1 for at most maxAttempts candidates. Returns an ExhaustedError
// when the budget runs out so the caller can degrade gracefully instead
// of aborting the whole run.
func (a *Allocator) Allocate(ctx context.Context, base int, service string, maxAttempts int) (*Lease, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate := base + attempt

		if a.confirmFree(ctx, candidate) {
			a.logger.Info("Port leased", "service", service, "port", candidate, "attempts", attempt+1)
			return &Lease{Port: candidate, Service: service, Status: StatusFree, Attempts: attempt + 1}, nil
		}

		if a.reclaim != nil {
			a.logger.Warn("Port occupied, reclaiming", "service", service, "port", candidate)
			if err := a.reclaim(ctx, candidate); err != nil {
				a.logger.Warn("Reclaim failed", "port", candidate, "error", err)
			} else if a.confirmFree(ctx, candidate) {
				a.logger.Info("Port leased after reclaim", "service", service, "port", candidate)
				return &Lease{Port: candidate, Service: service, Status: StatusFree, Attempts: attempt + 1}, nil
			}
		}

		a.logger.Debug("Port unavailable, advancing", "service", service, "port", candidate)
	}

	return nil, &ExhaustedError{Service: service, Base: base, Attempts: maxAttempts}
}

// confirmFree verifies twice, with a delay between checks, that the port
// can be bound. The second check absorbs listeners that were mid-close
// during the first.
func (a *Allocator) confirmFree(ctx context.Context, port int) bool {
	if !portBindable(port) {
		return false
	}

	select {
	case <-time.After(a.checkDelay):
	case <-ctx.Done():
		return false
	}

	return portBindable(port)
}

// portBindable reports whether a listener can currently bind the port.
func portBindable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// fuserReclaim terminates whatever is listening on the port via fuser.
// Failure to kill a nonexistent holder is swallowed by the caller.
func fuserReclaim(ctx context.Context, port int) error {
	cmd := exec.CommandContext(ctx, "fuser", "-k", fmt.Sprintf("%d/tcp", port))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("fuser -k %d/tcp: %w (%s)", port, err, out)
	}
	return nil
}
