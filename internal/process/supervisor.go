package process

import (
	"log/slog"
	"time"
)

const defaultRestartBackoff = 1 * time.Second

// Supervisor restarts a subprocess until the stop channel closes.
//
// Two live states: running (subprocess active) and awaiting-restart
// (subprocess exited, back-off pending). Any exit triggers a restart
// after a fixed back-off. No distinction between clean exit and crash;
// best-effort demo policy, not a production one. Once the stop channel
// is closed no new iteration starts.
type Supervisor struct {
	proc      *Process
	stop      <-chan struct{}
	backoff   time.Duration
	logger    *slog.Logger
	onRestart func(restarts int)
	onLaunch  func(pid int)
	restarts  int
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithBackoff sets the delay between an exit and the next launch.
// Default is 1s.
func WithBackoff(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.backoff = d
	}
}

// WithOnRestart registers a callback invoked before each relaunch
// with the cumulative restart count. Used for metrics.
func WithOnRestart(fn func(restarts int)) SupervisorOption {
	return func(s *Supervisor) {
		s.onRestart = fn
	}
}

// WithOnLaunch registers a callback invoked with the subprocess pid
// after every successful launch, including relaunches.
func WithOnLaunch(fn func(pid int)) SupervisorOption {
	return func(s *Supervisor) {
		s.onLaunch = fn
	}
}

// NewSupervisor wraps a process in an auto-restart loop bound to a stop channel.
func NewSupervisor(proc *Process, stop <-chan struct{}, logger *slog.Logger, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		proc:    proc,
		stop:    stop,
		backoff: defaultRestartBackoff,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restarts returns the number of relaunches performed so far.
func (s *Supervisor) Restarts() int {
	return s.restarts
}

// Run launches the subprocess and restarts it on every exit until the
// stop channel closes. Returns the exit code of the final iteration.
// If the stop channel is already closed, nothing is launched.
func (s *Supervisor) Run() int {
	lastExit := 0

	for {
		select {
		case <-s.stop:
			s.logger.Info("Stop observed, supervisor exiting", "id", s.proc.id, "restarts", s.restarts)
			return lastExit
		default:
		}

		exitCode, stopped := s.runIteration()
		lastExit = exitCode
		if stopped {
			s.logger.Info("Supervisor shutdown complete", "id", s.proc.id, "exit_code", exitCode)
			return exitCode
		}

		// Awaiting-restart: back off, unless stopped meanwhile
		s.logger.Info("Process exited, restart pending", "id", s.proc.id, "exit_code", exitCode, "backoff", s.backoff)
		select {
		case <-s.stop:
			s.logger.Info("Stop observed during backoff", "id", s.proc.id)
			return lastExit
		case <-time.After(s.backoff):
		}

		s.restarts++
		if s.onRestart != nil {
			s.onRestart(s.restarts)
		}
	}
}

// runIteration runs the subprocess once. Returns its exit code and whether
// the iteration ended because of the stop channel (or process shutdown)
// rather than a subprocess exit.
func (s *Supervisor) runIteration() (int, bool) {
	r, err := s.proc.startProcess(s.proc.GetCommand())
	if err != nil {
		// Launch failure counts as an exited iteration; back-off applies
		return 1, false
	}
	defer r.streams.Wait()

	if s.onLaunch != nil {
		s.onLaunch(s.proc.Pid())
	}

	select {
	case <-s.stop:
		return s.proc.stopAndWait(r.exit), true

	case <-s.proc.ctx.Done():
		return s.proc.stopAndWait(r.exit), true

	case exitErr := <-r.exit:
		return s.proc.reportExit(exitErr), false
	}
}
