// Package stopfile implements the global stop signal as a marker file.
//
// The marker file's existence is the signal: any supervisor loop observing
// it must finish its current iteration and exit without launching a new
// subprocess. The file is watched with fsnotify so an operator can stop a
// run with a plain `touch`, with a polling fallback for filesystems where
// inotify is unreliable.
package stopfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultPollInterval = 500 * time.Millisecond

// Signal is a write-once broadcast stop condition backed by a marker file.
type Signal struct {
	path         string
	logger       *slog.Logger
	pollInterval time.Duration

	mu      sync.Mutex
	set     bool
	done    chan struct{}
	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures a Signal.
type Option func(*Signal)

// WithPollInterval sets the fallback polling interval. Default is 500ms,
// keeping the observe-to-exit bound under one second.
func WithPollInterval(d time.Duration) Option {
	return func(s *Signal) {
		s.pollInterval = d
	}
}

// New creates a stop signal for the given marker file path.
func New(path string, logger *slog.Logger, opts ...Option) *Signal {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Signal{
		path:         path,
		logger:       logger,
		pollInterval: defaultPollInterval,
		done:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins watching for the marker file. If the marker already exists
// the signal trips immediately.
func (s *Signal) Start() error {
	if s.markerExists() {
		s.trip("existing marker")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("fsnotify unavailable, falling back to polling only", "error", err)
	} else {
		// Watch the parent directory: the marker does not exist yet and
		// fsnotify cannot watch a missing file.
		if addErr := watcher.Add(filepath.Dir(s.path)); addErr != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), addErr)
		}
		s.mu.Lock()
		s.watcher = watcher
		s.mu.Unlock()
	}

	go s.watch(watcher)
	return nil
}

// Set creates the marker file and trips the signal. Idempotent.
func (s *Signal) Set(reason string) error {
	s.mu.Lock()
	already := s.set
	s.mu.Unlock()
	if already {
		return nil
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create stop marker: %w", err)
	}
	fmt.Fprintf(f, "stopped: %s at %s\n", reason, time.Now().Format(time.RFC3339))
	f.Close()

	s.trip(reason)
	return nil
}

// IsSet reports whether the stop signal has been observed.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Done returns a channel closed once the signal is set.
// Supervisor loops select on it between iterations.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Clear removes the marker file and releases the watcher. Best-effort:
// a missing marker is not an error.
func (s *Signal) Clear() error {
	s.Close()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stop marker: %w", err)
	}
	return nil
}

// Close stops watching without touching the marker file.
func (s *Signal) Close() {
	s.cancel()
	s.mu.Lock()
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	s.mu.Unlock()
}

// trip marks the signal set and closes the done channel exactly once.
func (s *Signal) trip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.set = true
	close(s.done)
	s.logger.Info("Stop signal set", "reason", reason, "marker", s.path)
}

// watch waits for the marker to appear, via fsnotify events when available
// and a poll ticker regardless.
func (s *Signal) watch(watcher *fsnotify.Watcher) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var eventCh chan fsnotify.Event
	var errCh chan error
	if watcher != nil {
		eventCh = watcher.Events
		errCh = watcher.Errors
	}

	for {
		select {
		case <-s.ctx.Done():
			return

		case event, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			if event.Op&fsnotify.Create != 0 && event.Name == s.path {
				s.trip("marker created")
				return
			}

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			s.logger.Warn("Stop marker watcher error", "error", err)

		case <-ticker.C:
			if s.markerExists() {
				s.trip("marker found by poll")
				return
			}
		}
	}
}

func (s *Signal) markerExists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
