package stopfile

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSignal creates a started Signal with a short poll interval.
func newTestSignal(t *testing.T) (*Signal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stop.marker")
	s := New(path, testLogger(), WithPollInterval(50*time.Millisecond))
	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s, path
}

// waitTripped waits for the done channel with a timeout.
func waitTripped(t *testing.T, s *Signal, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(timeout):
		t.Fatal("timeout waiting for stop signal")
	}
}

func TestSetCreatesMarker(t *testing.T) {
	s, path := newTestSignal(t)

	if err := s.Set("test"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("marker file not created: %v", err)
	}
	if !s.IsSet() {
		t.Error("IsSet() = false after Set()")
	}
	waitTripped(t, s, 100*time.Millisecond)
}

func TestSetIdempotent(t *testing.T) {
	s, _ := newTestSignal(t)

	if err := s.Set("first"); err != nil {
		t.Fatalf("first Set() failed: %v", err)
	}
	if err := s.Set("second"); err != nil {
		t.Fatalf("second Set() failed: %v", err)
	}
	waitTripped(t, s, 100*time.Millisecond)
}

func TestExternalMarkerObserved(t *testing.T) {
	s, path := newTestSignal(t)

	// Simulate an operator touching the marker
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("failed to create marker: %v", err)
	}

	// Observe within one polling interval, per the shutdown bound
	waitTripped(t, s, 1*time.Second)
	if !s.IsSet() {
		t.Error("IsSet() = false after external marker creation")
	}
}

func TestPreexistingMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.marker")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("failed to create marker: %v", err)
	}

	s := New(path, testLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer s.Close()

	if !s.IsSet() {
		t.Error("signal should trip immediately on a pre-existing marker")
	}
	waitTripped(t, s, 100*time.Millisecond)
}

func TestClearRemovesMarker(t *testing.T) {
	s, path := newTestSignal(t)

	if err := s.Set("test"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("marker still present after Clear()")
	}

	// Clearing again is not an error
	if err := s.Clear(); err != nil {
		t.Errorf("second Clear() failed: %v", err)
	}
}

func TestNotSetInitially(t *testing.T) {
	s, _ := newTestSignal(t)

	if s.IsSet() {
		t.Error("IsSet() = true before any marker exists")
	}
	select {
	case <-s.Done():
		t.Error("Done() closed before the signal was set")
	case <-time.After(100 * time.Millisecond):
		// Expected
	}
}
