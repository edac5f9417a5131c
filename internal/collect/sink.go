// Package collect routes collector subprocess output to its consumers:
// the per-stream sink file the dashboard tails, the event bus, and an
// optional NATS subject.
package collect

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"demostack/internal/events"
	"demostack/internal/process"
)

// FileSink appends every captured line to a sink file. The dashboard
// renders the tail of these files.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	logger *slog.Logger
}

// NewFileSink opens (or creates) the sink file in append mode.
func NewFileSink(path string, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sink directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open sink %s: %w", path, err)
	}

	return &FileSink{file: file, path: path, logger: logger}, nil
}

// Path returns the sink file path.
func (s *FileSink) Path() string {
	return s.path
}

// HandleLine appends one line to the sink file.
func (s *FileSink) HandleLine(_, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return
	}
	if _, err := fmt.Fprintln(s.file, line); err != nil {
		s.logger.Warn("Failed to write sink line", "path", s.path, "error", err)
	}
}

// Close flushes and closes the sink file. HandleLine becomes a no-op.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// BusHandler publishes each captured line as a CollectorLineEvent.
type BusHandler struct {
	collector string
	bus       *events.Bus
	onLine    func()
}

// NewBusHandler creates a handler publishing lines for one collector.
// The optional onLine callback fires per line, used for metrics.
func NewBusHandler(collector string, bus *events.Bus, onLine func()) *BusHandler {
	return &BusHandler{collector: collector, bus: bus, onLine: onLine}
}

// HandleLine publishes the line on the event bus.
func (h *BusHandler) HandleLine(source, line string) {
	if h.onLine != nil {
		h.onLine()
	}
	if h.bus == nil {
		return
	}
	h.bus.Publish(events.CollectorLineEvent{
		Collector: h.collector,
		Source:    source,
		Line:      line,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Tee fans each line out to several handlers in order.
func Tee(handlers ...process.OutputHandler) process.OutputHandler {
	return teeHandler(handlers)
}

type teeHandler []process.OutputHandler

func (t teeHandler) HandleLine(source, line string) {
	for _, h := range t {
		if h != nil {
			h.HandleLine(source, line)
		}
	}
}
