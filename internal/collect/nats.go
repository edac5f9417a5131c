package collect

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectLinesPrefix is the prefix for collector line subjects.
const SubjectLinesPrefix = "demostack.collectors"

// SubjectLines returns the NATS subject carrying one collector's lines.
func SubjectLines(collector string) string {
	return fmt.Sprintf("%s.%s.lines", SubjectLinesPrefix, collector)
}

// LineMessage is one captured line published over NATS.
type LineMessage struct {
	Collector string `json:"collector"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"` // stdout, stderr
	Line      string `json:"line"`
}

// Marshal serializes the message to JSON.
func (m LineMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// LineClient publishes collector lines to NATS.
// Gracefully degrades when NATS is unavailable.
type LineClient struct {
	url       string
	collector string
	conn      *nats.Conn
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
}

// NewLineClient creates a NATS publisher for one collector.
func NewLineClient(url, collector string, logger *slog.Logger) *LineClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &LineClient{
		url:       url,
		collector: collector,
		logger:    logger.With("component", "nats-lines", "collector", collector),
	}
}

// Connect establishes a connection to the NATS server.
// Returns the error, but callers may ignore it: every publish is a
// no-op while disconnected.
func (c *LineClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := []nats.Option{
		nats.Name("demostack-collector-" + c.collector),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			} else {
				c.logger.Debug("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.mu.Lock()
			c.connected = true
			c.mu.Unlock()
			c.logger.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		c.logger.Warn("Failed to connect to NATS, running in offline mode", "error", err)
		return err
	}

	c.conn = conn
	c.connected = true
	c.logger.Info("Connected to NATS", "url", c.url)
	return nil
}

// IsConnected returns true if connected to NATS.
func (c *LineClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.conn != nil
}

// HandleLine publishes one captured line.
// No-op if not connected (graceful degradation).
func (c *LineClient) HandleLine(source, line string) {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if conn == nil || !connected {
		return
	}

	msg := LineMessage{
		Collector: c.collector,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    source,
		Line:      line,
	}
	data, err := msg.Marshal()
	if err != nil {
		c.logger.Warn("Failed to marshal line", "error", err)
		return
	}

	if err := conn.Publish(SubjectLines(c.collector), data); err != nil {
		c.logger.Warn("Failed to publish line", "error", err)
	}
}

// Close closes the NATS connection.
func (c *LineClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.logger.Debug("NATS line client closed")
}
