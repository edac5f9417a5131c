package collect

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"demostack/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileSinkAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kafka.log")
	sink, err := NewFileSink(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	sink.HandleLine("stdout", "first")
	sink.HandleLine("stderr", "second")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("sink content = %q", data)
	}
}

func TestFileSinkAppendsAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kafka.log")

	sink, err := NewFileSink(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	sink.HandleLine("stdout", "before")
	sink.Close()

	sink, err = NewFileSink(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	sink.HandleLine("stdout", "after")
	sink.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "before\nafter\n" {
		t.Errorf("reopen should append, got %q", data)
	}
}

func TestFileSinkClosedIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	sink, err := NewFileSink(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	sink.Close()

	// Must not panic or write
	sink.HandleLine("stdout", "late")

	data, _ := os.ReadFile(path)
	if len(data) != 0 {
		t.Errorf("closed sink wrote data: %q", data)
	}
}

func TestFileSinkCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run", "x.log")
	sink, err := NewFileSink(path, testLogger())
	if err != nil {
		t.Fatalf("sink should create parent directories: %v", err)
	}
	sink.Close()
}

func TestBusHandlerPublishes(t *testing.T) {
	bus := events.New()

	var mu sync.Mutex
	var got []events.CollectorLineEvent
	unsub := bus.Subscribe(func(e events.CollectorLineEvent) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	defer unsub()

	counted := 0
	handler := NewBusHandler("mqtt", bus, func() { counted++ })
	handler.HandleLine("stdout", "payload")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Collector != "mqtt" || got[0].Line != "payload" || got[0].Source != "stdout" {
		t.Errorf("unexpected event: %+v", got[0])
	}
	if counted != 1 {
		t.Errorf("onLine fired %d times, want 1", counted)
	}
}

func TestTeeFansOut(t *testing.T) {
	var a, b strings.Builder
	handler := Tee(writerHandler{&a}, nil, writerHandler{&b})

	handler.HandleLine("stdout", "line")

	if a.String() != "line" || b.String() != "line" {
		t.Errorf("tee did not reach all handlers: %q %q", a.String(), b.String())
	}
}

type writerHandler struct {
	w io.StringWriter
}

func (h writerHandler) HandleLine(_, line string) {
	h.w.WriteString(line)
}

func TestLineClientOfflinePublishIsNoop(t *testing.T) {
	client := NewLineClient("nats://127.0.0.1:1", "kafka", testLogger())
	if err := client.Connect(); err == nil {
		t.Fatal("expected connect to an unreachable broker to fail")
	}
	if client.IsConnected() {
		t.Error("client should report disconnected")
	}

	// No panic, no block
	client.HandleLine("stdout", "dropped")
	client.Close()
}

func TestSubjectLines(t *testing.T) {
	if got := SubjectLines("opcua"); got != "demostack.collectors.opcua.lines" {
		t.Errorf("subject = %q", got)
	}
}
