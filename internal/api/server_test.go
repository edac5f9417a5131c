package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"demostack/internal/stack"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts *Options) *httptest.Server {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	srv := NewServer(opts)
	ts := httptest.NewServer(srv.GetMux())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	var body HealthData
	resp := getJSON(t, ts.URL+"/api/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.Status != "ok" {
		t.Errorf("health status = %q", body.Status)
	}
}

func TestVersionEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	var body map[string]any
	resp := getJSON(t, ts.URL+"/api/version", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["version"] == "" {
		t.Error("version missing from response")
	}
}

// Version and service snapshots are distinct schema types; one server
// must register both without colliding in the OpenAPI registry.
func TestVersionAndServiceSchemasCoexist(t *testing.T) {
	reg := stack.NewRegistry(stack.RegistryOptions{Logger: testLogger()})
	ts := newTestServer(t, &Options{Registry: reg})

	var versionBody map[string]any
	if resp := getJSON(t, ts.URL+"/api/version", &versionBody); resp.StatusCode != http.StatusOK {
		t.Fatalf("version status = %d", resp.StatusCode)
	}

	var listBody ServiceListData
	if resp := getJSON(t, ts.URL+"/api/services", &listBody); resp.StatusCode != http.StatusOK {
		t.Fatalf("services status = %d", resp.StatusCode)
	}
	if listBody.Services == nil && listBody.Count != 0 {
		t.Errorf("empty registry should list zero services, got %d", listBody.Count)
	}
}

func TestStatusReflectsRegistry(t *testing.T) {
	reg := stack.NewRegistry(stack.RegistryOptions{Logger: testLogger()})
	stop := make(chan struct{})
	defer close(stop)
	if err := reg.StartCollector("col", stack.CollectorSpec{Command: "sleep 30"}, stop, nil); err != nil {
		t.Fatal(err)
	}

	stopping := false
	ts := newTestServer(t, &Options{
		Registry:   reg,
		IsStopping: func() bool { return stopping },
	})

	var body StatusData
	getJSON(t, ts.URL+"/api/status", &body)
	if len(body.Services) != 1 {
		t.Fatalf("expected 1 service, got %d", len(body.Services))
	}
	if body.Running != 1 {
		t.Errorf("running = %d, want 1", body.Running)
	}
	if body.Stopping {
		t.Error("stopping should be false")
	}

	stopping = true
	getJSON(t, ts.URL+"/api/status", &body)
	if !body.Stopping {
		t.Error("stopping should be true after flag flips")
	}
}

func TestGetServiceNotFound(t *testing.T) {
	reg := stack.NewRegistry(stack.RegistryOptions{Logger: testLogger()})
	ts := newTestServer(t, &Options{Registry: reg})

	resp, err := http.Get(ts.URL + "/api/services/ghost")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRestartEndpoint(t *testing.T) {
	reg := stack.NewRegistry(stack.RegistryOptions{Logger: testLogger()})
	stop := make(chan struct{})
	defer close(stop)
	if err := reg.StartCollector("col", stack.CollectorSpec{Command: "sleep 30"}, stop, nil); err != nil {
		t.Fatal(err)
	}
	before, _ := reg.Get("col")

	ts := newTestServer(t, &Options{Registry: reg})

	resp, err := http.Post(ts.URL+"/api/services/col/restart", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var body RestartData
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.Service != "col" {
		t.Errorf("service = %q", body.Service)
	}

	after, _ := reg.Get("col")
	if after.PID == 0 || after.PID == before.PID {
		t.Errorf("restart should produce a fresh process: before pid %d, after pid %d", before.PID, after.PID)
	}
}

func TestStopEndpoint(t *testing.T) {
	var gotReason string
	ts := newTestServer(t, &Options{
		Stop: func(reason string) error {
			gotReason = reason
			return nil
		},
	})

	resp, err := http.Post(ts.URL+"/api/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if gotReason != "api" {
		t.Errorf("stop reason = %q, want api", gotReason)
	}
}

func TestDashboardServedAtRoot(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "dashboard.html")
	if err := os.WriteFile(snapshot, []byte("<html>dash</html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	ts := newTestServer(t, &Options{DashboardPath: snapshot})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(data) != "<html>dash</html>" {
		t.Errorf("unexpected body: %q", data)
	}
}

func TestLogsEndpointEmptyBuffer(t *testing.T) {
	ts := newTestServer(t, nil)

	var body LogsData
	resp := getJSON(t, ts.URL+"/api/logs", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body.Count != len(body.Entries) {
		t.Errorf("count %d does not match entries %d", body.Count, len(body.Entries))
	}
}
