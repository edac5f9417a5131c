package stack

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreMissingFileUsesDefaults(t *testing.T) {
	store := NewTOML(filepath.Join(t.TempDir(), "stack.toml"))
	if err := store.Load(); err != nil {
		t.Fatalf("load should tolerate a missing file: %v", err)
	}

	if len(store.GetAllServices()) != 4 {
		t.Errorf("expected 4 default services, got %d", len(store.GetAllServices()))
	}
	if len(store.GetAllCollectors()) != 3 {
		t.Errorf("expected 3 default collectors, got %d", len(store.GetAllCollectors()))
	}
}

func TestStoreLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.toml")
	content := `
version = 1

[services.redis]
command = "redis-server --port {port}"
base_port = 6379

[collectors.redis]
command = "redis-cli -p {port:redis} subscribe demo"
sink = "redis.log"
service = "redis"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewTOML(path)
	if err := store.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	svc, ok := store.GetService("redis")
	if !ok {
		t.Fatal("redis service not loaded")
	}
	if svc.BasePort != 6379 {
		t.Errorf("base port = %d, want 6379", svc.BasePort)
	}
	if _, ok := store.GetService("kafka"); ok {
		t.Error("explicit services section should replace defaults")
	}

	collectors := store.GetAllCollectors()
	if collectors["redis"].Sink != "redis.log" {
		t.Errorf("collector sink = %q, want redis.log", collectors["redis"].Sink)
	}
}

func TestStoreLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.toml")
	if err := os.WriteFile(path, []byte("[services.broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewTOML(path)
	if err := store.Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStoreSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.toml")
	store := NewTOML(path)
	if err := store.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reloaded := NewTOML(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(reloaded.GetAllServices()) != 4 {
		t.Errorf("round trip lost services: got %d", len(reloaded.GetAllServices()))
	}
}
