package brokercfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestWriteWithBackupFirstWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.conf")

	if err := WriteWithBackup(path, []byte("first\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Error("no backup should exist on first write")
	}
}

func TestWriteWithBackupPreservesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.conf")

	if err := WriteWithBackup(path, []byte("first\n")); err != nil {
		t.Fatal(err)
	}
	if err := WriteWithBackup(path, []byte("second\n")); err != nil {
		t.Fatal(err)
	}

	backup, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(backup) != "first\n" {
		t.Errorf("backup = %q, want previous content", backup)
	}

	current, _ := os.ReadFile(path)
	if string(current) != "second\n" {
		t.Errorf("current = %q, want new content", current)
	}
}

func TestWriteWithBackupCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "test.conf")
	if err := WriteWithBackup(path, []byte("data")); err != nil {
		t.Fatalf("write into missing directory failed: %v", err)
	}
}

func TestRenderKafka(t *testing.T) {
	dir := t.TempDir()
	path, err := RenderKafka(dir, KafkaConfig{
		Port:          9093,
		ZookeeperPort: 2182,
		LogDir:        filepath.Join(dir, "kafka-logs"),
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	for _, want := range []string{
		"listeners=PLAINTEXT://:9093",
		"zookeeper.connect=localhost:2182",
		"log.dirs=" + filepath.Join(dir, "kafka-logs"),
	} {
		if !strings.Contains(content, want) {
			t.Errorf("server.properties missing %q", want)
		}
	}
}

func TestRenderZookeeper(t *testing.T) {
	dir := t.TempDir()
	path, err := RenderZookeeper(dir, ZookeeperConfig{Port: 2182, DataDir: dir})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "clientPort=2182") {
		t.Errorf("zookeeper.properties missing client port: %s", data)
	}
}

func TestRenderMosquitto(t *testing.T) {
	dir := t.TempDir()
	path, err := RenderMosquitto(dir, MosquittoConfig{Port: 1884, AllowAnonymous: true})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	content := string(data)
	if !strings.Contains(content, "listener 1884") {
		t.Errorf("mosquitto.conf missing listener line: %s", content)
	}
	if !strings.Contains(content, "allow_anonymous true") {
		t.Errorf("mosquitto.conf missing allow_anonymous: %s", content)
	}
	if strings.Contains(content, "persistence") {
		t.Errorf("persistence should be off by default: %s", content)
	}
}

func TestRenderOPCUARoundTrip(t *testing.T) {
	dir := t.TempDir()
	path, err := RenderOPCUA(dir, DefaultOPCUAConfig(4842))
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var loaded OPCUAConfig
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("rendered YAML does not parse: %v", err)
	}

	if loaded.Port != 4842 {
		t.Errorf("port = %d, want 4842", loaded.Port)
	}
	if loaded.Device != "MockDevice" {
		t.Errorf("device = %q, want MockDevice", loaded.Device)
	}
	if len(loaded.Tags) != 3 {
		t.Fatalf("expected 3 tags, got %d", len(loaded.Tags))
	}

	ranges := map[string][2]float64{
		"Temperature": {20, 30},
		"Pressure":    {950, 1050},
		"FlowRate":    {5, 15},
	}
	for _, tag := range loaded.Tags {
		want, ok := ranges[tag.Name]
		if !ok {
			t.Errorf("unexpected tag %q", tag.Name)
			continue
		}
		if tag.Min != want[0] || tag.Max != want[1] {
			t.Errorf("%s range = [%v, %v], want [%v, %v]", tag.Name, tag.Min, tag.Max, want[0], want[1])
		}
	}
}
