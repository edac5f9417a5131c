package brokercfg

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MosquittoConfig holds the values substituted into mosquitto.conf.
type MosquittoConfig struct {
	Port           int
	AllowAnonymous bool
	PersistenceDir string
}

// RenderMosquitto writes mosquitto.conf into dir, backing up any
// previous file. Returns the path written.
func RenderMosquitto(dir string, cfg MosquittoConfig) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "listener %d\n", cfg.Port)
	fmt.Fprintf(&b, "allow_anonymous %t\n", cfg.AllowAnonymous)
	if cfg.PersistenceDir != "" {
		b.WriteString("persistence true\n")
		fmt.Fprintf(&b, "persistence_location %s/\n", strings.TrimSuffix(cfg.PersistenceDir, "/"))
	}

	path := filepath.Join(dir, "mosquitto.conf")
	if err := WriteWithBackup(path, []byte(b.String())); err != nil {
		return "", err
	}
	return path, nil
}
