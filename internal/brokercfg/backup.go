// Package brokercfg renders the config files the stack's external
// services consume: Zookeeper and Kafka properties, mosquitto.conf, and
// the OPC UA tag simulation YAML. Every write backs up the previous
// file with a .bak suffix first.
//
// Known limitation: two concurrent runs sharing a directory clobber
// each other's configs and backups. Single-run usage is assumed.
package brokercfg

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteWithBackup writes data to path, preserving any existing file as
// path.bak. The backup happens before the write so a failed write still
// leaves the previous config recoverable.
func WriteWithBackup(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		if backupErr := os.WriteFile(path+".bak", existing, 0o644); backupErr != nil {
			return fmt.Errorf("failed to back up %s: %w", path, backupErr)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read existing config %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
