package brokercfg

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Tag describes one simulated OPC UA variable and the range its random
// values are drawn from.
type Tag struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// OPCUAConfig describes the mock OPC UA server: endpoint, the device
// object the tags hang off, and the update cadence.
type OPCUAConfig struct {
	Port           int    `yaml:"port"`
	Endpoint       string `yaml:"endpoint"`
	Device         string `yaml:"device"`
	UpdateInterval string `yaml:"update_interval"`
	Tags           []Tag  `yaml:"tags"`
}

// DefaultOPCUAConfig returns the simulation the original demo ran: a
// MockDevice object with Temperature, Pressure, and FlowRate updated
// every second.
func DefaultOPCUAConfig(port int) OPCUAConfig {
	return OPCUAConfig{
		Port:           port,
		Endpoint:       fmt.Sprintf("opc.tcp://0.0.0.0:%d/freeopcua/server/", port),
		Device:         "MockDevice",
		UpdateInterval: "1s",
		Tags: []Tag{
			{Name: "Temperature", Min: 20, Max: 30},
			{Name: "Pressure", Min: 950, Max: 1050},
			{Name: "FlowRate", Min: 5, Max: 15},
		},
	}
}

// RenderOPCUA writes opcua.yaml into dir, backing up any previous
// file. Returns the path written.
func RenderOPCUA(dir string, cfg OPCUAConfig) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal opcua config: %w", err)
	}

	path := filepath.Join(dir, "opcua.yaml")
	if err := WriteWithBackup(path, data); err != nil {
		return "", err
	}
	return path, nil
}
