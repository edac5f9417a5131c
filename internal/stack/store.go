package stack

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Store provides access to the stack definition.
type Store interface {
	Load() error
	Save() error
	GetService(id string) (ServiceSpec, bool)
	GetAllServices() map[string]ServiceSpec
	GetAllCollectors() map[string]CollectorSpec
}

// config represents the complete stack configuration file for TOML marshaling.
type config struct {
	Version    int                      `toml:"version" json:"version"`
	Services   map[string]ServiceSpec   `toml:"services" json:"services"`
	Collectors map[string]CollectorSpec `toml:"collectors" json:"collectors"`
}

// tomlStore implements Store using TOML file storage.
type tomlStore struct {
	configPath string
	config     *config
}

// NewTOML creates a new TOML-based store. When the file is missing the
// store serves the built-in default stack.
func NewTOML(configPath string) Store {
	if configPath == "" {
		configPath = "stack.toml"
	}

	return &tomlStore{
		configPath: configPath,
		config: &config{
			Version:    1,
			Services:   DefaultServices(),
			Collectors: DefaultCollectors(),
		},
	}
}

// Load loads the stack configuration from file.
func (s *tomlStore) Load() error {
	if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
		// File doesn't exist, keep the built-in defaults
		return nil
	}

	data, err := os.ReadFile(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to read stack config: %w", err)
	}

	loaded := &config{}
	if unmarshalErr := toml.Unmarshal(data, loaded); unmarshalErr != nil {
		return fmt.Errorf("failed to parse stack config: %w", unmarshalErr)
	}

	if loaded.Services == nil {
		loaded.Services = DefaultServices()
	}
	if loaded.Collectors == nil {
		loaded.Collectors = DefaultCollectors()
	}
	if loaded.Version == 0 {
		loaded.Version = 1
	}

	s.config = loaded
	return nil
}

// Save saves the stack configuration to file.
func (s *tomlStore) Save() error {
	dir := filepath.Dir(s.configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(s.config)
	if err != nil {
		return fmt.Errorf("failed to marshal stack config: %w", err)
	}

	if writeErr := os.WriteFile(s.configPath, data, 0o644); writeErr != nil {
		return fmt.Errorf("failed to write stack config: %w", writeErr)
	}

	return nil
}

// GetService retrieves a service definition by ID.
func (s *tomlStore) GetService(id string) (ServiceSpec, bool) {
	svc, exists := s.config.Services[id]
	return svc, exists
}

// GetAllServices returns all service definitions.
func (s *tomlStore) GetAllServices() map[string]ServiceSpec {
	return s.config.Services
}

// GetAllCollectors returns all collector definitions.
func (s *tomlStore) GetAllCollectors() map[string]CollectorSpec {
	return s.config.Collectors
}
