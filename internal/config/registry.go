package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "pktlink"
	configFile = "config.yaml"

	// ConfigEnvVar names a configuration file that replaces the default
	// location.
	ConfigEnvVar = "PKTLINK_CONFIG"
)

var (
	registryMu     sync.Mutex
	cachedRegistry *Registry
)

// GetConfigDir returns the pktlink directory under the user's configuration
// directory ($XDG_CONFIG_HOME or ~/.config on Linux).
func GetConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// GetConfigPath returns the configuration file path, honouring ConfigEnvVar.
func GetConfigPath() (string, error) {
	if path := os.Getenv(ConfigEnvVar); path != "" {
		return path, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// LoadRegistry returns the registry at the default path, reading it on the
// first call and returning the same instance afterwards.
func LoadRegistry() (*Registry, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if cachedRegistry != nil {
		return cachedRegistry, nil
	}
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	r, err := LoadFrom(path)
	if err != nil {
		return nil, err
	}
	cachedRegistry = r
	return r, nil
}

// ReloadRegistry drops the cached registry and reads the file again.
func ReloadRegistry() (*Registry, error) {
	registryMu.Lock()
	cachedRegistry = nil
	registryMu.Unlock()
	return LoadRegistry()
}

// LoadFrom loads a registry from an explicit path. A missing file yields
// the defaults; settings absent from the file keep their defaults.
func LoadFrom(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return parseRegistry(data)
}

func parseRegistry(data []byte) (*Registry, error) {
	registry := NewRegistry()
	if err := yaml.Unmarshal(data, registry); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if registry.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d (expected 1)", registry.Version)
	}

	// an explicit "links:" or "preferences:" with no body decodes to nil
	if registry.Links == nil {
		registry.Links = make(map[string]*Link)
	}
	if registry.Preferences == nil {
		registry.Preferences = NewRegistry().Preferences
	}

	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return registry, nil
}

func marshalRegistry(r *Registry, location string) ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# pktlink Configuration File
# Engine timeouts and retries, transfer chunk size, server settings and
# named links used by "pktlink send --target <name>".
#
# Location: ` + location + `

`)
	return append(header, data...), nil
}

// Save writes the registry to the default path.
func (r *Registry) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return r.SaveTo(path)
}

// SaveTo writes the registry to path, creating its directory. The file is
// replaced atomically so readers never see a partial write.
func (r *Registry) SaveTo(path string) error {
	data, err := marshalRegistry(r, path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+configFile+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}
