package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/wricardo/endless-road/game/road"
	"github.com/wricardo/endless-road/game/service"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// DefaultConfigID is the config used when a session names none.
const DefaultConfigID = "default"

// extensions are the supported config file types, in lookup order.
var extensions = []string{".json", ".yaml", ".yml"}

// Manager loads road configs from a directory of JSON and YAML files and
// caches them by ID.
type Manager struct {
	configDir     string
	defaultConfig *road.RoadConfig
	configs       map[string]*road.RoadConfig
	loads         singleflight.Group
	logger        *zap.Logger
	mu            sync.RWMutex
}

var _ service.ConfigManager = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used to report skipped config files.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new configuration manager
func NewManager(configDir string, opts ...Option) (*Manager, error) {
	info, err := os.Stat(configDir)
	if err != nil {
		return nil, fmt.Errorf("config directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config directory: %s is not a directory", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*road.RoadConfig),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.loadDefaultConfig()
	return m, nil
}

// LoadConfig loads a configuration by ID. The ID is the file name with or
// without its extension. Concurrent loads of one ID share a single read.
func (m *Manager) LoadConfig(name string) (*road.RoadConfig, error) {
	id := configID(name)

	m.mu.RLock()
	config, cached := m.configs[id]
	m.mu.RUnlock()
	if cached {
		return config, nil
	}

	v, err, _ := m.loads.Do(id, func() (interface{}, error) {
		config, err := m.readFile(name)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.configs[id] = config
		m.mu.Unlock()
		return config, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*road.RoadConfig), nil
}

// readFile decodes and validates one config file.
func (m *Manager) readFile(name string) (*road.RoadConfig, error) {
	path, ok := m.findFile(name)
	if !ok {
		return nil, ErrConfigNotFound
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := road.DecodeRoadConfig(path, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if err := road.ValidateRoadConfig(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return config, nil
}

// ListConfigs returns information about all available configurations
func (m *Manager) ListConfigs() ([]*service.ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var configs []*service.ConfigInfo
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !supported(entry.Name()) {
			continue
		}

		id := configID(entry.Name())
		if seen[id] {
			continue
		}
		seen[id] = true

		// Try to load the config to get details
		config, err := m.LoadConfig(entry.Name())
		if err != nil {
			// Skip invalid configs
			m.logger.Warn("skipping config", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		configs = append(configs, &service.ConfigInfo{
			Filename:    entry.Name(),
			ConfigID:    id, // This is the identifier to use for session creation
			Name:        config.Name,
			Description: config.Description,
			Segments:    len(config.Segments),
			Axis:        config.EffectiveAxis().String(),
			Speed:       config.EffectiveSpeed(),
		})
	}

	return configs, nil
}

// GetDefault returns the default configuration
func (m *Manager) GetDefault() *road.RoadConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig
}

// SetDefault sets the default configuration by name
func (m *Manager) SetDefault(name string) error {
	config, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = config
	return nil
}

// RefreshCache drops all cached configurations and reloads the default
func (m *Manager) RefreshCache() error {
	m.mu.Lock()
	m.configs = make(map[string]*road.RoadConfig)
	m.mu.Unlock()

	m.loadDefaultConfig()
	return nil
}

// Count returns the number of cached configurations
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.configs)
}

// loadDefaultConfig picks default.*, else the first loadable file, else the
// built-in road.
func (m *Manager) loadDefaultConfig() {
	config, err := m.LoadConfig(DefaultConfigID)
	if err != nil {
		if infos, listErr := m.ListConfigs(); listErr == nil && len(infos) > 0 {
			config, err = m.LoadConfig(infos[0].ConfigID)
		}
	}
	if err != nil {
		m.logger.Info("no config files, using the built-in road", zap.String("dir", m.configDir))
		config = road.DefaultRoadConfig()
	}

	m.mu.Lock()
	m.defaultConfig = config
	m.mu.Unlock()
}

// SaveConfig saves a configuration to disk. A name ending in .yaml or .yml
// is written as YAML, anything else as JSON.
func (m *Manager) SaveConfig(name string, config *road.RoadConfig) error {
	// Validate config before saving
	if err := road.ValidateRoadConfig(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	filename := name
	if !supported(filename) {
		filename = name + ".json"
	}
	configPath := filepath.Join(m.configDir, filepath.Base(filename))

	var data []byte
	var err error
	if strings.HasSuffix(filename, ".json") {
		data, err = json.MarshalIndent(config, "", "  ")
	} else {
		data, err = yaml.Marshal(config)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	// Update cache
	m.mu.Lock()
	m.configs[configID(name)] = config
	m.mu.Unlock()

	return nil
}

// findFile resolves a config ID or file name to a path in the config dir.
func (m *Manager) findFile(name string) (string, bool) {
	base := filepath.Base(name)
	if supported(base) {
		path := filepath.Join(m.configDir, base)
		_, err := os.Stat(path)
		return path, err == nil
	}
	for _, ext := range extensions {
		path := filepath.Join(m.configDir, base+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// configID strips a supported extension from a file name.
func configID(name string) string {
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

func supported(name string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
