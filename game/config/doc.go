// Package config provides configuration management for endless road sessions.
//
// The config package handles:
//   - Loading road configurations from JSON and YAML files
//   - Configuration validation through road.ValidateRoadConfig
//   - Default configuration management
//   - Configuration discovery and listing
//
// Configuration Format:
//
// Road configurations live in the configs directory as .json, .yaml or .yml
// files. The file name without its extension is the config ID used when
// creating sessions. Each configuration defines the travel axis, spacing,
// speed, pivot and the ordered list of segments with their part sizes.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Load specific configuration
//	roadConfig, err := manager.LoadConfig("highway")
//
//	// Get default configuration
//	defaultConfig := manager.GetDefault()
//
//	// List available configurations
//	configs, err := manager.ListConfigs()
//
// When no default.* file exists the first valid config becomes the default,
// and an empty directory falls back to road.DefaultRoadConfig.
package config
