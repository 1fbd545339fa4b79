// Package config handles configuration loading and management for apiregress.
//
// It provides functionality for:
//   - Loading configuration from services_config.yaml (or .apiregress.yaml)
//   - Default configuration values
//   - Startup validation of the settings an activated feature needs
//   - Merging command line overrides on top of the file
package config
