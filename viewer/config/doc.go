// Package config provides configuration for the grid-world viewer.
//
// Sources, lowest precedence first:
//   - Built-in defaults (Default)
//   - An optional YAML file (Load)
//   - Environment variables (ApplyEnv), usually populated from a .env file
//   - Command line flags, applied by the caller
//
// Example file:
//
//	uri: ws://localhost:8080/websocket
//	columns: 30
//	rows: 18
//	tile_size: 32
//	step_interval: 1s
//	asset_dir: img
//
// Validate reports every problem at once rather than stopping at the first.
package config
