package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/wricardo/gridworld-viewer/viewer/world"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

const (
	DefaultURI          = "ws://localhost:8080/websocket"
	DefaultStepInterval = time.Second
	DefaultAssetDir     = "img"
	DefaultWriteWait    = 10 * time.Second
	DefaultLogTail      = 12

	MinStepInterval = 10 * time.Millisecond
	MaxTileSize     = 256
)

// Environment variables read by ApplyEnv
const (
	EnvURI          = "VIEWER_URI"
	EnvAssetDir     = "VIEWER_ASSETS"
	EnvStepInterval = "VIEWER_STEP_INTERVAL"
	EnvTileSize     = "VIEWER_TILE_SIZE"
)

// Config holds everything a viewer session needs
type Config struct {
	URI          string        `yaml:"uri"`
	Columns      int           `yaml:"columns"`
	Rows         int           `yaml:"rows"`
	TileSize     int           `yaml:"tile_size"`
	StepInterval time.Duration `yaml:"step_interval"`
	AssetDir     string        `yaml:"asset_dir"`
	WriteWait    time.Duration `yaml:"write_wait"`
	LogTail      int           `yaml:"log_tail"`
}

// Default returns the configuration of the stock 30x18 world.
func Default() Config {
	return Config{
		URI:          DefaultURI,
		Columns:      world.DefaultColumns,
		Rows:         world.DefaultRows,
		TileSize:     world.DefaultTileSize,
		StepInterval: DefaultStepInterval,
		AssetDir:     DefaultAssetDir,
		WriteWait:    DefaultWriteWait,
		LogTail:      DefaultLogTail,
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value; unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup,
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs error

	if v, ok := lookup(EnvURI); ok && v != "" {
		c.URI = v
	}
	if v, ok := lookup(EnvAssetDir); ok && v != "" {
		c.AssetDir = v
	}
	if v, ok := lookup(EnvStepInterval); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", EnvStepInterval, err))
		} else {
			c.StepInterval = d
		}
	}
	if v, ok := lookup(EnvTileSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", EnvTileSize, err))
		} else {
			c.TileSize = n
		}
	}

	if errs != nil {
		return multierr.Append(ErrInvalidConfig, errs)
	}
	return nil
}

// Validate checks every field and returns all problems found, wrapped in
// ErrInvalidConfig.
func (c Config) Validate() error {
	var errs error

	u, err := url.Parse(c.URI)
	switch {
	case c.URI == "":
		errs = multierr.Append(errs, errors.New("uri is required"))
	case err != nil:
		errs = multierr.Append(errs, fmt.Errorf("uri: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = multierr.Append(errs, fmt.Errorf("uri scheme must be ws or wss, got %q", u.Scheme))
	case u.Host == "":
		errs = multierr.Append(errs, errors.New("uri must include a host"))
	}

	if c.Columns <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("columns must be positive, got %d", c.Columns))
	}
	if c.Rows <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("rows must be positive, got %d", c.Rows))
	}
	if c.TileSize <= 0 || c.TileSize > MaxTileSize {
		errs = multierr.Append(errs, fmt.Errorf("tile_size must be between 1 and %d, got %d", MaxTileSize, c.TileSize))
	}
	if c.StepInterval < MinStepInterval {
		errs = multierr.Append(errs, fmt.Errorf("step_interval must be at least %s, got %s", MinStepInterval, c.StepInterval))
	}
	if c.WriteWait <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("write_wait must be positive, got %s", c.WriteWait))
	}
	if c.LogTail < 0 {
		errs = multierr.Append(errs, fmt.Errorf("log_tail must not be negative, got %d", c.LogTail))
	}

	if errs != nil {
		return multierr.Append(ErrInvalidConfig, errs)
	}
	return nil
}

// Width returns the surface width in pixels.
func (c Config) Width() int {
	return c.Columns * c.TileSize
}

// Height returns the surface height in pixels.
func (c Config) Height() int {
	return c.Rows * c.TileSize
}
