// Package config loads the YAML configuration shared by the commands.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Tiles  TilesConfig  `yaml:"tiles"`
	Trees  TreesConfig  `yaml:"trees"`
	Client ClientConfig `yaml:"client"`
}

// ServerConfig configures the HTTP listener and middleware.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	CORSOrigin     string        `yaml:"cors_origin"`
	// APIKey, when set, must be sent as X-API-Key on data endpoints.
	APIKey string `yaml:"api_key"`
}

// DataConfig points at the preprocessed counts file.
type DataConfig struct {
	Path string `yaml:"path"`
}

// TilesConfig configures the vector tile source.
type TilesConfig struct {
	// PublicURL is the base URL written into the TileJSON document. Empty
	// means derive it from the request.
	PublicURL string `yaml:"public_url"`
	Layer     string `yaml:"layer"`
	MinZoom   uint32 `yaml:"min_zoom"`
	MaxZoom   uint32 `yaml:"max_zoom"`
}

// TreesConfig bounds tree builds.
type TreesConfig struct {
	MaxDepth int    `yaml:"max_depth"`
	MinCount uint64 `yaml:"min_count"`
}

// ClientConfig configures flowctl's connection to a server.
type ClientConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   10 * time.Second,
			RequestTimeout: 5 * time.Second,
			MaxConcurrent:  runtime.NumCPU() * 2,
		},
		Data: DataConfig{
			Path: "counts.bin",
		},
		Tiles: TilesConfig{
			Layer:   "bikedata",
			MinZoom: 10,
			MaxZoom: 16,
		},
		Trees: TreesConfig{
			MinCount: 1,
		},
		Client: ClientConfig{
			URL:     "http://localhost:8080",
			Timeout: 15 * time.Second,
		},
	}
}

// LoadConfig reads path over the defaults. A missing file yields
// DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.MaxConcurrent < 1 {
		return fmt.Errorf("server.max_concurrent must be positive, got %d", c.Server.MaxConcurrent)
	}
	if c.Tiles.MinZoom > c.Tiles.MaxZoom {
		return fmt.Errorf("tiles.min_zoom %d above tiles.max_zoom %d", c.Tiles.MinZoom, c.Tiles.MaxZoom)
	}
	if c.Tiles.MaxZoom > 22 {
		return fmt.Errorf("tiles.max_zoom %d above 22", c.Tiles.MaxZoom)
	}
	if c.Trees.MaxDepth < 0 {
		return fmt.Errorf("trees.max_depth must not be negative, got %d", c.Trees.MaxDepth)
	}
	return nil
}
