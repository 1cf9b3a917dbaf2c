// Package config handles configuration loading for the viewer server.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Data   DataConfig   `yaml:"data"`
	Cache  CacheConfig  `yaml:"cache"`
	View   ViewConfig   `yaml:"view"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	Title       string   `yaml:"title"`
}

// DataConfig contains data source settings.
type DataConfig struct {
	Root           string   `yaml:"root"`
	DefaultVariant string   `yaml:"default_variant"`
	Variants       []string `yaml:"variants"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	PayloadSizeMB     int `yaml:"payload_size_mb"`
	PayloadTTLMinutes int `yaml:"payload_ttl_minutes"`
	MetaCacheSize     int `yaml:"meta_cache_size"`
	LayerCapacity     int `yaml:"layer_capacity"`
}

// ViewConfig contains view session settings.
type ViewConfig struct {
	Width            int     `yaml:"width"`
	Height           int     `yaml:"height"`
	ChunkSize        int     `yaml:"chunk_size"`
	MaxPointsPerCell int     `yaml:"max_points_per_cell"`
	PointSize        float32 `yaml:"point_size"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "MERFISH Atlas Viewer",
		},
		Data: DataConfig{
			Root:           "./data",
			DefaultVariant: "default",
			Variants:       []string{"default"},
		},
		Cache: CacheConfig{
			PayloadSizeMB:     256,
			PayloadTTLMinutes: 10,
			MetaCacheSize:     256,
			LayerCapacity:     64,
		},
		View: ViewConfig{
			Width:            1024,
			Height:           768,
			ChunkSize:        100,
			MaxPointsPerCell: 50,
			PointSize:        2,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if cfg.Data.Root == "" {
		cfg.Data.Root = defaults.Data.Root
	}
	if cfg.Data.DefaultVariant == "" {
		cfg.Data.DefaultVariant = defaults.Data.DefaultVariant
	}
	if len(cfg.Data.Variants) == 0 {
		cfg.Data.Variants = []string{cfg.Data.DefaultVariant}
	}
	if cfg.Cache.PayloadSizeMB == 0 {
		cfg.Cache.PayloadSizeMB = defaults.Cache.PayloadSizeMB
	}
	if cfg.Cache.PayloadTTLMinutes == 0 {
		cfg.Cache.PayloadTTLMinutes = defaults.Cache.PayloadTTLMinutes
	}
	if cfg.Cache.MetaCacheSize == 0 {
		cfg.Cache.MetaCacheSize = defaults.Cache.MetaCacheSize
	}
	if cfg.Cache.LayerCapacity == 0 {
		cfg.Cache.LayerCapacity = defaults.Cache.LayerCapacity
	}
	if cfg.View.Width == 0 {
		cfg.View.Width = defaults.View.Width
	}
	if cfg.View.Height == 0 {
		cfg.View.Height = defaults.View.Height
	}
	if cfg.View.ChunkSize == 0 {
		cfg.View.ChunkSize = defaults.View.ChunkSize
	}
	if cfg.View.MaxPointsPerCell == 0 {
		cfg.View.MaxPointsPerCell = defaults.View.MaxPointsPerCell
	}
	if cfg.View.PointSize == 0 {
		cfg.View.PointSize = defaults.View.PointSize
	}
}
