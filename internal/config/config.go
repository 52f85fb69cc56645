package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port      int              `json:"port"`
	LogConfig logger.LogConfig `json:"log_config"`
	Storage   StorageConfig    `json:"storage"`
	AI        AIConfig         `json:"ai"`
	Queue     QueueConfig      `json:"queue"`
	Search    SearchConfig     `json:"search"`
	Geo       GeoConfig        `json:"geo"`
}

type StorageConfig struct {
	Type        string `json:"type"` // sqlite or postgres
	DBPath      string `json:"db_path"`
	PostgresDSN string `json:"postgres_dsn"`
}

type AIConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	// Version tags generated vectors; bumping it marks every stored
	// embedding stale and lets the reconcile job regenerate the catalog.
	Version       string      `json:"version"`
	Data          interface{} `json:"data"`
	MinIntervalMS int         `json:"min_interval_ms"`
	QueryCacheTTL int         `json:"query_cache_ttl_seconds"`
}

type QueueConfig struct {
	IntervalSeconds   int `json:"interval_seconds"`
	BatchSize         int `json:"batch_size"`
	MaxAttempts       int `json:"max_attempts"`
	RetryDelaySeconds int `json:"retry_delay_seconds"`
	Workers           int `json:"workers"`
}

type SearchConfig struct {
	MaxCandidates int `json:"max_candidates"`
}

type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

type GeoConfig struct {
	GeocodeBaseURL string   `json:"geocode_base_url"`
	IPBaseURL      string   `json:"ip_base_url"`
	Country        string   `json:"country"`
	Bounds         Bounds   `json:"bounds"`
	MetroCities    []string `json:"metro_cities"`
	MetroRadiusM   int      `json:"metro_radius_m"`
	DefaultRadiusM int      `json:"default_radius_m"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "sqlite"
	}
	switch cfg.Storage.Type {
	case "sqlite":
		if cfg.Storage.DBPath == "" {
			return nil, fmt.Errorf("storage.db_path is required for sqlite")
		}
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for postgres")
		}
	default:
		return nil, fmt.Errorf("storage.type must be sqlite or postgres")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return nil, fmt.Errorf("ai.model is required")
	}
	if cfg.AI.Version == "" {
		cfg.AI.Version = cfg.AI.Model
	}
	if cfg.AI.QueryCacheTTL == 0 {
		cfg.AI.QueryCacheTTL = 3600
	}
	if cfg.Queue.IntervalSeconds == 0 {
		cfg.Queue.IntervalSeconds = 10
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 5
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.RetryDelaySeconds == 0 {
		cfg.Queue.RetryDelaySeconds = 30
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Search.MaxCandidates == 0 {
		cfg.Search.MaxCandidates = 200
	}
	if cfg.Geo.MetroRadiusM == 0 {
		cfg.Geo.MetroRadiusM = 5000
	}
	if cfg.Geo.DefaultRadiusM == 0 {
		cfg.Geo.DefaultRadiusM = 15000
	}
	if cfg.Geo.Bounds == (Bounds{}) {
		return nil, fmt.Errorf("geo.bounds is required")
	}
	if cfg.Geo.Country == "" {
		return nil, fmt.Errorf("geo.country is required")
	}
	return &cfg, nil
}
