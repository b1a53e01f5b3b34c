// Package config provides hierarchical configuration management.
// Priority: defaults < config file < environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all CourseDB configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig controls the local persistence store.
type StorageConfig struct {
	Root string `yaml:"root"`
}

// IngestConfig controls archive ingestion limits and concurrency.
type IngestConfig struct {
	MaxArchiveSize   int64  `yaml:"max_archive_size"`
	GeocoderBaseURL  string `yaml:"geocoder_base_url"`
	ParseConcurrency int    `yaml:"parse_concurrency"` // 0 = runtime.NumCPU()
}

// CacheConfig controls the query result cache.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	MaxAge     time.Duration `yaml:"max_age"`
	RedisAddr  string        `yaml:"redis_addr"` // optional mirror
}

// TelemetryConfig controls optional trace export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"` // empty disables export
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 4321,
		},
		Storage: StorageConfig{
			Root: "./data",
		},
		Ingest: IngestConfig{
			MaxArchiveSize:   10 * 1024 * 1024,
			GeocoderBaseURL:  "http://localhost:4321/geo",
			ParseConcurrency: 0,
		},
		Cache: CacheConfig{
			MaxEntries: 256,
			MaxAge:     5 * time.Minute,
		},
		Telemetry: TelemetryConfig{},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string
}

// NewManager creates a configuration manager holding the defaults.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load layers a config file (if path is non-empty and exists) and
// environment variables over the defaults.
func (m *Manager) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()

	if path != "" {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	return nil
}

func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	m.merge(&partial)
	return nil
}

// merge overlays non-zero values from src onto the current config.
func (m *Manager) merge(src *Config) {
	if src.Server.Host != "" {
		m.config.Server.Host = src.Server.Host
	}
	if src.Server.Port != 0 {
		m.config.Server.Port = src.Server.Port
	}
	if src.Storage.Root != "" {
		m.config.Storage.Root = src.Storage.Root
	}
	if src.Ingest.MaxArchiveSize != 0 {
		m.config.Ingest.MaxArchiveSize = src.Ingest.MaxArchiveSize
	}
	if src.Ingest.GeocoderBaseURL != "" {
		m.config.Ingest.GeocoderBaseURL = src.Ingest.GeocoderBaseURL
	}
	if src.Ingest.ParseConcurrency != 0 {
		m.config.Ingest.ParseConcurrency = src.Ingest.ParseConcurrency
	}
	if src.Cache.MaxEntries != 0 {
		m.config.Cache.MaxEntries = src.Cache.MaxEntries
	}
	if src.Cache.MaxAge != 0 {
		m.config.Cache.MaxAge = src.Cache.MaxAge
	}
	if src.Cache.RedisAddr != "" {
		m.config.Cache.RedisAddr = src.Cache.RedisAddr
	}
	if src.Telemetry.OTLPEndpoint != "" {
		m.config.Telemetry.OTLPEndpoint = src.Telemetry.OTLPEndpoint
	}
}

// loadEnv overlays environment variables, highest priority.
func (m *Manager) loadEnv() {
	if v := os.Getenv("COURSEDB_HOST"); v != "" {
		m.config.Server.Host = v
	}
	if v := os.Getenv("COURSEDB_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			m.config.Server.Port = port
		}
	}
	if v := os.Getenv("COURSEDB_STORAGE_ROOT"); v != "" {
		m.config.Storage.Root = v
	}
	if v := os.Getenv("COURSEDB_GEOCODER_BASE_URL"); v != "" {
		m.config.Ingest.GeocoderBaseURL = v
	}
	if v := os.Getenv("COURSEDB_REDIS_ADDR"); v != "" {
		m.config.Cache.RedisAddr = v
	}
	if v := os.Getenv("COURSEDB_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.OTLPEndpoint = v
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the config file paths that were successfully loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// AbsStorageRoot resolves the configured storage root to an absolute path.
func (c *Config) AbsStorageRoot() (string, error) {
	return filepath.Abs(c.Storage.Root)
}
