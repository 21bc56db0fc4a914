package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/halderavik/cbc-design-MCP/engine"
	"github.com/halderavik/cbc-design-MCP/generator"
)

// EnvPath names the environment variable that points at a config file
const EnvPath = "CBC_CONFIG"

// SearchPaths are tried in order when neither a path nor EnvPath is given
var SearchPaths = []string{"cbc.yaml", "config/cbc.yaml"}

// Config is the full process configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port           int           `yaml:"port" validate:"gte=1,lte=65535"`
	ReadTimeout    time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	RateLimit      RateLimit     `yaml:"rate_limit"`
}

// RateLimit throttles the CPU-bound routes. RPS <= 0 disables it.
type RateLimit struct {
	RPS   float64 `yaml:"rps" validate:"gte=0"`
	Burst int     `yaml:"burst" validate:"gte=0"`
}

// DatabaseConfig selects the study store. An empty URL keeps studies in memory.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"gte=0"`
}

type EngineConfig struct {
	Limits engine.Limits          `yaml:"limits"`
	Anneal generator.AnnealParams `yaml:"anneal"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=TRACE DEBUG INFO WARN WARNING ERROR FATAL trace debug info warn warning error fatal"`
	SampleRate int    `yaml:"sample_rate" validate:"gte=0"`
	OTEL       bool   `yaml:"otel"`
}

// DefaultConfig returns the configuration used when no file is found
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    120 * time.Second,
			RequestTimeout: 30 * time.Second,
			RateLimit:      RateLimit{RPS: 20, Burst: 40},
		},
		Database: DatabaseConfig{MaxOpenConns: 10},
		Engine: EngineConfig{
			Limits: engine.DefaultLimits(),
			Anneal: generator.AnnealParams{
				Iterations:  generator.DefaultIterations,
				Temperature: generator.DefaultTemperature,
				Cooling:     generator.DefaultCooling,
				Convergence: generator.DefaultConvergence,
				Patience:    generator.DefaultPatience,
				MaxDuration: 25 * time.Second,
			},
		},
		Log: LogConfig{Level: "INFO", SampleRate: 1},
	}
}

var validate = validator.New()

// Load reads configuration from path, or from $CBC_CONFIG, or from the
// first of SearchPaths that exists. With no file at all the defaults are
// used. PORT, DATABASE_URL and LOG_LEVEL override whatever was loaded.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(EnvPath)
	}

	var data []byte
	var err error
	if path != "" {
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		for _, name := range SearchPaths {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", name, err)
			}
		}
	}

	if path != "" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
