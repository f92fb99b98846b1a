package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fretbursts/burst-engine/internal/models"
	"github.com/fretbursts/burst-engine/internal/utils"
)

// Config captures the settings required to boot the burst search service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Search  SearchConfig  `yaml:"search"`
	Fusion  FusionConfig  `yaml:"fusion"`
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	// RequestsPerSecond limits accepted searches; zero disables limiting.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	RequestBurst      int     `yaml:"requestBurst"`
	// MaxMessageBytes bounds request and response size; photon streams of
	// a real measurement are large.
	MaxMessageBytes int `yaml:"maxMessageBytes"`
}

// SearchConfig holds the default burst search parameters. Exactly one of
// Factor and Rate must be set.
type SearchConfig struct {
	MinPhotons int      `yaml:"minPhotons"`
	Window     int      `yaml:"window"`
	Factor     *float64 `yaml:"factor"`
	// Rate is the absolute threshold in Hz.
	Rate      *float64 `yaml:"rate"`
	Selection string   `yaml:"selection"`
	// ClockPeriod is the macro-time tick in seconds.
	ClockPeriod float64 `yaml:"clockPeriod"`
	Workers     int     `yaml:"workers"`
}

// FusionConfig controls burst fusion after the search. A zero gap with
// Enabled set only fuses bursts sharing a boundary timestamp.
type FusionConfig struct {
	Enabled bool          `yaml:"enabled"`
	Gap     time.Duration `yaml:"gap"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls the in-process burst result cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxEntries int           `yaml:"maxEntries"`
	TTL        time.Duration `yaml:"ttl"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("BURST_ENGINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if cfg.Search.Factor == nil && cfg.Search.Rate == nil {
		factor := defaultFactor
		cfg.Search.Factor = &factor
	}
	return &cfg, nil
}

// defaultFactor applies when neither the file nor the environment picks a
// threshold.
const defaultFactor = 6.0

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			RequestBurst:    4,
			MaxMessageBytes: 256 << 20,
		},
		Search: SearchConfig{
			MinPhotons:  10,
			Window:      10,
			Selection:   "DA",
			ClockPeriod: 12.5e-9,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:    false,
			MaxEntries: 64,
			TTL:        10 * time.Minute,
		},
	}
}

// SearchParams builds validated search parameters from the search section.
func (c *Config) SearchParams() (models.SearchParams, error) {
	var perTick *float64
	if c.Search.Rate != nil {
		if !(c.Search.ClockPeriod > 0) {
			return models.SearchParams{}, fmt.Errorf("%w: clock period %g must be positive", models.ErrInvalidConfig, c.Search.ClockPeriod)
		}
		r := utils.PerTick(*c.Search.Rate, c.Search.ClockPeriod)
		perTick = &r
	}
	threshold, err := models.ThresholdFrom(c.Search.Factor, perTick)
	if err != nil {
		return models.SearchParams{}, err
	}
	selection, err := models.ParseSelection(c.Search.Selection)
	if err != nil {
		return models.SearchParams{}, err
	}
	params := models.SearchParams{
		MinPhotons: c.Search.MinPhotons,
		Window:     c.Search.Window,
		Threshold:  threshold,
		Selection:  selection,
	}
	if err := params.Validate(); err != nil {
		return models.SearchParams{}, err
	}
	return params, nil
}

// FusionGapTicks converts the fusion gap into clock ticks. ok is false when
// fusion is disabled.
func (c *Config) FusionGapTicks() (gap int64, ok bool, err error) {
	if !c.Fusion.Enabled {
		return 0, false, nil
	}
	if c.Fusion.Gap < 0 {
		return 0, false, fmt.Errorf("%w: negative fusion gap %s", models.ErrInvalidConfig, c.Fusion.Gap)
	}
	gap, err = utils.Ticks(c.Fusion.Gap, c.Search.ClockPeriod)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	return gap, true, nil
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BURST_ENGINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("BURST_ENGINE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("BURST_ENGINE_REQUESTS_PER_SECOND"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("BURST_ENGINE_MAX_MESSAGE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MaxMessageBytes = n
		}
	}
	if v := os.Getenv("BURST_ENGINE_SEARCH_MIN_PHOTONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MinPhotons = n
		}
	}
	if v := os.Getenv("BURST_ENGINE_SEARCH_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.Window = n
		}
	}
	// One threshold from the environment replaces the file's; both are kept
	// so SearchParams reports the conflict.
	var envFactor, envRate *float64
	if v := os.Getenv("BURST_ENGINE_SEARCH_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			envFactor = &f
		}
	}
	if v := os.Getenv("BURST_ENGINE_SEARCH_RATE"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			envRate = &r
		}
	}
	if envFactor != nil || envRate != nil {
		cfg.Search.Factor, cfg.Search.Rate = envFactor, envRate
	}
	if v := os.Getenv("BURST_ENGINE_SEARCH_SELECTION"); v != "" {
		cfg.Search.Selection = v
	}
	if v := os.Getenv("BURST_ENGINE_CLOCK_PERIOD"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.ClockPeriod = p
		}
	}
	if v := os.Getenv("BURST_ENGINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.Workers = n
		}
	}
	if v := os.Getenv("BURST_ENGINE_FUSION_GAP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fusion.Enabled = true
			cfg.Fusion.Gap = d
		}
	}
	if v := os.Getenv("BURST_ENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BURST_ENGINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("BURST_ENGINE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("BURST_ENGINE_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("BURST_ENGINE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
}
