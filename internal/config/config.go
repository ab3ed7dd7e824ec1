package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	GeocoderNominatim = "nominatim"
	GeocoderGoogle    = "google"
	GeocoderOverpass  = "overpass"

	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultOverpassURL  = "https://overpass-api.de/api/interpreter"
)

// Config contains application configuration.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Store         StoreConfig         `yaml:"store"`
	Neighborhoods NeighborhoodsConfig `yaml:"neighborhoods"`
	Geocoder      GeocoderConfig      `yaml:"geocoder"`
	Query         QueryConfig         `yaml:"query"`
	LogLevel      string              `yaml:"log_level"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	PostgresURL string `yaml:"postgres_url"`
	// CSVPath seeds the memory store at startup.
	CSVPath string `yaml:"csv_path"`
}

type NeighborhoodsConfig struct {
	Path           string `yaml:"path"`
	Format         string `yaml:"format"`
	GeometryColumn int    `yaml:"geometry_column"`
	NameColumn     int    `yaml:"name_column"`
	NameProperty   string `yaml:"name_property"`
}

type GeocoderConfig struct {
	Provider      string        `yaml:"provider"`
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"api_key"`
	Region        string        `yaml:"region"`
	BBox          string        `yaml:"bbox"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	CacheDir      string        `yaml:"cache_dir"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

type QueryConfig struct {
	LongestDispatchLimit  int      `yaml:"longest_dispatch_limit"`
	SafeExcludedCallTypes []string `yaml:"safe_excluded_call_types"`
	TrendNeighborhoods    []string `yaml:"trend_neighborhoods"`
	WrapMidnight          bool     `yaml:"wrap_midnight"`
	DefaultRadiusKm       float64  `yaml:"default_radius_km"`
	DefaultHalfWindow     float64  `yaml:"default_half_window_hours"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Store: StoreConfig{Driver: StoreMemory},
		Neighborhoods: NeighborhoodsConfig{
			GeometryColumn: 8,
			NameColumn:     9,
			NameProperty:   "nhood",
		},
		Geocoder: GeocoderConfig{
			Provider:      GeocoderNominatim,
			Endpoint:      defaultNominatimURL,
			BBox:          "37.70,-122.52,37.84,-122.35",
			UserAgent:     "dispatch-service",
			Timeout:       5 * time.Second,
			RatePerSecond: 1,
			CacheTTL:      30 * 24 * time.Hour,
		},
		Query: QueryConfig{
			LongestDispatchLimit: 750,
			DefaultRadiusKm:      1.609344,
			DefaultHalfWindow:    2,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or DISPATCH_CONFIG), then environment variables and .env.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("DISPATCH_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	if cfg.Geocoder.Provider == GeocoderOverpass && cfg.Geocoder.Endpoint == defaultNominatimURL {
		cfg.Geocoder.Endpoint = defaultOverpassURL
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.HTTP.Addr, "DISPATCH_HTTP_ADDR")
	setString(&cfg.Store.Driver, "DISPATCH_STORE")
	setString(&cfg.Store.PostgresURL, "POSTGRES_URL")
	setString(&cfg.Store.CSVPath, "DISPATCH_CSV_PATH")
	setString(&cfg.Neighborhoods.Path, "DISPATCH_NEIGHBORHOODS")
	setString(&cfg.Neighborhoods.Format, "DISPATCH_NEIGHBORHOODS_FORMAT")
	setString(&cfg.Geocoder.Provider, "DISPATCH_GEOCODER")
	setString(&cfg.Geocoder.Endpoint, "DISPATCH_GEOCODER_URL")
	setString(&cfg.Geocoder.APIKey, "GOOGLE_MAPS_API_KEY")
	setString(&cfg.Geocoder.CacheDir, "DISPATCH_GEOCODE_CACHE")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("OVERPASS_URL"); v != "" && cfg.Geocoder.Provider == GeocoderOverpass {
		cfg.Geocoder.Endpoint = v
	}
	if v := os.Getenv("DISPATCH_GEOCODER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Geocoder.Timeout = d
		}
	}
	if v := os.Getenv("DISPATCH_GEOCODER_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Geocoder.RatePerSecond = f
		}
	}
	if v := os.Getenv("DISPATCH_WRAP_MIDNIGHT"); v != "" {
		cfg.Query.WrapMidnight = v == "true" || v == "1"
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("store.postgres_url is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	switch c.Geocoder.Provider {
	case GeocoderNominatim, GeocoderOverpass:
		if c.Geocoder.Endpoint == "" {
			errs = append(errs, errors.New("geocoder.endpoint is required"))
		}
	case GeocoderGoogle:
		if c.Geocoder.APIKey == "" {
			errs = append(errs, errors.New("geocoder.api_key is required for google"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown geocoder provider %q", c.Geocoder.Provider))
	}

	switch strings.ToLower(c.Neighborhoods.Format) {
	case "", "socrata", "geojson":
	default:
		errs = append(errs, fmt.Errorf("unknown neighborhoods format %q", c.Neighborhoods.Format))
	}

	if c.Geocoder.RatePerSecond < 0 {
		errs = append(errs, errors.New("geocoder.rate_per_second must not be negative"))
	}
	if c.Query.DefaultRadiusKm < 0 || c.Query.DefaultHalfWindow < 0 {
		errs = append(errs, errors.New("query defaults must not be negative"))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	return errors.Join(errs...)
}
