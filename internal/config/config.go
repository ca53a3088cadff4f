// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/weather-lookup-service/internal/domain"
)

// Geocoder backends.
const (
	GeocoderMapbox = "mapbox"
	GeocoderGoogle = "google"
	GeocoderNone   = "none"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string
	OpenWeatherUnits   string
	OpenWeatherTimeout time.Duration
	OpenWeatherRPS     float64
	OpenWeatherBurst   int

	// Geocoder selects the LocationResolver backend.
	Geocoder         string
	MapboxToken      string
	MapboxTimeout    time.Duration
	MapboxCacheSize  int
	GoogleMapsAPIKey string

	StoreBackend string
	StoreFile    string
	RedisURL     string
	DatabaseURL  string

	// DeviceFix is the configured device position; nil means no fix.
	DeviceFix          *domain.Coordinates
	LocationPermission bool
	Timezone           *time.Location

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	owTimeout, err := parsePositiveDuration("OPENWEATHER_TIMEOUT", "10s")
	collect(err)
	rps, err := parseFloat("OPENWEATHER_RPS", 5)
	collect(err)
	burst, err := parseInt("OPENWEATHER_BURST", 5)
	collect(err)
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	collect(err)
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	collect(err)
	permission, err := parseBool("LOCATION_PERMISSION", true)
	collect(err)
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	collect(err)
	fix, err := parseDeviceFix()
	collect(err)

	tz, err := time.LoadLocation(envOrDefault("TIMEZONE", "Local"))
	if err != nil {
		collect(fmt.Errorf("invalid TIMEZONE: %w", err))
	}

	cfg := &Config{
		OpenWeatherAPIKey:  os.Getenv("OPENWEATHER_API_KEY"),
		OpenWeatherBaseURL: envOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),
		OpenWeatherUnits:   envOrDefault("OPENWEATHER_UNITS", "imperial"),
		OpenWeatherTimeout: owTimeout,
		OpenWeatherRPS:     rps,
		OpenWeatherBurst:   burst,

		Geocoder:         strings.ToLower(envOrDefault("GEOCODER", GeocoderMapbox)),
		MapboxToken:      os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:    mapboxTimeout,
		MapboxCacheSize:  parseMapboxCacheSize(),
		GoogleMapsAPIKey: os.Getenv("GOOGLE_MAPS_API_KEY"),

		StoreBackend: strings.ToLower(envOrDefault("STORE_BACKEND", StoreMemory)),
		StoreFile:    envOrDefault("STORE_FILE", "weather-lookup.json"),
		RedisURL:     envOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),

		DeviceFix:          fix,
		LocationPermission: permission,
		Timezone:           tz,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "weather-lookups"),
	}

	collect(cfg.validate())
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.OpenWeatherAPIKey == "" {
		errs = append(errs, errors.New("OPENWEATHER_API_KEY is required"))
	}
	if c.OpenWeatherRPS <= 0 {
		errs = append(errs, errors.New("OPENWEATHER_RPS must be positive"))
	}
	if c.OpenWeatherBurst < 1 {
		errs = append(errs, errors.New("OPENWEATHER_BURST must be at least 1"))
	}

	switch c.Geocoder {
	case GeocoderMapbox:
		if c.MapboxToken == "" {
			errs = append(errs, errors.New("GEOCODER is mapbox but MAPBOX_TOKEN is not set"))
		}
	case GeocoderGoogle:
		if c.GoogleMapsAPIKey == "" {
			errs = append(errs, errors.New("GEOCODER is google but GOOGLE_MAPS_API_KEY is not set"))
		}
	case GeocoderNone:
	default:
		errs = append(errs, fmt.Errorf("unknown GEOCODER %q", c.Geocoder))
	}

	switch c.StoreBackend {
	case StoreMemory, StoreRedis:
	case StoreFile:
		if c.StoreFile == "" {
			errs = append(errs, errors.New("STORE_FILE is required for the file store"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true"))
		}
		if c.KafkaTopic == "" {
			errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true"))
		}
	}
	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseBrokers splits a comma-separated broker list, dropping blanks.
func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// parseDeviceFix reads DEVICE_LAT and DEVICE_LON. Both must be set together.
func parseDeviceFix() (*domain.Coordinates, error) {
	latStr, lonStr := os.Getenv("DEVICE_LAT"), os.Getenv("DEVICE_LON")
	if latStr == "" && lonStr == "" {
		return nil, nil
	}
	if latStr == "" || lonStr == "" {
		return nil, errors.New("DEVICE_LAT and DEVICE_LON must be set together")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, errors.New("invalid DEVICE_LAT")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, errors.New("invalid DEVICE_LON")
	}
	return &domain.Coordinates{Lat: lat, Lon: lon}, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
