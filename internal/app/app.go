// Package app assembles the lookup stack from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/weather-lookup-service/internal/adapter/device"
	"github.com/couchcryptid/weather-lookup-service/internal/adapter/google"
	"github.com/couchcryptid/weather-lookup-service/internal/adapter/mapbox"
	"github.com/couchcryptid/weather-lookup-service/internal/adapter/openweather"
	"github.com/couchcryptid/weather-lookup-service/internal/adapter/postgres"
	"github.com/couchcryptid/weather-lookup-service/internal/adapter/redis"
	"github.com/couchcryptid/weather-lookup-service/internal/adapter/store"
	"github.com/couchcryptid/weather-lookup-service/internal/config"
	"github.com/couchcryptid/weather-lookup-service/internal/domain"
	"github.com/couchcryptid/weather-lookup-service/internal/observability"
	"github.com/couchcryptid/weather-lookup-service/internal/orchestrator"
	"github.com/couchcryptid/weather-lookup-service/internal/state"
)

// App is a wired lookup stack.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Machine      *state.Machine
	Device       *device.StaticLocator

	closers []func() error
}

// New builds every adapter named by cfg and connects the ones backed by a
// server. On error, anything already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	a := &App{}

	kv, err := a.newStore(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	client := openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.OpenWeatherBaseURL, cfg.OpenWeatherUnits, cfg.OpenWeatherTimeout, logger)
	provider := openweather.NewRateLimitedProvider(client, cfg.OpenWeatherRPS, cfg.OpenWeatherBurst)

	a.Device = newDevice(cfg)
	a.Orchestrator = orchestrator.New(provider, newGeocoder(cfg, metrics, logger), a.Device, kv, logger, metrics,
		orchestrator.WithLocation(cfg.Timezone))
	a.Machine = state.NewMachine(a.Orchestrator, logger, metrics)
	return a, nil
}

// Close stops the state machine and releases store connections.
func (a *App) Close() error {
	if a.Machine != nil {
		a.Machine.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.KeyValueStore, error) {
	switch cfg.StoreBackend {
	case config.StoreFile:
		logger.Info("using file store", "path", cfg.StoreFile)
		return store.NewFile(cfg.StoreFile), nil
	case config.StoreRedis:
		client, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis store: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		logger.Info("using redis store")
		return redis.NewStore(client), nil
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres store: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		s := postgres.NewStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		logger.Info("using postgres store")
		return s, nil
	default:
		logger.Info("using in-memory store")
		return store.NewMemory(), nil
	}
}

func newGeocoder(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.Geocoder {
	switch cfg.Geocoder {
	case config.GeocoderMapbox:
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
		return mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
	case config.GeocoderGoogle:
		logger.Info("google geocoding enabled")
		return google.NewClient(cfg.GoogleMapsAPIKey, metrics, logger)
	default:
		logger.Info("geocoding disabled; searches use provider name lookup")
		return nil
	}
}

func newDevice(cfg *config.Config) *device.StaticLocator {
	switch {
	case !cfg.LocationPermission:
		return device.Denied()
	case cfg.DeviceFix != nil:
		return device.NewStaticLocator(*cfg.DeviceFix)
	default:
		return device.Unavailable()
	}
}
