package openweather

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/weather-lookup-service/internal/domain"
)

var _ domain.WeatherProvider = (*RateLimitedProvider)(nil)

// RateLimitedProvider wraps a WeatherProvider with a token-bucket limiter
// shared by all four calls.
type RateLimitedProvider struct {
	provider domain.WeatherProvider
	limiter  *rate.Limiter
}

// NewRateLimitedProvider allows rps requests per second with the given burst.
// rps may be fractional.
func NewRateLimitedProvider(provider domain.WeatherProvider, rps float64, burst int) *RateLimitedProvider {
	return &RateLimitedProvider{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimitedProvider) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait canceled: %w", err)
	}
	return nil
}

func (r *RateLimitedProvider) FetchCurrentByCoordinates(ctx context.Context, lat, lon float64) (domain.RawWeather, error) {
	if err := r.wait(ctx); err != nil {
		return domain.RawWeather{}, err
	}
	return r.provider.FetchCurrentByCoordinates(ctx, lat, lon)
}

func (r *RateLimitedProvider) FetchCurrentByName(ctx context.Context, name string) (domain.RawWeather, error) {
	if err := r.wait(ctx); err != nil {
		return domain.RawWeather{}, err
	}
	return r.provider.FetchCurrentByName(ctx, name)
}

func (r *RateLimitedProvider) FetchForecastByCoordinates(ctx context.Context, lat, lon float64) (domain.RawForecast, error) {
	if err := r.wait(ctx); err != nil {
		return domain.RawForecast{}, err
	}
	return r.provider.FetchForecastByCoordinates(ctx, lat, lon)
}

func (r *RateLimitedProvider) FetchForecastByName(ctx context.Context, name string) (domain.RawForecast, error) {
	if err := r.wait(ctx); err != nil {
		return domain.RawForecast{}, err
	}
	return r.provider.FetchForecastByName(ctx, name)
}
