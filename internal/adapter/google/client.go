// Package google implements domain.Geocoder with the Google Geocoding API
// through github.com/kelvins/geocoder.
package google

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/couchcryptid/weather-lookup-service/internal/domain"
	"github.com/couchcryptid/weather-lookup-service/internal/observability"
)

var _ domain.Geocoder = (*Client)(nil)

// Client adapts the blocking, context-free geocoder package to domain.Geocoder.
// A call abandoned through ctx keeps running in the background until the
// library returns.
type Client struct {
	forward func(geocoder.Address) (geocoder.Location, error)
	reverse func(geocoder.Location) ([]geocoder.Address, error)
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient configures the geocoder package with apiKey. The library keeps the
// key in a package variable, so one key is shared per process.
func NewClient(apiKey string, metrics *observability.Metrics, logger *slog.Logger) *Client {
	geocoder.ApiKey = apiKey
	return &Client{
		forward: geocoder.Geocoding,
		reverse: geocoder.GeocodingReverse,
		metrics: metrics,
		logger:  logger,
	}
}

// ForwardGeocode resolves free text such as "Springfield, IL".
func (c *Client) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	query = strings.TrimSpace(query)
	return observe(ctx, c, "forward", func() (domain.GeocodingResult, error) {
		loc, err := c.forward(geocoder.Address{City: query})
		if err != nil {
			return domain.GeocodingResult{}, fmt.Errorf("google forward geocode %q: %w", query, err)
		}
		return domain.GeocodingResult{
			Lat:              loc.Latitude,
			Lon:              loc.Longitude,
			PlaceName:        query,
			FormattedAddress: query,
		}, nil
	})
}

// ReverseGeocode returns the best address for the coordinates.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	return observe(ctx, c, "reverse", func() (domain.GeocodingResult, error) {
		addresses, err := c.reverse(geocoder.Location{Latitude: lat, Longitude: lon})
		if err != nil {
			return domain.GeocodingResult{}, fmt.Errorf("google reverse geocode %.6f,%.6f: %w", lat, lon, err)
		}
		if len(addresses) == 0 {
			return domain.GeocodingResult{}, nil
		}
		addr := addresses[0]
		return domain.GeocodingResult{
			Lat:              lat,
			Lon:              lon,
			PlaceName:        addr.City,
			FormattedAddress: addr.FormattedAddress,
		}, nil
	})
}

type callResult struct {
	result domain.GeocodingResult
	err    error
}

func observe(ctx context.Context, c *Client, method string, fn func() (domain.GeocodingResult, error)) (domain.GeocodingResult, error) {
	start := time.Now()
	done := make(chan callResult, 1)
	go func() {
		r, err := fn()
		done <- callResult{result: r, err: err}
	}()

	var res callResult
	select {
	case <-ctx.Done():
		res.err = fmt.Errorf("google %s geocode: %w", method, ctx.Err())
	case res = <-done:
	}

	c.metrics.GeocodeAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	switch {
	case res.err != nil:
		c.metrics.GeocodeRequests.WithLabelValues(method, "error").Inc()
		c.logger.Debug("google geocode failed", "method", method, "error", res.err)
	case res.result.FormattedAddress == "":
		c.metrics.GeocodeRequests.WithLabelValues(method, "empty").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues(method, "success").Inc()
	}
	return res.result, res.err
}
