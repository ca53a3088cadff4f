package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0-1.0 provider confidence score; 0 when not reported
}

// MinGeocodeConfidence is the lowest reported confidence ResolveLocation
// accepts. Weaker matches fall back to the provider's name lookup.
const MinGeocodeConfidence = 0.5

// Coordinates returns the result's position.
func (r GeocodingResult) Coordinates() Coordinates {
	return Coordinates{Lat: r.Lat, Lon: r.Lon}
}

// Geocoder resolves free-text places to coordinates and back.
type Geocoder interface {
	// ForwardGeocode converts a place query to coordinates. A query with no
	// match returns a zero result and a nil error.
	ForwardGeocode(ctx context.Context, query string) (GeocodingResult, error)
	// ReverseGeocode converts coordinates to place details.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// WeatherProvider fetches current conditions and forecasts. Failures carry the
// transport or status text that Classify inspects.
type WeatherProvider interface {
	FetchCurrentByCoordinates(ctx context.Context, lat, lon float64) (RawWeather, error)
	FetchCurrentByName(ctx context.Context, name string) (RawWeather, error)
	FetchForecastByCoordinates(ctx context.Context, lat, lon float64) (RawForecast, error)
	FetchForecastByName(ctx context.Context, name string) (RawForecast, error)
}

// DeviceLocation provides a single location fix. Implementations return
// ErrLocationUnavailable when there is no fix and ErrLocationPermission when
// access is refused.
type DeviceLocation interface {
	LastFix(ctx context.Context) (Coordinates, error)
}

// KeyValueStore is a small persistent string store.
type KeyValueStore interface {
	// Get returns the value and true, or "" and false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
