package domain

import (
	"math"
	"time"
)

const (
	// DefaultIconCode is the provider icon used when a sample has none ("clear sky, day").
	DefaultIconCode = "01d"
	// UnknownDescription replaces a missing condition text.
	UnknownDescription = "Unknown"

	iconBaseURL = "https://openweathermap.org/img/wn/"
)

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// WeatherSample is the canonical, immutable weather record used throughout the module.
type WeatherSample struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"` // provider units
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Humidity    int     `json:"humidity"`   // percent, 0-100
	WindSpeed   float64 `json:"wind_speed"` // provider units, never negative
	Timestamp   int64   `json:"timestamp"`  // epoch milliseconds
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// Time returns the sample timestamp as a UTC time.Time.
func (s WeatherSample) Time() time.Time {
	return time.UnixMilli(s.Timestamp).UTC()
}

// IconURL returns the provider icon image for the sample.
func (s WeatherSample) IconURL() string {
	return IconURL(s.Icon)
}

// IconURL builds the 2x provider icon URL for an icon code, e.g.
// "01d" -> "https://openweathermap.org/img/wn/01d@2x.png".
func IconURL(code string) string {
	if code == "" {
		code = DefaultIconCode
	}
	return iconBaseURL + code + "@2x.png"
}

// RawSample mirrors the provider schema, where nearly every field is nullable.
type RawSample struct {
	Name        *string
	Temperature *float64
	Description *string
	Icon        *string
	Humidity    *int
	WindSpeed   *float64
	Timestamp   *int64 // Unix seconds
	Lat         *float64
	Lon         *float64
}

// RawWeather is a current-conditions payload.
type RawWeather struct {
	Sample RawSample
}

// RawForecast is a forecast payload: the resolved city plus its sample series.
// Per-sample location fields are not trusted; City and Coordinates are.
type RawForecast struct {
	City        string
	Coordinates Coordinates
	Samples     []RawSample
}

// Normalize converts a raw provider sample into a WeatherSample, defaulting any
// missing field. It never fails.
func Normalize(raw RawSample, fallbackLabel string, fallbackLat, fallbackLon float64) WeatherSample {
	s := WeatherSample{
		Location:    fallbackLabel,
		Description: UnknownDescription,
		Icon:        DefaultIconCode,
		Lat:         fallbackLat,
		Lon:         fallbackLon,
	}

	if raw.Name != nil {
		s.Location = *raw.Name
	}
	if raw.Temperature != nil {
		s.Temperature = *raw.Temperature
	}
	if raw.Description != nil {
		s.Description = *raw.Description
	}
	if raw.Icon != nil {
		s.Icon = *raw.Icon
	}
	if raw.Humidity != nil {
		s.Humidity = clampHumidity(*raw.Humidity)
	}
	if raw.WindSpeed != nil && *raw.WindSpeed > 0 {
		s.WindSpeed = *raw.WindSpeed
	}
	if raw.Lat != nil {
		s.Lat = *raw.Lat
	}
	if raw.Lon != nil {
		s.Lon = *raw.Lon
	}

	if raw.Timestamp != nil {
		s.Timestamp = *raw.Timestamp * 1000
	} else {
		s.Timestamp = clock.Now().Unix() * 1000
	}

	return s
}

func clampHumidity(h int) int {
	return max(0, min(100, h))
}

// validCoordinates reports whether c is a usable, non-zero WGS-84 pair.
// A zero on either axis is treated as "no fix", matching what geocoders return
// for unresolved places.
func validCoordinates(c Coordinates) bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	if c.Lat == 0 || c.Lon == 0 {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
