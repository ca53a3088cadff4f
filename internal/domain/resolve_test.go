package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- mock geocoder ---

type mockGeocoder struct {
	forwardResult GeocodingResult
	forwardErr    error
	reverseResult GeocodingResult
	reverseErr    error
	forwardCalls  int
	reverseCalls  int
	lastQuery     string
}

func (m *mockGeocoder) ForwardGeocode(_ context.Context, query string) (GeocodingResult, error) {
	m.forwardCalls++
	m.lastQuery = query
	return m.forwardResult, m.forwardErr
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (GeocodingResult, error) {
	m.reverseCalls++
	return m.reverseResult, m.reverseErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestResolveLocation_NilGeocoder(t *testing.T) {
	res := ResolveLocation(context.Background(), "Austin", nil, discardLogger())

	assert.True(t, res.Fallback)
	assert.Empty(t, res.Query.Label)
}

func TestResolveLocation_Success(t *testing.T) {
	geo := &mockGeocoder{
		forwardResult: GeocodingResult{
			Lat:              30.2672,
			Lon:              -97.7431,
			FormattedAddress: "Austin, Texas, United States",
			PlaceName:        "Austin",
		},
	}

	res := ResolveLocation(context.Background(), "  Austin  ", geo, discardLogger())

	assert.False(t, res.Fallback)
	assert.Equal(t, "Austin", res.Query.Label, "label is the query text, not the geocoder's name")
	assert.Equal(t, Coordinates{Lat: 30.2672, Lon: -97.7431}, res.Query.Coordinates)
	assert.Equal(t, "Austin", geo.lastQuery)
	assert.Equal(t, 1, geo.forwardCalls)
	assert.Equal(t, 0, geo.reverseCalls)
}

func TestResolveLocation_ErrorFallsBack(t *testing.T) {
	geo := &mockGeocoder{forwardErr: errors.New("API timeout")}

	res := ResolveLocation(context.Background(), "Austin", geo, discardLogger())

	assert.True(t, res.Fallback)
	assert.Equal(t, 1, geo.forwardCalls)
}

func TestResolveLocation_UnusableCoordinates(t *testing.T) {
	tests := []struct {
		name   string
		result GeocodingResult
	}{
		{"no match", GeocodingResult{}},
		{"zero latitude", GeocodingResult{Lat: 0, Lon: -97.7}},
		{"zero longitude", GeocodingResult{Lat: 51.4, Lon: 0}},
		{"latitude out of range", GeocodingResult{Lat: 120, Lon: 10}},
		{"longitude out of range", GeocodingResult{Lat: 10, Lon: -200}},
		{"NaN", GeocodingResult{Lat: math.NaN(), Lon: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo := &mockGeocoder{forwardResult: tt.result}
			res := ResolveLocation(context.Background(), "Somewhere", geo, discardLogger())
			assert.True(t, res.Fallback)
		})
	}
}

func TestResolveLocation_BlankTextSkipsGeocoder(t *testing.T) {
	geo := &mockGeocoder{}

	res := ResolveLocation(context.Background(), "   ", geo, discardLogger())

	assert.True(t, res.Fallback)
	assert.Equal(t, 0, geo.forwardCalls)
}

func TestReverseLabel(t *testing.T) {
	t.Run("place name preferred", func(t *testing.T) {
		geo := &mockGeocoder{reverseResult: GeocodingResult{PlaceName: "Austin", FormattedAddress: "Austin, Texas"}}
		assert.Equal(t, "Austin", ReverseLabel(context.Background(), Coordinates{Lat: 30, Lon: -97}, geo, discardLogger()))
	})

	t.Run("formatted address when no place name", func(t *testing.T) {
		geo := &mockGeocoder{reverseResult: GeocodingResult{FormattedAddress: "Travis County, Texas"}}
		assert.Equal(t, "Travis County, Texas", ReverseLabel(context.Background(), Coordinates{Lat: 30, Lon: -97}, geo, discardLogger()))
	})

	t.Run("error yields empty label", func(t *testing.T) {
		geo := &mockGeocoder{reverseErr: errors.New("rate limited")}
		assert.Empty(t, ReverseLabel(context.Background(), Coordinates{Lat: 30, Lon: -97}, geo, discardLogger()))
		assert.Equal(t, 1, geo.reverseCalls)
	})

	t.Run("nil geocoder", func(t *testing.T) {
		assert.Empty(t, ReverseLabel(context.Background(), Coordinates{Lat: 30, Lon: -97}, nil, discardLogger()))
	})
}

func TestResolveLocation_Confidence(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		fallback   bool
	}{
		{"not reported", 0, false},
		{"weak match", 0.3, true},
		{"at threshold", MinGeocodeConfidence, false},
		{"strong match", 0.95, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo := &mockGeocoder{forwardResult: GeocodingResult{
				Lat:        30.2672,
				Lon:        -97.7431,
				PlaceName:  "Austin",
				Confidence: tt.confidence,
			}}

			res := ResolveLocation(context.Background(), "Austin", geo, discardLogger())

			assert.Equal(t, tt.fallback, res.Fallback)
		})
	}
}
