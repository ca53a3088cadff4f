package domain

import (
	"context"
	"log/slog"
	"strings"
)

// ResolvedQuery is a location label paired with coordinates.
type ResolvedQuery struct {
	Label       string
	Coordinates Coordinates
}

// Resolution is the outcome of resolving a free-text query: either a
// coordinate-backed query, or Fallback set when the caller must switch to a
// name-based provider lookup.
type Resolution struct {
	Query    ResolvedQuery
	Fallback bool
}

// ResolveLocation geocodes text. Geocoding problems never surface as errors:
// a nil geocoder, a failed call, an empty match, a zero/malformed coordinate
// pair, or a reported confidence below MinGeocodeConfidence all yield a
// fallback Resolution. On success the
// original text is kept as the label.
func ResolveLocation(ctx context.Context, text string, geocoder Geocoder, logger *slog.Logger) Resolution {
	text = strings.TrimSpace(text)
	if geocoder == nil || text == "" {
		return Resolution{Fallback: true}
	}

	result, err := geocoder.ForwardGeocode(ctx, text)
	if err != nil {
		logger.Warn("forward geocoding failed, falling back to name lookup",
			"query", text,
			"error", err,
		)
		return Resolution{Fallback: true}
	}

	coords := result.Coordinates()
	if !validCoordinates(coords) {
		logger.Info("geocoder returned no usable coordinates, falling back to name lookup",
			"query", text,
			"lat", coords.Lat,
			"lon", coords.Lon,
		)
		return Resolution{Fallback: true}
	}

	if result.Confidence > 0 && result.Confidence < MinGeocodeConfidence {
		logger.Info("geocoder match below confidence threshold, falling back to name lookup",
			"query", text,
			"confidence", result.Confidence,
		)
		return Resolution{Fallback: true}
	}

	return Resolution{Query: ResolvedQuery{Label: text, Coordinates: coords}}
}

// ReverseLabel asks the geocoder for a place name at c. It returns "" when no
// geocoder is configured or the lookup fails.
func ReverseLabel(ctx context.Context, c Coordinates, geocoder Geocoder, logger *slog.Logger) string {
	if geocoder == nil {
		return ""
	}
	result, err := geocoder.ReverseGeocode(ctx, c.Lat, c.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", c.Lat,
			"lon", c.Lon,
			"error", err,
		)
		return ""
	}
	if result.PlaceName != "" {
		return result.PlaceName
	}
	return result.FormattedAddress
}
