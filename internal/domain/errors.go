package domain

import (
	"errors"
	"net"
	"strings"
)

// ErrorKind classifies a failed lookup for the presentation layer.
type ErrorKind string

const (
	NetworkError  ErrorKind = "network_error"
	CityNotFound  ErrorKind = "city_not_found"
	ApiKeyError   ErrorKind = "api_key_error"
	LocationError ErrorKind = "location_error"
	UnknownError  ErrorKind = "unknown_error"
)

var (
	// ErrIncompleteResponse is returned by providers when a payload lacks the
	// sections needed to build a sample (status code, main block, conditions).
	ErrIncompleteResponse = errors.New("incomplete provider response")
	// ErrLocationUnavailable means the device has no location fix.
	ErrLocationUnavailable = errors.New("location unavailable")
	// ErrLocationPermission means the device refused location access.
	ErrLocationPermission = errors.New("location permission denied")
)

// WeatherError is a classified lookup failure.
type WeatherError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewWeatherError builds a WeatherError without an underlying cause.
func NewWeatherError(kind ErrorKind, message string) *WeatherError {
	return &WeatherError{Kind: kind, Message: message}
}

func (e *WeatherError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func (e *WeatherError) Unwrap() error {
	return e.Err
}

// StatusCoder is implemented by provider errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// Classify maps the lowest-level fetch failure to a WeatherError. Errors that
// are already classified pass through unchanged. A StatusCoder in the chain
// decides the status-based kinds; otherwise the message text is inspected.
func Classify(err error) *WeatherError {
	if err == nil {
		return nil
	}

	var we *WeatherError
	if errors.As(err, &we) {
		return we
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	status := 0
	var sc StatusCoder
	if errors.As(err, &sc) {
		status = sc.HTTPStatus()
	} else if strings.Contains(msg, "404") {
		status = 404
	} else if strings.Contains(msg, "401") {
		status = 401
	}

	switch {
	case status == 404:
		return &WeatherError{Kind: CityNotFound, Message: "City not found", Err: err}
	case status == 401:
		return &WeatherError{Kind: ApiKeyError, Message: "Invalid API key", Err: err}
	case isTimeout(err, lower):
		return &WeatherError{Kind: NetworkError, Message: "Request timeout", Err: err}
	case isHostResolution(err, lower):
		return &WeatherError{Kind: NetworkError, Message: "No internet connection", Err: err}
	case errors.Is(err, ErrLocationPermission):
		return &WeatherError{Kind: LocationError, Message: "Location permission denied", Err: err}
	case errors.Is(err, ErrLocationUnavailable):
		return &WeatherError{Kind: LocationError, Message: "Unable to get current location", Err: err}
	default:
		return &WeatherError{Kind: UnknownError, Message: msg, Err: err}
	}
}

// ClassifyLocation maps a device-location failure. Every failure here is a
// LocationError regardless of its text.
func ClassifyLocation(err error) *WeatherError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrLocationPermission):
		return &WeatherError{Kind: LocationError, Message: "Location permission denied", Err: err}
	case errors.Is(err, ErrLocationUnavailable):
		return &WeatherError{Kind: LocationError, Message: "Unable to get current location", Err: err}
	default:
		return &WeatherError{Kind: LocationError, Message: "Location error: " + err.Error(), Err: err}
	}
}

func isTimeout(err error, lower string) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(lower, "timeout")
}

func isHostResolution(err error, lower string) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return strings.Contains(lower, "unable to resolve host") || strings.Contains(lower, "no such host")
}
