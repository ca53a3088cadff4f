// Package openweather implements domain.WeatherProvider against the
// OpenWeatherMap 2.5 REST API.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/weather-lookup-service/internal/domain"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
	// DefaultUnits matches the Fahrenheit and mph values the presentation expects.
	DefaultUnits = "imperial"

	maxErrorBody = 512
)

var _ domain.WeatherProvider = (*Client)(nil)

// Client fetches current conditions and forecasts. Requests go through a
// circuit breaker that opens after repeated transport or server failures;
// client errors such as 404 and 401 do not count against it.
type Client struct {
	apiKey     string
	units      string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates an OpenWeatherMap client. An empty baseURL or units uses
// the defaults.
func NewClient(apiKey, baseURL, units string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if units == "" {
		units = DefaultUnits
	}
	return &Client{
		apiKey:  apiKey,
		units:   units,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: newBreaker(logger),
		logger:  logger,
	}
}

func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// StatusError is a non-200 API response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openweather API error: status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus implements domain.StatusCoder.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

func (c *Client) FetchCurrentByCoordinates(ctx context.Context, lat, lon float64) (domain.RawWeather, error) {
	return c.current(ctx, coordinateParams(lat, lon))
}

func (c *Client) FetchCurrentByName(ctx context.Context, name string) (domain.RawWeather, error) {
	return c.current(ctx, url.Values{"q": {name}})
}

func (c *Client) FetchForecastByCoordinates(ctx context.Context, lat, lon float64) (domain.RawForecast, error) {
	return c.forecast(ctx, coordinateParams(lat, lon))
}

func (c *Client) FetchForecastByName(ctx context.Context, name string) (domain.RawForecast, error) {
	return c.forecast(ctx, url.Values{"q": {name}})
}

func (c *Client) current(ctx context.Context, params url.Values) (domain.RawWeather, error) {
	var resp currentResponse
	if err := c.get(ctx, "weather", params, &resp); err != nil {
		return domain.RawWeather{}, err
	}
	if !resp.complete() {
		return domain.RawWeather{}, fmt.Errorf("current weather: %w", domain.ErrIncompleteResponse)
	}
	return resp.toRaw(), nil
}

func (c *Client) forecast(ctx context.Context, params url.Values) (domain.RawForecast, error) {
	var resp forecastResponse
	if err := c.get(ctx, "forecast", params, &resp); err != nil {
		return domain.RawForecast{}, err
	}
	if !resp.complete() {
		return domain.RawForecast{}, fmt.Errorf("forecast: %w", domain.ErrIncompleteResponse)
	}
	return resp.toRaw(), nil
}

func coordinateParams(lat, lon float64) url.Values {
	return url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, dst any) error {
	params.Set("appid", c.apiKey)
	params.Set("units", c.units)
	fullURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, endpoint, fullURL, dst)
	})
	return err
}

func (c *Client) do(ctx context.Context, endpoint, fullURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the API key; report only the transport cause.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
