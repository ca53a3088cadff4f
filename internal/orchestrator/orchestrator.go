package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/weather-lookup-service/internal/domain"
	"github.com/couchcryptid/weather-lookup-service/internal/observability"
)

// LastLocationKey is the store key holding the last searched place label.
const LastLocationKey = "last_searched_city"

const emptyQueryMessage = "City name cannot be empty"

// Orchestrator turns intents into outcomes: it resolves locations, fetches
// current conditions and forecasts, and persists the last searched place.
type Orchestrator struct {
	provider domain.WeatherProvider
	geocoder domain.Geocoder
	device   domain.DeviceLocation
	store    domain.KeyValueStore
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	location *time.Location

	initialized atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used for forecast day boundaries.
func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithLocation sets the time zone that defines "today" for the forecast window.
// A nil location keeps the default (time.Local).
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.location = loc
		}
	}
}

// New creates an Orchestrator. A nil geocoder disables coordinate resolution
// and every text search uses the provider's name lookup.
func New(provider domain.WeatherProvider, geocoder domain.Geocoder, device domain.DeviceLocation, store domain.KeyValueStore, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		geocoder: geocoder,
		device:   device,
		store:    store,
		logger:   logger,
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
		location: time.Local,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one intent to completion. It never returns an error: failures
// are reported as an OutcomeError carrying a classified WeatherError.
func (o *Orchestrator) Run(ctx context.Context, intent Intent) Outcome {
	start := o.clock.Now()

	var out Outcome
	switch in := intent.(type) {
	case SearchByText:
		out = o.search(ctx, in.Text)
	case UseDeviceLocation:
		out = o.deviceLocation(ctx, in.SaveCity)
	case Reinitialize:
		out = o.reinitialize(ctx, in.HasLocationPermission)
	default:
		out = errorOutcome(domain.NewWeatherError(domain.UnknownError, fmt.Sprintf("unsupported intent %T", intent)))
	}

	o.metrics.Orchestrations.WithLabelValues(intent.Name(), string(out.Kind)).Inc()
	attrs := []any{"intent", intent.Name(), "outcome", out.Kind, "duration", o.clock.Since(start)}
	if out.Err != nil {
		attrs = append(attrs, "error_kind", out.Err.Kind, "error", out.Err.Message)
	}
	o.logger.Info("orchestration finished", attrs...)
	return out
}

func (o *Orchestrator) search(ctx context.Context, text string) Outcome {
	text = strings.TrimSpace(text)
	if text == "" {
		return errorOutcome(domain.NewWeatherError(domain.UnknownError, emptyQueryMessage))
	}

	var (
		out Outcome
		ok  bool
	)
	resolution := domain.ResolveLocation(ctx, text, o.geocoder, o.logger)
	if resolution.Fallback {
		o.metrics.ResolverFallback.Inc()
		out, ok = o.fetchByName(ctx, text)
	} else {
		out, ok = o.fetchByCoordinates(ctx, resolution.Query.Coordinates, resolution.Query.Label)
	}
	if !ok {
		return out
	}

	o.persist(ctx, text)
	return out
}

func (o *Orchestrator) deviceLocation(ctx context.Context, saveCity bool) Outcome {
	if o.device == nil {
		return errorOutcome(domain.ClassifyLocation(domain.ErrLocationUnavailable))
	}

	fix, err := o.device.LastFix(ctx)
	if err != nil {
		return errorOutcome(domain.ClassifyLocation(err))
	}

	out, ok := o.fetchByCoordinates(ctx, fix, "")
	if !ok {
		return out
	}

	if out.Current.Location == "" {
		out.Current.Location = domain.ReverseLabel(ctx, fix, o.geocoder, o.logger)
	}
	if saveCity && out.Current.Location != "" {
		o.persist(ctx, out.Current.Location)
	}
	return out
}

func (o *Orchestrator) reinitialize(ctx context.Context, hasPermission bool) Outcome {
	if !o.initialized.CompareAndSwap(false, true) {
		return Outcome{Kind: OutcomeSkipped}
	}

	if label, ok := o.lastLocation(ctx); ok {
		o.logger.Info("restoring last searched location", "label", label)
		return o.search(ctx, label)
	}
	if hasPermission {
		return o.deviceLocation(ctx, false)
	}
	return idleOutcome()
}

// Initialized reports whether Reinitialize has already run.
func (o *Orchestrator) Initialized() bool {
	return o.initialized.Load()
}

func (o *Orchestrator) lastLocation(ctx context.Context) (string, bool) {
	if o.store == nil {
		return "", false
	}
	label, ok, err := o.store.Get(ctx, LastLocationKey)
	if err != nil {
		o.logger.Warn("read last location failed", "error", err)
		return "", false
	}
	label = strings.TrimSpace(label)
	return label, ok && label != ""
}

func (o *Orchestrator) persist(ctx context.Context, label string) {
	if o.store == nil {
		return
	}
	if err := o.store.Set(ctx, LastLocationKey, label); err != nil {
		o.logger.Warn("persist last location failed", "label", label, "error", err)
	}
}

func (o *Orchestrator) fetchByCoordinates(ctx context.Context, c domain.Coordinates, label string) (Outcome, bool) {
	return o.fetch(ctx, fetchPlan{
		label:  label,
		coords: c,
		current: func(ctx context.Context) (domain.RawWeather, error) {
			return o.provider.FetchCurrentByCoordinates(ctx, c.Lat, c.Lon)
		},
		forecast: func(ctx context.Context) (domain.RawForecast, error) {
			return o.provider.FetchForecastByCoordinates(ctx, c.Lat, c.Lon)
		},
		incomplete: domain.NewWeatherError(domain.UnknownError, "Invalid response from API"),
	})
}

func (o *Orchestrator) fetchByName(ctx context.Context, name string) (Outcome, bool) {
	return o.fetch(ctx, fetchPlan{
		label: name,
		current: func(ctx context.Context) (domain.RawWeather, error) {
			return o.provider.FetchCurrentByName(ctx, name)
		},
		forecast: func(ctx context.Context) (domain.RawForecast, error) {
			return o.provider.FetchForecastByName(ctx, name)
		},
		incomplete: domain.NewWeatherError(domain.CityNotFound, "City not found: "+name),
	})
}

type fetchPlan struct {
	label      string
	coords     domain.Coordinates
	current    func(context.Context) (domain.RawWeather, error)
	forecast   func(context.Context) (domain.RawForecast, error)
	incomplete *domain.WeatherError
}

// fetch issues the current and forecast calls concurrently. A current-weather
// failure fails the run; a forecast failure degrades the daily series.
func (o *Orchestrator) fetch(ctx context.Context, plan fetchPlan) (Outcome, bool) {
	var (
		weather     domain.RawWeather
		forecast    domain.RawForecast
		forecastErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.observe(gctx, "current", func(ctx context.Context) error {
			var err error
			weather, err = plan.current(ctx)
			return err
		})
	})
	g.Go(func() error {
		forecastErr = o.observe(gctx, "forecast", func(ctx context.Context) error {
			var err error
			forecast, err = plan.forecast(ctx)
			return err
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrIncompleteResponse) {
			return errorOutcome(&domain.WeatherError{Kind: plan.incomplete.Kind, Message: plan.incomplete.Message, Err: err}), false
		}
		return errorOutcome(domain.Classify(err)), false
	}

	current := domain.Normalize(weather.Sample, plan.label, plan.coords.Lat, plan.coords.Lon)
	return Outcome{
		Kind:     OutcomeSuccess,
		Current:  current,
		Forecast: o.window(current, forecast, forecastErr),
	}, true
}

// window builds the forecast window and guarantees a full daily series.
func (o *Orchestrator) window(current domain.WeatherSample, forecast domain.RawForecast, forecastErr error) domain.ForecastWindow {
	if forecastErr != nil {
		o.logger.Warn("forecast fetch failed, using current conditions", "error", forecastErr)
		o.metrics.ForecastDegraded.WithLabelValues("fetch_failed").Inc()
		return domain.ForecastWindow{
			Daily:       domain.DegradedDaily(current, domain.ForecastDays),
			HourlyToday: []domain.WeatherSample{},
		}
	}

	bounds := domain.DayBoundsAt(o.clock.Now().In(o.location))
	w := domain.BuildForecastWindow(forecast, bounds)

	switch n := len(w.Daily); {
	case n == 0:
		o.metrics.ForecastDegraded.WithLabelValues("empty").Inc()
		w.Daily = domain.DegradedDaily(current, domain.ForecastDays)
	case n < domain.ForecastDays:
		o.metrics.ForecastDegraded.WithLabelValues("padded").Inc()
		w.Daily = domain.PadDaily(w.Daily, domain.ForecastDays)
	}
	return w
}

// observe runs one provider call and records its duration and outcome.
func (o *Orchestrator) observe(ctx context.Context, call string, fn func(context.Context) error) error {
	start := o.clock.Now()
	err := fn(ctx)
	o.metrics.ProviderDuration.WithLabelValues(call).Observe(o.clock.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.metrics.ProviderRequests.WithLabelValues(call, outcome).Inc()
	return err
}
