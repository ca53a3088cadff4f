package orchestrator

import "github.com/couchcryptid/weather-lookup-service/internal/domain"

// Intent is a user request the orchestrator can run.
type Intent interface {
	// Name is the stable label used in logs and metrics.
	Name() string
}

// SearchByText looks up weather for a free-text place.
type SearchByText struct {
	Text string
}

// UseDeviceLocation looks up weather at the device's current fix. SaveCity
// controls whether the resulting place label is persisted.
type UseDeviceLocation struct {
	SaveCity bool
}

// Reinitialize restores the previous session at process start.
type Reinitialize struct {
	HasLocationPermission bool
}

func (SearchByText) Name() string      { return "search" }
func (UseDeviceLocation) Name() string { return "device_location" }
func (Reinitialize) Name() string      { return "reinitialize" }

// OutcomeKind tags the result of a run.
type OutcomeKind string

const (
	// OutcomeIdle means there was nothing to load.
	OutcomeIdle OutcomeKind = "idle"
	// OutcomeSuccess carries current conditions and a forecast window.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeError carries a classified failure.
	OutcomeError OutcomeKind = "error"
	// OutcomeSkipped is returned for every Reinitialize after the first.
	OutcomeSkipped OutcomeKind = "skipped"
)

// Outcome is the result of one orchestration run. Current and Forecast are set
// only for OutcomeSuccess, Err only for OutcomeError.
type Outcome struct {
	Kind     OutcomeKind
	Current  domain.WeatherSample
	Forecast domain.ForecastWindow
	Err      *domain.WeatherError
}

func idleOutcome() Outcome {
	return Outcome{Kind: OutcomeIdle}
}

func errorOutcome(err *domain.WeatherError) Outcome {
	return Outcome{Kind: OutcomeError, Err: err}
}
