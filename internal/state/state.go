// Package state holds the single observable application state and the
// transitions the presentation layer can request.
package state

import "github.com/couchcryptid/weather-lookup-service/internal/domain"

// Kind tags the active State variant.
type Kind string

const (
	KindIdle    Kind = "idle"
	KindLoading Kind = "loading"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// State is an immutable snapshot. Exactly one payload is set: Success for
// KindSuccess, Error for KindError, neither otherwise.
//
// Run is the token of the lookup that produced the snapshot. Selection and
// view changes keep it; every new lookup gets a larger one.
type State struct {
	Kind    Kind     `json:"kind"`
	Run     uint64   `json:"run"`
	Success *Success `json:"success,omitempty"`
	Error   *Failure `json:"error,omitempty"`
}

// Success is the payload of a completed lookup plus the user's selection.
// The selected indexes are always within their series.
type Success struct {
	Current             domain.WeatherSample  `json:"current"`
	Forecast            domain.ForecastWindow `json:"forecast"`
	SelectedDailyIndex  int                   `json:"selected_daily_index"`
	SelectedHourlyIndex int                   `json:"selected_hourly_index"`
	ShowingHourlyView   bool                  `json:"showing_hourly_view"`
}

// Failure is the payload of a failed lookup.
type Failure struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// Idle returns the initial state.
func Idle() State {
	return State{Kind: KindIdle}
}

// Loading returns the in-flight state.
func Loading() State {
	return State{Kind: KindLoading}
}

// Succeeded returns a Success state with the default selection.
func Succeeded(current domain.WeatherSample, forecast domain.ForecastWindow) State {
	return State{Kind: KindSuccess, Success: &Success{Current: current, Forecast: forecast}}
}

// Failed returns an Error state for err. A nil err is reported as an unknown error.
func Failed(err *domain.WeatherError) State {
	if err == nil {
		err = domain.NewWeatherError(domain.UnknownError, "unknown error")
	}
	return State{Kind: KindError, Error: &Failure{Kind: err.Kind, Message: err.Message}}
}

// Location returns the label of the current sample, or "" outside Success.
func (s State) Location() string {
	if s.Success == nil {
		return ""
	}
	return s.Success.Current.Location
}

// SelectedDaily returns the selected daily entry, if any.
func (s *Success) SelectedDaily() (domain.WeatherSample, bool) {
	if s.SelectedDailyIndex < 0 || s.SelectedDailyIndex >= len(s.Forecast.Daily) {
		return domain.WeatherSample{}, false
	}
	return s.Forecast.Daily[s.SelectedDailyIndex], true
}

// SelectedHourly returns the selected hourly entry, if any.
func (s *Success) SelectedHourly() (domain.WeatherSample, bool) {
	if s.SelectedHourlyIndex < 0 || s.SelectedHourlyIndex >= len(s.Forecast.HourlyToday) {
		return domain.WeatherSample{}, false
	}
	return s.Forecast.HourlyToday[s.SelectedHourlyIndex], true
}
