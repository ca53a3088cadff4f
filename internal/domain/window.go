package domain

import (
	"slices"
	"time"
)

const (
	// ForecastDays is the length of the daily series shown to users.
	ForecastDays = 7

	dayMillis  = int64(24 * time.Hour / time.Millisecond)
	noonMillis = int64(12 * time.Hour / time.Millisecond)
)

// ForecastWindow is the derived daily and rest-of-today view of a forecast.
// It is built once per forecast fetch and replaced wholesale, never mutated.
type ForecastWindow struct {
	Daily       []WeatherSample `json:"daily"`
	HourlyToday []WeatherSample `json:"hourly_today"`
}

// DayBounds are the epoch-millisecond boundaries the windower works against.
type DayBounds struct {
	Now             int64
	TodayStart      int64 // local midnight at the start of today
	MidnightTonight int64 // local midnight at the end of today
}

// DayBoundsAt computes the bounds for t using t's location.
func DayBoundsAt(t time.Time) DayBounds {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return DayBounds{
		Now:             t.UnixMilli(),
		TodayStart:      start.UnixMilli(),
		MidnightTonight: start.AddDate(0, 0, 1).UnixMilli(),
	}
}

// BuildForecastWindow groups raw forecast samples into a daily series (one
// noon-closest sample per calendar day, at most ForecastDays) and the samples
// remaining before midnight tonight. Samples without a timestamp cannot be
// placed in either series and are skipped. An empty forecast yields an empty
// window.
func BuildForecastWindow(forecast RawForecast, b DayBounds) ForecastWindow {
	samples := timedSamples(forecast.Samples)

	window := ForecastWindow{
		Daily:       []WeatherSample{},
		HourlyToday: []WeatherSample{},
	}

	for _, ts := range samples {
		if ts.millis >= b.Now && ts.millis < b.MidnightTonight {
			window.HourlyToday = append(window.HourlyToday, forecastSample(ts.raw, forecast))
		}
	}

	for dayOffset := range int64(ForecastDays) {
		dayStart := b.TodayStart + dayOffset*dayMillis
		if pick, ok := noonClosest(samples, dayStart); ok {
			window.Daily = append(window.Daily, forecastSample(pick.raw, forecast))
		}
	}

	return window
}

// PadDaily extends daily to exactly n entries by repeating the last entry with
// its timestamp advanced one day per added slot. Series already at or above n
// are returned unchanged; an empty series stays empty (use DegradedDaily).
func PadDaily(daily []WeatherSample, n int) []WeatherSample {
	if len(daily) == 0 || len(daily) >= n {
		return daily
	}

	padded := make([]WeatherSample, len(daily), n)
	copy(padded, daily)

	last := daily[len(daily)-1]
	for offset := int64(1); len(padded) < n; offset++ {
		next := last
		next.Timestamp = last.Timestamp + offset*dayMillis
		padded = append(padded, next)
	}
	return padded
}

// DegradedDaily builds an n-day placeholder series from a single current sample,
// advancing the timestamp one day per entry. Used when the forecast is unavailable.
func DegradedDaily(current WeatherSample, n int) []WeatherSample {
	days := make([]WeatherSample, 0, n)
	for offset := range int64(n) {
		s := current
		s.Timestamp = current.Timestamp + offset*dayMillis
		days = append(days, s)
	}
	return days
}

type timedSample struct {
	millis int64
	raw    RawSample
}

// timedSamples drops untimed samples and returns the rest in ascending order.
// The provider already sends chronological data, but nothing relies on it.
func timedSamples(raw []RawSample) []timedSample {
	out := make([]timedSample, 0, len(raw))
	for _, r := range raw {
		if r.Timestamp == nil {
			continue
		}
		out = append(out, timedSample{millis: *r.Timestamp * 1000, raw: r})
	}
	slices.SortStableFunc(out, func(a, b timedSample) int {
		switch {
		case a.millis < b.millis:
			return -1
		case a.millis > b.millis:
			return 1
		default:
			return 0
		}
	})
	return out
}

// noonClosest returns the sample in [dayStart, dayStart+24h) nearest to
// dayStart+12h. samples must be sorted so that ties resolve to the earliest.
func noonClosest(samples []timedSample, dayStart int64) (timedSample, bool) {
	dayEnd := dayStart + dayMillis
	noon := dayStart + noonMillis

	var (
		best     timedSample
		bestDist int64
		found    bool
	)
	for _, s := range samples {
		if s.millis < dayStart || s.millis >= dayEnd {
			continue
		}
		dist := absMillis(s.millis - noon)
		if !found || dist < bestDist {
			best, bestDist, found = s, dist, true
		}
	}
	return best, found
}

// forecastSample normalizes a forecast entry, replacing its location fields with
// the enclosing response's city and coordinates.
func forecastSample(raw RawSample, f RawForecast) WeatherSample {
	raw.Name, raw.Lat, raw.Lon = nil, nil, nil
	return Normalize(raw, f.City, f.Coordinates.Lat, f.Coordinates.Lon)
}

func absMillis(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
