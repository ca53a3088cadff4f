package openweather

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/couchcryptid/weather-lookup-service/internal/domain"
)

// OpenWeatherMap 2.5 response types. Nearly every field is optional, so
// everything is a pointer and absence is preserved for normalization.

type currentResponse struct {
	Cod     statusCode  `json:"cod"`
	Name    *string     `json:"name"`
	Dt      *int64      `json:"dt"`
	Coord   *coord      `json:"coord"`
	Main    *mainBlock  `json:"main"`
	Weather []condition `json:"weather"`
	Wind    *wind       `json:"wind"`
}

type forecastResponse struct {
	Cod  statusCode     `json:"cod"`
	List []forecastItem `json:"list"`
	City *city          `json:"city"`
}

type forecastItem struct {
	Dt      *int64      `json:"dt"`
	Main    *mainBlock  `json:"main"`
	Weather []condition `json:"weather"`
	Wind    *wind       `json:"wind"`
}

type city struct {
	Name  *string `json:"name"`
	Coord *coord  `json:"coord"`
}

type coord struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type mainBlock struct {
	Temp     *float64 `json:"temp"`
	Humidity *int     `json:"humidity"`
}

type condition struct {
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
}

type wind struct {
	Speed *float64 `json:"speed"`
}

// statusCode accepts both encodings the API uses for "cod": 200 on /weather
// and "200" on /forecast.
type statusCode int

func (s *statusCode) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("decode cod %s: %w", b, err)
	}
	*s = statusCode(n)
	return nil
}

func (r currentResponse) complete() bool {
	return r.Cod == 200 && r.Main != nil && r.Weather != nil
}

func (r forecastResponse) complete() bool {
	return r.Cod == 200 && r.List != nil && r.City != nil
}

func (r currentResponse) toRaw() domain.RawWeather {
	s := sampleFrom(r.Dt, r.Main, r.Weather, r.Wind)
	s.Name = r.Name
	if r.Coord != nil {
		s.Lat, s.Lon = r.Coord.Lat, r.Coord.Lon
	}
	return domain.RawWeather{Sample: s}
}

func (r forecastResponse) toRaw() domain.RawForecast {
	f := domain.RawForecast{
		City:    domain.UnknownDescription,
		Samples: make([]domain.RawSample, 0, len(r.List)),
	}
	if r.City != nil {
		if r.City.Name != nil {
			f.City = *r.City.Name
		}
		if r.City.Coord != nil {
			if r.City.Coord.Lat != nil {
				f.Coordinates.Lat = *r.City.Coord.Lat
			}
			if r.City.Coord.Lon != nil {
				f.Coordinates.Lon = *r.City.Coord.Lon
			}
		}
	}
	for _, item := range r.List {
		f.Samples = append(f.Samples, sampleFrom(item.Dt, item.Main, item.Weather, item.Wind))
	}
	return f
}

func sampleFrom(dt *int64, m *mainBlock, conditions []condition, w *wind) domain.RawSample {
	s := domain.RawSample{Timestamp: dt}
	if m != nil {
		s.Temperature = m.Temp
		s.Humidity = m.Humidity
	}
	if len(conditions) > 0 {
		s.Description = conditions[0].Description
		s.Icon = conditions[0].Icon
	}
	if w != nil {
		s.WindSpeed = w.Speed
	}
	return s
}
