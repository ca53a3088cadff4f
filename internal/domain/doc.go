// Package domain models weather lookups against an OpenWeatherMap-style provider.
//
// # Samples
//
// A [WeatherSample] is one point-in-time observation or prediction. Providers
// mark nearly every field nullable, so raw payloads arrive as [RawSample] values
// with pointer fields and are converted by [Normalize], which never fails:
//
//	missing temperature, humidity, wind   -> 0
//	missing description                   -> "Unknown"
//	missing icon code                     -> DefaultIconCode ("01d")
//	missing timestamp                     -> now, truncated to whole seconds
//	missing label / coordinates           -> caller-supplied fallbacks
//
// Provider timestamps are Unix seconds ("dt"); samples carry epoch milliseconds.
// Humidity is clamped into [0,100] and wind speed is never negative.
//
// # Forecast windows
//
// The provider forecast is a flat series of samples, typically every 3 hours for
// 5 days. [BuildForecastWindow] turns it into:
//
//	HourlyToday: every sample with now <= t < midnight tonight, ascending.
//	Daily:       for each of the 7 calendar days starting today, the sample
//	             closest to local noon (ties go to the earlier sample). Days
//	             without samples contribute nothing.
//
// Day boundaries are supplied by the caller as a [DayBounds] value, which keeps
// the windowing pure; [DayBoundsAt] derives them from a time.Time in its zone.
// Days are fixed 24h spans from today's midnight.
//
// Short daily series are padded by [PadDaily]; when the forecast call fails
// entirely [DegradedDaily] repeats the current sample so the presentation
// layer always has seven selectable days.
//
// # Location resolution
//
// Free-text queries are geocoded first ([ResolveLocation]). Geocoding problems
// never surface as errors: they produce a fallback [Resolution] and the caller
// switches to the provider's own name-based lookup.
//
// # Errors
//
// Fetch failures are classified into an [ErrorKind] by [Classify]:
//
//	"404"                         -> CityNotFound
//	"401"                         -> ApiKeyError
//	"timeout" (any case)          -> NetworkError
//	host resolution failures      -> NetworkError
//	device location failures      -> LocationError
//	anything else                 -> UnknownError (original message kept)
package domain
