// Package device provides domain.DeviceLocation implementations for hosts
// without a positioning sensor.
package device

import (
	"context"

	"github.com/couchcryptid/weather-lookup-service/internal/domain"
)

var _ domain.DeviceLocation = (*StaticLocator)(nil)

// StaticLocator reports a configured position. It stands in for a GPS fix on
// servers and CLIs.
type StaticLocator struct {
	fix        domain.Coordinates
	hasFix     bool
	permission bool
}

// NewStaticLocator returns a locator reporting fix.
func NewStaticLocator(fix domain.Coordinates) *StaticLocator {
	return &StaticLocator{fix: fix, hasFix: true, permission: true}
}

// Unavailable returns a locator that never has a fix.
func Unavailable() *StaticLocator {
	return &StaticLocator{permission: true}
}

// Denied returns a locator whose access has been refused.
func Denied() *StaticLocator {
	return &StaticLocator{}
}

// PermissionGranted reports whether location access is allowed.
func (l *StaticLocator) PermissionGranted() bool {
	return l.permission
}

func (l *StaticLocator) LastFix(ctx context.Context) (domain.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coordinates{}, err
	}
	switch {
	case !l.permission:
		return domain.Coordinates{}, domain.ErrLocationPermission
	case !l.hasFix:
		return domain.Coordinates{}, domain.ErrLocationUnavailable
	default:
		return l.fix, nil
	}
}
