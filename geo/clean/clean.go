// Package clean rejects GPS fixes that are plainly wrong before they
// reach a filter. A bad fix that survives to the innovation gate costs
// a rejection streak; a bad fix dropped here costs nothing.
package clean

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rovermap/insd/common"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/types/sensor"
)

// FilterPoorAccuracy rejects fixes with poor reported accuracies.
// Non-GPS readings always pass.
func FilterPoorAccuracy(cfg *params.CleanConfig) func(sensor.Reading) bool {
	return func(r sensor.Reading) bool {
		if r.Kind != sensor.KindGPS {
			return true
		}
		return r.Accuracy > 0 && r.Accuracy < cfg.AccuracyThreshold
	}
}

// FilterUltraHighSpeed rejects fixes with unreasonable reported speeds.
func FilterUltraHighSpeed(r sensor.Reading) bool {
	return r.Kind != sensor.KindGPS || r.Speed < common.SpeedOfSound
}

// FilterWildElevation rejects fixes below the Dead Sea or above the
// troposphere. Ground vehicles do not visit either.
func FilterWildElevation(r sensor.Reading) bool {
	if r.Kind != sensor.KindGPS {
		return true
	}
	deepestDive := -100.0
	return r.Alt > common.ElevationOfDeadSea-deepestDive &&
		r.Alt < common.ElevationOfTroposphere
}

// Teleportation drops GPS fixes whose displacement from the previous
// fix implies a speed wildly above the reported one. Non-GPS readings
// pass through untouched and do not disturb the fix-to-fix comparison.
func Teleportation(ctx context.Context, cfg *params.CleanConfig, in <-chan sensor.Reading) <-chan sensor.Reading {
	out := make(chan sensor.Reading)

	go func() {
		defer close(out)

		var last *sensor.Reading

		for r := range in {
			if r.Kind == sensor.KindGPS && last != nil {
				// Signal loss is not teleportation.
				interval := r.Time.Sub(last.Time)
				if interval > 0 && interval <= cfg.TeleportWindow {
					dist := geo.Distance(
						orb.Point{last.Lon, last.Lat},
						orb.Point{r.Lon, r.Lat})
					calculated := dist / interval.Seconds()
					if dist > cfg.TeleportMinDistance &&
						calculated > r.Speed*cfg.TeleportSpeedFactor {
						continue
					}
				}
			}
			if r.Kind == sensor.KindGPS {
				r := r
				last = &r
			}

			select {
			case <-ctx.Done():
				return
			case out <- r:
			}
		}
	}()
	return out
}
