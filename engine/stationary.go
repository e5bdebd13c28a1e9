package engine

import (
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/stream"
	"github.com/rovermap/insd/types/sensor"
)

// Detector decides whether the platform is stationary, feeding the
// zero-velocity update. An external motion signal (the phone OS's own
// activity detection) wins outright while fresh; otherwise the decision
// comes from IMU statistics: low accel-magnitude variance and low gyro
// magnitude over a rolling window.
type Detector struct {
	cfg *params.EngineConfig

	mu       sync.Mutex
	accelMag *stream.RingBuffer[float64]
	gyroMag  float64

	external     bool
	externalSeen time.Time
}

// externalSignalTTL bounds trust in the last motion reading; loggers
// emit it sporadically and silence means nothing.
const externalSignalTTL = 10 * time.Second

func NewDetector(cfg *params.EngineConfig) *Detector {
	if cfg == nil {
		cfg = params.DefaultEngineConfig()
	}
	return &Detector{
		cfg:      cfg,
		accelMag: stream.NewRingBuffer[float64](cfg.StationaryWindow),
	}
}

// Observe folds one reading in. Non-IMU, non-motion kinds are ignored.
func (d *Detector) Observe(r sensor.Reading) {
	switch r.Kind {
	case sensor.KindAccel:
		d.accelMag.Add(math.Sqrt(r.Values[0]*r.Values[0] +
			r.Values[1]*r.Values[1] + r.Values[2]*r.Values[2]))
	case sensor.KindGyro:
		d.mu.Lock()
		d.gyroMag = math.Sqrt(r.Values[0]*r.Values[0] +
			r.Values[1]*r.Values[1] + r.Values[2]*r.Values[2])
		d.mu.Unlock()
	case sensor.KindMotion:
		d.mu.Lock()
		d.external = r.Stationary
		d.externalSeen = r.Time
		d.mu.Unlock()
	}
}

// Stationary reports the current decision, evaluated at now.
func (d *Detector) Stationary(now time.Time) bool {
	d.mu.Lock()
	external, seen, gyro := d.external, d.externalSeen, d.gyroMag
	d.mu.Unlock()

	if !seen.IsZero() && now.Sub(seen) < externalSignalTTL {
		return external
	}
	if d.accelMag.Len() < d.cfg.StationaryWindow {
		return false
	}
	if gyro > d.cfg.StationaryGyroMagMax {
		return false
	}
	variance, err := stats.Variance(d.accelMag.Get())
	if err != nil {
		return false
	}
	return variance < d.cfg.StationaryAccelVar
}
