package sensor

import (
	"fmt"
	"time"

	"github.com/rovermap/insd/common"
)

// Kind identifies a sensor stream.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAccel
	KindGyro
	KindGPS
	KindMag
	KindMotion
)

func (k Kind) String() string {
	switch k {
	case KindAccel:
		return "accel"
	case KindGyro:
		return "gyro"
	case KindGPS:
		return "gps"
	case KindMag:
		return "magnetometer"
	case KindMotion:
		return "motion"
	}
	return "unknown"
}

func KindFromString(s string) Kind {
	switch s {
	case "accel", "accelerometer":
		return KindAccel
	case "gyro", "gyroscope":
		return KindGyro
	case "gps", "location":
		return KindGPS
	case "mag", "magnetometer", "compass":
		return KindMag
	case "motion", "stationary":
		return KindMotion
	}
	return KindUnknown
}

// Reading is one timestamped sensor sample.
// Values carries body-frame axes for accel (m/s^2), gyro (rad/s) and
// magnetometer (uT). GPS samples use the geodetic fields instead.
type Reading struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`

	Values [3]float64 `json:"values,omitempty"`

	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
	Alt      float64 `json:"alt,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Heading  float64 `json:"heading,omitempty"` // degrees from north, GPS course
	Accuracy float64 `json:"accuracy,omitempty"`

	// Stationary is the external motion signal payload (KindMotion).
	Stationary bool `json:"stationary,omitempty"`
}

// Validate rejects non-physical readings at the boundary, before any of
// them can reach the filter's linear algebra.
func (r *Reading) Validate() error {
	if r.Time.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidReading)
	}
	switch r.Kind {
	case KindAccel:
		if !common.IsFinite(r.Values[0], r.Values[1], r.Values[2]) {
			return fmt.Errorf("%w: non-finite accel", ErrInvalidReading)
		}
		for _, v := range r.Values {
			if v < -common.MaxPlausibleAccel || v > common.MaxPlausibleAccel {
				return fmt.Errorf("%w: accel out of range: %f", ErrInvalidReading, v)
			}
		}
	case KindGyro:
		if !common.IsFinite(r.Values[0], r.Values[1], r.Values[2]) {
			return fmt.Errorf("%w: non-finite gyro", ErrInvalidReading)
		}
		for _, v := range r.Values {
			if v < -common.MaxPlausibleGyro || v > common.MaxPlausibleGyro {
				return fmt.Errorf("%w: gyro out of range: %f", ErrInvalidReading, v)
			}
		}
	case KindGPS:
		if !common.IsFinite(r.Lat, r.Lon, r.Alt, r.Speed, r.Accuracy) {
			return fmt.Errorf("%w: non-finite gps", ErrInvalidReading)
		}
		if r.Lat < -90 || r.Lat > 90 {
			return fmt.Errorf("%w: latitude out of range: %f", ErrInvalidReading, r.Lat)
		}
		if r.Lon < -180 || r.Lon > 180 {
			return fmt.Errorf("%w: longitude out of range: %f", ErrInvalidReading, r.Lon)
		}
		if r.Accuracy <= 0 {
			return fmt.Errorf("%w: non-positive accuracy: %f", ErrInvalidReading, r.Accuracy)
		}
		if r.Alt < common.ElevationOfDeadSea-100 || r.Alt > common.ElevationOfTroposphere {
			return fmt.Errorf("%w: elevation out of range: %f", ErrInvalidReading, r.Alt)
		}
	case KindMag:
		if !common.IsFinite(r.Values[0], r.Values[1], r.Values[2]) {
			return fmt.Errorf("%w: non-finite magnetometer", ErrInvalidReading)
		}
	case KindMotion:
		// No payload beyond the flag.
	default:
		return fmt.Errorf("%w: unknown kind", ErrInvalidReading)
	}
	return nil
}

// ErrInvalidReading marks readings rejected at the validation boundary.
var ErrInvalidReading = fmt.Errorf("invalid sensor reading")
