// Package pose defines the published state snapshot.
// A Pose is a value: once published it is never mutated, so readers on
// other goroutines can hold it without locks.
package pose

import (
	"math"
	"time"
)

// Pose is one published snapshot of a filter's estimate.
type Pose struct {
	Time   time.Time `json:"time"`
	Filter string    `json:"filter"` // variant label, e.g. "ekf"

	// ConfigHash labels the tuning this instance runs with, so poses from
	// side-by-side comparison runs are attributable.
	ConfigHash uint64 `json:"config_hash,omitempty"`

	// Position in the local tangent plane, ENU meters, plus the geodetic
	// equivalent for consumers that want coordinates.
	Position [3]float64 `json:"position"`
	Lat      float64    `json:"lat"`
	Lon      float64    `json:"lon"`
	Alt      float64    `json:"alt"`

	Velocity [3]float64 `json:"velocity"` // ENU m/s

	// Orientation as a unit quaternion, w-first.
	Quat [4]float64 `json:"quat"`

	GyroBias  [3]float64 `json:"gyro_bias"`
	AccelBias []float64  `json:"accel_bias,omitempty"`

	// Covariance summaries: traces of the position, velocity and
	// orientation blocks.
	PosVar    float64 `json:"pos_var"`
	VelVar    float64 `json:"vel_var"`
	OrientVar float64 `json:"orient_var"`

	// Degraded is set while the filter runs on a fallback covariance
	// after a numerical failure.
	Degraded bool `json:"degraded,omitempty"`

	// RejectionStreaks reports current consecutive gate rejections per
	// update type, for health rendering.
	RejectionStreaks map[string]int `json:"rejection_streaks,omitempty"`
}

// Speed is the horizontal speed, m/s.
func (p Pose) Speed() float64 {
	return math.Hypot(p.Velocity[0], p.Velocity[1])
}

// HeadingRad is the travel direction in radians east of north, derived
// from velocity. Meaningless below walking speed.
func (p Pose) HeadingRad() float64 {
	return math.Atan2(p.Velocity[0], p.Velocity[1])
}

// Yaw is the orientation's rotation about the vertical, radians.
func (p Pose) Yaw() float64 {
	w, x, y, z := p.Quat[0], p.Quat[1], p.Quat[2], p.Quat[3]
	return math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
}
