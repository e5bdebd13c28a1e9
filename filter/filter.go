// Package filter holds the pose estimation core: the Filter contract its
// variants implement, the shared strapdown mechanization and measurement
// models, the innovation gate, and the NIS consistency monitor.
//
// A filter owns a mean/covariance pair over
//
//	position(3) velocity(3) quaternion(4) gyro bias(3) accel bias(1..3)
//
// in a local tangent plane (ENU meters). Variants differ only in how they
// push that pair through the nonlinear models.
package filter

import (
	"errors"

	"github.com/rovermap/insd/types/pose"
)

// UpdateKind labels a measurement update type, for gating, rejection
// accounting and NIS grouping.
type UpdateKind string

const (
	UpdateGPSPosition UpdateKind = "gps_position"
	UpdateGPSVelocity UpdateKind = "gps_velocity"
	UpdateHeading     UpdateKind = "magnetometer"
	UpdateZUPT        UpdateKind = "zupt"
	UpdateNHC         UpdateKind = "nhc"
)

// DOF returns the degrees of freedom of an update type's innovation.
func (k UpdateKind) DOF() int {
	switch k {
	case UpdateGPSPosition, UpdateGPSVelocity, UpdateZUPT:
		return 3
	case UpdateNHC:
		return 2
	case UpdateHeading:
		return 1
	}
	return 0
}

// Status is the outcome class of one update attempt.
type Status uint8

const (
	// Accepted: passed the gate, correction applied.
	Accepted Status = iota
	// Rejected: failed the chi-squared gate; state untouched.
	Rejected
	// Forced: gate bypassed on caller's request, correction applied.
	Forced
	// Skipped: update not applicable (disabled constraint, uninitialized
	// filter, variant does not consume this measurement).
	Skipped
	// Failed: numerical failure (non-invertible S, NaN); state untouched,
	// filter continues predict-only.
	Failed
	// Invalid: non-physical observation rejected at the boundary before
	// reaching the linear algebra.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Forced:
		return "forced"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Invalid:
		return "invalid"
	}
	return "unknown"
}

// Outcome reports what one update attempt did. It is a value, never an
// error: rejection and numerical failure are expected runtime conditions.
type Outcome struct {
	Kind   UpdateKind
	Status Status
	NIS    float64 // normalized innovation squared, valid unless Skipped
	DOF    int
	// Streak is the current run of consecutive rejections for this update
	// type. Callers watch it to decide when to force-accept or widen the
	// gate; the filter itself never does that silently.
	Streak int
	Err    error
}

// Applied reports whether the update mutated the state.
func (o Outcome) Applied() bool {
	return o.Status == Accepted || o.Status == Forced
}

// GPSPosition is a geodetic position fix.
type GPSPosition struct {
	Lat, Lon, Alt float64
	Accuracy      float64 // horizontal 1-sigma, meters, must be positive
	// Force bypasses the gate; used by callers after a surfaced
	// rejection run.
	Force bool
}

// GPSVelocity is an ENU velocity observation, m/s.
type GPSVelocity struct {
	East, North, Up float64
	Accuracy        float64 // 1-sigma, m/s, must be positive
	Force           bool
}

// Heading is a magnetometer-derived yaw observation.
type Heading struct {
	Radians float64 // east of north
	Sigma   float64 // 1-sigma, radians; zero means use the configured default
	Force   bool
}

// Filter is the capability contract every pose filter variant satisfies.
// The set of variants is closed: ekf, ukf and the GPS-only geokf baseline.
// Implementations are not safe for concurrent use; the orchestrator drives
// each instance from exactly one goroutine.
type Filter interface {
	Name() string

	// Predict runs strapdown mechanization over one IMU interval.
	// Garbage input (NaN, non-positive dt, implausible magnitudes) is
	// rejected with ErrBadInput and leaves the state untouched.
	Predict(accel, gyro [3]float64, dt float64) error

	UpdateGPSPosition(GPSPosition) Outcome
	UpdateGPSVelocity(GPSVelocity) Outcome
	UpdateHeading(Heading) Outcome

	// ApplyZUPT treats velocity as a near-zero measurement while the
	// platform is externally declared stationary. Position is never
	// forced to zero.
	ApplyZUPT() Outcome

	// ApplyNHC constrains lateral/vertical body-frame velocity for
	// wheeled-vehicle mounting. Skipped unless enabled in config.
	ApplyNHC() Outcome

	// WidenGate scales the chi-squared threshold; ResetGate restores it.
	// The orchestrator calls these after a surfaced rejection run.
	WidenGate()
	ResetGate()

	// State publishes the current estimate as an immutable snapshot.
	State() pose.Pose
}

var (
	// ErrBadInput marks non-physical inputs rejected at the boundary.
	ErrBadInput = errors.New("filter: invalid input")
	// ErrNumerical marks linear-algebra failure: non-positive-definite
	// covariance or non-invertible innovation covariance.
	ErrNumerical = errors.New("filter: numerical failure")
	// ErrUninitialized marks updates arriving before the first fix set
	// the local frame origin.
	ErrUninitialized = errors.New("filter: no origin fix yet")
)
