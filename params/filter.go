package params

// FilterConfig holds the pose filter's tunables: the initial uncertainty,
// the IMU noise spec from which process noise is derived, and the
// per-update measurement noise floors.
type FilterConfig struct {
	// AccelBiasAxes is the number of accelerometer bias components carried
	// in the state: 2 estimates the horizontal axes only, with the vertical
	// bias folded into gravity. 3 estimates all axes.
	AccelBiasAxes int

	// Initial standard deviations. Position and velocity start wide,
	// biases start near zero.
	InitPosSigma      float64 // m
	InitVelSigma      float64 // m/s
	InitOrientSigma   float64 // unitless, quaternion component
	InitGyroBiasSigma float64 // rad/s
	InitAccBiasSigma  float64 // m/s^2

	// IMU noise spec, continuous-time densities scaled by dt at predict.
	PosNoise       float64 // m/sqrt(s), direct position random walk
	VelNoise       float64 // m/s/sqrt(s), from accelerometer white noise
	OrientNoise    float64 // quaternion component/sqrt(s), from gyro white noise
	GyroBiasNoise  float64 // rad/s/sqrt(s), bias random walk
	AccBiasNoise   float64 // m/s^2/sqrt(s), bias random walk
	GravityMag     float64 // m/s^2
	MinGPSAccuracy float64 // m, floor on reported GPS accuracy

	// Measurement noise, standard deviations.
	ZUPTSigma       float64 // m/s, zero-velocity pseudo-measurement
	NHCSigma        float64 // m/s, lateral/vertical body velocity pseudo-measurement
	MagHeadingSigma float64 // rad

	// NHCEnabled gates the non-holonomic constraint. Only sensible for
	// wheeled-vehicle mounting; must stay off for handheld use.
	NHCEnabled bool
}

func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		AccelBiasAxes:     2,
		InitPosSigma:      100.0,
		InitVelSigma:      10.0,
		InitOrientSigma:   0.3,
		InitGyroBiasSigma: 0.01,
		InitAccBiasSigma:  0.1,
		PosNoise:          0.01,
		VelNoise:          0.12,
		OrientNoise:       0.004,
		GyroBiasNoise:     1e-5,
		AccBiasNoise:      1e-4,
		GravityMag:        9.80665,
		MinGPSAccuracy:    1.0,
		ZUPTSigma:         0.05,
		NHCSigma:          0.2,
		MagHeadingSigma:   0.35,
		NHCEnabled:        false,
	}
}

// StateDim is the filter state dimension implied by the config:
// position(3) + velocity(3) + quaternion(4) + gyro bias(3) + accel bias.
func (c *FilterConfig) StateDim() int {
	return 13 + c.AccelBiasAxes
}

// UKFConfig holds the unscented transform spread parameters.
type UKFConfig struct {
	Alpha float64 // sigma point spread, (0,1]
	Beta  float64 // prior distribution knowledge, 2 is optimal for Gaussian
	Kappa float64 // secondary scaling, non-negative
}

func DefaultUKFConfig() *UKFConfig {
	return &UKFConfig{
		Alpha: 1e-2,
		Beta:  2.0,
		Kappa: 0.0,
	}
}

// GateConfig tunes the chi-squared innovation gate.
type GateConfig struct {
	// Confidence is the chi-squared acceptance confidence, e.g. 0.99
	// puts the 3-DOF threshold at 11.34.
	Confidence float64

	// MaxRejectionRun is the longest run of consecutive gate rejections
	// tolerated per update type before the streak is surfaced to callers
	// so they can force-accept or widen the gate.
	MaxRejectionRun int

	// WidenFactor scales the gate threshold when a caller decides a
	// rejection run has gone on too long.
	WidenFactor float64
}

func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		Confidence:      0.99,
		MaxRejectionRun: 10,
		WidenFactor:     2.0,
	}
}
