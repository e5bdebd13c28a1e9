package params

import "time"

// QueueConfig sizes the bounded per-sensor input queues.
// Producers never block: overflow drops the oldest unread reading and
// increments a drop counter.
type QueueConfig struct {
	IMUSize int // accel+gyro, high rate (100-200 Hz)
	GPSSize int // ~1 Hz
	MagSize int // ~10 Hz
}

func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		IMUSize: 1024,
		GPSSize: 16,
		MagSize: 64,
	}
}

// EngineConfig tunes the filter orchestrator.
type EngineConfig struct {
	Queues *QueueConfig

	// DrainInterval is how often each consumer wakes to drain its queues
	// when no readings have arrived.
	DrainInterval time.Duration

	// MaxRestarts bounds consumer restarts after a recovered fault.
	MaxRestarts int

	// MaxRejectionRun is the rejection streak length at which the
	// orchestrator widens a filter's gate; at twice this it forces the
	// fix through and resets the gate. Mirrors GateConfig.MaxRejectionRun.
	MaxRejectionRun int

	// NHCInterval is how often the non-holonomic constraint is applied
	// when enabled. ZUPTInterval throttles zero-velocity updates while
	// the platform is stationary.
	NHCInterval  time.Duration
	ZUPTInterval time.Duration

	// StationaryWindow and the two thresholds drive the built-in
	// stationarity detector feeding ZUPT.
	StationaryWindow     int     // readings
	StationaryAccelVar   float64 // (m/s^2)^2
	StationaryGyroMagMax float64 // rad/s
}

func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Queues:               DefaultQueueConfig(),
		DrainInterval:        20 * time.Millisecond,
		MaxRestarts:          3,
		MaxRejectionRun:      10,
		NHCInterval:          1 * time.Second,
		ZUPTInterval:         250 * time.Millisecond,
		StationaryWindow:     50,
		StationaryAccelVar:   0.05,
		StationaryGyroMagMax: 0.03,
	}
}
