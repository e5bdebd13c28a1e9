package params

import "time"

// CleanConfig tunes the GPS pre-filters applied before readings reach
// a filter. These reject fixes that are plainly wrong rather than
// merely noisy; the innovation gate handles the noisy ones.
type CleanConfig struct {
	// AccuracyThreshold rejects fixes whose reported accuracy is worse
	// than this, meters. Zero or negative accuracies are also rejected.
	AccuracyThreshold float64

	// TeleportSpeedFactor determines teleportation. If the speed
	// calculated from consecutive fixes is X times the reported speed,
	// the fix teleported.
	TeleportSpeedFactor float64

	// TeleportMinDistance is the minimum displacement between fixes to
	// consider teleportation. Small displacements at near-zero reported
	// speed would otherwise trip the factor test.
	TeleportMinDistance float64

	// TeleportWindow bounds the teleportation test in time. Fixes
	// farther apart than this are signal loss, not teleportation.
	TeleportWindow time.Duration
}

func DefaultCleanConfig() *CleanConfig {
	return &CleanConfig{
		AccuracyThreshold:   100.0,
		TeleportSpeedFactor: 10.0,
		TeleportMinDistance: 25.0,
		TeleportWindow:      60 * time.Second,
	}
}
