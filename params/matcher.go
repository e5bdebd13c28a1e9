package params

// MatcherConfig tunes road snapping. The weights are deliberately
// configuration, not constants: the right balance between distance,
// heading and road class depends on GPS quality and road density.
type MatcherConfig struct {
	DistanceWeight float64
	HeadingWeight  float64
	ClassWeight    float64

	// MaxDistance is both the candidate query radius and the distance at
	// which the distance score reaches zero, meters.
	MaxDistance float64

	// MinScore is the no-match floor: a top candidate scoring below it
	// yields no match at all.
	MinScore float64

	// MaxClass is the highest road class ordinal expected in tile data,
	// used to normalize the class prior.
	MaxClass int
}

func DefaultMatcherConfig() *MatcherConfig {
	return &MatcherConfig{
		DistanceWeight: 0.55,
		HeadingWeight:  0.30,
		ClassWeight:    0.15,
		MaxDistance:    50.0,
		MinScore:       0.25,
		MaxClass:       7,
	}
}
