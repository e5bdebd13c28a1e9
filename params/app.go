package params

import (
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
	homedir "github.com/mitchellh/go-homedir"
)

func init() {
	metrics.Enabled = true
}

var (
	CacheLastKnownTTL = 1 * time.Minute
	CacheLastMatchTTL = 30 * time.Second
)

var DatadirRoot = func() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".insd"
	}
	return filepath.Join(home, ".insd")
}()

// MeterLogInterval is how often stream meters report throughput.
var MeterLogInterval = 30 * time.Second

// DedupeCacheSize bounds the LRU used to drop replayed duplicate
// sensor records.
var DedupeCacheSize = 10_000
