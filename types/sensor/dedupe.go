package sensor

import (
	"fmt"

	"github.com/golang/groupcache/lru"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/rovermap/insd/params"
)

// NewDedupePassLRUFunc returns a filter func for replayed streams, where
// logger apps are known to re-send records on flaky uploads. It reports
// true if the reading has not been seen recently.
func NewDedupePassLRUFunc() func(Reading) bool {
	dedupeCache := lru.New(params.DedupeCacheSize)
	return func(r Reading) bool {
		hash, err := hashstructure.Hash(r, hashstructure.FormatV2, nil)
		if err != nil {
			return false
		}
		key := fmt.Sprintf("%d", hash)
		if _, ok := dedupeCache.Get(key); ok {
			return false
		}
		dedupeCache.Add(key, true)
		return true
	}
}
