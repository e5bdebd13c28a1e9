package roads

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang/geo/s2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rovermap/insd/params"
)

// TileKey identifies one road tile: an S2 cell at the configured level.
type TileKey s2.CellID

func (k TileKey) String() string { return s2.CellID(k).ToToken() }

// KeyForLatLon returns the tile covering a coordinate at the given level.
func KeyForLatLon(lat, lon float64, level int) TileKey {
	return TileKey(s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(level))
}

// TileSource loads the raw segments of one tile. Implementations may hit
// disk or network; the manager serializes loads per key.
type TileSource interface {
	LoadTile(ctx context.Context, key TileKey) ([]*Segment, error)
}

// TileSourceFunc adapts a function to TileSource.
type TileSourceFunc func(ctx context.Context, key TileKey) ([]*Segment, error)

func (f TileSourceFunc) LoadTile(ctx context.Context, key TileKey) ([]*Segment, error) {
	return f(ctx, key)
}

// TileManager resolves coordinates to built road indexes, caching the
// built indexes in an LRU so crossing back into a recent tile is free.
// Indexes are built off to the side and swapped in whole; readers never
// see a half-built index.
type TileManager struct {
	cfg    *params.TileConfig
	source TileSource
	cache  *lru.Cache[TileKey, *Index]

	mu       sync.Mutex
	building map[TileKey]chan struct{}
}

func NewTileManager(cfg *params.TileConfig, source TileSource) (*TileManager, error) {
	if cfg == nil {
		cfg = params.DefaultTileConfig()
	}
	cache, err := lru.New[TileKey, *Index](cfg.IndexCacheSize)
	if err != nil {
		return nil, err
	}
	return &TileManager{
		cfg:      cfg,
		source:   source,
		cache:    cache,
		building: make(map[TileKey]chan struct{}),
	}, nil
}

// IndexFor returns the built index covering the coordinate, building it
// from the source on a cache miss. Concurrent callers for the same tile
// share one build.
func (m *TileManager) IndexFor(ctx context.Context, lat, lon float64) (*Index, error) {
	key := KeyForLatLon(lat, lon, m.cfg.CellLevel)
	for {
		if idx, ok := m.cache.Get(key); ok {
			return idx, nil
		}

		m.mu.Lock()
		done, inflight := m.building[key]
		if !inflight {
			done = make(chan struct{})
			m.building[key] = done
		}
		m.mu.Unlock()

		if inflight {
			select {
			case <-done:
				continue // builder finished, re-check the cache
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		idx, err := m.build(ctx, key)

		m.mu.Lock()
		delete(m.building, key)
		m.mu.Unlock()
		close(done)

		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}

func (m *TileManager) build(ctx context.Context, key TileKey) (*Index, error) {
	start := time.Now()
	segs, err := m.source.LoadTile(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load tile %s: %w", key, err)
	}
	idx := FromSegments(segs)
	m.cache.Add(key, idx)
	slog.Debug("Built road tile index", "tile", key.String(),
		"segments", idx.Len(), "elapsed", time.Since(start).Round(time.Microsecond))
	return idx, nil
}

// Evict drops one tile from the cache, for sources whose data changed.
func (m *TileManager) Evict(key TileKey) { m.cache.Remove(key) }
