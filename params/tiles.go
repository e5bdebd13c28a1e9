package params

// TileConfig governs road tile keying and the built-index cache.
type TileConfig struct {
	// CellLevel is the S2 cell level used as the tile key.
	// Level 13 cells are about a kilometer across.
	CellLevel int

	// IndexCacheSize is the LRU capacity for built per-tile road indexes,
	// so re-entering a recent tile does not rebuild.
	IndexCacheSize int
}

func DefaultTileConfig() *TileConfig {
	return &TileConfig{
		CellLevel:      13,
		IndexCacheSize: 16,
	}
}
