package roads

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
)

// FileSource serves tiles from a segments NDJSON file loaded once at
// construction. One segment per line:
//
//	{"id":17,"name":"NW Everett St","class":3,"geometry":[[-122.68,45.52],[-122.67,45.52]]}
//
// Geometry vertices are [lon, lat]. Segments are bucketed under every
// tile their vertices touch, so a polyline crossing a cell boundary is
// served from both tiles.
type FileSource struct {
	level int
	tiles map[TileKey][]*Segment
	count int
}

type segmentRecord struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	Class    int          `json:"class"`
	Geometry [][2]float64 `json:"geometry"`
}

func NewFileSource(path string, level int) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fs := &FileSource{level: level, tiles: make(map[TileKey][]*Segment)}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var rec segmentRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("segments %s line %d: %w", path, n, err)
		}
		if len(rec.Geometry) < 2 {
			continue
		}
		seg := &Segment{ID: rec.ID, Name: rec.Name, Class: rec.Class}
		for _, v := range rec.Geometry {
			seg.Geometry = append(seg.Geometry, orb.Point{v[0], v[1]})
		}
		fs.add(seg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("segments %s: %w", path, err)
	}
	return fs, nil
}

func (fs *FileSource) add(seg *Segment) {
	fs.count++
	seen := make(map[TileKey]bool, 2)
	for _, p := range seg.Geometry {
		key := KeyForLatLon(p.Lat(), p.Lon(), fs.level)
		if !seen[key] {
			seen[key] = true
			fs.tiles[key] = append(fs.tiles[key], seg)
		}
	}
}

// Len reports the number of segments loaded.
func (fs *FileSource) Len() int { return fs.count }

func (fs *FileSource) LoadTile(_ context.Context, key TileKey) ([]*Segment, error) {
	return fs.tiles[key], nil
}
