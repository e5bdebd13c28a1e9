package engine

import (
	"fmt"

	"github.com/rovermap/insd/filter"
	"github.com/rovermap/insd/filter/ekf"
	"github.com/rovermap/insd/filter/geokf"
	"github.com/rovermap/insd/filter/ukf"
	"github.com/rovermap/insd/params"
)

// NewFilter constructs one filter variant by name. The set is closed;
// unknown names are an error, not a fallback.
func NewFilter(name string, cfg *params.FilterConfig, gateCfg *params.GateConfig) (filter.Filter, error) {
	switch name {
	case "ekf":
		return ekf.New(cfg, gateCfg), nil
	case "ukf":
		return ukf.New(cfg, nil, gateCfg), nil
	case "geokf":
		return geokf.New(cfg), nil
	}
	return nil, fmt.Errorf("engine: unknown filter variant %q", name)
}

// NewFilters constructs the named variants in order.
func NewFilters(names []string, cfg *params.FilterConfig, gateCfg *params.GateConfig) ([]filter.Filter, error) {
	out := make([]filter.Filter, 0, len(names))
	for _, n := range names {
		f, err := NewFilter(n, cfg, gateCfg)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
