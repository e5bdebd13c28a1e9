package stream

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/rovermap/insd/common"
)

// TickMeter counts readings flowing through a pipeline and logs
// throughput periodically.
type TickMeter struct {
	label    string
	interval time.Duration
	started  time.Time
	ticker   *time.Ticker
	nn       atomic.Uint64
	last     time.Time
	reg      metrics.Registry
	count    metrics.Counter
	meter    metrics.Meter
}

func NewTickMeter(label string, interval time.Duration) *TickMeter {
	reg := metrics.NewRegistry()
	tm := &TickMeter{
		label:    label,
		reg:      reg,
		interval: interval,
		started:  time.Now(),
		count:    metrics.NewCounter(),
		meter:    metrics.NewMeter(),
	}
	if err := reg.Register("count", tm.count); err != nil {
		panic(err)
	}
	if err := reg.Register("meter", tm.meter); err != nil {
		panic(err)
	}
	tm.ticker = time.NewTicker(interval)
	go tm.run()
	return tm
}

// Mark records one reading stamped at label time.
func (tm *TickMeter) Mark(label time.Time) {
	tm.last = label
	tm.nn.Add(1)
	tm.count.Inc(1)
	tm.meter.Mark(1)
}

func (tm *TickMeter) Count() uint64 {
	return tm.nn.Load()
}

func (tm *TickMeter) run() {
	for range tm.ticker.C {
		tm.log()
	}
}

func (tm *TickMeter) log() {
	snap := tm.meter.Snapshot()
	slog.Info("Read readings", "stream", tm.label,
		"n", humanize.Comma(snap.Count()),
		"read.last", tm.last.Format(time.DateTime),
		"rps", common.DecimalToFixed(snap.Rate1(), 0),
		"running", time.Since(tm.started).Round(time.Second))
}

func (tm *TickMeter) Stop() {
	if tm == nil || tm.ticker == nil {
		return
	}
	tm.ticker.Stop()
	tm.meter.Stop()
}
