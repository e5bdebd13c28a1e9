package influxdb

import (
	"context"
	"log/slog"
	"time"

	"github.com/rovermap/insd/events"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/types/pose"
)

// Sink subscribes to the pose feed and exports in timed batches.
// It is best-effort telemetry: export errors are logged, never fatal,
// and a slow InfluxDB endpoint drops batches rather than backpressuring
// the engine.
func Sink(ctx context.Context, flushEvery time.Duration) {
	if !params.InfluxEnabled() {
		return
	}
	ch := make(chan *pose.Pose, 256)
	sub := events.PoseUpdateFeed.Subscribe(ch)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	batch := make([]*pose.Pose, 0, 256)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := ExportPoses(params.INFLUXDB_URL, params.INFLUXDB_TOKEN,
			params.INFLUXDB_ORG, params.INFLUXDB_BUCKET, batch); err != nil {
			slog.Warn("Influx export failed", "n", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case err := <-sub.Err():
			slog.Warn("Pose feed subscription closed", "error", err)
			flush()
			return
		case p := <-ch:
			batch = append(batch, p)
		case <-ticker.C:
			flush()
		}
	}
}
