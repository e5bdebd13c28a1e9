package influxdb

import (
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/rovermap/insd/types/pose"
)

// ExportPoses posts pose snapshots to an InfluxDB Write API.
// Because it accepts a slice, use batches. The Write API will buffer and flush.
// The last error encountered is returned.
func ExportPoses(url, token, org, bucket string, poses []*pose.Pose) error {
	opts := influxdb2.DefaultOptions()
	opts.SetPrecision(time.Millisecond)
	client := influxdb2.NewClientWithOptions(url, token, opts)
	writeAPI := client.WriteAPI(org, bucket)

	// Errors returns a channel for reading errors which occur during async
	// writes. Must be called before performing any writes for errors to be
	// collected. The chan is unbuffered and must be drained or the writer
	// will block.
	errorsCh := writeAPI.Errors()
	var err error
	wait := sync.WaitGroup{}
	wait.Add(1)
	go func() {
		defer wait.Done()
		for e := range errorsCh {
			if e != nil {
				err = e
			}
		}
	}()

	for _, p := range poses {
		pt := influxdb2.NewPointWithMeasurement("pose").
			SetTime(p.Time).
			AddTag("filter", p.Filter).
			AddField("latitude", p.Lat).
			AddField("longitude", p.Lon).
			AddField("elevation", p.Alt).
			AddField("east", p.Position[0]).
			AddField("north", p.Position[1]).
			AddField("up", p.Position[2]).
			AddField("speed", p.Speed()).
			AddField("heading", p.HeadingRad()).
			AddField("yaw", p.Yaw()).
			AddField("pos_var", p.PosVar).
			AddField("vel_var", p.VelVar).
			AddField("orient_var", p.OrientVar)

		if p.Degraded {
			pt.AddField("degraded", 1)
		}
		for kind, streak := range p.RejectionStreaks {
			pt.AddField("rejections_"+kind, streak)
		}
		writeAPI.WritePoint(pt)
	}
	writeAPI.Flush()
	client.Close()
	wait.Wait()
	return err
}
