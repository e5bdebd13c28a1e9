/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rovermap/insd/common"
	"github.com/rovermap/insd/engine"
	"github.com/rovermap/insd/filter"
	"github.com/rovermap/insd/geo/clean"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/stream"
	"github.com/rovermap/insd/types/sensor"
	"github.com/spf13/cobra"
)

var optReplayFilter string

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded sensor logs from stdin",
	Long: `Reads NDJSON sensor readings from stdin, runs them through one
filter variant synchronously in record order, and emits a pose as NDJSON
on stdout after every GPS fix. Useful for tuning against recorded drives:

	zcat drive.ndjson.gz | insd replay --filter ekf > poses.ndjson`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)

		ctx, stop := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := replay(ctx, optReplayFilter); err != nil {
			log.Fatalln(err)
		}
	},
}

func replay(ctx context.Context, variant string) error {
	f, err := engine.NewFilter(variant, params.DefaultFilterConfig(), params.DefaultGateConfig())
	if err != nil {
		return err
	}
	monitor := filter.NewMonitor(100)
	meter := stream.NewTickMeter("replay", params.MeterLogInterval)
	defer meter.Stop()
	dedupe := sensor.NewDedupePassLRUFunc()
	enc := json.NewEncoder(os.Stdout)

	cleanCfg := params.DefaultCleanConfig()
	lines := stream.Lines(ctx, os.Stdin)
	decoded := stream.Transform(ctx, func(line []byte) sensor.Reading {
		r, err := sensor.Decode(line)
		if err != nil {
			slog.Debug("Dropped line", "error", err)
			return sensor.Reading{}
		}
		return r
	}, lines)
	passAccuracy := clean.FilterPoorAccuracy(cleanCfg)
	kept := stream.Filter(ctx, func(r sensor.Reading) bool {
		return r.Kind != sensor.KindUnknown &&
			passAccuracy(r) &&
			clean.FilterUltraHighSpeed(r) &&
			clean.FilterWildElevation(r)
	}, decoded)
	readings := clean.Teleportation(ctx, cleanCfg, kept)

	var lastAccel sensor.Reading
	var haveAccel bool
	var lastIMU time.Time
	var n, emitted int

	for r := range readings {
		if !dedupe(r) {
			continue
		}
		n++
		meter.Mark(r.Time)

		switch r.Kind {
		case sensor.KindAccel:
			lastAccel, haveAccel = r, true
		case sensor.KindGyro:
			if !haveAccel {
				continue
			}
			if lastIMU.IsZero() {
				lastIMU = r.Time
				continue
			}
			dt := r.Time.Sub(lastIMU).Seconds()
			lastIMU = r.Time
			if err := f.Predict(lastAccel.Values, r.Values, dt); err != nil {
				slog.Debug("Predict rejected", "error", err)
			}
		case sensor.KindGPS:
			out := f.UpdateGPSPosition(filter.GPSPosition{
				Lat: r.Lat, Lon: r.Lon, Alt: r.Alt, Accuracy: r.Accuracy,
			})
			monitor.Record(out)
			p := f.State()
			p.Time = r.Time
			if err := enc.Encode(&p); err != nil {
				return err
			}
			emitted++
		case sensor.KindMag:
			heading := common.WrapAngle(-math.Atan2(r.Values[1], r.Values[0]))
			monitor.Record(f.UpdateHeading(filter.Heading{Radians: heading}))
		case sensor.KindMotion:
			if r.Stationary {
				monitor.Record(f.ApplyZUPT())
			}
		}
	}

	for kind, s := range monitor.Stats() {
		slog.Info("NIS summary", "kind", kind, "dof", s.DOF,
			"n", s.Count, "mean", common.DecimalToFixed(s.Mean, 2),
			"consistent", s.Consistent())
	}
	slog.Info("Replay done", "readings", n, "poses", emitted)
	return nil
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.PersistentFlags().StringVar(&optReplayFilter, "filter", "ekf",
		"Filter variant to replay through (ekf, ukf, geokf)")
}
