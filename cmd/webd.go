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
	"log"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rovermap/insd/daemon/webd"
	"github.com/rovermap/insd/engine"
	"github.com/rovermap/insd/match"
	"github.com/rovermap/insd/metrics/influxdb"
	"github.com/rovermap/insd/params"
	"github.com/rovermap/insd/roads"
	"github.com/spf13/cobra"
)

var optHTTPAddr string
var optFilters string
var optRoadsPath string

// webdCmd represents the serve command
var webdCmd = &cobra.Command{
	Use:   "webd",
	Short: "Start the pose daemon webserver",
	Long: `Runs the filter engine and serves it over HTTP:
sensor intake on POST /populate, pose reads on GET /state,
consistency stats on GET /nis/{filter}, live streaming on /ws.`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)
		slog.Info("webd.Run")

		ctx, stop := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		filters, err := engine.NewFilters(strings.Split(optFilters, ","),
			params.DefaultFilterConfig(), params.DefaultGateConfig())
		if err != nil {
			log.Fatalln(err)
		}
		eng, err := engine.New(params.DefaultEngineConfig(), filters...)
		if err != nil {
			log.Fatalln(err)
		}

		if optRoadsPath != "" {
			tileCfg := params.DefaultTileConfig()
			source, err := roads.NewFileSource(optRoadsPath, tileCfg.CellLevel)
			if err != nil {
				log.Fatalln(err)
			}
			tm, err := roads.NewTileManager(tileCfg, source)
			if err != nil {
				log.Fatalln(err)
			}
			eng.SetRoadMatching(tm, match.New(params.DefaultMatcherConfig()))
			slog.Info("Road matching enabled", "segments", source.Len(), "file", optRoadsPath)
		}

		go func() {
			if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Engine stopped", "error", err)
			}
		}()
		if params.InfluxEnabled() {
			go influxdb.Sink(ctx, 10*time.Second)
		}

		server := webd.NewWebDaemon(&params.WebDaemonConfig{
			ListenerConfig: params.ListenerConfig{
				Network: "tcp",
				Address: optHTTPAddr,
			},
		}, eng)
		if err := server.Run(ctx); err != nil {
			log.Fatalln(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(webdCmd)

	defaults := params.DefaultWebDaemonConfig()
	pFlags := webdCmd.PersistentFlags()
	pFlags.StringVar(&optHTTPAddr, "address", defaults.Address, "HTTP address to listen on")
	pFlags.StringVar(&optFilters, "filters", "ekf,ukf,geokf", "Comma-separated filter variants to run")
	pFlags.StringVar(&optRoadsPath, "roads", "", "Road segments NDJSON file; enables map matching and GET /road")
}
