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
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var optVerbosity int

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "insd",
	Short: "Inertial navigation pose daemon",
	Long: `insd fuses IMU, GPS and magnetometer streams into pose estimates
and snaps them onto the road network. Variants of the pose filter run
side by side so their estimates can be compared live.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&optVerbosity, "verbose", "v", 0,
		"Verbosity level: 0=info, 1=debug, negative quiets to warn/error")
	viper.SetEnvPrefix("INSD")
	viper.AutomaticEnv()
}

// setDefaultSlog maps the verbosity flag onto the default slog level.
func setDefaultSlog(cmd *cobra.Command, args []string) {
	switch {
	case optVerbosity > 0:
		slog.SetLogLoggerLevel(slog.LevelDebug)
	case optVerbosity == 0:
		slog.SetLogLoggerLevel(slog.LevelInfo)
	case optVerbosity == -1:
		slog.SetLogLoggerLevel(slog.LevelWarn)
	default:
		slog.SetLogLoggerLevel(slog.LevelError)
	}
}
