// Package cmd wires the kvbfs mount binary together: cobra command-line
// parsing and flag binding (grounded on gcsfuse's cmd/root.go), a
// daemonize/osext foreground-vs-background dance for the actual mount
// (grounded on cmd/legacy_main.go), and the glue between cfg.Config and
// internal/vfs that produces a ready-to-serve file system.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kvbfs-project/kvbfs/cfg"
)

var (
	bindErr      error
	unmarshalErr error
	mountConfig  cfg.Config

	foreground     bool
	debugMode      bool
	singleThreaded bool
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "kvbfs [flags] <mountpoint>",
	Short:   "Mount a key-value-backed, agent-oriented file system",
	Version: version,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}

		mountPoint, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("canonicalizing mount point: %w", err)
		}

		if debugMode {
			foreground = true
			mountConfig.Logging.Severity = cfg.TraceLogSeverity
		}

		return runMount(cmd.Context(), mountPoint, &mountConfig, mountOptions{
			Foreground:     foreground,
			SingleThreaded: singleThreaded,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&foreground, "foreground", "f", false, "Run in the foreground instead of daemonizing.")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "Enable trace logging; implies --foreground.")
	rootCmd.PersistentFlags().BoolVarP(&singleThreaded, "single-threaded", "s", false, "Serve one dispatcher connection at a time instead of one goroutine per connection.")

	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())

	cobra.OnInitialize(func() {
		unmarshalErr = viper.Unmarshal(&mountConfig, viper.DecodeHook(cfg.DecodeHook()), func(dc *mapstructure.DecoderConfig) {
			dc.TagName = "yaml"
		})
	})
}

// Execute runs the root command, printing any error to stderr and exiting
// non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
