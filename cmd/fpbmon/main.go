// fpbmon is the operator tool: it mirrors the state of a remote
// patch-injection device over its HTTP polling protocol and exposes it as a
// TUI plus one-shot subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/config"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/logging"
)

var (
	flagConfig  string
	flagDevice  string
	flagVerbose bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "fpbmon",
	Short:         "Live mirror of a patch-injection device's slot and stream state",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagDevice != "" {
			cfg.DeviceURL = flagDevice
		}
		level := cfg.LogLevel
		if flagVerbose {
			level = "debug"
		}
		logger, err = logging.New(logging.Config{Format: cfg.LogFormat, Level: level})
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagDevice, "device", "", "device base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(clearAllCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(devicesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fpbmon:", err)
		os.Exit(1)
	}
}
