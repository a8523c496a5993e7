// Command fridge-sensor watches a refrigerator's door, load cell and
// temperature probe and reports state changes to a host over a serial link.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sweeney/fridge-sensor/internal/config"
)

// options are the command line overrides. Empty values keep the config file's.
type options struct {
	configPath string
	serialPort string
	broker     string
	httpAddr   string
	logLevel   string
	printState bool
}

func newRootCmd() *cobra.Command {
	var o options

	root := &cobra.Command{
		Use:   "fridge-sensor",
		Short: "Monitor a fridge and report to the host over serial.",
		Long: `Daemon that watches the door sensor, load cell and temperature probe.

Door changes, confirmed weight changes and a status report every 30 seconds
are written to the host as JSON lines. An open door sounds the buzzer after
20 seconds and faster after 30. The clock is synchronized with the host at
startup and hourly.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o.configPath = configPathFor(cmd, o.configPath)
			return run(o)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	root.Flags().StringVar(&o.serialPort, "serial", "", "host serial device (overrides config)")
	root.Flags().StringVar(&o.broker, "broker", "", "MQTT broker address for the telemetry mirror (overrides config)")
	root.Flags().StringVar(&o.httpAddr, "http", "", "HTTP status address (overrides config)")
	root.Flags().StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	root.Flags().BoolVar(&o.printState, "print-state", false, "print current sensor readings and exit")

	root.AddCommand(newCalibrateCmd(&o))
	return root
}

// configPathFor returns "" when --config was left at its default, so a
// missing default file is not an error.
func configPathFor(cmd *cobra.Command, path string) string {
	if f := cmd.Flags().Lookup("config"); f != nil && !f.Changed {
		return ""
	}
	return path
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
