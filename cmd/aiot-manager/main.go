package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configDir string

// Command is the root of the cli tree; subcommands register themselves
// in their init.
var Command = &cobra.Command{
	Use:   "aiot-manager",
	Short: "room sensor telemetry bridge",
	Long: `aiot-manager bridges room sensors to downstream consumers:
ingest subscribes to the raw sensor topic and stores readings in SQLite,
publish aggregates stored readings into 5-minute windows and emits one
record per device per window over MQTT.`,
}

func init() {
	Command.PersistentFlags().StringVar(&configDir, "config-dir", ".",
		"directory holding application.yml")
}

func main() {
	if err := Command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
