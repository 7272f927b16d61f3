package main

import (
	"fmt"
	"os"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	"sensorgeom/pkg/config"
)

var (
	configPath string
	logLevel   string

	// cfg is loaded before any subcommand runs
	cfg *config.Config

	// runID tags every log entry of one invocation
	runID string
)

var rootCmd = &cobra.Command{
	Use:   "sensorgeom",
	Short: "Sensor geometry numerics for intracranial recordings",
	Long: `sensorgeom localizes SEEG contacts in labeled volumes, builds
region-level gain matrices from cortical and subcortical surfaces,
computes inverse-square projection matrices and writes source dipole sets.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "sensorgeom.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Overrides logging.level from the configuration")
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg = c

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logs.SetLevel(logs.ParseLevel(cfg.Logging.Level))
	logs.Encoder = json.Marshal
	if cfg.Logging.Indent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}
	errors.Encoder = json.Marshal

	runID = uuid.NewString()
	logs.WithTag("run_id", runID).
		WithTag("command", cmd.Name()).
		WithTag("config", configPath).
		Debug("configuration loaded")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
