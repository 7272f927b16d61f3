package main

import (
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/spf13/cobra"

	"sensorgeom/pkg/projection"
	"sensorgeom/pkg/textio"
)

var projectionFlags struct {
	sensors string
	centers string
	output  string
}

var projectionCmd = &cobra.Command{
	Use:   "projection",
	Short: "Compute the inverse-square projection matrix",
	Long: `Computes 1/distance^2 between every sensor and every region center. By
default entries are divided by their 95th percentile and capped at 1.`,
	Args: cobra.NoArgs,
	RunE: runProjection,
}

func init() {
	f := projectionCmd.Flags()
	f.StringVar(&projectionFlags.sensors, "sensors", "", "Sensor positions as name x y z rows")
	f.StringVar(&projectionFlags.centers, "centers", "", "Region centers as name x y z rows")
	f.StringVar(&projectionFlags.output, "output", "projection.txt", "Output matrix file")
	f.Bool("normalize", true, "Divide by the configured percentile")
	f.Float64("percentile", 95, "Percentile used for normalization")
	f.Bool("ceil", true, "Cap normalized values at the ceiling")
	f.Float64("ceiling", 1, "Upper bound applied when capping")
	projectionCmd.MarkFlagRequired("sensors")
	projectionCmd.MarkFlagRequired("centers")
	rootCmd.AddCommand(projectionCmd)
}

func runProjection(cmd *cobra.Command, args []string) error {
	opts := projectionOptions(cmd)

	_, sensors, err := textio.ReadPositions(projectionFlags.sensors)
	if err != nil {
		return err
	}
	_, centers, err := textio.ReadPositions(projectionFlags.centers)
	if err != nil {
		return err
	}

	p, err := projection.Matrix(sensors, centers, opts)
	if err != nil {
		return err
	}
	if err := textio.WriteMatrix(projectionFlags.output, p); err != nil {
		return err
	}

	logs.WithTag("run_id", runID).
		WithTag("sensors", len(sensors)).
		WithTag("regions", len(centers)).
		WithTag("output", projectionFlags.output).
		Info("projection matrix written")
	return nil
}

// projectionOptions starts from the configuration and applies the flags
// that were set explicitly
func projectionOptions(cmd *cobra.Command) projection.Options {
	opts := cfg.ProjectionOptions()
	f := cmd.Flags()
	if f.Changed("normalize") {
		opts.Normalize, _ = f.GetBool("normalize")
	}
	if f.Changed("percentile") {
		opts.Percentile, _ = f.GetFloat64("percentile")
	}
	if f.Changed("ceil") {
		opts.Ceil, _ = f.GetBool("ceil")
	}
	if f.Changed("ceiling") {
		opts.Ceiling, _ = f.GetFloat64("ceiling")
	}
	return opts
}
