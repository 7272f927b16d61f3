package main

import (
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/spf13/cobra"

	"sensorgeom/pkg/textio"
)

var gainFlags struct {
	sensors        string
	cortex         string
	subcortex      string
	corticalMap    string
	subcorticalMap string
	output         string
}

var gainCmd = &cobra.Command{
	Use:   "gain",
	Short: "Build the region-level SEEG gain matrix",
	Long: `Combines a dipole model over the cortical surface with an inverse-square
model over the subcortical surface and aggregates the vertex gains to
regions through the two region mappings. Surfaces are zip archives holding
vertices.txt and triangles.txt.`,
	Args: cobra.NoArgs,
	RunE: runGain,
}

func init() {
	f := gainCmd.Flags()
	f.StringVar(&gainFlags.sensors, "sensors", "", "Sensor positions as name x y z rows")
	f.StringVar(&gainFlags.cortex, "cortical-surface", "", "Cortical surface archive")
	f.StringVar(&gainFlags.subcortex, "subcortical-surface", "", "Subcortical surface archive")
	f.StringVar(&gainFlags.corticalMap, "cortical-mapping", "", "Cortical vertex to region mapping")
	f.StringVar(&gainFlags.subcorticalMap, "subcortical-mapping", "", "Subcortical vertex to region mapping")
	f.StringVar(&gainFlags.output, "output", "gain_inv-square.txt", "Output matrix file")
	for _, name := range []string{"sensors", "cortical-surface", "subcortical-surface", "cortical-mapping", "subcortical-mapping"} {
		gainCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(gainCmd)
}

func runGain(cmd *cobra.Command, args []string) error {
	_, sensors, err := textio.ReadPositions(gainFlags.sensors)
	if err != nil {
		return err
	}
	cortex, err := textio.ReadSurfaceZip(gainFlags.cortex)
	if err != nil {
		return err
	}
	subcortex, err := textio.ReadSurfaceZip(gainFlags.subcortex)
	if err != nil {
		return err
	}
	cortical, err := textio.ReadRegionMapping(gainFlags.corticalMap)
	if err != nil {
		return err
	}
	subcortical, err := textio.ReadRegionMapping(gainFlags.subcorticalMap)
	if err != nil {
		return err
	}

	g, err := cfg.GainBuilder().SEEG(sensors, cortex, subcortex, cortical, subcortical)
	if err != nil {
		return err
	}
	if err := textio.WriteMatrix(gainFlags.output, g); err != nil {
		return err
	}

	r, c := g.Dims()
	logs.WithTag("run_id", runID).
		WithTag("sensors", r).
		WithTag("regions", c).
		WithTag("output", gainFlags.output).
		Info("gain matrix written")
	return nil
}
