package main

import (
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/spf13/cobra"

	"sensorgeom/pkg/dipoles"
	"sensorgeom/pkg/textio"
)

var dipolesFlags struct {
	source       string
	positions    string
	orientations string
	surface      string
	output       string
}

var dipolesCmd = &cobra.Command{
	Use:   "dipoles",
	Short: "Write a source dipole set",
	Long: `Writes "x y z ox oy oz" rows for an external forward solver.

  triplets   three unit dipoles along x, y and z at every position
  explicit   positions paired with an orientations file
  faces      surface vertices oriented along their vertex normals`,
	Args: cobra.NoArgs,
	RunE: runDipoles,
}

func init() {
	f := dipolesCmd.Flags()
	f.StringVar(&dipolesFlags.source, "source", dipoles.Triplets.String(), "Orientation source: triplets, explicit or faces")
	f.StringVar(&dipolesFlags.positions, "positions", "", "Positions as x y z rows (triplets, explicit)")
	f.StringVar(&dipolesFlags.orientations, "orientations", "", "Orientations as x y z rows (explicit)")
	f.StringVar(&dipolesFlags.surface, "surface", "", "Surface archive (faces)")
	f.StringVar(&dipolesFlags.output, "output", "dipoles.txt", "Output dipole file")
	rootCmd.AddCommand(dipolesCmd)
}

func runDipoles(cmd *cobra.Command, args []string) error {
	source, err := dipoles.ParseOrientationSource(dipolesFlags.source)
	if err != nil {
		return err
	}

	req := dipoles.Request{Source: source}
	switch source {
	case dipoles.FromFaces:
		surf, err := textio.ReadSurfaceZip(dipolesFlags.surface)
		if err != nil {
			return err
		}
		req.Positions = surf.Vertices
		req.Triangles = surf.Triangles

	default:
		if req.Positions, err = textio.ReadPoints(dipolesFlags.positions); err != nil {
			return err
		}
		if source == dipoles.Explicit {
			if req.Orientations, err = textio.ReadPoints(dipolesFlags.orientations); err != nil {
				return err
			}
		}
	}

	set, err := dipoles.Generate(req)
	if err != nil {
		return err
	}
	if err := textio.WriteDipoles(dipolesFlags.output, set); err != nil {
		return err
	}

	logs.WithTag("run_id", runID).
		WithTag("source", source).
		WithTag("dipoles", len(set)).
		WithTag("output", dipolesFlags.output).
		Info("dipoles written")
	return nil
}
