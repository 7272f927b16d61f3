package main

import (
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"sensorgeom/internal/models"
	"sensorgeom/pkg/contacts"
	"sensorgeom/pkg/textio"
)

var contactsFlags struct {
	volume     string
	affine     string
	electrodes []string
	output     string
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Locate SEEG contacts along labeled electrodes",
	Long: `Reads a sparse label volume and estimates the contact positions of every
electrode from the periodicity of its voxel cloud along the principal axis.
Electrodes are given as name=label pairs; contacts are written as
"name x y z" rows named after the electrode and a 1-based index.`,
	Args: cobra.NoArgs,
	RunE: runContacts,
}

func init() {
	f := contactsCmd.Flags()
	f.StringVar(&contactsFlags.volume, "volume", "", "Label volume file")
	f.StringVar(&contactsFlags.affine, "affine", "", "4x4 voxel to world transform (identity when empty)")
	f.StringSliceVar(&contactsFlags.electrodes, "electrode", nil, "Electrode as name=label, repeatable")
	f.StringVar(&contactsFlags.output, "output", "seeg.xyz", "Output positions file")
	contactsCmd.MarkFlagRequired("volume")
	contactsCmd.MarkFlagRequired("electrode")
	rootCmd.AddCommand(contactsCmd)
}

func runContacts(cmd *cobra.Command, args []string) error {
	electrodes, err := parseElectrodes(contactsFlags.electrodes)
	if err != nil {
		return err
	}

	loc := cfg.Localizer()
	if err := loc.Validate(); err != nil {
		return err
	}

	var affine *mat.Dense
	if contactsFlags.affine != "" {
		if affine, err = textio.ReadAffine(contactsFlags.affine); err != nil {
			return err
		}
	}

	vol, err := textio.ReadLabelVolume(contactsFlags.volume, affine)
	if err != nil {
		return err
	}

	found, err := loc.LocateAll(vol, electrodes)
	if err != nil {
		return err
	}

	perElectrode := make(map[string]int, len(electrodes))
	names := make([]string, len(found))
	points := make([]r3.Vec, len(found))
	for i, c := range found {
		names[i] = c.Name
		points[i] = c.Position
		perElectrode[c.Electrode]++
	}
	for _, e := range electrodes {
		logs.WithTag("run_id", runID).
			WithTag("electrode", e.Name).
			WithTag("label", e.Label).
			WithTag("contacts", perElectrode[e.Name]).
			Info("electrode contacts located")
	}
	if err := textio.WritePositions(contactsFlags.output, names, points); err != nil {
		return err
	}

	logs.WithTag("run_id", runID).
		WithTag("electrodes", len(electrodes)).
		WithTag("contacts", len(found)).
		WithTag("output", contactsFlags.output).
		Info("contacts written")
	return nil
}

// parseElectrodes reads name=label pairs
func parseElectrodes(specs []string) ([]contacts.Electrode, error) {
	out := make([]contacts.Electrode, 0, len(specs))
	for _, s := range specs {
		name, value, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, errors.New("electrode must be given as name=label").
				WithType(models.ErrTypeMalformedInput).
				WithTag("electrode", s)
		}
		label, err := strconv.Atoi(value)
		if err != nil {
			return nil, errors.New("electrode label is not an integer").
				WithType(models.ErrTypeMalformedInput).
				WithTag("electrode", s).
				Wrap(err)
		}
		out = append(out, contacts.Electrode{Name: name, Label: label})
	}
	return out, nil
}
