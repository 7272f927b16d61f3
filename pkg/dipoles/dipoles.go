// Package dipoles generates source dipole sets (position + orientation)
// for external forward solvers.
package dipoles

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"sensorgeom/internal/models"
	"sensorgeom/pkg/surface"
)

// OrientationSource selects how dipole orientations are obtained
type OrientationSource int

const (
	// Triplets places three orthogonal unit dipoles (x, y, z) at every
	// position
	Triplets OrientationSource = iota

	// Explicit uses caller supplied orientation vectors
	Explicit

	// FromFaces derives orientations as vertex normals of the surface built
	// from the positions and a triangle list
	FromFaces
)

// String returns the name used in configuration and on the command line
func (o OrientationSource) String() string {
	switch o {
	case Triplets:
		return "triplets"
	case Explicit:
		return "explicit"
	case FromFaces:
		return "faces"
	default:
		return "unknown"
	}
}

// ParseOrientationSource is the inverse of OrientationSource.String
func ParseOrientationSource(s string) (OrientationSource, error) {
	for _, o := range []OrientationSource{Triplets, Explicit, FromFaces} {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, errors.New("unknown orientation source").
		WithType(models.ErrTypeMalformedInput).
		WithTag("source", s)
}

// Dipole is a point source with an orientation
type Dipole struct {
	Position    r3.Vec
	Orientation r3.Vec
}

// Request describes a dipole set. Orientations is read for Explicit and
// Triangles for FromFaces.
type Request struct {
	Source       OrientationSource
	Positions    []r3.Vec
	Orientations []r3.Vec
	Triangles    [][3]int
}

// Generate builds the dipole set described by req
func Generate(req Request) ([]Dipole, error) {
	switch req.Source {
	case Triplets:
		return triplets(req.Positions), nil

	case Explicit:
		if len(req.Orientations) != len(req.Positions) {
			return nil, errors.New("orientations and positions differ in length").
				WithType(models.ErrTypeMalformedInput).
				WithTag("positions", len(req.Positions)).
				WithTag("orientations", len(req.Orientations))
		}
		return pair(req.Positions, req.Orientations), nil

	case FromFaces:
		surf, err := surface.New(req.Positions, req.Triangles)
		if err != nil {
			return nil, err
		}
		return pair(req.Positions, surf.VertexNormals()), nil
	}

	return nil, errors.New("unknown orientation source").
		WithType(models.ErrTypeMalformedInput).
		WithTag("source", int(req.Source))
}

// triplets repeats every position three times with the identity axes
func triplets(positions []r3.Vec) []Dipole {
	axes := [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}
	out := make([]Dipole, 0, 3*len(positions))
	for _, p := range positions {
		for _, a := range axes {
			out = append(out, Dipole{Position: p, Orientation: a})
		}
	}
	return out
}

func pair(positions, orientations []r3.Vec) []Dipole {
	out := make([]Dipole, len(positions))
	for i := range positions {
		out[i] = Dipole{Position: positions[i], Orientation: orientations[i]}
	}
	return out
}
