// Package gain builds sensor x source forward model matrices for SEEG.
//
// Cortical sources are modelled as oriented dipoles along the surface
// normal; subcortical sources, which lack reliable normals, fall off with
// the inverse squared distance. Both are weighted by vertex area so the sum
// over vertices approximates an integral over the surface. Vertex columns
// are finally summed into region columns through an indicator matrix.
package gain

import (
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"sensorgeom/internal/models"
	"sensorgeom/pkg/surface"
)

// Sigma is the tissue conductivity used by the dipole model
const Sigma = 1.0

// Builder computes gain matrices. Rows (sensors) are independent, so they
// are split across NumCores workers; results do not depend on NumCores.
type Builder struct {
	// NumCores is the number of workers; values below 2 run serially
	NumCores int

	// Conductivity replaces Sigma when positive
	Conductivity float64

	// Strict turns non-finite entries caused by coincident points into an
	// error instead of a logged warning
	Strict bool
}

// NewBuilder returns a builder using every available core
func NewBuilder() Builder {
	return Builder{NumCores: runtime.NumCPU(), Conductivity: Sigma}
}

func (b Builder) sigma() float64 {
	if b.Conductivity > 0 {
		return b.Conductivity
	}
	return Sigma
}

// Dipole returns the sensors x vertices gain of unit dipoles oriented along
// orientations and weighted by areas:
//
//	g(s, v) = area_v * (ori_v . a) / |a|^3 / (4 pi sigma),  a = sensor_s - vertex_v
func (b Builder) Dipole(vertices, orientations []r3.Vec, areas []float64, sensors []r3.Vec) (*mat.Dense, error) {
	if len(orientations) != len(vertices) || len(areas) != len(vertices) {
		return nil, errors.New("vertices, orientations and areas differ in length").
			WithType(models.ErrTypeMalformedInput).
			WithTag("vertices", len(vertices)).
			WithTag("orientations", len(orientations)).
			WithTag("areas", len(areas))
	}

	scale := 4.0 * math.Pi * b.sigma()
	g := newMatrix(len(sensors), len(vertices))
	b.fillRows(len(sensors), func(s int, row []float64) {
		for v, vert := range vertices {
			a := r3.Sub(sensors[s], vert)
			na := r3.Norm(a)
			row[v] = areas[v] * (r3.Dot(orientations[v], a) / (na * na * na)) / scale
		}
	}, g)
	return g, b.checkFinite(g, "dipole")
}

// InverseSquare returns the sensors x vertices gain of unoriented sources:
//
//	g(s, v) = area_v / |sensor_s - vertex_v|^2
func (b Builder) InverseSquare(vertices []r3.Vec, areas []float64, sensors []r3.Vec) (*mat.Dense, error) {
	if len(areas) != len(vertices) {
		return nil, errors.New("vertices and areas differ in length").
			WithType(models.ErrTypeMalformedInput).
			WithTag("vertices", len(vertices)).
			WithTag("areas", len(areas))
	}

	g := newMatrix(len(sensors), len(vertices))
	b.fillRows(len(sensors), func(s int, row []float64) {
		for v, vert := range vertices {
			row[v] = areas[v] / r3.Norm2(r3.Sub(sensors[s], vert))
		}
	}, g)
	return g, b.checkFinite(g, "inverse_square")
}

// SEEG builds the sensors x regions gain matrix: dipoles on the cortical
// surface along its vertex normals, inverse-square sources on the
// subcortical surface, concatenated and summed per region.
func (b Builder) SEEG(sensors []r3.Vec, cortex, subcortex *surface.Surface, cortical, subcortical models.RegionMapping) (*mat.Dense, error) {
	mapping := cortical.Concat(subcortical)
	nVertices := len(cortex.Vertices) + len(subcortex.Vertices)
	if len(sensors) == 0 || nVertices == 0 {
		return nil, errors.New("gain matrix needs sensors and source vertices").
			WithType(models.ErrTypeMalformedInput).
			WithTag("sensors", len(sensors)).
			WithTag("vertices", nVertices)
	}
	if len(cortical) != len(cortex.Vertices) || len(subcortical) != len(subcortex.Vertices) {
		return nil, errors.New("region mapping does not match vertex count").
			WithType(models.ErrTypeMalformedInput).
			WithTag("cortical_vertices", len(cortex.Vertices)).
			WithTag("cortical_mapping", len(cortical)).
			WithTag("subcortical_vertices", len(subcortex.Vertices)).
			WithTag("subcortical_mapping", len(subcortical))
	}

	regions := RegionList(mapping)
	indicator := RegionIndicator(nVertices, len(regions), mapping)

	cort, err := b.Dipole(cortex.Vertices, cortex.VertexNormals(), cortex.VertexAreas(), sensors)
	if err != nil {
		return nil, errors.New("cortical gain failed").WithType(errors.Type(err)).Wrap(err)
	}
	sub, err := b.InverseSquare(subcortex.Vertices, subcortex.VertexAreas(), sensors)
	if err != nil {
		return nil, errors.New("subcortical gain failed").WithType(errors.Type(err)).Wrap(err)
	}

	logs.WithTag("sensors", len(sensors)).
		WithTag("vertices", nVertices).
		WithTag("regions", len(regions)).
		Debug("aggregating vertex gain into regions")

	return Aggregate(Concat(cort, sub), indicator), nil
}

// Concat joins two gain matrices with the same sensors column-wise. An
// empty operand contributes no columns.
func Concat(a, b *mat.Dense) *mat.Dense {
	switch {
	case a.IsEmpty() && b.IsEmpty():
		return &mat.Dense{}
	case a.IsEmpty():
		return mat.DenseCopyOf(b)
	case b.IsEmpty():
		return mat.DenseCopyOf(a)
	}
	var out mat.Dense
	out.Augment(a, b)
	return &out
}

// RegionList returns the distinct values of mapping in ascending order.
// Negative sentinels are kept and count as regions of their own.
func RegionList(mapping []int) []int {
	seen := make(map[int]struct{}, len(mapping))
	var out []int
	for _, r := range mapping {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}

// RegionIndicator returns the nVertices x nRegions 0/1 matrix with a one at
// (i, mapping[i]). Rows whose region falls outside [0, nRegions) are zero.
func RegionIndicator(nVertices, nRegions int, mapping []int) *mat.Dense {
	m := newMatrix(nVertices, nRegions)
	for i, r := range mapping {
		if i >= nVertices {
			break
		}
		if r >= 0 && r < nRegions {
			m.Set(i, r, 1)
		}
	}
	return m
}

// Aggregate sums vertex columns into region columns: gain . indicator
func Aggregate(vertexGain, indicator mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(vertexGain, indicator)
	return &out
}

// CheckFinite reports the first non-finite entry of m as a degenerate
// geometry error.
func CheckFinite(m mat.Matrix) error {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.New("non-finite matrix entry, sensor coincides with a source").
					WithType(models.ErrTypeDegenerateGeometry).
					WithTag("row", i).
					WithTag("column", j)
			}
		}
	}
	return nil
}

func (b Builder) checkFinite(m mat.Matrix, model string) error {
	err := CheckFinite(m)
	if err == nil {
		return nil
	}
	if b.Strict {
		return errors.New("gain matrix is degenerate").
			WithType(models.ErrTypeDegenerateGeometry).
			WithTag("model", model).
			Wrap(err)
	}
	logs.WithTag("model", model).Warn(err)
	return nil
}

// fillRows runs fill on every row of dst, splitting contiguous row ranges
// across the configured workers.
func (b Builder) fillRows(rows int, fill func(i int, row []float64), dst *mat.Dense) {
	if rows == 0 {
		return
	}
	_, cols := dst.Dims()
	raw := dst.RawMatrix()
	rowOf := func(i int) []float64 {
		return raw.Data[i*raw.Stride : i*raw.Stride+cols]
	}

	numCores := b.NumCores
	if numCores > rows {
		numCores = rows
	}
	if numCores < 2 {
		for i := 0; i < rows; i++ {
			fill(i, rowOf(i))
		}
		return
	}

	var wg sync.WaitGroup
	rowsPerCore := (rows + numCores - 1) / numCores
	for c := 0; c < numCores; c++ {
		start := c * rowsPerCore
		end := start + rowsPerCore
		if end > rows {
			end = rows
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fill(i, rowOf(i))
			}
		}(start, end)
	}
	wg.Wait()
}

// newMatrix allocates a zero matrix, tolerating empty dimensions which
// mat.NewDense rejects.
func newMatrix(r, c int) *mat.Dense {
	if r == 0 || c == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(r, c, nil)
}
