// Package projection computes distance based sensor x center weights, a
// lightweight alternative to a full gain matrix for region level models.
package projection

import (
	"math"
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"sensorgeom/internal/models"
	"sensorgeom/pkg/gain"
)

// Options controls normalization and clamping of the projection matrix
type Options struct {
	// Normalize divides the matrix by its Percentile-th percentile
	Normalize  bool
	Percentile float64

	// Ceil clamps every entry above Ceiling down to Ceiling
	Ceil    bool
	Ceiling float64

	// Strict fails on coincident sensor/center pairs instead of warning
	Strict bool
}

// DefaultOptions normalizes by the 95th percentile and clamps at 1
func DefaultOptions() Options {
	return Options{
		Normalize:  true,
		Percentile: 95,
		Ceil:       true,
		Ceiling:    1.0,
	}
}

// Matrix returns the sensors x centers projection, 1/d with d the squared
// distance between sensor and center, then normalized and clamped as set
// in opts.
func Matrix(sensors, centers []r3.Vec, opts Options) (*mat.Dense, error) {
	if len(sensors) == 0 || len(centers) == 0 {
		return nil, errors.New("projection needs sensors and centers").
			WithType(models.ErrTypeMalformedInput).
			WithTag("sensors", len(sensors)).
			WithTag("centers", len(centers))
	}
	if opts.Normalize && (opts.Percentile < 0 || opts.Percentile > 100) {
		return nil, errors.New("percentile must be within [0, 100]").
			WithType(models.ErrTypeMalformedInput).
			WithTag("percentile", opts.Percentile)
	}

	proj := mat.NewDense(len(sensors), len(centers), nil)
	for i, s := range sensors {
		for j, c := range centers {
			d := math.Abs(sumSquares(r3.Sub(s, c)))
			proj.Set(i, j, 1/d)
		}
	}

	if err := gain.CheckFinite(proj); err != nil {
		if opts.Strict {
			return nil, errors.New("projection matrix is degenerate").
				WithType(models.ErrTypeDegenerateGeometry).
				Wrap(err)
		}
		logs.WithTag("model", "projection").Warn(err)
	}

	raw := proj.RawMatrix().Data
	if opts.Normalize {
		p := Percentile(raw, opts.Percentile)
		logs.WithTag("percentile", opts.Percentile).
			WithTag("value", p).
			Debug("normalizing projection matrix")
		floats.Scale(1/p, raw)
	}
	if opts.Ceil {
		Clamp(raw, opts.Ceiling)
	}
	return proj, nil
}

// sumSquares keeps the componentwise sum the distance is defined by
func sumSquares(v r3.Vec) float64 {
	return floats.Dot([]float64{v.X, v.Y, v.Z}, []float64{v.X, v.Y, v.Z})
}

// Percentile returns the p-th percentile of values using linear
// interpolation between the closest ranks, the numpy default.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Clamp lowers every value above ceiling to ceiling, in place
func Clamp(values []float64, ceiling float64) {
	for i, v := range values {
		if v > ceiling {
			values[i] = ceiling
		}
	}
}
