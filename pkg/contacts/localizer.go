// Package contacts recovers the positions of electrode contacts from a
// segmented volume. Contacts along a straight shaft show up as periodic
// bumps in the voxel density along the shaft axis; the localizer finds that
// axis, estimates the dominant spatial period and its phase, and rebuilds
// the contact lattice in world coordinates.
package contacts

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"sensorgeom/internal/models"
)

// Localizer holds the fixed parameters of the periodicity search. They
// assume a contact spacing between MinPeriod and MaxPeriod world units.
type Localizer struct {
	// BinWidth is the width of the histogram bins along the shaft axis
	BinWidth float64

	// MinPeriod and MaxPeriod bound the candidate contact spacings
	MinPeriod float64
	MaxPeriod float64

	// NumPeriods is the number of candidate spacings, linearly spaced
	// between MinPeriod and MaxPeriod inclusive
	NumPeriods int
}

// DefaultLocalizer returns the parameters used for SEEG electrodes
func DefaultLocalizer() Localizer {
	return Localizer{
		BinWidth:   0.1,
		MinPeriod:  2.0,
		MaxPeriod:  6.0,
		NumPeriods: 1000,
	}
}

// Estimate is the full result of a periodicity search, kept so callers can
// inspect or plot the intermediate histogram and spectrum.
type Estimate struct {
	Label int

	// Centroid of the selected voxels and unit principal Axis through it
	Centroid r3.Vec
	Axis     r3.Vec

	// Xi is the coordinate of each voxel along Axis, relative to Centroid
	Xi []float64

	// BinCenters and Counts describe the histogram of Xi
	BinCenters []float64
	Counts     []float64

	// Periods are the candidate spacings and Spectrum the magnitude of the
	// Fourier sum evaluated at 1/period
	Periods  []float64
	Spectrum []float64

	// Period and Phase belong to the spectrum peak; Offset is the lattice
	// origin derived from them
	Period float64
	Phase  float64
	Offset float64

	// Lattice holds the sorted contact coordinates along Axis and Positions
	// the same contacts in world coordinates
	Lattice   []float64
	Positions []r3.Vec
}

// Validate checks the search parameters
func (l Localizer) Validate() error {
	switch {
	case l.BinWidth <= 0:
		return errors.New("bin width must be positive").
			WithType(models.ErrTypeMalformedInput).
			WithTag("bin_width", l.BinWidth)
	case l.MinPeriod <= 0 || l.MaxPeriod < l.MinPeriod:
		return errors.New("invalid period range").
			WithType(models.ErrTypeMalformedInput).
			WithTag("min_period", l.MinPeriod).
			WithTag("max_period", l.MaxPeriod)
	case l.NumPeriods < 1:
		return errors.New("at least one candidate period is required").
			WithType(models.ErrTypeMalformedInput).
			WithTag("num_periods", l.NumPeriods)
	}
	return nil
}

// Locate returns the ordered world positions of the contacts of the object
// carrying label in vol.
func (l Localizer) Locate(vol *models.LabelVolume, label int) ([]r3.Vec, error) {
	est, err := l.Estimate(vol, label)
	if err != nil {
		return nil, err
	}
	return est.Positions, nil
}

// Estimate runs the periodicity search and returns every intermediate
// result along with the contact positions.
func (l Localizer) Estimate(vol *models.LabelVolume, label int) (*Estimate, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	voxels := vol.Voxels(label)
	if len(voxels) == 0 {
		return nil, errors.New("no voxels carry the requested label").
			WithType(models.ErrTypeNotFound).
			WithTag("label", label)
	}

	xyz := VoxelsToWorld(voxels, vol.Affine)
	return l.estimateCloud(label, xyz)
}

// estimateCloud runs the search on an n x 3 matrix of world coordinates.
// xyz is centered in place.
func (l Localizer) estimateCloud(label int, xyz *mat.Dense) (*Estimate, error) {
	n, _ := xyz.Dims()

	var centroid [3]float64
	col := make([]float64, n)
	for j := 0; j < 3; j++ {
		mat.Col(col, j, xyz)
		centroid[j] = stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			xyz.Set(i, j, col[i]-centroid[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(xyz, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition failed").
			WithType(models.ErrTypeDegenerateGeometry).
			WithTag("label", label).
			WithTag("voxels", n)
	}
	var v mat.Dense
	svd.VTo(&v)
	axis := r3.Vec{X: v.At(0, 0), Y: v.At(1, 0), Z: v.At(2, 0)}

	// projection onto the first right singular vector, i.e. U[:,0]*S[0]
	xi := make([]float64, n)
	for i := range xi {
		xi[i] = xyz.At(i, 0)*axis.X + xyz.At(i, 1)*axis.Y + xyz.At(i, 2)*axis.Z
	}

	est := &Estimate{
		Label:    label,
		Centroid: r3.Vec{X: centroid[0], Y: centroid[1], Z: centroid[2]},
		Axis:     axis,
		Xi:       xi,
	}

	lo, hi := floats.Min(xi), floats.Max(xi)
	est.BinCenters, est.Counts = histogram(xi, arange(lo-0.5, hi+0.5, l.BinWidth), l.BinWidth)
	if len(est.Counts) == 0 {
		return nil, errors.New("histogram has no bins").
			WithType(models.ErrTypeMalformedInput).
			WithTag("label", label).
			WithTag("bin_width", l.BinWidth)
	}

	est.Periods = linspace(l.MinPeriod, l.MaxPeriod, l.NumPeriods)
	est.Spectrum = make([]float64, len(est.Periods))
	var peak complex128
	peakIdx := 0
	for i, w := range est.Periods {
		b := fourierSum(est.BinCenters, est.Counts, 1/w, l.BinWidth)
		est.Spectrum[i] = cmplx.Abs(b)
		if i == 0 || est.Spectrum[i] > est.Spectrum[peakIdx] {
			peakIdx, peak = i, b
		}
	}
	est.Period = est.Periods[peakIdx]
	est.Phase = cmplx.Phase(peak)

	logs.WithTag("label", label).
		WithTag("period", est.Period).
		WithTag("phase", est.Phase).
		Debug("periodic lattice estimated")

	freq := 1 / est.Period
	est.Offset = -est.Phase / (2 * math.Pi * freq)
	est.Lattice = lattice(est.Offset, lo, hi, est.Period)

	est.Positions = make([]r3.Vec, len(est.Lattice))
	for i, x := range est.Lattice {
		est.Positions[i] = r3.Add(r3.Scale(x, axis), est.Centroid)
	}
	return est, nil
}

// VoxelsToWorld maps voxel indices through a 4x4 affine and returns the
// n x 3 matrix of world coordinates.
func VoxelsToWorld(voxels [][3]int, affine mat.Matrix) *mat.Dense {
	homog := mat.NewDense(len(voxels), 4, nil)
	for i, vx := range voxels {
		homog.SetRow(i, []float64{float64(vx[0]), float64(vx[1]), float64(vx[2]), 1})
	}

	var world mat.Dense
	world.Mul(homog, affine.T())
	return mat.DenseCopyOf(world.Slice(0, len(voxels), 0, 3))
}

// fourierSum evaluates Σ exp(-2πi f c) count bw over the histogram bins
func fourierSum(centers, counts []float64, freq, bw float64) complex128 {
	var sum complex128
	for i, c := range centers {
		sum += cmplx.Exp(complex(0, -2*math.Pi*freq*c)) * complex(counts[i]*bw, 0)
	}
	return sum
}

// lattice rebuilds both sides of the shaft from a single offset and period.
// The ray towards max starts at offset; the ray towards min is generated on
// the mirrored axis and flipped back, so both share the point at offset.
func lattice(offset, lo, hi, period float64) []float64 {
	pos := arange(offset, hi, period)
	neg := arange(-offset, -lo, period)

	out := make([]float64, 0, len(pos)+len(neg))
	for _, x := range neg {
		out = append(out, -x)
	}
	if len(pos) > 1 {
		out = append(out, pos[1:]...)
	}
	sort.Float64s(out)
	return out
}

// histogram counts values into the bins delimited by edges. Bins are half
// open except the last one, which includes its right edge.
func histogram(values, edges []float64, bw float64) (centers, counts []float64) {
	nb := len(edges) - 1
	if nb < 1 {
		return nil, nil
	}
	counts = make([]float64, nb)
	for _, x := range values {
		if x < edges[0] || x > edges[nb] {
			continue
		}
		idx := int(math.Floor((x - edges[0]) / bw))
		if idx < 0 {
			idx = 0
		}
		if idx > nb-1 {
			idx = nb - 1
		}
		for idx > 0 && x < edges[idx] {
			idx--
		}
		for idx < nb-1 && x >= edges[idx+1] {
			idx++
		}
		counts[idx]++
	}

	centers = make([]float64, nb)
	for i := range centers {
		centers[i] = edges[i] + bw/2
	}
	return centers, counts
}

// arange returns start, start+step, ... strictly below stop
func arange(start, stop, step float64) []float64 {
	n := int(math.Ceil((stop - start) / step))
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// linspace returns n evenly spaced samples over [lo, hi]
func linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	floats.Span(out, lo, hi)
	return out
}

// Electrode names one labeled object of the volume
type Electrode struct {
	Name  string
	Label int
}

// Contact is one reconstructed contact position
type Contact struct {
	// Name is the electrode name followed by the 1-based contact number
	Name      string
	Electrode string
	Index     int
	Position  r3.Vec
}

// LocateAll runs the localizer for every electrode in order and returns
// the contacts of all of them. The first failing electrode aborts the run.
func (l Localizer) LocateAll(vol *models.LabelVolume, electrodes []Electrode) ([]Contact, error) {
	var out []Contact
	for _, e := range electrodes {
		positions, err := l.Locate(vol, e.Label)
		if err != nil {
			return nil, errors.New("locating electrode contacts failed").
				WithType(errors.Type(err)).
				WithTag("electrode", e.Name).
				WithTag("label", e.Label).
				Wrap(err)
		}

		for i, p := range positions {
			out = append(out, Contact{
				Name:      fmt.Sprintf("%s%d", e.Name, i+1),
				Electrode: e.Name,
				Index:     i,
				Position:  p,
			})
		}
	}
	return out, nil
}
