package contacts

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"sensorgeom/internal/models"
)

const (
	voxelSize    = 0.05
	contactLen   = 20 // voxels, 1 mm
	contactPitch = 70 // voxels, 3.5 mm
	numContacts  = 10
	firstContact = 20
)

// syntheticElectrode builds a thin shaft of numContacts blobs along the i
// axis, placed into world space by a rotated and translated affine. It
// returns the volume and the true world centers of the contacts.
func syntheticElectrode(t *testing.T, label int) (*models.LabelVolume, []r3.Vec) {
	t.Helper()

	width := firstContact*2 + (numContacts-1)*contactPitch + contactLen
	vol := models.NewLabelVolume(width, 3, 3)

	angle := math.Pi / 6
	dir := r3.Unit(r3.Vec{X: math.Cos(angle), Y: math.Sin(angle), Z: 0.5})
	e1 := r3.Vec{X: -math.Sin(angle), Y: math.Cos(angle)}
	e2 := r3.Cross(dir, e1)
	shift := r3.Vec{X: 12, Y: -30, Z: 45}

	vol.Affine = mat.NewDense(4, 4, []float64{
		voxelSize * dir.X, e1.X, e2.X, shift.X,
		voxelSize * dir.Y, e1.Y, e2.Y, shift.Y,
		voxelSize * dir.Z, e1.Z, e2.Z, shift.Z,
		0, 0, 0, 1,
	})

	world := func(i float64) r3.Vec {
		return r3.Add(r3.Add(r3.Scale(voxelSize*i, dir), r3.Add(e1, e2)), shift)
	}

	var centers []r3.Vec
	for c := 0; c < numContacts; c++ {
		start := firstContact + c*contactPitch
		for i := start; i < start+contactLen; i++ {
			vol.Set(i, 1, 1, label)
		}
		centers = append(centers, world(float64(start)+float64(contactLen-1)/2))
	}
	return vol, centers
}

func TestLocateRecoversPeriodicContacts(t *testing.T) {
	vol, truth := syntheticElectrode(t, 7)
	loc := DefaultLocalizer()

	est, err := loc.Estimate(vol, 7)
	require.NoError(t, err)

	assert.InDelta(t, voxelSize*contactPitch, est.Period, loc.BinWidth)
	require.Len(t, est.Positions, numContacts)

	for i, p := range est.Positions {
		best := math.Inf(1)
		for _, c := range truth {
			best = math.Min(best, r3.Norm(r3.Sub(p, c)))
		}
		assert.LessOrEqual(t, best, loc.BinWidth, "contact %d at %v", i, p)
	}

	for i := 1; i < len(est.Lattice); i++ {
		assert.Greater(t, est.Lattice[i], est.Lattice[i-1])
		assert.InDelta(t, est.Period, est.Lattice[i]-est.Lattice[i-1], 1e-9)
	}
}

func TestLocateIgnoresOtherLabels(t *testing.T) {
	vol, _ := syntheticElectrode(t, 3)
	vol.Set(0, 0, 0, 4)
	vol.Set(0, 2, 2, 4)

	positions, err := DefaultLocalizer().Locate(vol, 3)
	require.NoError(t, err)
	assert.Len(t, positions, numContacts)
}

func TestLocateMissingLabel(t *testing.T) {
	vol, _ := syntheticElectrode(t, 1)

	_, err := DefaultLocalizer().Locate(vol, 2)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, models.ErrTypeNotFound))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Localizer)
		valid  bool
	}{
		{name: "defaults", modify: func(*Localizer) {}, valid: true},
		{name: "zero bin width", modify: func(l *Localizer) { l.BinWidth = 0 }},
		{name: "negative period", modify: func(l *Localizer) { l.MinPeriod = -1 }},
		{name: "inverted range", modify: func(l *Localizer) { l.MinPeriod, l.MaxPeriod = 6, 2 }},
		{name: "no candidates", modify: func(l *Localizer) { l.NumPeriods = 0 }},
		{name: "single candidate", modify: func(l *Localizer) { l.NumPeriods = 1 }, valid: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			l := DefaultLocalizer()
			test.modify(&l)
			err := l.Validate()
			if test.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, models.ErrTypeMalformedInput))
		})
	}
}

func TestHistogramBinning(t *testing.T) {
	edges := []float64{0, 1, 2, 3}
	centers, counts := histogram([]float64{0, 0.5, 1, 2.999, 3, -0.1, 3.1}, edges, 1)

	assert.Equal(t, []float64{0.5, 1.5, 2.5}, centers)
	// last bin is closed on the right, out of range values are dropped
	assert.Equal(t, []float64{2, 1, 2}, counts)

	centers, counts = histogram([]float64{1}, []float64{0}, 1)
	assert.Nil(t, centers)
	assert.Nil(t, counts)
}

func TestArange(t *testing.T) {
	assert.Equal(t, []float64{1, 3}, arange(1, 5, 2))
	assert.Equal(t, []float64{1, 3, 5}, arange(1, 5.5, 2))
	assert.Empty(t, arange(5, 1, 2))
	assert.Empty(t, arange(1, 1, 2))
}

func TestLinspace(t *testing.T) {
	ws := linspace(2, 6, 5)
	assert.Equal(t, []float64{2, 3, 4, 5, 6}, ws)
	assert.Equal(t, []float64{2}, linspace(2, 6, 1))
}

func TestLatticeMirrorsBothSides(t *testing.T) {
	got := lattice(0.5, -4, 4, 2)
	assert.Equal(t, []float64{-3.5, -1.5, 0.5, 2.5}, got)

	// offset past the upper end is only reached from the mirrored side
	got = lattice(5, -4, 4, 2)
	assert.Equal(t, []float64{-3, -1, 1, 3, 5}, got)

	got = lattice(-1, -4, 4, 2)
	assert.Equal(t, []float64{-3, -1, 1, 3}, got)
}

func TestFourierSumPeaksAtTruePeriod(t *testing.T) {
	period := 4.0
	var centers, counts []float64
	for x := -20.0; x < 20; x += 0.1 {
		centers = append(centers, x)
		counts = append(counts, 1+math.Cos(2*math.Pi*x/period))
	}

	best, bestMag := 0.0, 0.0
	for _, w := range linspace(2, 6, 401) {
		if m := cmplx.Abs(fourierSum(centers, counts, 1/w, 0.1)); m > bestMag {
			best, bestMag = w, m
		}
	}
	assert.InDelta(t, period, best, 0.05)
}

func TestVoxelsToWorld(t *testing.T) {
	affine := mat.NewDense(4, 4, []float64{
		2, 0, 0, 10,
		0, 3, 0, 20,
		0, 0, 4, 30,
		0, 0, 0, 1,
	})
	xyz := VoxelsToWorld([][3]int{{0, 0, 0}, {1, 2, 3}}, affine)

	r, c := xyz.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 3, c)
	assert.Equal(t, []float64{10, 20, 30}, mat.Row(nil, 0, xyz))
	assert.Equal(t, []float64{12, 26, 42}, mat.Row(nil, 1, xyz))
}

func TestLocateAllNamesContacts(t *testing.T) {
	vol, _ := syntheticElectrode(t, 5)

	contacts, err := DefaultLocalizer().LocateAll(vol, []Electrode{{Name: "A", Label: 5}})
	require.NoError(t, err)
	require.Len(t, contacts, numContacts)
	assert.Equal(t, "A1", contacts[0].Name)
	assert.Equal(t, "A10", contacts[9].Name)
	assert.Equal(t, "A", contacts[3].Electrode)
	assert.Equal(t, 3, contacts[3].Index)

	_, err = DefaultLocalizer().LocateAll(vol, []Electrode{{Name: "A", Label: 5}, {Name: "B", Label: 9}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, models.ErrTypeNotFound))
}
