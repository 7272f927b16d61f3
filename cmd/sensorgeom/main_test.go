package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"sensorgeom/internal/models"
	"sensorgeom/pkg/contacts"
	"sensorgeom/pkg/gain"
	"sensorgeom/pkg/surface"
	"sensorgeom/pkg/textio"
)

func TestParseElectrodes(t *testing.T) {
	got, err := parseElectrodes([]string{"A=3", "TB'=12"})
	require.NoError(t, err)
	assert.Equal(t, []contacts.Electrode{{Name: "A", Label: 3}, {Name: "TB'", Label: 12}}, got)

	for _, bad := range []string{"A", "=3", "A=x"} {
		_, err := parseElectrodes([]string{bad})
		require.Error(t, err, bad)
		assert.True(t, errors.IsType(err, models.ErrTypeMalformedInput))
	}
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "absent.yaml")))
	return rootCmd.Execute()
}

func TestProjectionCommand(t *testing.T) {
	dir := t.TempDir()
	sensors := filepath.Join(dir, "seeg.xyz")
	centers := filepath.Join(dir, "centers.txt")
	output := filepath.Join(dir, "projection.txt")
	require.NoError(t, os.WriteFile(sensors, []byte("A1 0 0 0\nA2 0 0 1\n"), 0644))
	require.NoError(t, os.WriteFile(centers, []byte("r0 2 0 0\nr1 0 0 3\n"), 0644))

	require.NoError(t, execute(t, "projection",
		"--sensors", sensors,
		"--centers", centers,
		"--output", output,
		"--normalize=false",
	))

	p, err := textio.ReadMatrix(output)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/4, p.At(0, 0), 1e-15)
	assert.InDelta(t, 1.0/9, p.At(0, 1), 1e-15)
	assert.InDelta(t, 1.0/5, p.At(1, 0), 1e-15)
	assert.InDelta(t, 1.0/4, p.At(1, 1), 1e-15)
}

func TestDipolesCommand(t *testing.T) {
	dir := t.TempDir()
	positions := filepath.Join(dir, "positions.txt")
	output := filepath.Join(dir, "dipoles.txt")
	require.NoError(t, os.WriteFile(positions, []byte("1 2 3\n4 5 6\n"), 0644))

	require.NoError(t, execute(t, "dipoles",
		"--source", "triplets",
		"--positions", positions,
		"--output", output,
	))

	m, err := textio.ReadMatrix(output)
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 6, r)
	assert.Equal(t, 6, c)
	assert.Equal(t, 4.0, m.At(3, 0))
	assert.Equal(t, 1.0, m.At(5, 5))

	err = execute(t, "dipoles", "--source", "sideways", "--positions", positions, "--output", output)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, models.ErrTypeMalformedInput))
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensorgeom.yaml")
	require.NoError(t, execute(t, "config", "init", path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestGainCommand(t *testing.T) {
	dir := t.TempDir()

	cortex, err := surface.New(
		[]r3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}},
		[][3]int{{0, 1, 2}, {0, 2, 3}},
	)
	require.NoError(t, err)
	subcortex, err := surface.New(
		[]r3.Vec{{X: 3}, {X: 4}, {X: 3, Y: 1}},
		[][3]int{{0, 1, 2}},
	)
	require.NoError(t, err)

	cortexPath := filepath.Join(dir, "cortical.zip")
	subcortexPath := filepath.Join(dir, "subcortical.zip")
	require.NoError(t, textio.WriteSurfaceZip(cortexPath, cortex))
	require.NoError(t, textio.WriteSurfaceZip(subcortexPath, subcortex))

	sensors := writeFile(t, dir, "seeg.xyz", "S1 0.5 0.5 2\nS2 5 0 1\n")
	cortical := writeFile(t, dir, "region_mapping_cort.txt", "0\n0\n1\n1\n")
	// the last subcortical vertex is unmapped
	subcortical := writeFile(t, dir, "region_mapping_subcort.txt", "2\n2\n-1\n")
	output := filepath.Join(dir, "out", "gain_inv-square.txt")

	require.NoError(t, execute(t, "gain",
		"--sensors", sensors,
		"--cortical-surface", cortexPath,
		"--subcortical-surface", subcortexPath,
		"--cortical-mapping", cortical,
		"--subcortical-mapping", subcortical,
		"--output", output,
	))

	got, err := textio.ReadMatrix(output)
	require.NoError(t, err)

	// regions {-1, 0, 1, 2}: the sentinel takes a column that nothing maps to
	r, c := got.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 4, c)
	for i := 0; i < r; i++ {
		assert.Equal(t, 0.0, got.At(i, 3))
		for j := 0; j < 3; j++ {
			assert.NotZero(t, got.At(i, j))
		}
	}

	points := []r3.Vec{{X: 0.5, Y: 0.5, Z: 2}, {X: 5, Z: 1}}
	want, err := gain.Builder{NumCores: 1}.SEEG(points, cortex, subcortex,
		models.RegionMapping{0, 0, 1, 1}, models.RegionMapping{2, 2, -1})
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	// region 2 sums the two mapped subcortical vertices only
	sub, err := gain.Builder{NumCores: 1}.InverseSquare(subcortex.Vertices, subcortex.VertexAreas(), points)
	require.NoError(t, err)
	for i := 0; i < r; i++ {
		assert.InDelta(t, sub.At(i, 0)+sub.At(i, 1), got.At(i, 2), 1e-12)
	}
}

func TestContactsCommand(t *testing.T) {
	dir := t.TempDir()

	// eight single-voxel-thick contacts three voxels apart along i,
	// each with a 3x3 cross-section centered on j = k = 2
	var b strings.Builder
	b.WriteString("40 5 5\n")
	b.WriteString("0 0 0 4\n")
	var truth []float64
	for c := 0; c < 8; c++ {
		i := 6 + 3*c
		truth = append(truth, float64(i))
		for j := 1; j <= 3; j++ {
			for k := 1; k <= 3; k++ {
				fmt.Fprintf(&b, "%d %d %d 9\n", i, j, k)
			}
		}
	}
	volume := writeFile(t, dir, "electrodes.txt", b.String())
	output := filepath.Join(dir, "seeg.xyz")

	var entries []string
	logs.SetLogger(func(e logs.Entry) {
		entries = append(entries, fmt.Sprint(e))
	})
	t.Cleanup(func() { logs.SetLogger(func(logs.Entry) {}) })

	require.NoError(t, execute(t, "contacts",
		"--volume", volume,
		"--electrode", "A=9",
		"--output", output,
	))

	// the per-electrode and summary entries are tagged with the run id
	tagged := 0
	for _, e := range entries {
		if strings.Contains(e, "electrode contacts located") || strings.Contains(e, "contacts written") {
			assert.Contains(t, e, fmt.Sprintf(`"run_id":"%s"`, runID))
			tagged++
		}
	}
	assert.Equal(t, 2, tagged)

	names, points, err := textio.ReadPositions(output)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(points), 6)
	require.LessOrEqual(t, len(points), len(truth))

	bw := contacts.DefaultLocalizer().BinWidth
	for n, p := range points {
		assert.Equal(t, fmt.Sprintf("A%d", n+1), names[n])
		assert.InDelta(t, 2, p.Y, 1e-6)
		assert.InDelta(t, 2, p.Z, 1e-6)

		nearest := math.Inf(1)
		for _, x := range truth {
			nearest = math.Min(nearest, math.Abs(p.X-x))
		}
		assert.Less(t, nearest, bw, "contact %s at %v", names[n], p)

		if n > 0 {
			assert.InDelta(t, 3, r3.Norm(r3.Sub(p, points[n-1])), 0.01)
		}
	}

	err = execute(t, "contacts",
		"--volume", volume,
		"--electrode", "B=5",
		"--output", filepath.Join(dir, "missing.xyz"),
	)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, models.ErrTypeNotFound))
}
