// Package textio reads and writes the whitespace delimited numeric text
// files exchanged with the rest of the pipeline: sensor and center lists,
// region mappings, affines, label volumes and output matrices.
package textio

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"sensorgeom/internal/models"
)

// row is one non empty, non comment line split into fields
type row struct {
	line   int
	fields []string
}

// readRows splits r into rows, skipping blank lines and '#' comments
func readRows(r io.Reader) ([]row, error) {
	var rows []row
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		rows = append(rows, row{line: line, fields: fields})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New("reading text failed").Wrap(err)
	}
	return rows, nil
}

func readFileRows(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("opening file failed").
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	rows, err := readRows(f)
	if err != nil {
		return nil, errors.New("reading file failed").
			WithTag("path", path).
			Wrap(err)
	}
	return rows, nil
}

// malformed builds a MalformedInput error for row r. tags are key/value
// pairs; cause may be nil.
func malformed(msg string, r row, cause error, tags ...any) error {
	err := errors.New(msg).
		WithType(models.ErrTypeMalformedInput).
		WithTag("line", r.line).
		WithTag("columns", len(r.fields))
	for i := 0; i+1 < len(tags); i += 2 {
		err = err.WithTag(tags[i].(string), tags[i+1])
	}
	if cause != nil {
		err = err.Wrap(cause)
	}
	return err
}

func parseFloats(r row, from, n int) ([]float64, error) {
	if len(r.fields) < from+n {
		return nil, malformed("not enough columns", r, nil, "want", from+n)
	}
	out := make([]float64, n)
	for i := range out {
		v, err := strconv.ParseFloat(r.fields[from+i], 64)
		if err != nil {
			return nil, malformed("invalid number", r, err, "column", from+i)
		}
		out[i] = v
	}
	return out, nil
}

func parseInts(r row, from, n int) ([]int, error) {
	if len(r.fields) < from+n {
		return nil, malformed("not enough columns", r, nil, "want", from+n)
	}
	out := make([]int, n)
	for i := range out {
		v, err := strconv.Atoi(r.fields[from+i])
		if err != nil {
			return nil, malformed("invalid integer", r, err, "column", from+i)
		}
		out[i] = v
	}
	return out, nil
}

// DecodePositions parses "name x y z" rows. Column 0 is the identifier;
// columns 1 to 3 hold the coordinates.
func DecodePositions(r io.Reader) ([]string, []r3.Vec, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, len(rows))
	points := make([]r3.Vec, len(rows))
	for i, rw := range rows {
		xyz, err := parseFloats(rw, 1, 3)
		if err != nil {
			return nil, nil, err
		}
		names[i] = rw.fields[0]
		points[i] = r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}
	return names, points, nil
}

// ReadPositions reads a sensor or center file
func ReadPositions(path string) ([]string, []r3.Vec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.New("opening positions file failed").
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	names, points, err := DecodePositions(f)
	if err != nil {
		return nil, nil, errors.New("reading positions file failed").
			WithType(errors.Type(err)).
			WithTag("path", path).
			Wrap(err)
	}
	return names, points, nil
}

// ReadRegionMapping reads one integer region id per row from column 0
func ReadRegionMapping(path string) (models.RegionMapping, error) {
	rows, err := readFileRows(path)
	if err != nil {
		return nil, err
	}

	mapping := make(models.RegionMapping, len(rows))
	for i, rw := range rows {
		v, err := parseInts(rw, 0, 1)
		if err != nil {
			return nil, errors.New("reading region mapping failed").
				WithType(errors.Type(err)).
				WithTag("path", path).
				Wrap(err)
		}
		mapping[i] = v[0]
	}
	return mapping, nil
}

// ReadMatrix reads a dense matrix written by WriteMatrix. Every row must
// have the same number of columns.
func ReadMatrix(path string) (*mat.Dense, error) {
	rows, err := readFileRows(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("matrix file is empty").
			WithType(models.ErrTypeMalformedInput).
			WithTag("path", path)
	}

	cols := len(rows[0].fields)
	data := make([]float64, 0, len(rows)*cols)
	for _, rw := range rows {
		if len(rw.fields) != cols {
			return nil, malformed("ragged matrix row", rw, nil, "path", path, "want", cols)
		}
		vals, err := parseFloats(rw, 0, cols)
		if err != nil {
			return nil, errors.New("reading matrix failed").
				WithType(errors.Type(err)).
				WithTag("path", path).
				Wrap(err)
		}
		data = append(data, vals...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// ReadAffine reads a 4x4 voxel to world transform
func ReadAffine(path string) (*mat.Dense, error) {
	m, err := ReadMatrix(path)
	if err != nil {
		return nil, err
	}
	if r, c := m.Dims(); r != 4 || c != 4 {
		return nil, errors.New("affine must be 4x4").
			WithType(models.ErrTypeMalformedInput).
			WithTag("path", path).
			WithTag("rows", r).
			WithTag("columns", c)
	}
	return m, nil
}

// ReadLabelVolume reads a sparse label volume: a "width height depth"
// header followed by "i j k label" rows. Voxels that are not listed carry
// label 0.
func ReadLabelVolume(path string, affine *mat.Dense) (*models.LabelVolume, error) {
	rows, err := readFileRows(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("label volume file is empty").
			WithType(models.ErrTypeMalformedInput).
			WithTag("path", path)
	}

	dims, err := parseInts(rows[0], 0, 3)
	if err != nil {
		return nil, errors.New("invalid label volume header").
			WithType(models.ErrTypeMalformedInput).
			WithTag("path", path).
			Wrap(err)
	}
	if dims[0] <= 0 || dims[1] <= 0 || dims[2] <= 0 {
		return nil, malformed("volume dimensions must be positive", rows[0], nil, "path", path)
	}

	vol := models.NewLabelVolume(dims[0], dims[1], dims[2])
	if affine != nil {
		vol.Affine = affine
	}
	for _, rw := range rows[1:] {
		v, err := parseInts(rw, 0, 4)
		if err != nil {
			return nil, errors.New("invalid voxel row").
				WithType(models.ErrTypeMalformedInput).
				WithTag("path", path).
				Wrap(err)
		}
		if !vol.Contains(v[0], v[1], v[2]) {
			return nil, malformed("voxel outside the volume", rw, nil, "path", path)
		}
		vol.Set(v[0], v[1], v[2], v[3])
	}
	return vol, nil
}

// ReadPoints reads "x y z" rows
func ReadPoints(path string) ([]r3.Vec, error) {
	m, err := ReadMatrix(path)
	if err != nil {
		return nil, err
	}
	r, c := m.Dims()
	if c != 3 {
		return nil, errors.New("points must have three columns").
			WithType(models.ErrTypeMalformedInput).
			WithTag("path", path).
			WithTag("columns", c)
	}
	points := make([]r3.Vec, r)
	for i := range points {
		points[i] = r3.Vec{X: m.At(i, 0), Y: m.At(i, 1), Z: m.At(i, 2)}
	}
	return points, nil
}
