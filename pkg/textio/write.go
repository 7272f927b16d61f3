package textio

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"sensorgeom/internal/models"
	"sensorgeom/pkg/dipoles"
)

// EncodeMatrix writes m one row per line, values in %.18e separated by a
// single space.
func EncodeMatrix(w io.Writer, m mat.Matrix) error {
	bw := bufio.NewWriter(w)
	r, c := m.Dims()
	buf := make([]byte, 0, 32)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if j > 0 {
				bw.WriteByte(' ')
			}
			buf = strconv.AppendFloat(buf[:0], m.At(i, j), 'e', 18, 64)
			bw.Write(buf)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteMatrix stores m at path, creating parent directories
func WriteMatrix(path string, m mat.Matrix) error {
	return writeFile(path, func(w io.Writer) error {
		return EncodeMatrix(w, m)
	})
}

// WritePositions stores "name x y z" rows, the format ReadPositions reads
func WritePositions(path string, names []string, points []r3.Vec) error {
	if len(names) != len(points) {
		return errors.New("names and positions differ in length").
			WithType(models.ErrTypeMalformedInput).
			WithTag("names", len(names)).
			WithTag("positions", len(points))
	}

	return writeFile(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for i, p := range points {
			bw.WriteString(names[i])
			for _, v := range []float64{p.X, p.Y, p.Z} {
				bw.WriteByte(' ')
				bw.WriteString(formatFloat(v))
			}
			bw.WriteByte('\n')
		}
		return bw.Flush()
	})
}

// WriteDipoles stores "x y z ox oy oz" rows with six decimals
func WriteDipoles(path string, set []dipoles.Dipole) error {
	return writeFile(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, d := range set {
			for j, v := range []float64{
				d.Position.X, d.Position.Y, d.Position.Z,
				d.Orientation.X, d.Orientation.Y, d.Orientation.Z,
			} {
				if j > 0 {
					bw.WriteByte(' ')
				}
				bw.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
			}
			bw.WriteByte('\n')
		}
		return bw.Flush()
	})
}

func writeFile(path string, encode func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.New("creating output directory failed").
				WithTag("path", path).
				Wrap(err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.New("creating output file failed").
			WithTag("path", path).
			Wrap(err)
	}
	if err := encode(f); err != nil {
		f.Close()
		return errors.New("writing output file failed").
			WithTag("path", path).
			Wrap(err)
	}
	if err := f.Close(); err != nil {
		return errors.New("closing output file failed").
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}

// formatFloat uses the shortest representation that parses back exactly
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
