package textio

import (
	"archive/zip"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"sensorgeom/internal/models"
	"sensorgeom/pkg/surface"
)

const (
	verticesEntry  = "vertices.txt"
	trianglesEntry = "triangles.txt"
)

// ReadSurfaceZip reads a surface archive holding vertices.txt (x y z per
// row) and triangles.txt (three vertex indices per row).
func ReadSurfaceZip(filename string) (*surface.Surface, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, errors.New("opening surface archive failed").
			WithType(models.ErrTypeMalformedInput).
			WithTag("path", filename).
			Wrap(err)
	}
	defer zr.Close()

	vertexRows, err := readZipEntry(&zr.Reader, verticesEntry)
	if err != nil {
		return nil, errors.New("reading surface vertices failed").
			WithType(errors.Type(err)).
			WithTag("path", filename).
			Wrap(err)
	}
	triangleRows, err := readZipEntry(&zr.Reader, trianglesEntry)
	if err != nil {
		return nil, errors.New("reading surface triangles failed").
			WithType(errors.Type(err)).
			WithTag("path", filename).
			Wrap(err)
	}

	vertices := make([]r3.Vec, len(vertexRows))
	for i, rw := range vertexRows {
		xyz, err := parseFloats(rw, 0, 3)
		if err != nil {
			return nil, errors.New("invalid vertex").
				WithType(models.ErrTypeMalformedInput).
				WithTag("path", filename).
				Wrap(err)
		}
		vertices[i] = r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}

	triangles := make([][3]int, len(triangleRows))
	for i, rw := range triangleRows {
		idx, err := parseInts(rw, 0, 3)
		if err != nil {
			return nil, errors.New("invalid triangle").
				WithType(models.ErrTypeMalformedInput).
				WithTag("path", filename).
				Wrap(err)
		}
		triangles[i] = [3]int{idx[0], idx[1], idx[2]}
	}

	return surface.New(vertices, triangles)
}

// readZipEntry finds an entry by base name, so archives that nest the
// files in a directory are accepted too.
func readZipEntry(zr *zip.Reader, name string) ([]row, error) {
	for _, f := range zr.File {
		if path.Base(f.Name) != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.New("opening archive entry failed").
				WithTag("entry", f.Name).
				Wrap(err)
		}
		defer rc.Close()
		return readRows(rc)
	}
	return nil, errors.New("archive entry not found").
		WithType(models.ErrTypeMalformedInput).
		WithTag("entry", name)
}

// WriteSurfaceZip stores s in the layout ReadSurfaceZip reads
func WriteSurfaceZip(filename string, s *surface.Surface) error {
	return writeFile(filename, func(w io.Writer) error {
		zw := zip.NewWriter(w)

		vw, err := zw.Create(verticesEntry)
		if err != nil {
			return err
		}
		for _, v := range s.Vertices {
			if err := writeFields(vw, formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z)); err != nil {
				return err
			}
		}

		tw, err := zw.Create(trianglesEntry)
		if err != nil {
			return err
		}
		for _, t := range s.Triangles {
			if err := writeFields(tw, strconv.Itoa(t[0]), strconv.Itoa(t[1]), strconv.Itoa(t[2])); err != nil {
				return err
			}
		}
		return zw.Close()
	})
}

func writeFields(w io.Writer, fields ...string) error {
	line := strings.Join(fields, " ") + "\n"
	_, err := io.WriteString(w, line)
	return err
}
