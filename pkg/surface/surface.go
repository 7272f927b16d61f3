// Package surface provides the triangulated surface abstraction used to
// derive source positions, orientations and areas for forward models.
package surface

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"sensorgeom/internal/models"
)

// Surface is a triangulated mesh. Normals and areas are derived on every
// call so they always reflect the current vertices.
type Surface struct {
	// Vertices are the mesh node positions in world coordinates
	Vertices []r3.Vec

	// Triangles index into Vertices, counter-clockwise seen from outside
	Triangles [][3]int
}

// New builds a surface after checking that every triangle references an
// existing vertex.
func New(vertices []r3.Vec, triangles [][3]int) (*Surface, error) {
	n := len(vertices)
	for t, tri := range triangles {
		for _, idx := range tri {
			if idx < 0 || idx >= n {
				return nil, errors.New("triangle references a missing vertex").
					WithType(models.ErrTypeMalformedInput).
					WithTag("triangle", t).
					WithTag("index", idx).
					WithTag("vertices", n)
			}
		}
	}
	return &Surface{Vertices: vertices, Triangles: triangles}, nil
}

// TriangleNormals returns the unnormalized normal of every triangle. Its
// length is twice the triangle area.
func (s *Surface) TriangleNormals() []r3.Vec {
	normals := make([]r3.Vec, len(s.Triangles))
	for i, tri := range s.Triangles {
		a := s.Vertices[tri[0]]
		b := s.Vertices[tri[1]]
		c := s.Vertices[tri[2]]
		normals[i] = r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	}
	return normals
}

// TriangleAreas returns the area of every triangle
func (s *Surface) TriangleAreas() []float64 {
	areas := make([]float64, len(s.Triangles))
	for i, n := range s.TriangleNormals() {
		areas[i] = r3.Norm(n) / 2
	}
	return areas
}

// VertexNormals returns unit outward normals per vertex, computed as the
// area-weighted average of the adjacent face normals. Vertices that belong
// to no triangle get a zero vector.
func (s *Surface) VertexNormals() []r3.Vec {
	normals := make([]r3.Vec, len(s.Vertices))
	for i, n := range s.TriangleNormals() {
		// n is already scaled by twice the face area
		for _, idx := range s.Triangles[i] {
			normals[idx] = r3.Add(normals[idx], n)
		}
	}
	for i, n := range normals {
		if norm := r3.Norm(n); norm > 0 {
			normals[i] = r3.Scale(1/norm, n)
		}
	}
	return normals
}

// VertexAreas returns, per vertex, one third of the area of each adjacent
// triangle summed up.
func (s *Surface) VertexAreas() []float64 {
	areas := make([]float64, len(s.Vertices))
	for i, a := range s.TriangleAreas() {
		for _, idx := range s.Triangles[i] {
			areas[idx] += a / 3
		}
	}
	return areas
}

// Area returns the total surface area
func (s *Surface) Area() float64 {
	var total float64
	for _, a := range s.TriangleAreas() {
		total += a
	}
	return total
}
