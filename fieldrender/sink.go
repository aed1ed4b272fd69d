package fieldrender

import "github.com/soypat/geometry/ms3"

// TriangleSink receives a stream of triangles. AddTriangle returns false to
// stop the producer; no further triangles are delivered after that.
type TriangleSink interface {
	AddTriangle(t ms3.Triangle) (cont bool)
}

// TriangleSinkFunc adapts a function to a [TriangleSink].
type TriangleSinkFunc func(t ms3.Triangle) bool

func (f TriangleSinkFunc) AddTriangle(t ms3.Triangle) bool { return f(t) }

// TriangleCollector stores every triangle it receives. A positive Limit stops
// the stream once Limit triangles were collected.
type TriangleCollector struct {
	Triangles []ms3.Triangle
	Limit     int
}

func (tc *TriangleCollector) AddTriangle(t ms3.Triangle) bool {
	tc.Triangles = append(tc.Triangles, t)
	return tc.Limit <= 0 || len(tc.Triangles) < tc.Limit
}

// Normal returns the unit normal of t following the right hand rule.
// Degenerate triangles return the zero vector.
func Normal(t ms3.Triangle) ms3.Vec {
	e1 := ms3.Sub(t[1], t[0])
	e2 := ms3.Sub(t[2], t[0])
	n := ms3.Vec{
		X: e1.Y*e2.Z - e1.Z*e2.Y,
		Y: e1.Z*e2.X - e1.X*e2.Z,
		Z: e1.X*e2.Y - e1.Y*e2.X,
	}
	l := ms3.Norm(n)
	if l == 0 {
		return ms3.Vec{}
	}
	return ms3.Scale(1/l, n)
}
