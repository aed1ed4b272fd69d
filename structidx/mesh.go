package structidx

import (
	"github.com/soypat/fabfield/fieldrender"
	"github.com/soypat/geometry/md3"
	"github.com/soypat/geometry/ms3"
)

var _ fieldrender.TriangleSink = (*MeshBuilder)(nil)

// MeshBuilder consumes a triangle stream and welds it into an indexed mesh.
// Triangles that collapse to fewer than 3 distinct vertices after welding are dropped.
type MeshBuilder struct {
	points     *PointSet
	faces      [][3]int
	degenerate int
}

// NewMeshBuilder returns a mesh builder welding vertices within eps.
func NewMeshBuilder(eps float64) (*MeshBuilder, error) {
	ps, err := NewPointSet(eps)
	if err != nil {
		return nil, err
	}
	return &MeshBuilder{points: ps}, nil
}

// AddTriangle implements [fieldrender.TriangleSink]. It never stops the stream.
func (mb *MeshBuilder) AddTriangle(t ms3.Triangle) bool {
	var f [3]int
	for i, v := range t {
		f[i], _ = mb.points.Add(md3.Vec{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)})
	}
	if f[0] == f[1] || f[1] == f[2] || f[2] == f[0] {
		mb.degenerate++
		return true
	}
	mb.faces = append(mb.faces, f)
	return true
}

// Vertices returns the welded vertices indexed by face entries.
func (mb *MeshBuilder) Vertices() []md3.Vec {
	n := mb.points.Points().Len()
	verts := make([]md3.Vec, n)
	for i := range verts {
		verts[i] = mb.points.At(i)
	}
	return verts
}

// Faces returns the vertex indices of each kept triangle.
func (mb *MeshBuilder) Faces() [][3]int { return mb.faces }

// Degenerate returns the number of triangles dropped after welding.
func (mb *MeshBuilder) Degenerate() int { return mb.degenerate }

// WriteTo replays the welded mesh into sink and returns the triangles delivered.
func (mb *MeshBuilder) WriteTo(sink fieldrender.TriangleSink) int {
	n := 0
	for _, f := range mb.faces {
		var t ms3.Triangle
		for i, idx := range f {
			p := mb.points.At(idx)
			t[i] = ms3.Vec{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
		}
		n++
		if !sink.AddTriangle(t) {
			break
		}
	}
	return n
}

// EulerCharacteristic returns V - E + F of the welded mesh. A closed genus 0 surface yields 2.
func (mb *MeshBuilder) EulerCharacteristic() int {
	edgeKeys := PointBuffer{}
	edges := NewMap(
		func(h int) uint64 {
			e := edgeKeys.At(h)
			return mix64(uint64(e.X)<<32 | uint64(e.Y))
		},
		func(a, b int) bool { return edgeKeys.At(a) == edgeKeys.At(b) },
	)
	for _, f := range mb.faces {
		for i := range f {
			a, b := f[i], f[(i+1)%3]
			if a > b {
				a, b = b, a
			}
			h := edgeKeys.Append(md3.Vec{X: float64(a), Y: float64(b)})
			if _, isNew := edges.Put(h, 1); !isNew {
				edgeKeys.Truncate(h)
			}
		}
	}
	return mb.points.Len() - edges.Len() + len(mb.faces)
}
