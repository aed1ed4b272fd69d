package fabfield

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/fabfield/fieldrender"
	"github.com/soypat/fabfield/structidx"
	"github.com/soypat/geometry/md3"
	"github.com/soypat/geometry/ms3"
)

// MeshFieldConfig configures a field backed by a triangle mesh.
type MeshFieldConfig struct {
	// Path to a binary STL file. Used when Triangles is empty.
	Path      string
	Triangles []ms3.Triangle
	// WeldEps is the vertex welding tolerance. Zero selects 1e-6.
	WeldEps float64
	// Margin grows the reported bounds on every side.
	Margin float64
	// MaxDistance clamps the distance magnitude when positive.
	MaxDistance float64
}

// NewMeshField creates a field whose value is the distance to the surface of a
// triangle mesh, negative inside. The mesh is loaded and welded on Initialize.
// Inside is decided by the generalized winding number so small holes and
// inconsistent winding degrade gracefully.
func (bld *Builder) NewMeshField(cfg MeshFieldConfig) fieldeval.Field {
	if len(cfg.Triangles) == 0 && cfg.Path == "" {
		bld.shapeErrorf("mesh field without triangles or path")
	}
	if cfg.WeldEps < 0 || cfg.Margin < 0 || cfg.MaxDistance < 0 {
		bld.shapeErrorf("negative mesh field parameter")
	}
	if cfg.WeldEps == 0 {
		cfg.WeldEps = 1e-6
	}
	m := &meshField{cfg: cfg}
	m.mode = bld.mode
	if len(cfg.Triangles) > 0 {
		m.bb = trianglesBounds(cfg.Triangles)
	}
	return m
}

type meshField struct {
	prim
	cfg   MeshFieldConfig
	verts []md3.Vec
	faces []meshFace
	bb    md3.Box
}

// meshFace caches a triangle with a bounding sphere for early rejection.
type meshFace struct {
	a, b, c md3.Vec
	center  md3.Vec
	radius  float64
}

func (m *meshField) Initialize() error {
	if m.Initialized() {
		return nil
	}
	tris := m.cfg.Triangles
	if len(tris) == 0 {
		fp, err := os.Open(m.cfg.Path)
		if err != nil {
			return fmt.Errorf("mesh field: %w", err)
		}
		defer fp.Close()
		_, tris, err = fieldrender.ReadSTL(fp)
		if err != nil {
			return fmt.Errorf("reading mesh %q: %w", m.cfg.Path, err)
		}
	}
	mb, err := structidx.NewMeshBuilder(m.cfg.WeldEps)
	if err != nil {
		return err
	}
	for _, t := range tris {
		mb.AddTriangle(t)
	}
	if len(mb.Faces()) == 0 {
		return errors.New("mesh field has no non degenerate faces")
	}
	m.verts = mb.Vertices()
	m.faces = make([]meshFace, len(mb.Faces()))
	for i, f := range mb.Faces() {
		a, b, c := m.verts[f[0]], m.verts[f[1]], m.verts[f[2]]
		center := md3.Scale(1./3, md3.Add(a, md3.Add(b, c)))
		r := math.Max(md3.Norm(md3.Sub(a, center)), math.Max(md3.Norm(md3.Sub(b, center)), md3.Norm(md3.Sub(c, center))))
		m.faces[i] = meshFace{a: a, b: b, c: c, center: center, radius: r}
	}
	m.bb = md3.Box{Min: m.verts[0], Max: m.verts[0]}
	for _, v := range m.verts[1:] {
		m.bb.Min = md3.MinElem(m.bb.Min, v)
		m.bb.Max = md3.MaxElem(m.bb.Max, v)
	}
	m.MarkInitialized()
	return nil
}

// Bounds is exact for triangle configured meshes. File backed meshes report
// unbounded extents until initialized.
func (m *meshField) Bounds() md3.Box {
	if !m.Initialized() && len(m.cfg.Triangles) == 0 {
		return infiniteBox
	}
	g := md3.Vec{X: m.cfg.Margin, Y: m.cfg.Margin, Z: m.cfg.Margin}
	return md3.Box{Min: md3.Sub(m.bb.Min, g), Max: md3.Add(m.bb.Max, g)}
}

func (m *meshField) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	m.MustBeInitialized("meshfield")
	for i, s := range samples {
		d := m.unsignedDistance(s.Pos)
		if m.winding(s.Pos) > 0.5 {
			d = -d
		}
		if m.cfg.MaxDistance > 0 {
			d = math.Max(-m.cfg.MaxDistance, math.Min(d, m.cfg.MaxDistance))
		}
		m.set(&dst[i], d, s.Scale)
	}
	return nil
}

func (m *meshField) unsignedDistance(p md3.Vec) float64 {
	best := math.Inf(1)
	for i := range m.faces {
		f := &m.faces[i]
		if md3.Norm(md3.Sub(p, f.center))-f.radius >= best {
			continue
		}
		q := closestOnTriangle(p, f.a, f.b, f.c)
		best = math.Min(best, md3.Norm(md3.Sub(p, q)))
	}
	return best
}

// winding returns the generalized winding number of the mesh around p:
// about 1 inside a closed outward oriented surface and 0 outside.
func (m *meshField) winding(p md3.Vec) float64 {
	var sum float64
	for i := range m.faces {
		f := &m.faces[i]
		a, b, c := md3.Sub(f.a, p), md3.Sub(f.b, p), md3.Sub(f.c, p)
		la, lb, lc := md3.Norm(a), md3.Norm(b), md3.Norm(c)
		num := md3.Dot(a, md3.Cross(b, c))
		den := la*lb*lc + md3.Dot(a, b)*lc + md3.Dot(b, c)*la + md3.Dot(c, a)*lb
		sum += 2 * math.Atan2(num, den)
	}
	return sum / (4 * math.Pi)
}

// closestOnTriangle returns the point of triangle abc nearest to p by
// classifying p against the triangle's Voronoi regions.
func closestOnTriangle(p, a, b, c md3.Vec) md3.Vec {
	ab, ac, ap := md3.Sub(b, a), md3.Sub(c, a), md3.Sub(p, a)
	d1, d2 := md3.Dot(ab, ap), md3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := md3.Sub(p, b)
	d3, d4 := md3.Dot(ab, bp), md3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return md3.Add(a, md3.Scale(d1/(d1-d3), ab))
	}
	cp := md3.Sub(p, c)
	d5, d6 := md3.Dot(ab, cp), md3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return md3.Add(a, md3.Scale(d2/(d2-d6), ac))
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return md3.Add(b, md3.Scale(w, md3.Sub(c, b)))
	}
	denom := 1 / (va + vb + vc)
	v, w := vb*denom, vc*denom
	return md3.Add(a, md3.Add(md3.Scale(v, ab), md3.Scale(w, ac)))
}

func trianglesBounds(tris []ms3.Triangle) md3.Box {
	bb := md3.Box{Min: md3.Vec{X: largenum, Y: largenum, Z: largenum}, Max: md3.Vec{X: -largenum, Y: -largenum, Z: -largenum}}
	for _, t := range tris {
		for _, v := range t {
			p := md3.Vec{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
			bb.Min = md3.MinElem(bb.Min, p)
			bb.Max = md3.MaxElem(bb.Max, p)
		}
	}
	return bb
}
