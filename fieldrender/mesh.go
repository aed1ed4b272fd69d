package fieldrender

import (
	"errors"
	"fmt"
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/soypat/fabfield/grid"
	"github.com/soypat/geometry/md3"
	"github.com/soypat/geometry/ms3"
)

// MeshConfig configures [ExtractMesh].
type MeshConfig struct {
	// Channel is the layout index of the distance or density channel to contour.
	Channel int
	// Iso is the surface level: distance Iso or density Iso. A zero Iso on a
	// density channel is replaced by 0.5.
	Iso float64
	// Cells is the number of marching cubes cells along the longest grid axis.
	// Zero uses the grid's voxel count along that axis.
	Cells int
}

// ExtractMesh contours the iso surface of a frozen grid with marching cubes and
// streams the triangles to sink. It stops early if the sink returns false and
// returns the number of triangles delivered.
func ExtractMesh(g grid.AttributeGrid, cfg MeshConfig, sink TriangleSink) (int, error) {
	if g == nil || sink == nil {
		return 0, errors.New("nil grid or sink")
	}
	if !g.Frozen() {
		return 0, errors.New("mesh extraction requires a frozen grid")
	}
	gs, err := newGridSDF(g, cfg)
	if err != nil {
		return 0, err
	}
	cells := cfg.Cells
	if cells <= 0 {
		nx, ny, nz := g.Dims()
		cells = max(nx, ny, nz)
	}
	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(gs, renderer)
	n := 0
	for _, tri := range triangles {
		var t ms3.Triangle
		for j := 0; j < 3; j++ {
			v := tri[j]
			t[j] = ms3.Vec{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
		}
		n++
		if !sink.AddTriangle(t) {
			break
		}
	}
	return n, nil
}

// gridSDF exposes a grid channel as an sdfx signed distance: negative inside.
type gridSDF struct {
	g   grid.AttributeGrid
	ch  int
	iso float64
	// sign is +1 for distance channels and -1 for density channels, which grow inwards.
	sign float64
	box  md3.Box
}

var _ sdf.SDF3 = (*gridSDF)(nil)

func newGridSDF(g grid.AttributeGrid, cfg MeshConfig) (*gridSDF, error) {
	l := g.Layout()
	if cfg.Channel < 0 || cfg.Channel >= len(l.Channels) {
		return nil, fmt.Errorf("mesh channel %d out of range [0,%d)", cfg.Channel, len(l.Channels))
	}
	gs := &gridSDF{g: g, ch: cfg.Channel, iso: cfg.Iso, box: g.Bounds().Box}
	switch l.Channels[cfg.Channel].Kind {
	case grid.KindDistance:
		gs.sign = 1
	case grid.KindDensity, grid.KindMaterial:
		gs.sign = -1
		if gs.iso == 0 {
			gs.iso = 0.5
		}
	default:
		return nil, fmt.Errorf("can not contour channel of kind %s", l.Channels[cfg.Channel].Kind)
	}
	return gs, nil
}

func (gs *gridSDF) Evaluate(p v3.Vec) float64 {
	q := md3.Vec{X: p.X, Y: p.Y, Z: p.Z}
	d := gs.sign * (grid.SampleTrilinear(gs.g, gs.ch, q) - gs.iso)
	// Close the surface at the grid boundary.
	return math.Max(d, boxDist(gs.box, q))
}

func (gs *gridSDF) BoundingBox() sdf.Box3 {
	return sdf.Box3{
		Min: v3.Vec{X: gs.box.Min.X, Y: gs.box.Min.Y, Z: gs.box.Min.Z},
		Max: v3.Vec{X: gs.box.Max.X, Y: gs.box.Max.Y, Z: gs.box.Max.Z},
	}
}

func boxDist(bb md3.Box, p md3.Vec) float64 {
	c := md3.Scale(0.5, md3.Add(bb.Min, bb.Max))
	h := md3.Scale(0.5, md3.Sub(bb.Max, bb.Min))
	q := md3.Sub(md3.AbsElem(md3.Sub(p, c)), h)
	outside := md3.Norm(md3.MaxElem(q, md3.Vec{}))
	return outside + math.Min(math.Max(q.X, math.Max(q.Y, q.Z)), 0)
}
