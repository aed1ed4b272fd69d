package fabfield

import (
	"math"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/geometry/md3"
)

// NewBoundsBoxFrame creates a BoxFrame from a bb ([md3.Box]) such that the BoxFrame envelops the bb.
// Useful for debugging bounding boxes of fields.
func (bld *Builder) NewBoundsBoxFrame(bb md3.Box) fieldeval.Field {
	size := bb.Size()
	frameThickness := math.Max(size.X, math.Max(size.Y, size.Z)) / 256
	// Bounding box's frames protrude.
	size = md3.Add(size, md3.Vec{X: 2 * frameThickness, Y: 2 * frameThickness, Z: 2 * frameThickness})
	bounding := bld.NewBoxFrame(size.X, size.Y, size.Z, frameThickness)
	center := bb.Center()
	return bld.Translate(bounding, center.X, center.Y, center.Z)
}

type sphere struct {
	prim
	r float64
}

// NewSphere creates a sphere centered at the origin of radius r.
func (bld *Builder) NewSphere(r float64) fieldeval.Field {
	valid := r > 0
	if !valid {
		bld.shapeErrorf("zero or negative sphere radius")
	}
	s := &sphere{r: r}
	s.mode = bld.mode
	return s
}

func (s *sphere) Bounds() md3.Box {
	return md3.Box{
		Min: md3.Vec{X: -s.r, Y: -s.r, Z: -s.r},
		Max: md3.Vec{X: s.r, Y: s.r, Z: s.r},
	}
}

// NewBox creates a box centered at the origin with x,y,z dimensions and a rounding parameter to round edges.
func (bld *Builder) NewBox(x, y, z, round float64) fieldeval.Field {
	if round < 0 || round > x/2 || round > y/2 || round > z/2 {
		bld.shapeErrorf("invalid box rounding value")
	}
	if x <= 0 || y <= 0 || z <= 0 {
		bld.shapeErrorf("zero or negative box dimension")
	}
	b := &box{dims: md3.Vec{X: x, Y: y, Z: z}, round: round}
	b.mode = bld.mode
	return b
}

type box struct {
	prim
	dims  md3.Vec
	round float64
}

func (s *box) Bounds() md3.Box {
	return centeredBox(md3.Vec{}, s.dims)
}

// NewCylinder creates a cylinder centered at the origin with given radius and height.
// The cylinder's axis points in z direction.
func (bld *Builder) NewCylinder(r, h, rounding float64) fieldeval.Field {
	okRounding := rounding >= 0 && rounding < r && rounding < h/2
	if !okRounding {
		bld.shapeErrorf("invalid cylinder rounding")
	}
	okDim := r > 0 && h > 0
	if !okDim {
		bld.shapeErrorf("bad cylinder dimension")
	}
	c := &cylinder{r: r, h: h, round: rounding}
	c.mode = bld.mode
	return c
}

type cylinder struct {
	prim
	r     float64
	h     float64
	round float64
}

func (s *cylinder) Bounds() md3.Box {
	return md3.Box{
		Min: md3.Vec{X: -s.r, Y: -s.r, Z: -s.h / 2},
		Max: md3.Vec{X: s.r, Y: s.r, Z: s.h / 2},
	}
}

func (c *cylinder) args() (r, h, round float64) {
	return c.r, (c.h - 2*c.round) / 2, c.round
}

// NewCone creates a capped cone of height h centered at the origin with its axis along z.
// The base of radius r1 lies at z=-h/2 and the top of radius r2 at z=h/2. One of the radii may be zero.
func (bld *Builder) NewCone(r1, r2, h float64) fieldeval.Field {
	if r1 < 0 || r2 < 0 || (r1 == 0 && r2 == 0) {
		bld.shapeErrorf("bad cone radii")
	}
	if h <= 0 {
		bld.shapeErrorf("zero or negative cone height")
	}
	c := &cone{r1: r1, r2: r2, h: h}
	c.mode = bld.mode
	return c
}

type cone struct {
	prim
	r1, r2 float64
	h      float64
}

func (c *cone) Bounds() md3.Box {
	r := math.Max(c.r1, c.r2)
	return md3.Box{
		Min: md3.Vec{X: -r, Y: -r, Z: -c.h / 2},
		Max: md3.Vec{X: r, Y: r, Z: c.h / 2},
	}
}

// NewTorus creates a 3D torus given 2 radii to define the radius
// across (greaterRadius) and the "solid" radius (lesserRadius).
// The torus lies in the xy plane.
func (bld *Builder) NewTorus(greaterRadius, lesserRadius float64) fieldeval.Field {
	if greaterRadius < 2*lesserRadius {
		bld.shapeErrorf("too large torus lesser radius")
	} else if greaterRadius <= 0 || lesserRadius <= 0 {
		bld.shapeErrorf("invalid torus parameter")
	}
	t := &torus{rGreater: greaterRadius, rLesser: lesserRadius}
	t.mode = bld.mode
	return t
}

type torus struct {
	prim
	rGreater, rLesser float64
}

func (t *torus) Bounds() md3.Box {
	R := t.rLesser + t.rGreater
	return md3.Box{
		Min: md3.Vec{X: -R, Y: -R, Z: -t.rLesser},
		Max: md3.Vec{X: R, Y: R, Z: t.rLesser},
	}
}

// NewRing creates a ring around the y axis. The solid spans radially from innerRadius
// to innerRadius+thickness and vertically from ymin to ymax.
func (bld *Builder) NewRing(innerRadius, thickness, ymin, ymax float64) fieldeval.Field {
	if innerRadius < 0 {
		bld.shapeErrorf("negative ring radius")
	}
	if thickness <= 0 {
		bld.shapeErrorf("zero or negative ring thickness")
	}
	if ymax <= ymin {
		bld.shapeErrorf("empty ring band [%g, %g]", ymin, ymax)
	}
	r := &ring{inner: innerRadius, outer: innerRadius + thickness, ymin: ymin, ymax: ymax}
	r.mode = bld.mode
	return r
}

type ring struct {
	prim
	inner, outer float64
	ymin, ymax   float64
}

func (r *ring) Bounds() md3.Box {
	return md3.Box{
		Min: md3.Vec{X: -r.outer, Y: r.ymin, Z: -r.outer},
		Max: md3.Vec{X: r.outer, Y: r.ymax, Z: r.outer},
	}
}

// NewTriangle creates a slab of the given thickness centered on the triangle with vertices a, b, c.
func (bld *Builder) NewTriangle(a, b, c md3.Vec, thickness float64) fieldeval.Field {
	nor := md3.Cross(md3.Sub(b, a), md3.Sub(a, c))
	if md3.Norm(nor) < epstol {
		bld.shapeErrorf("degenerate triangle")
	}
	if thickness <= 0 {
		bld.shapeErrorf("zero or negative triangle thickness")
	}
	t := &triangle{a: a, b: b, c: c, thick: thickness}
	t.mode = bld.mode
	return t
}

type triangle struct {
	prim
	a, b, c md3.Vec
	thick   float64
}

func (t *triangle) Bounds() md3.Box {
	h := t.thick / 2
	pad := md3.Vec{X: h, Y: h, Z: h}
	mn := md3.MinElem(t.a, md3.MinElem(t.b, t.c))
	mx := md3.MaxElem(t.a, md3.MaxElem(t.b, t.c))
	return md3.Box{Min: md3.Sub(mn, pad), Max: md3.Add(mx, pad)}
}

// NewPlane creates the half space of points p such that dot(p, normal) <= offset.
// normal need not be of unit length.
func (bld *Builder) NewPlane(normal md3.Vec, offset float64) fieldeval.Field {
	n := md3.Norm(normal)
	if n < epstol || !validVec(normal) {
		bld.shapeErrorf("zero length plane normal")
		n = 1
	}
	p := &plane{n: md3.Scale(1/n, normal), d: offset}
	p.mode = bld.mode
	return p
}

type plane struct {
	prim
	n md3.Vec
	d float64
}

func (p *plane) Bounds() md3.Box { return infiniteBox }

// NewBoxFrame creates a framed box with the frame being composed of square beams of thickness e.
func (bld *Builder) NewBoxFrame(dimX, dimY, dimZ, e float64) fieldeval.Field {
	e /= 2
	if e <= 0 {
		bld.shapeErrorf("invalid box frame thickness")
	} else if dimX <= 0 || dimY <= 0 || dimZ <= 0 {
		bld.shapeErrorf("zero or negative box frame dimension")
	} else if dimX <= 4*e || dimY <= 4*e || dimZ <= 4*e {
		bld.shapeErrorf("box frame thickness too large for dimensions")
	}
	bf := &boxframe{dims: md3.Vec{X: dimX, Y: dimY, Z: dimZ}, e: e}
	bf.mode = bld.mode
	return bf
}

type boxframe struct {
	prim
	dims md3.Vec
	e    float64
}

func (bf *boxframe) Bounds() md3.Box {
	return centeredBox(md3.Vec{}, bf.dims)
}

func (bf *boxframe) args() (e float64, b md3.Vec) {
	// Beams span [dims/2-2e, dims/2] along each axis.
	return bf.e, md3.Scale(0.5, bf.dims)
}

// NewHexagonalPrism creates a hexagonal prism centered at the origin given its
// apothem (center to face distance) and half its height. The prism's length is along the z axis.
func (bld *Builder) NewHexagonalPrism(apothem, halfHeight float64) fieldeval.Field {
	if apothem <= 0 || halfHeight <= 0 {
		bld.shapeErrorf("invalid hexagonal prism parameter")
	}
	hx := &hex{side: apothem, h: halfHeight}
	hx.mode = bld.mode
	return hx
}

type hex struct {
	prim
	side float64
	h    float64
}

func (s *hex) Bounds() md3.Box {
	l := s.side
	lx := l / tribisect
	return md3.Box{
		Min: md3.Vec{X: -lx, Y: -l, Z: -s.h},
		Max: md3.Vec{X: lx, Y: l, Z: s.h},
	}
}

// NewConstant creates a field with the same value everywhere. In density
// mode value must be within [0,1].
func (bld *Builder) NewConstant(value float64) fieldeval.Field {
	if !fieldeval.IsFinite(value) {
		bld.shapeErrorf("non-finite constant")
	} else if bld.mode == fieldeval.ModeDensity && (value < 0 || value > 1) {
		bld.shapeErrorf("density constant %g outside [0,1]", value)
	}
	c := &constant{v: value}
	c.mode = bld.mode
	return c
}

type constant struct {
	prim
	v float64
}

func (c *constant) Bounds() md3.Box { return infiniteBox }
