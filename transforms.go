package fabfield

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/geometry/md3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform maps a sample from the transformed (world) space back into the
// local space of the field it wraps. Implementations must adjust the sample
// Scale by the local length change so that distances can be rescaled back into world units.
type Transform interface {
	// Initialize precomputes derived state. Must be idempotent.
	Initialize() error
	// Inverse maps s in place. A result of [fieldeval.ResultOutOfRange]
	// marks the sample as having no contribution.
	Inverse(s *fieldeval.Sample) fieldeval.Result
}

// boundsTransformer is implemented by transforms that can map a local bounding box into world space.
type boundsTransformer interface {
	TransformBounds(local md3.Box) md3.Box
}

// Transform applies t to f. The resulting field evaluates f at t's inverse mapping of each sample.
func (bld *Builder) Transform(f fieldeval.Field, t Transform) fieldeval.Field {
	if f == nil {
		bld.nilfield("Transform")
	}
	if t == nil {
		bld.shapeErrorf("nil transform")
	}
	tf := &transformed{f: f, t: t}
	tf.mode = f.Mode()
	return tf
}

// Chain applies transforms to f in the order given, that is ts[0] is applied to the shape first.
func (bld *Builder) Chain(f fieldeval.Field, ts ...Transform) fieldeval.Field {
	if len(ts) == 0 {
		bld.shapeErrorf("empty transform chain")
		return f
	}
	return bld.Transform(f, &Composite{Transforms: ts})
}

// Translate moves the field by (dirX, dirY, dirZ).
func (bld *Builder) Translate(f fieldeval.Field, dirX, dirY, dirZ float64) fieldeval.Field {
	off := md3.Vec{X: dirX, Y: dirY, Z: dirZ}
	if !validVec(off) {
		bld.shapeErrorf("non-finite translation")
	}
	return bld.Transform(f, &Translation{Offset: off})
}

// Rotate rotates the field by radians around axis following the right hand rule.
func (bld *Builder) Rotate(f fieldeval.Field, radians float64, axis md3.Vec) fieldeval.Field {
	if md3.Norm(axis) < epstol || !validVec(axis) {
		bld.shapeErrorf("invalid rotation axis")
	}
	if !fieldeval.IsFinite(radians) {
		bld.shapeErrorf("non-finite rotation angle")
	}
	return bld.Transform(f, &Rotation{Axis: axis, Angle: radians})
}

// Scale scales the field uniformly by scaleFactor.
func (bld *Builder) Scale(f fieldeval.Field, scaleFactor float64) fieldeval.Field {
	return bld.ScaleXYZ(f, scaleFactor, scaleFactor, scaleFactor)
}

// ScaleXYZ scales the field by different factors along each axis.
// The resulting distance field is a bound computed with the smallest factor.
func (bld *Builder) ScaleXYZ(f fieldeval.Field, sx, sy, sz float64) fieldeval.Field {
	if sx <= 0 || sy <= 0 || sz <= 0 {
		bld.shapeErrorf("zero or negative scale factor")
	}
	return bld.Transform(f, &Scaling{Factor: md3.Vec{X: sx, Y: sy, Z: sz}})
}

// Symmetry reflects the field about the x, y and/or z planes.
// The part of the field in the positive half space of each mirror plane is kept.
func (bld *Builder) Symmetry(f fieldeval.Field, mirrorX, mirrorY, mirrorZ bool) fieldeval.Field {
	if !mirrorX && !mirrorY && !mirrorZ {
		bld.shapeErrorf("ineffective symmetry")
	}
	return bld.Transform(f, &Mirror{X: mirrorX, Y: mirrorY, Z: mirrorZ})
}

// RingWrap bends the field's x axis around the y axis at the given radius.
func (bld *Builder) RingWrap(f fieldeval.Field, radius float64) fieldeval.Field {
	if radius <= 0 {
		bld.shapeErrorf("zero or negative ring wrap radius")
	}
	return bld.Transform(f, &RingWrap{Radius: radius})
}

// Periodic repeats the field along 1, 2 or 3 basis vectors starting at origin.
func (bld *Builder) Periodic(f fieldeval.Field, origin md3.Vec, basis ...md3.Vec) fieldeval.Field {
	pw := &PeriodicWrap{Origin: origin, Basis: basis}
	if err := pw.Initialize(); err != nil {
		bld.shapeErrorf("%s", err.Error())
	}
	return bld.Transform(f, pw)
}

type transformed struct {
	node
	f fieldeval.Field
	t Transform
}

func (tf *transformed) Initialize() error {
	if tf.Initialized() {
		return nil
	}
	if err := tf.t.Initialize(); err != nil {
		return err
	}
	if err := tf.f.Initialize(); err != nil {
		return err
	}
	tf.MarkInitialized()
	return nil
}

func (tf *transformed) Channels() int { return tf.f.Channels() }

func (tf *transformed) Bounds() md3.Box {
	bt, ok := tf.t.(boundsTransformer)
	if !ok {
		return infiniteBox
	}
	return bt.TransformBounds(tf.f.Bounds())
}

func (tf *transformed) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	tf.MustBeInitialized("transform")
	vp, err := fieldeval.GetVecPool(userData)
	if err != nil {
		return err
	}
	local := vp.Samples.Acquire(len(samples))
	defer vp.Samples.Release(local)
	ratio := vp.Float.Acquire(len(samples))
	defer vp.Float.Release(ratio)
	copy(local, samples)
	for i := range local {
		ratio[i] = inverseSample(tf.t, &local[i])
	}
	err = tf.f.Evaluate(local, dst, userData)
	if err != nil {
		return err
	}
	rescale := tf.mode == fieldeval.ModeDistance
	for i := range dst {
		if ratio[i] < 0 {
			fieldeval.SetNoContribution(&dst[i], tf.mode)
			dst[i].Code = fieldeval.ResultOutOfRange
		} else if rescale && dst[i].Code == fieldeval.ResultOK {
			dst[i].V[0] *= ratio[i]
		}
	}
	return nil
}

// inverseSample applies t's inverse to s and returns the ratio of world to
// local length, or -1 if s fell out of range.
func inverseSample(t Transform, s *fieldeval.Sample) float64 {
	zeroScale := !(s.Scale > 0)
	if zeroScale {
		s.Scale = 1
	}
	s0 := s.Scale
	if t.Inverse(s) != fieldeval.ResultOK {
		return -1
	}
	r := s0 / s.Scale
	if zeroScale {
		s.Scale = 0
	}
	return r
}

// Translation moves a shape by Offset.
type Translation struct {
	Offset md3.Vec
}

func (t *Translation) Initialize() error { return nil }

func (t *Translation) Inverse(s *fieldeval.Sample) fieldeval.Result {
	s.Pos = md3.Sub(s.Pos, t.Offset)
	return fieldeval.ResultOK
}

func (t *Translation) TransformBounds(bb md3.Box) md3.Box {
	return md3.Box{Min: md3.Add(bb.Min, t.Offset), Max: md3.Add(bb.Max, t.Offset)}
}

// Rotation rotates a shape by Angle radians around Axis.
type Rotation struct {
	Axis  md3.Vec
	Angle float64
	inv   r3.Rotation
	ready bool
}

func (r *Rotation) Initialize() error {
	if r.ready {
		return nil
	}
	if _, err := r.forward(); err != nil {
		return err
	}
	r.inv = r3.NewRotation(-r.Angle, toR3(md3.Unit(r.Axis)))
	r.ready = true
	return nil
}

// forward computes the rotation without touching r so that bounds may be
// queried concurrently on an uninitialized graph.
func (r *Rotation) forward() (r3.Rotation, error) {
	if md3.Norm(r.Axis) < epstol {
		return r3.Rotation{}, errors.New("zero length rotation axis")
	}
	return r3.NewRotation(r.Angle, toR3(md3.Unit(r.Axis))), nil
}

func (r *Rotation) Inverse(s *fieldeval.Sample) fieldeval.Result {
	s.Pos = fromR3(r.inv.Rotate(toR3(s.Pos)))
	return fieldeval.ResultOK
}

func (r *Rotation) TransformBounds(bb md3.Box) md3.Box {
	if bb == infiniteBox {
		return infiniteBox
	}
	fwd, err := r.forward()
	if err != nil {
		return infiniteBox
	}
	verts := boxVertices(bb)
	out := md3.Box{Min: md3.Vec{X: largenum, Y: largenum, Z: largenum}, Max: md3.Vec{X: -largenum, Y: -largenum, Z: -largenum}}
	for _, v := range verts {
		p := fromR3(fwd.Rotate(toR3(v)))
		out.Min = md3.MinElem(out.Min, p)
		out.Max = md3.MaxElem(out.Max, p)
	}
	return out
}

func toR3(v md3.Vec) r3.Vec   { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }
func fromR3(v r3.Vec) md3.Vec { return md3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

// Scaling scales a shape by Factor along each axis. Non uniform factors
// yield a distance bound using the smallest factor.
type Scaling struct {
	Factor md3.Vec
}

func (sc *Scaling) Initialize() error {
	if sc.Factor.X <= 0 || sc.Factor.Y <= 0 || sc.Factor.Z <= 0 {
		return fmt.Errorf("invalid scale factor %v", sc.Factor)
	}
	return nil
}

func (sc *Scaling) Inverse(s *fieldeval.Sample) fieldeval.Result {
	f := sc.Factor
	s.Pos = md3.DivElem(s.Pos, f)
	s.Scale /= math.Min(f.X, math.Min(f.Y, f.Z))
	return fieldeval.ResultOK
}

func (sc *Scaling) TransformBounds(bb md3.Box) md3.Box {
	if bb == infiniteBox {
		return bb
	}
	return md3.Box{Min: md3.MulElem(bb.Min, sc.Factor), Max: md3.MulElem(bb.Max, sc.Factor)}
}

// Mirror reflects the positive half space of the selected axes onto the negative side.
type Mirror struct {
	X, Y, Z bool
}

func (m *Mirror) Initialize() error { return nil }

func (m *Mirror) Inverse(s *fieldeval.Sample) fieldeval.Result {
	if m.X {
		s.Pos.X = math.Abs(s.Pos.X)
	}
	if m.Y {
		s.Pos.Y = math.Abs(s.Pos.Y)
	}
	if m.Z {
		s.Pos.Z = math.Abs(s.Pos.Z)
	}
	return fieldeval.ResultOK
}

func (m *Mirror) TransformBounds(bb md3.Box) md3.Box {
	if m.X {
		bb.Max.X = math.Max(bb.Max.X, -bb.Min.X)
		bb.Min.X = -bb.Max.X
	}
	if m.Y {
		bb.Max.Y = math.Max(bb.Max.Y, -bb.Min.Y)
		bb.Min.Y = -bb.Max.Y
	}
	if m.Z {
		bb.Max.Z = math.Max(bb.Max.Z, -bb.Min.Z)
		bb.Min.Z = -bb.Max.Z
	}
	return bb
}

// RingWrap wraps the x axis around a circle of Radius in the xz plane.
// Local z is the radial offset from the circle.
type RingWrap struct {
	Radius float64
}

func (rw *RingWrap) Initialize() error {
	if rw.Radius <= 0 {
		return errors.New("zero or negative ring wrap radius")
	}
	return nil
}

func (rw *RingWrap) Inverse(s *fieldeval.Sample) fieldeval.Result {
	R := rw.Radius
	wx := s.Pos.X / R
	wz := s.Pos.Z / R
	dist := math.Hypot(wx, wz)
	angle := math.Atan2(wx, wz)
	s.Pos.X = angle * R
	s.Pos.Z = (dist - 1) * R
	return fieldeval.ResultOK
}

func (rw *RingWrap) TransformBounds(bb md3.Box) md3.Box {
	if bb == infiniteBox {
		return bb
	}
	r := rw.Radius + math.Max(math.Abs(bb.Min.Z), math.Abs(bb.Max.Z))
	return md3.Box{
		Min: md3.Vec{X: -r, Y: bb.Min.Y, Z: -r},
		Max: md3.Vec{X: r, Y: bb.Max.Y, Z: r},
	}
}

// PeriodicWrap folds space into the fundamental cell spanned by 1, 2 or 3 Basis vectors at Origin.
type PeriodicWrap struct {
	Origin md3.Vec
	Basis  []md3.Vec
	// dual basis.
	d     [3]md3.Vec
	a     [3]md3.Vec
	count int
}

func (pw *PeriodicWrap) Initialize() error {
	n := len(pw.Basis)
	if n < 1 || n > 3 {
		return fmt.Errorf("periodic wrap needs 1 to 3 basis vectors, got %d", n)
	}
	for i, b := range pw.Basis {
		if md3.Norm(b) < epstol || !validVec(b) {
			return fmt.Errorf("invalid periodic basis vector %d", i)
		}
	}
	copy(pw.a[:], pw.Basis)
	switch n {
	case 1:
		// Complete the basis with any vector not parallel to a1.
		aux := md3.Vec{X: 0.36, Y: 0.48, Z: 0.8}
		if md3.Norm(md3.Cross(aux, pw.a[0])) < 1e-6*md3.Norm(pw.a[0]) {
			aux = md3.Vec{X: 0.8, Y: -0.6}
		}
		pw.a[1] = md3.Unit(md3.Cross(aux, pw.a[0]))
		fallthrough
	case 2:
		pw.a[2] = md3.Unit(md3.Cross(pw.a[0], pw.a[1]))
	}
	triple := md3.Dot(pw.a[0], md3.Cross(pw.a[1], pw.a[2]))
	if math.Abs(triple) < epstol {
		return errors.New("degenerate periodic basis")
	}
	norm := 1 / triple
	pw.d[0] = md3.Scale(norm, md3.Cross(pw.a[1], pw.a[2]))
	pw.d[1] = md3.Scale(norm, md3.Cross(pw.a[2], pw.a[0]))
	pw.d[2] = md3.Scale(norm, md3.Cross(pw.a[0], pw.a[1]))
	pw.count = n
	return nil
}

func (pw *PeriodicWrap) Inverse(s *fieldeval.Sample) fieldeval.Result {
	v := md3.Sub(s.Pos, pw.Origin)
	var c [3]float64
	for i := range c {
		c[i] = md3.Dot(v, pw.d[i])
		if i < pw.count {
			c[i] -= math.Floor(c[i])
		}
	}
	p := pw.Origin
	for i := range c {
		p = md3.Add(p, md3.Scale(c[i], pw.a[i]))
	}
	s.Pos = p
	return fieldeval.ResultOK
}

// Composite applies Transforms in order: Transforms[0] is applied to the shape first.
type Composite struct {
	Transforms []Transform
}

func (c *Composite) Initialize() error {
	for _, t := range c.Transforms {
		if err := t.Initialize(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composite) Inverse(s *fieldeval.Sample) fieldeval.Result {
	for i := len(c.Transforms) - 1; i >= 0; i-- {
		if res := c.Transforms[i].Inverse(s); res != fieldeval.ResultOK {
			return res
		}
	}
	return fieldeval.ResultOK
}

func (c *Composite) TransformBounds(bb md3.Box) md3.Box {
	for _, t := range c.Transforms {
		bt, ok := t.(boundsTransformer)
		if !ok {
			return infiniteBox
		}
		bb = bt.TransformBounds(bb)
	}
	return bb
}

// Array is the domain repetition operation. It repeats domain centered around the origin (x,y,z)=(0,0,0)
// nx, ny, nz times along each axis with the given spacing.
func (bld *Builder) Array(f fieldeval.Field, spacingX, spacingY, spacingZ float64, nx, ny, nz int) fieldeval.Field {
	if f == nil {
		bld.nilfield("Array")
	}
	if nx <= 0 || ny <= 0 || nz <= 0 {
		bld.shapeErrorf("invalid array repeat param")
	}
	if spacingX <= 0 || spacingY <= 0 || spacingZ <= 0 {
		bld.shapeErrorf("invalid array spacing")
	}
	if bld.mode != fieldeval.ModeDistance {
		bld.shapeErrorf("Array requires distance mode")
	}
	a := &array{f: f, d: md3.Vec{X: spacingX, Y: spacingY, Z: spacingZ}, nx: nx, ny: ny, nz: nz}
	a.mode = bld.mode
	return a
}

type array struct {
	node
	f          fieldeval.Field
	d          md3.Vec
	nx, ny, nz int
}

func (a *array) Initialize() error {
	if a.Initialized() {
		return nil
	}
	if err := a.f.Initialize(); err != nil {
		return err
	}
	a.MarkInitialized()
	return nil
}

func (a *array) Channels() int { return a.f.Channels() }

func (a *array) nvec3() md3.Vec {
	return md3.Vec{X: float64(a.nx - 1), Y: float64(a.ny - 1), Z: float64(a.nz - 1)}
}

func (a *array) Bounds() md3.Box {
	bb := a.f.Bounds()
	bb.Max = md3.Add(bb.Max, md3.MulElem(a.nvec3(), a.d))
	return bb
}

func (a *array) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	a.MustBeInitialized("array")
	vp, err := fieldeval.GetVecPool(userData)
	if err != nil {
		return err
	}
	local := vp.Samples.Acquire(len(samples))
	defer vp.Samples.Release(local)
	aux := vp.Values.Acquire(len(dst))
	defer vp.Values.Release(aux)
	for i := range dst {
		dst[i] = fieldeval.Value{Code: fieldeval.ResultOutOfRange}
		dst[i].V[0] = largenum
	}
	n := a.nvec3()
	// Evaluate the nearest tile and its 7 neighbours in the direction of the sample.
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				for is, s := range samples {
					p := s.Pos
					id := md3.Vec{X: math.Round(p.X / a.d.X), Y: math.Round(p.Y / a.d.Y), Z: math.Round(p.Z / a.d.Z)}
					o := md3.Vec{X: signf(p.X - a.d.X*id.X), Y: signf(p.Y - a.d.Y*id.Y), Z: signf(p.Z - a.d.Z*id.Z)}
					rid := md3.Add(id, md3.MulElem(md3.Vec{X: float64(i), Y: float64(j), Z: float64(k)}, o))
					rid = md3.MinElem(md3.MaxElem(rid, md3.Vec{}), n)
					local[is] = s
					local[is].Pos = md3.Sub(p, md3.MulElem(a.d, rid))
				}
				err = a.f.Evaluate(local, aux, userData)
				if err != nil {
					return err
				}
				for is := range dst {
					if aux[is].Code == fieldeval.ResultOK && aux[is].V[0] < dst[is].V[0] {
						dst[is] = aux[is]
					}
				}
			}
		}
	}
	return nil
}
