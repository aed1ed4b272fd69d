package fabfield

import (
	"fmt"
	"math"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/geometry/md3"
)

// OpUnion is the result of the [Builder.Union] operation. Prefer using [Builder.Union] to using this type directly.
//
// Normally primitives and results of operations in this package are
// not exported since their concrete type provides relatively little value.
// The result of Union is the exception to the rule since it is the
// most common operation to perform on fields and users may wish to
// traverse a field graph looking for OpUnion elements to section
// their bounding boxes.
type OpUnion struct {
	node
	// joined contains 2 or more fields.
	// OpUnion methods will panic if joined less than 2 elements.
	joined []fieldeval.Field
	k      float64
	nch    int
}

// Union joins the shapes of several fields into one. Is exact.
// Union aggregates nested Union results into its own. To prevent this behaviour use [OpUnion] directly.
func (bld *Builder) Union(fields ...fieldeval.Field) fieldeval.Field {
	return bld.SmoothUnion(0, fields...)
}

// SmoothUnion joins several fields blending the seam with blend radius k.
// In density mode the blend radius has no effect. Operands are folded left to right.
func (bld *Builder) SmoothUnion(k float64, fields ...fieldeval.Field) fieldeval.Field {
	if len(fields) < 2 {
		panic("need at least 2 arguments to Union")
	}
	bld.checkBlend("Union", k)
	U := OpUnion{k: k}
	U.mode = bld.mode
	for i, f := range fields {
		if f == nil {
			bld.nilfield(fmt.Sprintf("nil arg[%d] to Union", i))
		}
		subU, ok := f.(*OpUnion)
		// Smooth union is not associative so only a leading nested union of equal radius is flattened.
		if ok && subU.k == k && subU.mode == U.mode && (k == 0 || i == 0) {
			U.joined = append(U.joined, subU.joined...)
		} else {
			U.joined = append(U.joined, f)
		}
	}
	bld.checkMode("Union", U.mode, U.joined...)
	U.nch = maxChannels(U.joined...)
	return &U
}

// Initialize implements [fieldeval.Field].
func (u *OpUnion) Initialize() error {
	u.mustValidate()
	if u.Initialized() {
		return nil
	}
	if err := initAll(u.joined...); err != nil {
		return err
	}
	u.MarkInitialized()
	return nil
}

// Bounds returns the union of all joined fields. Implements [fieldeval.Field].
func (u *OpUnion) Bounds() md3.Box {
	u.mustValidate()
	bb := u.joined[0].Bounds()
	for _, f := range u.joined[1:] {
		bb = boxUnion(bb, f.Bounds())
	}
	if u.k > 0 && u.mode == fieldeval.ModeDistance {
		// Smoothing adds material of at most k/4 along seams.
		pad := u.k / 4
		bb.Min = md3.Sub(bb.Min, md3.Vec{X: pad, Y: pad, Z: pad})
		bb.Max = md3.Add(bb.Max, md3.Vec{X: pad, Y: pad, Z: pad})
	}
	return bb
}

// Channels implements [fieldeval.Field].
func (u *OpUnion) Channels() int { return u.nch }

// BlendRadius returns the union's smoothing radius.
func (u *OpUnion) BlendRadius() float64 { return u.k }

// Fields returns the joined fields. The returned slice must not be modified.
func (u *OpUnion) Fields() []fieldeval.Field { return u.joined }

// Evaluate implements [fieldeval.Field].
func (u *OpUnion) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	u.mustValidate()
	u.MustBeInitialized("union")
	return foldEvaluate(opUnion, u.mode, u.k, u.joined, samples, dst, userData)
}

func (u *OpUnion) mustValidate() {
	if len(u.joined) < 2 {
		panic("OpUnion must have at least 2 elements. please prefer using Builder.Union over OpUnion")
	}
}

// Intersection is the intersection of all fields. Is exact.
func (bld *Builder) Intersection(fields ...fieldeval.Field) fieldeval.Field {
	return bld.SmoothIntersection(0, fields...)
}

// SmoothIntersection intersects fields blending the seam with blend radius k.
// Operands are folded left to right.
func (bld *Builder) SmoothIntersection(k float64, fields ...fieldeval.Field) fieldeval.Field {
	return bld.newFold(opIntersection, "Intersection", k, fields)
}

// Subtraction removes b and all following fields from a. Is exact.
func (bld *Builder) Subtraction(a fieldeval.Field, b ...fieldeval.Field) fieldeval.Field {
	return bld.SmoothSubtraction(0, a, b...)
}

// SmoothSubtraction removes b and all following fields from a blending with radius k.
func (bld *Builder) SmoothSubtraction(k float64, a fieldeval.Field, b ...fieldeval.Field) fieldeval.Field {
	fields := append([]fieldeval.Field{a}, b...)
	return bld.newFold(opSubtraction, "Subtraction", k, fields)
}

func (bld *Builder) newFold(op binop, name string, k float64, fields []fieldeval.Field) fieldeval.Field {
	if len(fields) < 2 {
		panic("need at least 2 arguments to " + name)
	}
	for i, f := range fields {
		if f == nil {
			bld.nilfield(fmt.Sprintf("nil arg[%d] to %s", i, name))
		}
	}
	bld.checkBlend(name, k)
	bld.checkMode(name, bld.mode, fields...)
	f := &fold{op: op, k: k, fields: fields, nch: maxChannels(fields...)}
	f.mode = bld.mode
	return f
}

func (bld *Builder) checkBlend(op string, k float64) {
	if k < 0 || !fieldeval.IsFinite(k) {
		bld.shapeErrorf("%s: invalid blend radius %g", op, k)
	}
}

type binop uint8

const (
	opUnion binop = iota
	opIntersection
	opSubtraction
)

func (op binop) String() string {
	switch op {
	case opUnion:
		return "union"
	case opIntersection:
		return "intersection"
	case opSubtraction:
		return "subtraction"
	}
	return "binop?"
}

// fold is an n-ary intersection or subtraction.
type fold struct {
	node
	op     binop
	k      float64
	fields []fieldeval.Field
	nch    int
}

func (f *fold) Initialize() error {
	if f.Initialized() {
		return nil
	}
	if err := initAll(f.fields...); err != nil {
		return err
	}
	f.MarkInitialized()
	return nil
}

func (f *fold) Channels() int { return f.nch }

func (f *fold) Bounds() md3.Box {
	bb := f.fields[0].Bounds()
	if f.op == opSubtraction {
		return bb
	}
	for _, g := range f.fields[1:] {
		bb = boxIntersect(bb, g.Bounds())
	}
	return bb
}

func (f *fold) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	f.MustBeInitialized(f.op.String())
	return foldEvaluate(f.op, f.mode, f.k, f.fields, samples, dst, userData)
}

// foldEvaluate evaluates fields and reduces them pairwise left to right with op.
func foldEvaluate(op binop, mode fieldeval.Mode, k float64, fields []fieldeval.Field, samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	vp, err := fieldeval.GetVecPool(userData)
	if err != nil {
		return err
	}
	aux := vp.Values.Acquire(len(dst))
	defer vp.Values.Release(aux)
	err = fields[0].Evaluate(samples, dst, userData)
	if err != nil {
		return err
	}
	sanitize(dst, mode)
	for _, f := range fields[1:] {
		err = f.Evaluate(samples, aux, userData)
		if err != nil {
			return err
		}
		sanitize(aux, mode)
		for i := range dst {
			combine(op, mode, k, &dst[i], &aux[i])
		}
	}
	return nil
}

// sanitize replaces out of range values with the no contribution value.
func sanitize(vals []fieldeval.Value, mode fieldeval.Mode) {
	for i := range vals {
		if vals[i].Code != fieldeval.ResultOK {
			fieldeval.SetNoContribution(&vals[i], mode)
		}
	}
}

// combine stores op(a,b) in a.
func combine(op binop, mode fieldeval.Mode, k float64, a, b *fieldeval.Value) {
	va, vb := a.V[0], b.V[0]
	var v float64
	takeB := false
	if mode == fieldeval.ModeDistance {
		switch op {
		case opUnion:
			v = unionDist(va, vb, k)
			takeB = vb < va
		case opIntersection:
			v = intersectDist(va, vb, k)
			takeB = vb > va
		case opSubtraction:
			v = intersectDist(va, -vb, k)
		}
	} else {
		switch op {
		case opUnion:
			v = math.Max(va, vb)
			takeB = vb > va
		case opIntersection:
			v = math.Min(va, vb)
			takeB = vb < va
		case opSubtraction:
			v = math.Min(va, 1-vb)
		}
	}
	if takeB {
		a.V = b.V
	}
	a.V[0] = v
	if b.Code == fieldeval.ResultOK {
		a.Code = fieldeval.ResultOK
	}
}

// smoothTerm returns k·h²/4 with h = clamp(k-|a-b|, 0, k)/k. k=0 disables smoothing.
func smoothTerm(a, b, k float64) float64 {
	if k == 0 {
		return 0
	}
	h := clampf(k-math.Abs(a-b), 0, k) / k
	return k * h * h / 4
}

func unionDist(a, b, k float64) float64 {
	return math.Min(a, b) - smoothTerm(a, b, k)
}

func intersectDist(a, b, k float64) float64 {
	return math.Max(a, b) + smoothTerm(a, b, k)
}

// Complement inverts the solid: distance becomes -d and density 1-d.
func (bld *Builder) Complement(f fieldeval.Field) fieldeval.Field {
	if f == nil {
		bld.nilfield("Complement")
	}
	bld.checkMode("Complement", bld.mode, f)
	c := &complement{f: f}
	c.mode = bld.mode
	return c
}

type complement struct {
	node
	f fieldeval.Field
}

func (c *complement) Initialize() error {
	if c.Initialized() {
		return nil
	}
	if err := c.f.Initialize(); err != nil {
		return err
	}
	c.MarkInitialized()
	return nil
}

func (c *complement) Channels() int { return c.f.Channels() }

func (c *complement) Bounds() md3.Box { return infiniteBox }

func (c *complement) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	c.MustBeInitialized("complement")
	err := c.f.Evaluate(samples, dst, userData)
	if err != nil {
		return err
	}
	sanitize(dst, c.mode)
	density := c.mode == fieldeval.ModeDensity
	for i := range dst {
		if density {
			dst[i].V[0] = 1 - dst[i].V[0]
		} else {
			dst[i].V[0] = -dst[i].V[0]
		}
		// The complement of an empty region covers the sample.
		dst[i].Code = fieldeval.ResultOK
	}
	return nil
}

// Offset adds a constant offset to a distance field, growing (negative off) or shrinking it.
// Only valid in distance mode.
func (bld *Builder) Offset(f fieldeval.Field, off float64) fieldeval.Field {
	if f == nil {
		bld.nilfield("Offset")
	}
	if bld.mode != fieldeval.ModeDistance {
		bld.shapeErrorf("Offset requires distance mode")
	}
	bld.checkMode("Offset", bld.mode, f)
	o := &offset{f: f, off: off}
	o.mode = bld.mode
	return o
}

type offset struct {
	node
	f   fieldeval.Field
	off float64
}

func (o *offset) Initialize() error {
	if o.Initialized() {
		return nil
	}
	if err := o.f.Initialize(); err != nil {
		return err
	}
	o.MarkInitialized()
	return nil
}

func (o *offset) Channels() int { return o.f.Channels() }

func (o *offset) Bounds() md3.Box {
	bb := o.f.Bounds()
	pad := math.Max(0, -o.off)
	bb.Min = md3.Sub(bb.Min, md3.Vec{X: pad, Y: pad, Z: pad})
	bb.Max = md3.Add(bb.Max, md3.Vec{X: pad, Y: pad, Z: pad})
	return bb
}

func (o *offset) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	o.MustBeInitialized("offset")
	err := o.f.Evaluate(samples, dst, userData)
	if err != nil {
		return err
	}
	for i := range dst {
		if dst[i].Code == fieldeval.ResultOK {
			dst[i].V[0] += o.off
		}
	}
	return nil
}

// Shell carves the interior of a distance field leaving a wall of the given thickness centered on its surface.
func (bld *Builder) Shell(f fieldeval.Field, thickness float64) fieldeval.Field {
	if f == nil {
		bld.nilfield("Shell")
	}
	if thickness <= 0 {
		bld.shapeErrorf("zero or negative shell thickness")
	}
	if bld.mode != fieldeval.ModeDistance {
		bld.shapeErrorf("Shell requires distance mode")
	}
	bld.checkMode("Shell", bld.mode, f)
	s := &shell{f: f, thick: thickness}
	s.mode = bld.mode
	return s
}

type shell struct {
	node
	f     fieldeval.Field
	thick float64
}

func (s *shell) Initialize() error {
	if s.Initialized() {
		return nil
	}
	if err := s.f.Initialize(); err != nil {
		return err
	}
	s.MarkInitialized()
	return nil
}

func (s *shell) Channels() int { return s.f.Channels() }

func (s *shell) Bounds() md3.Box {
	bb := s.f.Bounds()
	pad := s.thick / 2
	bb.Min = md3.Sub(bb.Min, md3.Vec{X: pad, Y: pad, Z: pad})
	bb.Max = md3.Add(bb.Max, md3.Vec{X: pad, Y: pad, Z: pad})
	return bb
}

func (s *shell) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	s.MustBeInitialized("shell")
	err := s.f.Evaluate(samples, dst, userData)
	if err != nil {
		return err
	}
	half := s.thick / 2
	for i := range dst {
		if dst[i].Code == fieldeval.ResultOK {
			dst[i].V[0] = math.Abs(dst[i].V[0]) - half
		}
	}
	return nil
}
