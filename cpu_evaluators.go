package fabfield

import (
	"math"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/geometry/md3"
)

func (u *sphere) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	u.MustBeInitialized("sphere")
	r := u.r
	for i, s := range samples {
		u.set(&dst[i], md3.Norm(s.Pos)-r, s.Scale)
	}
	return nil
}

func (b *box) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	b.MustBeInitialized("box")
	d := md3.Scale(0.5, b.dims)
	r := b.round
	rv := md3.Vec{X: r, Y: r, Z: r}
	for i, s := range samples {
		q := md3.Add(rv, md3.Sub(md3.AbsElem(s.Pos), d))
		dist := md3.Norm(md3.MaxElem(q, md3.Vec{})) + math.Min(math.Max(q.X, math.Max(q.Y, q.Z)), 0.0) - r
		b.set(&dst[i], dist, s.Scale)
	}
	return nil
}

func (bf *boxframe) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	bf.MustBeInitialized("boxframe")
	e, b := bf.args()
	ev := md3.Vec{X: e, Y: e, Z: e}
	var z3 md3.Vec
	for i, s := range samples {
		p := md3.Sub(md3.AbsElem(s.Pos), b)
		q := md3.Sub(md3.AbsElem(md3.Add(ev, p)), ev)

		s1 := math.Min(0, math.Max(p.X, math.Max(q.Y, q.Z)))
		n1 := md3.Norm(md3.MaxElem(md3.Vec{X: p.X, Y: q.Y, Z: q.Z}, z3)) + s1

		s2 := math.Min(0, math.Max(q.X, math.Max(p.Y, q.Z)))
		n2 := md3.Norm(md3.MaxElem(md3.Vec{X: q.X, Y: p.Y, Z: q.Z}, z3)) + s2

		s3 := math.Min(0, math.Max(q.X, math.Max(q.Y, p.Z)))
		n3 := md3.Norm(md3.MaxElem(md3.Vec{X: q.X, Y: q.Y, Z: p.Z}, z3)) + s3

		bf.set(&dst[i], math.Min(n1, math.Min(n2, n3)), s.Scale)
	}
	return nil
}

func (t *torus) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	t.MustBeInitialized("torus")
	t1 := t.rGreater
	t2 := t.rLesser
	for i, s := range samples {
		p := s.Pos
		qx := math.Hypot(p.X, p.Y) - t1
		t.set(&dst[i], math.Hypot(qx, p.Z)-t2, s.Scale)
	}
	return nil
}

func (c *cylinder) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	c.MustBeInitialized("cylinder")
	r, h, round := c.args()
	for i, s := range samples {
		p := s.Pos
		dx := math.Hypot(p.X, p.Y) - r + round
		dy := math.Abs(p.Z) - h
		d := math.Min(math.Max(dx, dy), 0) + math.Hypot(math.Max(dx, 0), math.Max(dy, 0)) - round
		c.set(&dst[i], d, s.Scale)
	}
	return nil
}

func (c *cone) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	c.MustBeInitialized("cone")
	r1, r2, h := c.r1, c.r2, c.h/2
	k2x, k2y := r2-r1, 2*h
	k2dot := k2x*k2x + k2y*k2y
	for i, s := range samples {
		p := s.Pos
		qx, qy := math.Hypot(p.X, p.Y), p.Z
		rsel := r2
		if qy < 0 {
			rsel = r1
		}
		cax := qx - math.Min(qx, rsel)
		cay := math.Abs(qy) - h
		t := clampf(((r2-qx)*k2x+(h-qy)*k2y)/k2dot, 0, 1)
		cbx := qx - r2 + k2x*t
		cby := qy - h + k2y*t
		sgn := 1.0
		if cbx < 0 && cay < 0 {
			sgn = -1
		}
		d := sgn * math.Sqrt(math.Min(cax*cax+cay*cay, cbx*cbx+cby*cby))
		c.set(&dst[i], d, s.Scale)
	}
	return nil
}

func (r *ring) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	r.MustBeInitialized("ring")
	for i, s := range samples {
		p := s.Pos
		rad := math.Hypot(p.X, p.Z)
		dr := math.Max(r.inner-rad, rad-r.outer)
		dy := math.Max(r.ymin-p.Y, p.Y-r.ymax)
		d := math.Min(math.Max(dr, dy), 0) + math.Hypot(math.Max(dr, 0), math.Max(dy, 0))
		r.set(&dst[i], d, s.Scale)
	}
	return nil
}

func (t *triangle) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	t.MustBeInitialized("triangle")
	a, b, c := t.a, t.b, t.c
	ba := md3.Sub(b, a)
	cb := md3.Sub(c, b)
	ac := md3.Sub(a, c)
	nor := md3.Cross(ba, ac)
	ban := md3.Cross(ba, nor)
	cbn := md3.Cross(cb, nor)
	acn := md3.Cross(ac, nor)
	nor2 := md3.Dot(nor, nor)
	half := t.thick / 2
	for i, s := range samples {
		p := s.Pos
		pa := md3.Sub(p, a)
		pb := md3.Sub(p, b)
		pc := md3.Sub(p, c)
		var d2 float64
		if signf(md3.Dot(ban, pa))+signf(md3.Dot(cbn, pb))+signf(md3.Dot(acn, pc)) < 2 {
			// Closest feature is an edge.
			d2 = math.Min(math.Min(
				segDist2(ba, pa),
				segDist2(cb, pb)),
				segDist2(ac, pc))
		} else {
			dn := md3.Dot(nor, pa)
			d2 = dn * dn / nor2
		}
		t.set(&dst[i], math.Sqrt(d2)-half, s.Scale)
	}
	return nil
}

// segDist2 returns squared distance from point (relative to segment start) pa to segment of direction e.
func segDist2(e, pa md3.Vec) float64 {
	h := clampf(md3.Dot(e, pa)/md3.Dot(e, e), 0, 1)
	v := md3.Sub(md3.Scale(h, e), pa)
	return md3.Dot(v, v)
}

func (p *plane) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	p.MustBeInitialized("plane")
	for i, s := range samples {
		p.set(&dst[i], md3.Dot(s.Pos, p.n)-p.d, s.Scale)
	}
	return nil
}

func (h *hex) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	h.MustBeInitialized("hex")
	const k1, k2, k3 = -tribisect, 0.5, 0.57735026918962576
	h1 := h.side
	h2 := h.h
	clm := k3 * h1
	for i, s := range samples {
		p := md3.AbsElem(s.Pos)
		pm := math.Min(k1*p.X+k2*p.Y, 0)
		p.X -= 2 * k1 * pm
		p.Y -= 2 * k2 * pm
		d1 := math.Hypot(p.X-clampf(p.X, -clm, clm), p.Y-h1) * signf(p.Y-h1)
		d2 := p.Z - h2
		d := math.Min(math.Max(d1, d2), 0) + math.Hypot(math.Max(d1, 0), math.Max(d2, 0))
		h.set(&dst[i], d, s.Scale)
	}
	return nil
}

func (c *constant) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, userData any) error {
	c.MustBeInitialized("constant")
	for i := range samples {
		dst[i] = fieldeval.Value{}
		dst[i].V[0] = c.v
	}
	return nil
}
