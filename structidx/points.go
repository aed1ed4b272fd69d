package structidx

import (
	"errors"
	"math"

	"github.com/soypat/fabfield/grid"
	"github.com/soypat/geometry/md3"
)

// PointBuffer is a growable flat array of 3D points stored as consecutive
// x, y, z coordinates. Point handles are indices into the buffer.
type PointBuffer struct {
	data []float64
}

// Append adds p and returns its handle.
func (pb *PointBuffer) Append(p md3.Vec) int {
	pb.data = append(pb.data, p.X, p.Y, p.Z)
	return len(pb.data)/3 - 1
}

// At returns the point with handle i.
func (pb *PointBuffer) At(i int) md3.Vec {
	d := pb.data[3*i : 3*i+3]
	return md3.Vec{X: d[0], Y: d[1], Z: d[2]}
}

// Len returns the number of points.
func (pb *PointBuffer) Len() int { return len(pb.data) / 3 }

// Truncate drops all points with handle n or larger.
func (pb *PointBuffer) Truncate(n int) { pb.data = pb.data[:3*n] }

// Data returns the flat coordinate storage.
func (pb *PointBuffer) Data() []float64 { return pb.data }

// PointSet welds points closer than an epsilon into a single handle.
type PointSet struct {
	eps    float64
	invEps float64
	buf    PointBuffer
	set    *Set
}

// NewPointSet returns a welder merging points within eps of each other
// (Chebyshev distance, per coordinate).
func NewPointSet(eps float64) (*PointSet, error) {
	if !(eps > 0) || math.IsInf(eps, 0) {
		return nil, errors.New("point set epsilon must be positive and finite")
	}
	ps := &PointSet{eps: eps, invEps: 1 / eps}
	ps.set = NewSet(
		func(h int) uint64 { return ps.cellHash(ps.cell(ps.buf.At(h))) },
		func(a, b int) bool { return ps.near(ps.buf.At(a), ps.buf.At(b)) },
	)
	return ps, nil
}

// Add returns the handle of a stored point within epsilon of p, or stores p
// and returns its new handle with isNew true.
func (ps *PointSet) Add(p md3.Vec) (handle int, isNew bool) {
	c := ps.cell(p)
	match := func(h int) bool { return ps.near(p, ps.buf.At(h)) }
	// A point within eps lies in the same or an adjacent cell of side eps.
	for dk := int64(-1); dk <= 1; dk++ {
		for dj := int64(-1); dj <= 1; dj++ {
			for di := int64(-1); di <= 1; di++ {
				h, ok := ps.set.lookup(ps.cellHash([3]int64{c[0] + di, c[1] + dj, c[2] + dk}), match)
				if ok {
					return h, false
				}
			}
		}
	}
	h := ps.buf.Append(p)
	ps.set.addHashed(h, ps.cellHash(c))
	return h, true
}

// Find returns the handle of a stored point within epsilon of p.
func (ps *PointSet) Find(p md3.Vec) (int, bool) {
	c := ps.cell(p)
	match := func(h int) bool { return ps.near(p, ps.buf.At(h)) }
	for dk := int64(-1); dk <= 1; dk++ {
		for dj := int64(-1); dj <= 1; dj++ {
			for di := int64(-1); di <= 1; di++ {
				if h, ok := ps.set.lookup(ps.cellHash([3]int64{c[0] + di, c[1] + dj, c[2] + dk}), match); ok {
					return h, true
				}
			}
		}
	}
	return -1, false
}

// At returns the point with handle h.
func (ps *PointSet) At(h int) md3.Vec { return ps.buf.At(h) }

// Len returns the number of distinct points.
func (ps *PointSet) Len() int { return ps.set.Len() }

// Points returns the point buffer. It must not be modified.
func (ps *PointSet) Points() *PointBuffer { return &ps.buf }

// Clear removes all points.
func (ps *PointSet) Clear() {
	ps.set.Clear()
	ps.buf.Truncate(0)
}

func (ps *PointSet) near(a, b md3.Vec) bool {
	return math.Abs(a.X-b.X) <= ps.eps && math.Abs(a.Y-b.Y) <= ps.eps && math.Abs(a.Z-b.Z) <= ps.eps
}

func (ps *PointSet) cell(p md3.Vec) [3]int64 {
	return [3]int64{
		int64(math.Floor(p.X * ps.invEps)),
		int64(math.Floor(p.Y * ps.invEps)),
		int64(math.Floor(p.Z * ps.invEps)),
	}
}

func (ps *PointSet) cellHash(c [3]int64) uint64 {
	// Wrap cell coordinates into the 21 bits Morton3 interleaves.
	const bias = 1 << 20
	key := grid.Morton3(uint32(c[0]+bias), uint32(c[1]+bias), uint32(c[2]+bias))
	return mix64(key ^ uint64(c[0]>>21)*0x9e3779b97f4a7c15 ^ uint64(c[1]>>21)*0xc2b2ae3d27d4eb4f ^ uint64(c[2]>>21)*0x165667b19e3779f9)
}

// mix64 is the splitmix64 finalizer.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
