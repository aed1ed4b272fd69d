package fabfield

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/geometry/md3"
)

// DefaultMaxReflections is the default iteration limit of [ReflectionGroup].
const DefaultMaxReflections = 100

// Splitter is a mirror of a [ReflectionGroup]: a plane or an inversion sphere.
type Splitter interface {
	// Distance returns a signed distance which is positive on the fundamental domain side.
	Distance(p md3.Vec) float64
	// Reflect maps s to the other side of the splitter, updating its scale.
	Reflect(s *fieldeval.Sample)
}

// MirrorPlane is the half space dot(p, Normal) <= Dist. Normal must be of unit length, see [NewMirrorPlane].
type MirrorPlane struct {
	Normal md3.Vec
	Dist   float64
}

// NewMirrorPlane returns a mirror plane with external normal n at distance d from the origin along the normal.
func NewMirrorPlane(n md3.Vec, d float64) MirrorPlane {
	return MirrorPlane{Normal: md3.Unit(n), Dist: d}
}

func (mp MirrorPlane) Distance(p md3.Vec) float64 {
	return mp.Dist - md3.Dot(p, mp.Normal)
}

func (mp MirrorPlane) Reflect(s *fieldeval.Sample) {
	n := mp.Normal
	vn := 2 * md3.Dot(md3.Sub(s.Pos, md3.Scale(mp.Dist, n)), n)
	s.Pos = md3.Sub(s.Pos, md3.Scale(vn, n))
}

// MirrorSphere is an inversion sphere. A positive Radius puts the fundamental
// domain inside the sphere and a negative one outside.
type MirrorSphere struct {
	Center md3.Vec
	Radius float64
}

func (ms MirrorSphere) Distance(p md3.Vec) float64 {
	d := md3.Sub(p, ms.Center)
	return 0.5 * (ms.Radius - md3.Dot(d, d)/ms.Radius)
}

func (ms MirrorSphere) Reflect(s *fieldeval.Sample) {
	v := md3.Sub(s.Pos, ms.Center)
	len2 := md3.Dot(v, v)
	if len2 == 0 {
		// Center maps to infinity.
		s.Pos = md3.Vec{X: largenum, Y: largenum, Z: largenum}
		return
	}
	factor := ms.Radius * ms.Radius / len2
	s.Pos = md3.Add(md3.Scale(factor, v), ms.Center)
	s.Scale *= factor
}

// ReflectionGroup folds space into a fundamental domain bounded by its splitters.
type ReflectionGroup struct {
	Splitters []Splitter
	// MaxIterations bounds the number of splitter tests. Zero means [DefaultMaxReflections].
	MaxIterations int
	// RiemannRadius enables the final scaling 1/(1+|p|²/R²) of the sample scale when positive.
	RiemannRadius float64
}

// Reflect folds f's evaluation space into the fundamental domain of g.
func (bld *Builder) Reflect(f fieldeval.Field, g *ReflectionGroup) fieldeval.Field {
	if g == nil {
		bld.shapeErrorf("nil reflection group")
		return f
	}
	if err := g.Initialize(); err != nil {
		bld.shapeErrorf("%s", err.Error())
	}
	return bld.Transform(f, g)
}

func (g *ReflectionGroup) Initialize() error {
	if len(g.Splitters) == 0 {
		return errors.New("reflection group without splitters")
	}
	for i, sp := range g.Splitters {
		switch s := sp.(type) {
		case MirrorPlane:
			if math.Abs(md3.Norm(s.Normal)-1) > 1e-9 {
				return fmt.Errorf("splitter %d: mirror plane normal not of unit length", i)
			}
		case MirrorSphere:
			if s.Radius == 0 || !fieldeval.IsFinite(s.Radius) {
				return fmt.Errorf("splitter %d: invalid inversion sphere radius", i)
			}
		case nil:
			return fmt.Errorf("splitter %d is nil", i)
		}
	}
	if g.MaxIterations < 0 {
		return errors.New("negative reflection iteration limit")
	}
	return nil
}

// Inverse moves s into the fundamental domain. Returns [fieldeval.ResultOutOfRange]
// if the domain was not reached within the iteration limit.
func (g *ReflectionGroup) Inverse(s *fieldeval.Sample) fieldeval.Result {
	maxIter := g.MaxIterations
	if maxIter == 0 {
		maxIter = DefaultMaxReflections
	}
	n := len(g.Splitters)
	current := 0
	inside := 0
	for iter := 0; iter < maxIter; iter++ {
		sp := g.Splitters[current]
		if sp.Distance(s.Pos) < 0 {
			sp.Reflect(s)
			// Inside this splitter now, others may have been crossed.
			inside = 1
		} else {
			inside++
		}
		if inside >= n {
			if g.RiemannRadius > 0 {
				s.Scale /= 1 + md3.Dot(s.Pos, s.Pos)/(g.RiemannRadius*g.RiemannRadius)
			}
			return fieldeval.ResultOK
		}
		current = (current + 1) % n
	}
	return fieldeval.ResultOutOfRange
}

// WallpaperKind identifies a reflection wallpaper group by its orbifold notation.
type WallpaperKind uint8

const (
	WallpaperS442  WallpaperKind = iota // *442
	WallpaperS632                       // *632
	WallpaperS333                       // *333
	WallpaperS2222                      // *2222
)

func (k WallpaperKind) String() string {
	switch k {
	case WallpaperS442:
		return "*442"
	case WallpaperS632:
		return "*632"
	case WallpaperS333:
		return "*333"
	case WallpaperS2222:
		return "*2222"
	}
	return fmt.Sprintf("WallpaperKind(%d)", uint8(k))
}

// WallpaperGroup returns the reflection group of the wallpaper group kind in the xy plane.
// width sets the fundamental domain size. height is used only by *2222.
func WallpaperGroup(kind WallpaperKind, width, height float64) (*ReflectionGroup, error) {
	if width <= 0 {
		return nil, errors.New("zero or negative wallpaper domain width")
	}
	var sp []Splitter
	switch kind {
	case WallpaperS442:
		sp = []Splitter{
			NewMirrorPlane(md3.Vec{Y: -1}, 0),
			NewMirrorPlane(md3.Vec{X: 1, Y: 1}, width/math.Sqrt2),
			NewMirrorPlane(md3.Vec{X: -1}, 0),
		}
	case WallpaperS632:
		sp = []Splitter{
			NewMirrorPlane(md3.Vec{Y: -1}, 0),
			NewMirrorPlane(md3.Vec{X: tribisect, Y: 0.5}, width*tribisect),
			NewMirrorPlane(md3.Vec{X: -1}, 0),
		}
	case WallpaperS333:
		sp = []Splitter{
			NewMirrorPlane(md3.Vec{Y: -1}, 0),
			NewMirrorPlane(md3.Vec{X: tribisect, Y: 0.5}, width/2*tribisect),
			NewMirrorPlane(md3.Vec{X: -tribisect, Y: 0.5}, width/2*tribisect),
		}
	case WallpaperS2222:
		if height <= 0 {
			return nil, errors.New("zero or negative wallpaper domain height")
		}
		sp = []Splitter{
			NewMirrorPlane(md3.Vec{X: 1}, width),
			NewMirrorPlane(md3.Vec{Y: 1}, height),
			NewMirrorPlane(md3.Vec{X: -1}, 0),
			NewMirrorPlane(md3.Vec{Y: -1}, 0),
		}
	default:
		return nil, fmt.Errorf("unknown wallpaper group %s", kind)
	}
	return &ReflectionGroup{Splitters: sp}, nil
}

// PointGroupMirrors returns the dihedral reflection group *nn around the z axis:
// n mirror planes through the axis with the fundamental wedge 0 <= angle <= π/n.
func PointGroupMirrors(n int) (*ReflectionGroup, error) {
	if n < 1 {
		return nil, errors.New("point group order must be positive")
	}
	a := math.Pi / float64(n)
	sp := []Splitter{
		NewMirrorPlane(md3.Vec{Y: -1}, 0),
		NewMirrorPlane(md3.Vec{X: -math.Sin(a), Y: math.Cos(a)}, 0),
	}
	if n == 1 {
		sp = sp[:1]
	}
	return &ReflectionGroup{Splitters: sp}, nil
}
