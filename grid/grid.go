// Package grid implements dense voxel grids of bit packed multi channel words.
//
// A grid is written once, typically by a rasterizer partitioning it into
// disjoint Z slabs, and then frozen. Decoding a frozen grid is deterministic
// and safe for concurrent use.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/geometry/md3"
)

// Bounds is an axis aligned box subdivided into cubic voxels.
type Bounds struct {
	Box   md3.Box
	Voxel float64
}

// NewBounds returns validated bounds.
func NewBounds(box md3.Box, voxel float64) (Bounds, error) {
	b := Bounds{Box: box, Voxel: voxel}
	return b, b.Validate()
}

// Validate checks the voxel size is positive and the box is not empty.
func (b Bounds) Validate() error {
	if !(b.Voxel > 0) || math.IsInf(b.Voxel, 0) {
		return fmt.Errorf("%w %g", ErrBadVoxelSize, b.Voxel)
	}
	sz := md3.Sub(b.Box.Max, b.Box.Min)
	if !(sz.X > 0 && sz.Y > 0 && sz.Z > 0) {
		return errors.New("empty grid bounds")
	}
	nx, ny, nz := b.Dims()
	if float64(nx)*float64(ny)*float64(nz) > math.MaxInt32*8 {
		return fmt.Errorf("grid of %dx%dx%d voxels too large", nx, ny, nz)
	}
	return nil
}

// Dims returns the number of voxels along each axis, ceil((max-min)/voxel).
func (b Bounds) Dims() (nx, ny, nz int) {
	return dimOf(b.Box.Min.X, b.Box.Max.X, b.Voxel), dimOf(b.Box.Min.Y, b.Box.Max.Y, b.Voxel), dimOf(b.Box.Min.Z, b.Box.Max.Z, b.Voxel)
}

func dimOf(min, max, voxel float64) int {
	n := (max - min) / voxel
	// Absorb a few ULPs of rounding error on exact multiples.
	ulp := n - math.Nextafter(n, 0)
	c := math.Ceil(n - 4*ulp)
	return max1(int(c))
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// VoxelCenter returns the world position of the center of voxel (i,j,k).
func (b Bounds) VoxelCenter(i, j, k int) md3.Vec {
	v := b.Voxel
	return md3.Vec{
		X: b.Box.Min.X + (float64(i)+0.5)*v,
		Y: b.Box.Min.Y + (float64(j)+0.5)*v,
		Z: b.Box.Min.Z + (float64(k)+0.5)*v,
	}
}

// Index returns the voxel containing p. ok is false if p lies outside the grid.
func (b Bounds) Index(p md3.Vec) (i, j, k int, ok bool) {
	v := b.Voxel
	i = int(math.Floor((p.X - b.Box.Min.X) / v))
	j = int(math.Floor((p.Y - b.Box.Min.Y) / v))
	k = int(math.Floor((p.Z - b.Box.Min.Z) / v))
	nx, ny, nz := b.Dims()
	ok = i >= 0 && j >= 0 && k >= 0 && i < nx && j < ny && k < nz
	return i, j, k, ok
}

// Word is the set of integer types a voxel word may be stored as.
type Word interface {
	~uint8 | ~uint16 | ~uint32
}

// AttributeGrid is a dense 3D array of packed voxel words.
type AttributeGrid interface {
	Bounds() Bounds
	Dims() (nx, ny, nz int)
	Layout() Layout
	// Word returns the packed word of voxel (i,j,k).
	Word(i, j, k int) uint64
	// SetWord sets the packed word of voxel (i,j,k). Panics if the grid is frozen.
	SetWord(i, j, k int, w uint64)
	// Decode returns the physical value of channel ch of voxel (i,j,k).
	Decode(i, j, k, ch int) float64
	// Freeze marks the grid read only.
	Freeze()
	Frozen() bool
}

var (
	// ErrFrozen is the panic value of writes to a frozen grid.
	ErrFrozen = errors.New("write to frozen grid")
	// ErrBadVoxelSize is returned for non positive or infinite voxel sizes.
	ErrBadVoxelSize = errors.New("invalid voxel size")
)

// ArrayGrid stores voxel words contiguously with x varying fastest.
type ArrayGrid[W Word] struct {
	bounds     Bounds
	layout     Layout
	nx, ny, nz int
	data       []W
	frozen     bool
}

var (
	_ AttributeGrid = (*ArrayGrid[uint8])(nil)
	_ AttributeGrid = (*ArrayGrid[uint16])(nil)
	_ AttributeGrid = (*ArrayGrid[uint32])(nil)
)

// NewArrayGrid allocates a zeroed grid. The layout's word width must not exceed W's size.
func NewArrayGrid[W Word](b Bounds, l Layout) (*ArrayGrid[W], error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	var w W
	bits := int(8 * sizeofWord(w))
	if int(l.Width) > bits {
		return nil, fmt.Errorf("layout of %d bit words does not fit %d bit storage", l.Width, bits)
	}
	nx, ny, nz := b.Dims()
	return &ArrayGrid[W]{
		bounds: b,
		layout: l,
		nx:     nx, ny: ny, nz: nz,
		data: make([]W, nx*ny*nz),
	}, nil
}

func sizeofWord[W Word](w W) int {
	w = ^W(0)
	switch {
	case uint64(w) == math.MaxUint8:
		return 1
	case uint64(w) == math.MaxUint16:
		return 2
	}
	return 4
}

// NewGrid allocates a grid with word storage matching the layout's width.
func NewGrid(b Bounds, l Layout) (AttributeGrid, error) {
	switch l.Width {
	case Width8:
		return NewArrayGrid[uint8](b, l)
	case Width16:
		return NewArrayGrid[uint16](b, l)
	case Width32:
		return NewArrayGrid[uint32](b, l)
	}
	return nil, fmt.Errorf("unsupported word width %d", l.Width)
}

func (g *ArrayGrid[W]) Bounds() Bounds         { return g.bounds }
func (g *ArrayGrid[W]) Dims() (nx, ny, nz int) { return g.nx, g.ny, g.nz }
func (g *ArrayGrid[W]) Layout() Layout         { return g.layout }
func (g *ArrayGrid[W]) Frozen() bool           { return g.frozen }

// Freeze marks the grid read only. Must be called after all writers have finished.
func (g *ArrayGrid[W]) Freeze() { g.frozen = true }

// Data returns the underlying word storage. Voxel (i,j,k) is at index i + nx*(j + ny*k).
func (g *ArrayGrid[W]) Data() []W { return g.data }

func (g *ArrayGrid[W]) index(i, j, k int) int {
	if uint(i) >= uint(g.nx) || uint(j) >= uint(g.ny) || uint(k) >= uint(g.nz) {
		panic(fmt.Sprintf("voxel (%d,%d,%d) out of grid %dx%dx%d", i, j, k, g.nx, g.ny, g.nz))
	}
	return i + g.nx*(j+g.ny*k)
}

func (g *ArrayGrid[W]) Word(i, j, k int) uint64 {
	return uint64(g.data[g.index(i, j, k)])
}

func (g *ArrayGrid[W]) SetWord(i, j, k int, w uint64) {
	if g.frozen {
		panic(ErrFrozen)
	}
	g.data[g.index(i, j, k)] = W(w)
}

func (g *ArrayGrid[W]) Decode(i, j, k, ch int) float64 {
	c := g.layout.Channels[ch]
	return c.Decode(c.Extract(g.Word(i, j, k)))
}

// SampleTrilinear interpolates channel ch of g at world position p from the
// decoded values of the 8 nearest voxel centers. Indices are clamped to the grid.
func SampleTrilinear(g AttributeGrid, ch int, p md3.Vec) float64 {
	b := g.Bounds()
	nx, ny, nz := g.Dims()
	u := clampCoord((p.X-b.Box.Min.X)/b.Voxel-0.5, nx)
	v := clampCoord((p.Y-b.Box.Min.Y)/b.Voxel-0.5, ny)
	w := clampCoord((p.Z-b.Box.Min.Z)/b.Voxel-0.5, nz)
	i0, j0, k0 := int(u), int(v), int(w)
	i1, j1, k1 := min(i0+1, nx-1), min(j0+1, ny-1), min(k0+1, nz-1)
	tx, ty, tz := u-float64(i0), v-float64(j0), w-float64(k0)
	c00 := lerp(g.Decode(i0, j0, k0, ch), g.Decode(i1, j0, k0, ch), tx)
	c10 := lerp(g.Decode(i0, j1, k0, ch), g.Decode(i1, j1, k0, ch), tx)
	c01 := lerp(g.Decode(i0, j0, k1, ch), g.Decode(i1, j0, k1, ch), tx)
	c11 := lerp(g.Decode(i0, j1, k1, ch), g.Decode(i1, j1, k1, ch), tx)
	return lerp(lerp(c00, c10, ty), lerp(c01, c11, ty), tz)
}

func clampCoord(u float64, n int) float64 {
	if !(u > 0) {
		return 0
	}
	return math.Min(u, float64(n-1))
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
