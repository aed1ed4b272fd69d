package grid_test

import (
	"errors"
	"math"
	"testing"

	"github.com/soypat/fabfield/grid"
	"github.com/soypat/geometry/md3"
)

func TestChannelEncodeRounding(t *testing.T) {
	ch, err := grid.NewChannel(grid.KindDensity, "d", 8, 0, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	var tests = []struct {
		v    float64
		want uint64
	}{
		{v: 0, want: 0},
		{v: 2.5, want: 3},  // Half away from zero.
		{v: 2.49, want: 2},
		{v: 3.5, want: 4},
		{v: -0.5, want: 0}, // Clamped low.
		{v: -100, want: 0},
		{v: 254.5, want: 255},
		{v: 1e9, want: 255}, // Clamped high.
		{v: math.NaN(), want: 0},
	}
	for _, test := range tests {
		got := ch.Encode(test.v)
		if got != test.want {
			t.Errorf("Encode(%g)=%d, want %d", test.v, got, test.want)
		}
	}
}

func TestChannelBiasScale(t *testing.T) {
	ch, err := grid.NewChannel(grid.KindDistance, "dist", 10, 0, -1, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	code := ch.Encode(0.125)
	// (0.125+1)/0.25 = 4.5 rounds to 5.
	if code != 5 {
		t.Errorf("want code 5, got %d", code)
	}
	got := ch.Decode(code)
	if got != 0.25 {
		t.Errorf("want decoded 0.25, got %g", got)
	}
}

func TestChannelRange(t *testing.T) {
	ch, err := grid.NewChannelRange(grid.KindDensity, "d", 8, 0, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ch.Encode(1) != 255 || ch.Encode(0) != 0 {
		t.Error("range endpoints must map to extreme codes")
	}
	if got := ch.Decode(255); math.Abs(got-1) > 1e-12 {
		t.Errorf("decode max code: got %g", got)
	}
	_, err = grid.NewChannelRange(grid.KindDensity, "bad", 8, 0, 1, 1)
	if err == nil {
		t.Error("expected error for empty range")
	}
	_, err = grid.NewChannel(grid.KindDensity, "bad", 0, 0, 0, 1)
	if err == nil {
		t.Error("expected error for zero bits")
	}
	_, err = grid.NewChannel(grid.KindDensity, "bad", 8, 0, 0, 0)
	if err == nil {
		t.Error("expected error for zero scale")
	}
}

func TestChannelInsertExtract(t *testing.T) {
	lo, _ := grid.NewChannel(grid.KindDensity, "lo", 4, 0, 0, 1)
	hi, _ := grid.NewChannel(grid.KindColorRed, "hi", 4, 4, 0, 1)
	w := lo.Insert(0, 0xa)
	w = hi.Insert(w, 0x5)
	if w != 0x5a {
		t.Fatalf("want word 0x5a, got %#x", w)
	}
	if lo.Extract(w) != 0xa || hi.Extract(w) != 0x5 {
		t.Error("extracted codes do not match inserted")
	}
	w = lo.Insert(w, 0x3)
	if w != 0x53 {
		t.Errorf("insert must only touch own bits, got %#x", w)
	}
}

func TestLayoutValidate(t *testing.T) {
	a, _ := grid.NewChannel(grid.KindDensity, "a", 8, 0, 0, 1)
	b, _ := grid.NewChannel(grid.KindColorRed, "b", 8, 4, 0, 1)
	c, _ := grid.NewChannel(grid.KindColorRed, "c", 8, 12, 0, 1)
	var tests = []struct {
		l       grid.Layout
		wantErr bool
	}{
		{l: grid.Layout{Width: grid.Width8, Channels: []grid.Channel{a}}},
		{l: grid.Layout{Width: grid.Width16, Channels: []grid.Channel{a, b}}, wantErr: true}, // Overlap.
		{l: grid.Layout{Width: grid.Width16, Channels: []grid.Channel{b, c}}, wantErr: true}, // Exceeds width.
		{l: grid.Layout{Width: grid.Width32, Channels: []grid.Channel{b, c}}},
		{l: grid.Layout{Width: 24, Channels: []grid.Channel{a}}, wantErr: true},
		{l: grid.Layout{Width: grid.Width8}, wantErr: true},
	}
	for i, test := range tests {
		err := test.l.Validate()
		if (err != nil) != test.wantErr {
			t.Errorf("case %d: wantErr=%v got %v", i, test.wantErr, err)
		}
	}
	err := grid.Layout{Width: grid.Width16, Channels: []grid.Channel{a, b}}.Validate()
	if !errors.Is(err, grid.ErrOverlappingChannels) {
		t.Errorf("want ErrOverlappingChannels, got %v", err)
	}
	err = grid.Layout{Width: grid.Width16, Channels: []grid.Channel{b, c}}.Validate()
	if !errors.Is(err, grid.ErrChannelOverflow) {
		t.Errorf("want ErrChannelOverflow, got %v", err)
	}
	for _, l := range []grid.Layout{grid.DensityLayout8(), grid.DistanceLayout16(1), grid.DensityColorLayout32(), grid.DistanceColorLayout32(2)} {
		if err := l.Validate(); err != nil {
			t.Error(err)
		}
	}
}

func TestDistanceLayoutZero(t *testing.T) {
	for _, l := range []grid.Layout{grid.DistanceLayout16(2), grid.DistanceColorLayout32(2)} {
		c := l.Channels[0]
		if got := c.Decode(c.Encode(0)); got != 0 {
			t.Errorf("%d bit distance 0 decodes to %g", c.Bits, got)
		}
		if got := c.Decode(c.Encode(-2)); math.Abs(got+2) > 1e-12 {
			t.Errorf("%d bit distance -2 decodes to %g", c.Bits, got)
		}
		if got := c.Decode(c.Encode(2)); math.Abs(got-2) > c.Scale/2+1e-12 {
			t.Errorf("%d bit distance 2 decodes to %g", c.Bits, got)
		}
		if got := c.Decode(c.Encode(-c.Scale)); got >= 0 {
			t.Errorf("%d bit distance of one step inside decodes to %g", c.Bits, got)
		}
	}
}

func TestLayoutPackUnpack(t *testing.T) {
	l := grid.DensityColorLayout32()
	in := []float64{0.5, 0.25, 1, 0}
	w := l.Pack(in)
	out := make([]float64, len(in))
	l.Unpack(w, out)
	for i := range in {
		if math.Abs(in[i]-out[i]) > 0.5/255 {
			t.Errorf("channel %d: packed %g unpacked %g", i, in[i], out[i])
		}
	}
}

func TestBoundsDims(t *testing.T) {
	var tests = []struct {
		box        md3.Box
		voxel      float64
		nx, ny, nz int
	}{
		{box: md3.Box{Max: md3.Vec{X: 1, Y: 1, Z: 1}}, voxel: 0.3, nx: 4, ny: 4, nz: 4},
		{box: md3.Box{Max: md3.Vec{X: 1, Y: 2, Z: 3}}, voxel: 0.1, nx: 10, ny: 20, nz: 30},
		{box: md3.Box{Min: md3.Vec{X: -1, Y: -1, Z: -1}, Max: md3.Vec{X: 1, Y: 1, Z: 1}}, voxel: 0.5, nx: 4, ny: 4, nz: 4},
		// A sliver past an exact multiple gets its own voxel.
		{box: md3.Box{Max: md3.Vec{X: 1.0000000005, Y: 1, Z: 1}}, voxel: 0.1, nx: 11, ny: 10, nz: 10},
		// Rounding error of the subtraction does not add a voxel.
		{box: md3.Box{Min: md3.Vec{X: 0.1, Y: -0.3, Z: 0}, Max: md3.Vec{X: 0.4, Y: 0.3, Z: 0.7}}, voxel: 0.1, nx: 3, ny: 6, nz: 7},
	}
	for _, test := range tests {
		b, err := grid.NewBounds(test.box, test.voxel)
		if err != nil {
			t.Fatal(err)
		}
		nx, ny, nz := b.Dims()
		if nx != test.nx || ny != test.ny || nz != test.nz {
			t.Errorf("dims of %v voxel %g: got %d,%d,%d want %d,%d,%d", test.box, test.voxel, nx, ny, nz, test.nx, test.ny, test.nz)
		}
	}
	_, err := grid.NewBounds(md3.Box{Max: md3.Vec{X: 1, Y: 1, Z: 1}}, 0)
	if !errors.Is(err, grid.ErrBadVoxelSize) {
		t.Error("expected error for zero voxel size")
	}
	_, err = grid.NewBounds(md3.Box{Max: md3.Vec{X: 1, Y: 0, Z: 1}}, 0.1)
	if err == nil {
		t.Error("expected error for empty box")
	}
}

func TestBoundsIndex(t *testing.T) {
	b, _ := grid.NewBounds(md3.Box{Max: md3.Vec{X: 1, Y: 1, Z: 1}}, 0.25)
	c := b.VoxelCenter(1, 2, 3)
	want := md3.Vec{X: 0.375, Y: 0.625, Z: 0.875}
	if c != want {
		t.Errorf("voxel center got %v want %v", c, want)
	}
	i, j, k, ok := b.Index(c)
	if !ok || i != 1 || j != 2 || k != 3 {
		t.Errorf("index of center got %d,%d,%d,%v", i, j, k, ok)
	}
	_, _, _, ok = b.Index(md3.Vec{X: -0.1})
	if ok {
		t.Error("point outside grid reported inside")
	}
}

func TestArrayGridFreeze(t *testing.T) {
	b, _ := grid.NewBounds(md3.Box{Max: md3.Vec{X: 1, Y: 1, Z: 1}}, 0.5)
	g, err := grid.NewGrid(b, grid.DistanceLayout16(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(*grid.ArrayGrid[uint16]); !ok {
		t.Fatalf("want 16 bit storage, got %T", g)
	}
	g.SetWord(1, 1, 1, 0xffff)
	if g.Word(1, 1, 1) != 0xffff {
		t.Error("word not stored")
	}
	if got := g.Decode(1, 1, 1, 0); got < 1 || got > 1+1e-4 {
		t.Errorf("decode max distance code: got %g", got)
	}
	g.Freeze()
	defer func() {
		r := recover()
		if err, ok := r.(error); !ok || !errors.Is(err, grid.ErrFrozen) {
			t.Errorf("want ErrFrozen panic, got %v", r)
		}
	}()
	g.SetWord(0, 0, 0, 1)
}

func TestArrayGridWidthMismatch(t *testing.T) {
	b, _ := grid.NewBounds(md3.Box{Max: md3.Vec{X: 1, Y: 1, Z: 1}}, 0.5)
	_, err := grid.NewArrayGrid[uint8](b, grid.DensityColorLayout32())
	if err == nil {
		t.Error("expected error storing 32 bit layout in 8 bit words")
	}
}

func TestSampleTrilinear(t *testing.T) {
	b, _ := grid.NewBounds(md3.Box{Max: md3.Vec{X: 2, Y: 1, Z: 1}}, 1)
	g, _ := grid.NewGrid(b, grid.DensityLayout8())
	g.SetWord(1, 0, 0, 255)
	g.Freeze()
	// At voxel centers the sample equals the decoded value.
	if got := grid.SampleTrilinear(g, 0, b.VoxelCenter(0, 0, 0)); got != 0 {
		t.Errorf("want 0 at first center, got %g", got)
	}
	if got := grid.SampleTrilinear(g, 0, b.VoxelCenter(1, 0, 0)); math.Abs(got-1) > 1e-12 {
		t.Errorf("want 1 at second center, got %g", got)
	}
	// Halfway between centers.
	if got := grid.SampleTrilinear(g, 0, md3.Vec{X: 1, Y: 0.5, Z: 0.5}); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("want 0.5 between centers, got %g", got)
	}
	// Clamped outside.
	if got := grid.SampleTrilinear(g, 0, md3.Vec{X: 10, Y: 0.5, Z: 0.5}); math.Abs(got-1) > 1e-12 {
		t.Errorf("want clamped 1, got %g", got)
	}
}

func TestMorton3(t *testing.T) {
	var tests = []struct {
		i, j, k uint32
		want    uint64
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{0, 1, 0, 2},
		{0, 0, 1, 4},
		{1, 1, 1, 7},
		{2, 0, 0, 8},
		{3, 3, 3, 63},
	}
	for _, test := range tests {
		got := grid.Morton3(test.i, test.j, test.k)
		if got != test.want {
			t.Errorf("Morton3(%d,%d,%d)=%d want %d", test.i, test.j, test.k, got, test.want)
		}
	}
}
