package fieldrender_test

import (
	"bytes"
	"errors"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/soypat/fabfield"
	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/fabfield/fieldrender"
	"github.com/soypat/fabfield/grid"
	"github.com/soypat/geometry/md3"
	"github.com/soypat/geometry/ms3"
)

func cubeBounds(t *testing.T, half, voxel float64) grid.Bounds {
	t.Helper()
	b, err := grid.NewBounds(md3.Box{
		Min: md3.Vec{X: -half, Y: -half, Z: -half},
		Max: md3.Vec{X: half, Y: half, Z: half},
	}, voxel)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func rasterSphere(t *testing.T, mode fieldeval.Mode, layout grid.Layout) grid.AttributeGrid {
	t.Helper()
	var bld fabfield.Builder
	bld.SetMode(mode)
	sphere := bld.NewSphere(1)
	g, err := grid.NewGrid(cubeBounds(t, 1.5, 0.1), layout)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := fieldrender.Rasterize(sphere, g, fieldrender.RasterConfig{Workers: 3, BatchSize: 100})
	if err != nil {
		t.Fatal(err)
	}
	nx, ny, nz := g.Dims()
	if stats.Voxels != int64(nx*ny*nz) || stats.Slabs != nz {
		t.Errorf("bad stats %+v for %dx%dx%d grid", stats, nx, ny, nz)
	}
	if stats.OutOfRange != 0 || stats.FailedBatches != 0 {
		t.Errorf("unexpected failures %+v", stats)
	}
	g.Freeze()
	return g
}

func TestRasterizeDensity(t *testing.T) {
	g := rasterSphere(t, fieldeval.ModeDensity, grid.DensityLayout8())
	nx, ny, nz := g.Dims()
	if nx != 30 || ny != 30 || nz != 30 {
		t.Fatalf("dims %d %d %d, want 30", nx, ny, nz)
	}
	if got := g.Decode(15, 15, 15, 0); got != 1 {
		t.Errorf("center density %g, want 1", got)
	}
	if got := g.Decode(0, 0, 0, 0); got != 0 {
		t.Errorf("corner density %g, want 0", got)
	}
	b := g.Bounds()
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				d := md3.Norm(b.VoxelCenter(i, j, k)) - 1
				want := fieldeval.Density(d, b.Voxel)
				got := g.Decode(i, j, k, 0)
				if math.Abs(got-want) > 0.5/255+1e-12 {
					t.Fatalf("voxel (%d,%d,%d) density %g, want %g", i, j, k, got, want)
				}
			}
		}
	}
}

func TestRasterizeDistanceToDensityChannel(t *testing.T) {
	g := rasterSphere(t, fieldeval.ModeDistance, grid.DensityLayout8())
	b := g.Bounds()
	for _, idx := range [][3]int{{15, 15, 15}, {0, 0, 0}, {25, 15, 15}, {24, 15, 15}} {
		d := md3.Norm(b.VoxelCenter(idx[0], idx[1], idx[2])) - 1
		want := fieldeval.Density(d, b.Voxel)
		got := g.Decode(idx[0], idx[1], idx[2], 0)
		if math.Abs(got-want) > 0.5/255+1e-12 {
			t.Errorf("voxel %v density %g, want %g", idx, got, want)
		}
	}
}

func TestRasterizeDistance(t *testing.T) {
	const maxDist = 2
	g := rasterSphere(t, fieldeval.ModeDistance, grid.DistanceLayout16(maxDist))
	c := g.Layout().Channels[0]
	b := g.Bounds()
	for _, idx := range [][3]int{{15, 15, 15}, {0, 0, 0}, {29, 3, 17}} {
		want := md3.Norm(b.VoxelCenter(idx[0], idx[1], idx[2])) - 1
		got := g.Decode(idx[0], idx[1], idx[2], 0)
		if math.Abs(got-want) > c.Scale/2+1e-9 {
			t.Errorf("voxel %v distance %g, want %g", idx, got, want)
		}
	}
}

func TestRasterizeModeMismatch(t *testing.T) {
	var bld fabfield.Builder
	bld.SetMode(fieldeval.ModeDensity)
	g, err := grid.NewGrid(cubeBounds(t, 1, 0.5), grid.DistanceLayout16(1))
	if err != nil {
		t.Fatal(err)
	}
	_, err = fieldrender.Rasterize(bld.NewSphere(1), g, fieldrender.RasterConfig{})
	if err == nil {
		t.Error("expected error rasterizing density field into distance channel")
	}
}

func TestRasterizeFrozen(t *testing.T) {
	var bld fabfield.Builder
	g, err := grid.NewGrid(cubeBounds(t, 1, 0.5), grid.DensityLayout8())
	if err != nil {
		t.Fatal(err)
	}
	g.Freeze()
	_, err = fieldrender.Rasterize(bld.NewSphere(1), g, fieldrender.RasterConfig{})
	if !errors.Is(err, grid.ErrFrozen) {
		t.Errorf("want ErrFrozen, got %v", err)
	}
}

// halfSpaceField is solid everywhere with x<0 and out of range for x>0.
type halfSpaceField struct {
	fail bool
}

func (h *halfSpaceField) Initialize() error    { return nil }
func (h *halfSpaceField) Bounds() md3.Box      { return md3.Box{} }
func (h *halfSpaceField) Mode() fieldeval.Mode { return fieldeval.ModeDensity }
func (h *halfSpaceField) Channels() int        { return 1 }
func (h *halfSpaceField) Evaluate(samples []fieldeval.Sample, dst []fieldeval.Value, _ any) error {
	if h.fail {
		for i := range dst {
			dst[i].V[0] = 1
		}
		return errors.New("evaluation failed")
	}
	for i, s := range samples {
		// Out of range samples carry garbage the rasterizer must discard.
		dst[i] = fieldeval.Value{}
		dst[i].V[0] = 1
		if s.Pos.X > 0 {
			dst[i].Code = fieldeval.ResultOutOfRange
		}
	}
	return nil
}

func TestRasterizeOutOfRange(t *testing.T) {
	g, err := grid.NewGrid(cubeBounds(t, 1, 0.25), grid.DensityLayout8())
	if err != nil {
		t.Fatal(err)
	}
	stats, err := fieldrender.Rasterize(&halfSpaceField{}, g, fieldrender.RasterConfig{Workers: 2, BatchSize: 7})
	if err != nil {
		t.Fatal(err)
	}
	nx, ny, nz := g.Dims()
	if stats.OutOfRange != int64(nx*ny*nz/2) {
		t.Errorf("out of range %d, want %d", stats.OutOfRange, nx*ny*nz/2)
	}
	b := g.Bounds()
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				want := 1.0
				if b.VoxelCenter(i, j, k).X > 0 {
					want = 0
				}
				if got := g.Decode(i, j, k, 0); got != want {
					t.Fatalf("voxel (%d,%d,%d) = %g, want %g", i, j, k, got, want)
				}
			}
		}
	}
}

func TestRasterizeFailedBatches(t *testing.T) {
	g, err := grid.NewGrid(cubeBounds(t, 1, 0.25), grid.DensityLayout8())
	if err != nil {
		t.Fatal(err)
	}
	stats, err := fieldrender.Rasterize(&halfSpaceField{fail: true}, g, fieldrender.RasterConfig{BatchSize: 16})
	if err != nil {
		t.Fatal(err)
	}
	nx, ny, nz := g.Dims()
	// 64 voxels per slab in batches of 16.
	if stats.FailedBatches != int64(nz*nx*ny/16) {
		t.Errorf("failed batches %d, want %d", stats.FailedBatches, nz*nx*ny/16)
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				if got := g.Decode(i, j, k, 0); got != 0 {
					t.Fatalf("failed voxel (%d,%d,%d) = %g, want no contribution", i, j, k, got)
				}
			}
		}
	}
}

func TestRasterizeColor(t *testing.T) {
	var bld fabfield.Builder
	bld.SetMode(fieldeval.ModeDensity)
	f := bld.Colored(bld.NewSphere(1), 1, 0, 0.5)
	g, err := grid.NewGrid(cubeBounds(t, 1.5, 0.1), grid.DensityColorLayout32())
	if err != nil {
		t.Fatal(err)
	}
	_, err = fieldrender.Rasterize(f, g, fieldrender.RasterConfig{})
	if err != nil {
		t.Fatal(err)
	}
	l := g.Layout()
	var vals [4]float64
	l.Unpack(g.Word(15, 15, 15), vals[:])
	red, _ := l.Find(grid.KindColorRed)
	green, _ := l.Find(grid.KindColorGreen)
	blue, _ := l.Find(grid.KindColorBlue)
	if vals[0] != 1 || vals[red] != 1 || vals[green] != 0 || math.Abs(vals[blue]-0.5) > 1.0/255 {
		t.Errorf("center voxel %v", vals)
	}
}

func TestExtractMesh(t *testing.T) {
	g := rasterSphere(t, fieldeval.ModeDistance, grid.DistanceLayout16(2))
	var tc fieldrender.TriangleCollector
	n, err := fieldrender.ExtractMesh(g, fieldrender.MeshConfig{}, &tc)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 || n != len(tc.Triangles) {
		t.Fatalf("got %d triangles, collected %d", n, len(tc.Triangles))
	}
	for _, tri := range tc.Triangles {
		for _, v := range tri {
			r := math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z))
			if math.Abs(r-1) > 0.1 {
				t.Fatalf("vertex %v at radius %g, want 1", v, r)
			}
		}
		// Outward facing normals.
		n := fieldrender.Normal(tri)
		if n.X*tri[0].X+n.Y*tri[0].Y+n.Z*tri[0].Z < 0 {
			t.Fatalf("inward normal %v at %v", n, tri[0])
		}
	}
}

func TestExtractMeshDensityStop(t *testing.T) {
	g := rasterSphere(t, fieldeval.ModeDensity, grid.DensityLayout8())
	tc := fieldrender.TriangleCollector{Limit: 5}
	n, err := fieldrender.ExtractMesh(g, fieldrender.MeshConfig{Cells: 20}, &tc)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || len(tc.Triangles) != 5 {
		t.Errorf("sink asked to stop at 5, got %d delivered, %d collected", n, len(tc.Triangles))
	}
}

func TestExtractMeshNotFrozen(t *testing.T) {
	g, err := grid.NewGrid(cubeBounds(t, 1, 0.5), grid.DensityLayout8())
	if err != nil {
		t.Fatal(err)
	}
	_, err = fieldrender.ExtractMesh(g, fieldrender.MeshConfig{}, fieldrender.TriangleSinkFunc(func(ms3.Triangle) bool { return true }))
	if err == nil {
		t.Error("expected error extracting from unfrozen grid")
	}
}

func testTriangles() []ms3.Triangle {
	return []ms3.Triangle{
		{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}},
		{{X: 0, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1}, {X: 1, Y: 0, Z: 1}},
	}
}

func TestSTLWriterBuffered(t *testing.T) {
	var buf bytes.Buffer
	sw, err := fieldrender.NewSTLWriter(&buf, "fabfield")
	if err != nil {
		t.Fatal(err)
	}
	for _, tri := range testTriangles() {
		sw.AddTriangle(tri)
	}
	nan := float32(math.NaN())
	sw.AddTriangle(ms3.Triangle{{X: nan}, {}, {}})
	if err := sw.Close(); err != nil {
		t.Fatal(err)
	}
	if sw.Count() != 2 || sw.Skipped() != 1 {
		t.Errorf("count %d skipped %d", sw.Count(), sw.Skipped())
	}
	if buf.Len() != 84+2*50 {
		t.Errorf("STL size %d, want %d", buf.Len(), 84+2*50)
	}
	header, tris, err := fieldrender.ReadSTL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if header != "fabfield" {
		t.Errorf("header %q", header)
	}
	want := testTriangles()
	if len(tris) != len(want) {
		t.Fatalf("read %d triangles", len(tris))
	}
	for i := range want {
		if tris[i] != want[i] {
			t.Errorf("triangle %d: got %v want %v", i, tris[i], want[i])
		}
	}
}

func TestSTLWriterSeeker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.stl")
	fp, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()
	sw, err := fieldrender.NewSTLWriter(fp, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, tri := range testTriangles() {
		if !sw.AddTriangle(tri) {
			t.Fatal("writer refused triangle")
		}
	}
	if err := sw.Close(); err != nil {
		t.Fatal(err)
	}
	if sw.AddTriangle(testTriangles()[0]) {
		t.Error("closed writer accepted triangle")
	}
	if _, err := fp.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	_, tris, err := fieldrender.ReadSTL(fp)
	if err != nil {
		t.Fatal(err)
	}
	if len(tris) != 2 {
		t.Errorf("read %d triangles, want 2", len(tris))
	}
}

func TestSliceRenderer(t *testing.T) {
	g := rasterSphere(t, fieldeval.ModeDensity, grid.DensityLayout8())
	img, err := fieldrender.NewSliceRenderer(nil).RenderMidSlice(g, 0)
	if err != nil {
		t.Fatal(err)
	}
	nx, ny, _ := g.Dims()
	if img.Bounds().Dx() != nx || img.Bounds().Dy() != ny {
		t.Fatalf("image size %v", img.Bounds())
	}
	if c := img.RGBAAt(nx/2, ny/2); c != (color.RGBA{A: 255}) {
		t.Errorf("center pixel %v, want black", c)
	}
	if c := img.RGBAAt(0, 0); c != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("corner pixel %v, want white", c)
	}
	err = fieldrender.NewSliceRenderer(nil).Render(g, 0, 10, img)
	if err == nil {
		t.Error("expected error for slice outside grid")
	}
}

func TestRasterizeDeterministic(t *testing.T) {
	var bld fabfield.Builder
	body := bld.SmoothUnion(0.2,
		bld.Rotate(bld.NewBox(1.6, 0.6, 0.6, 0.05), 0.7, md3.Vec{X: 1, Y: 1, Z: 1}),
		bld.NewTorus(0.9, 0.2),
	)
	body = bld.Subtraction(body, bld.NewCylinder(0.25, 4, 0))
	mirrors, err := fabfield.PointGroupMirrors(6)
	if err != nil {
		t.Fatal(err)
	}
	petals := bld.Reflect(bld.Translate(bld.NewSphere(0.2), 1.1, 0.2, 0), mirrors)
	scene := bld.Union(body, petals)

	raster := func(workers int) grid.AttributeGrid {
		g, err := grid.NewGrid(cubeBounds(t, 1.5, 0.05), grid.DistanceLayout16(2))
		if err != nil {
			t.Fatal(err)
		}
		_, err = fieldrender.Rasterize(scene, g, fieldrender.RasterConfig{Workers: workers, BatchSize: 97})
		if err != nil {
			t.Fatal(err)
		}
		return g
	}
	serial := raster(1)
	parallel := raster(8)
	nx, ny, nz := serial.Dims()
	var diff int
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				if serial.Word(i, j, k) != parallel.Word(i, j, k) {
					diff++
				}
			}
		}
	}
	if diff != 0 {
		t.Errorf("%d of %d voxels differ between 1 and 8 workers", diff, nx*ny*nz)
	}
}
