// Package fieldaux provides an end to end helper to get from a field to an STL
// file quickly. Applications with particular needs should wire the
// fieldrender and structidx packages themselves.
package fieldaux

import (
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/fabfield/fieldrender"
	"github.com/soypat/fabfield/grid"
	"github.com/soypat/fabfield/structidx"
	"github.com/soypat/geometry/md3"
)

type RenderConfig struct {
	STLOutput io.Writer
	// SliceOutput receives a PNG of the grid's middle Z slice.
	SliceOutput io.Writer
	// Voxel is the grid voxel size. Required.
	Voxel float64
	// Bounds overrides the field's bounds. Required for unbounded fields.
	Bounds md3.Box
	// Layout of the rasterized grid. The zero value picks a layout from the field's mode and channels.
	Layout grid.Layout
	// Iso is the surface level passed to [fieldrender.MeshConfig].
	Iso     float64
	Workers int
	Logger  *slog.Logger
	// WeldEps is the vertex welding tolerance. Zero uses a thousandth of the voxel size.
	WeldEps float64
	// SliceColor overrides the slice PNG color conversion.
	SliceColor func(float64) color.Color
}

// RenderStats summarizes a [Render] call.
type RenderStats struct {
	Raster     fieldrender.RasterStats
	Triangles  int
	Vertices   int
	Degenerate int
}

// Render rasterizes f over a grid, extracts and welds its surface and writes
// the outputs requested in cfg.
func Render(f fieldeval.Field, cfg RenderConfig) (stats RenderStats, err error) {
	if cfg.STLOutput == nil && cfg.SliceOutput == nil {
		return stats, errors.New("Render requires output parameter in config")
	} else if f == nil {
		return stats, errors.New("nil field")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	watch := stopwatch()
	if err = f.Initialize(); err != nil {
		return stats, fmt.Errorf("initializing field: %w", err)
	}
	bb := cfg.Bounds
	if bb == (md3.Box{}) {
		bb = f.Bounds()
		if unbounded(bb) {
			return stats, errors.New("field is unbounded, set RenderConfig.Bounds")
		}
	}
	// Pad so the surface closes inside the grid.
	pad := 2 * cfg.Voxel
	bb.Min = md3.Sub(bb.Min, md3.Vec{X: pad, Y: pad, Z: pad})
	bb.Max = md3.Add(bb.Max, md3.Vec{X: pad, Y: pad, Z: pad})
	bounds, err := grid.NewBounds(bb, cfg.Voxel)
	if err != nil {
		return stats, err
	}
	layout := cfg.Layout
	if layout.Channels == nil {
		layout = defaultLayout(f, bb)
	}
	g, err := grid.NewGrid(bounds, layout)
	if err != nil {
		return stats, err
	}
	stats.Raster, err = fieldrender.Rasterize(f, g, fieldrender.RasterConfig{Workers: cfg.Workers, Logger: cfg.Logger})
	if err != nil {
		return stats, err
	}
	g.Freeze()
	nx, ny, nz := g.Dims()
	log.Info("rasterized field", slog.Int("nx", nx), slog.Int("ny", ny), slog.Int("nz", nz), slog.Duration("elapsed", watch()))
	ch, ok := layout.Find(grid.KindDistance)
	if !ok {
		ch, ok = layout.Find(grid.KindDensity)
	}
	if !ok {
		return stats, errors.New("layout has no distance or density channel")
	}

	if cfg.STLOutput != nil {
		watch = stopwatch()
		eps := cfg.WeldEps
		if eps <= 0 {
			eps = cfg.Voxel / 1000
		}
		mb, err := structidx.NewMeshBuilder(eps)
		if err != nil {
			return stats, err
		}
		_, err = fieldrender.ExtractMesh(g, fieldrender.MeshConfig{Channel: ch, Iso: cfg.Iso}, mb)
		if err != nil {
			return stats, fmt.Errorf("extracting mesh: %w", err)
		}
		stats.Vertices = len(mb.Vertices())
		stats.Degenerate = mb.Degenerate()
		log.Info("extracted mesh", slog.Int("faces", len(mb.Faces())), slog.Int("vertices", stats.Vertices),
			slog.Int("degenerate", stats.Degenerate), slog.Duration("elapsed", watch()))

		watch = stopwatch()
		w, err := fieldrender.NewSTLWriter(cfg.STLOutput, "fabfield")
		if err != nil {
			return stats, err
		}
		mb.WriteTo(w)
		if err = w.Close(); err != nil {
			return stats, fmt.Errorf("writing STL file: %w", err)
		}
		stats.Triangles = w.Count()
		log.Info("wrote STL", slog.String("file", outputName(cfg.STLOutput, "STL")),
			slog.Int("triangles", stats.Triangles), slog.Duration("elapsed", watch()))
	}

	if cfg.SliceOutput != nil {
		watch = stopwatch()
		conv := cfg.SliceColor
		if conv == nil {
			if layout.Channels[ch].Kind == grid.KindDistance {
				conv = ColorConversionInigoQuilez(md3.Norm(bb.Size()) / 3)
			} else {
				conv = ColorConversionDensity(color.Black, color.White)
			}
		}
		img, err := fieldrender.NewSliceRenderer(conv).RenderMidSlice(g, ch)
		if err != nil {
			return stats, err
		}
		if err = png.Encode(cfg.SliceOutput, img); err != nil {
			return stats, fmt.Errorf("writing slice PNG: %w", err)
		}
		log.Info("wrote slice", slog.String("file", outputName(cfg.SliceOutput, "PNG")), slog.Duration("elapsed", watch()))
	}
	return stats, nil
}

// defaultLayout picks a 16 bit distance layout or an 8 bit density layout, with
// color channels when the field emits color.
func defaultLayout(f fieldeval.Field, bb md3.Box) grid.Layout {
	colored := f.Channels() > 1
	if f.Mode() == fieldeval.ModeDensity {
		if colored {
			return grid.DensityColorLayout32()
		}
		return grid.DensityLayout8()
	}
	maxDist := md3.Norm(bb.Size()) / 2
	if colored {
		return grid.DistanceColorLayout32(maxDist)
	}
	return grid.DistanceLayout16(maxDist)
}

func unbounded(bb md3.Box) bool {
	const huge = fieldeval.LargeDistance / 2
	for _, v := range [6]float64{bb.Min.X, bb.Min.Y, bb.Min.Z, bb.Max.X, bb.Max.Y, bb.Max.Z} {
		if math.Abs(v) >= huge || math.IsNaN(v) {
			return true
		}
	}
	return false
}

func outputName(w io.Writer, fallback string) string {
	if fp, ok := w.(*os.File); ok {
		return fp.Name()
	}
	return fallback
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
