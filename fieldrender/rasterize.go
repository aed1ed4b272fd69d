// Package fieldrender turns fields into voxel grids and grids into triangle streams.
package fieldrender

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/fabfield/grid"
	"github.com/soypat/fabfield/internal/parallel"
)

// DefaultBatchSize is the amount of samples evaluated per Evaluate call when
// RasterConfig.BatchSize is not set.
const DefaultBatchSize = 4096

// RasterConfig configures [Rasterize].
type RasterConfig struct {
	// Workers is the number of goroutines. Zero or negative uses GOMAXPROCS.
	Workers int
	// BatchSize is the number of samples per evaluation call.
	BatchSize int
	// Logger receives progress and failure records. nil is silent.
	Logger *slog.Logger
}

// RasterStats summarizes a rasterization.
type RasterStats struct {
	Voxels int64
	// OutOfRange counts voxels whose sample was out of the field's domain.
	OutOfRange int64
	// FailedBatches counts evaluation calls that returned an error. Their
	// voxels were written as no contribution.
	FailedBatches int64
	Slabs         int
	Duration      time.Duration
}

// Rasterize evaluates f at every voxel center of g with the sample scale set to
// the voxel size and stores the encoded result. The grid is split in Z slabs
// evaluated in parallel, each worker with its own scratch buffers.
// Evaluation failures and out of range samples are written as no contribution
// and rasterization continues. g must not be frozen; the caller freezes it
// once all writers are done.
func Rasterize(f fieldeval.Field, g grid.AttributeGrid, cfg RasterConfig) (RasterStats, error) {
	if f == nil || g == nil {
		return RasterStats{}, errors.New("nil field or grid")
	}
	if g.Frozen() {
		return RasterStats{}, grid.ErrFrozen
	}
	if err := f.Initialize(); err != nil {
		return RasterStats{}, fmt.Errorf("initializing field: %w", err)
	}
	layout := g.Layout()
	writers, err := channelWriters(layout, f.Mode())
	if err != nil {
		return RasterStats{}, err
	}
	log := loggerOrNop(cfg.Logger)
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	start := time.Now()
	nx, ny, nz := g.Dims()
	bounds := g.Bounds()
	pool := parallel.NewWorkerPool(cfg.Workers)
	defer pool.Close()
	log.Info("rasterizing", slog.Int("nx", nx), slog.Int("ny", ny), slog.Int("nz", nz),
		slog.Float64("voxel", bounds.Voxel), slog.Int("workers", pool.Workers()), slog.String("mode", f.Mode().String()))

	states := make([]slabState, pool.Workers())
	for i := range states {
		states[i] = slabState{
			samples: make([]fieldeval.Sample, batch),
			values:  make([]fieldeval.Value, batch),
			chans:   make([]float64, len(layout.Channels)),
		}
	}
	var oor, failed atomic.Int64
	ok := pool.ExecuteN(nz, func(worker, k int) {
		st := &states[worker]
		slabStart := time.Now()
		plane := nx * ny
		var slabOOR, slabFailed int64
		for off := 0; off < plane; off += batch {
			n := min(batch, plane-off)
			samples, values := st.samples[:n], st.values[:n]
			for s := range samples {
				idx := off + s
				samples[s] = fieldeval.Sample{
					Pos:   bounds.VoxelCenter(idx%nx, idx/nx, k),
					Scale: bounds.Voxel,
				}
			}
			err := f.Evaluate(samples, values, &st.vp)
			if err != nil {
				slabFailed++
				log.Warn("batch evaluation failed", slog.Int("z", k), slog.Int("voxels", n), slog.String("err", err.Error()))
				for s := range values {
					fieldeval.SetNoContribution(&values[s], f.Mode())
				}
			}
			for s := range values {
				v := &values[s]
				if v.Code == fieldeval.ResultOutOfRange {
					if err == nil {
						slabOOR++
					}
					fieldeval.SetNoContribution(v, f.Mode())
				}
				for c, w := range writers {
					st.chans[c] = w(v, bounds.Voxel)
				}
				idx := off + s
				g.SetWord(idx%nx, idx/nx, k, layout.Pack(st.chans))
			}
		}
		if err := st.vp.AssertAllReleased(); err != nil {
			log.Warn("scratch buffers leaked", slog.Int("z", k), slog.String("err", err.Error()))
		}
		oor.Add(slabOOR)
		failed.Add(slabFailed)
		log.Debug("slab done", slog.Int("z", k), slog.Duration("elapsed", time.Since(slabStart)))
	})
	if !ok {
		return RasterStats{}, errors.New("worker pool closed before rasterization")
	}
	stats := RasterStats{
		Voxels:        int64(nx) * int64(ny) * int64(nz),
		OutOfRange:    oor.Load(),
		FailedBatches: failed.Load(),
		Slabs:         nz,
		Duration:      time.Since(start),
	}
	if stats.FailedBatches > 0 {
		log.Warn("rasterization had failures", slog.Int64("failedBatches", stats.FailedBatches))
	}
	log.Info("rasterized", slog.Int64("voxels", stats.Voxels), slog.Int64("outOfRange", stats.OutOfRange), slog.Duration("elapsed", stats.Duration))
	return stats, nil
}

type slabState struct {
	vp      fieldeval.VecPool
	samples []fieldeval.Sample
	values  []fieldeval.Value
	chans   []float64
}

// channelWriter extracts the physical value of one layout channel from a field value.
type channelWriter func(v *fieldeval.Value, voxel float64) float64

func channelWriters(l grid.Layout, mode fieldeval.Mode) ([]channelWriter, error) {
	writers := make([]channelWriter, len(l.Channels))
	for i, c := range l.Channels {
		switch c.Kind {
		case grid.KindDistance:
			if mode != fieldeval.ModeDistance {
				return nil, fmt.Errorf("channel %q stores distance but field is in %s mode", c.Name, mode)
			}
			writers[i] = func(v *fieldeval.Value, _ float64) float64 { return v.V[fieldeval.ChanValue] }
		case grid.KindDensity:
			if mode == fieldeval.ModeDensity {
				writers[i] = func(v *fieldeval.Value, _ float64) float64 { return v.V[fieldeval.ChanValue] }
			} else {
				writers[i] = func(v *fieldeval.Value, voxel float64) float64 {
					return fieldeval.Density(v.V[fieldeval.ChanValue], voxel)
				}
			}
		case grid.KindColorRed, grid.KindColorGreen, grid.KindColorBlue:
			ch := fieldeval.ChanRed + int(c.Kind-grid.KindColorRed)
			writers[i] = func(v *fieldeval.Value, _ float64) float64 { return v.V[ch] }
		case grid.KindAlpha:
			writers[i] = func(v *fieldeval.Value, _ float64) float64 { return v.V[fieldeval.ChanAlpha] }
		case grid.KindMaterial:
			writers[i] = func(v *fieldeval.Value, _ float64) float64 {
				if inside(v.V[fieldeval.ChanValue], mode) {
					return 1
				}
				return 0
			}
		default:
			return nil, fmt.Errorf("channel %q has unsupported kind %s", c.Name, c.Kind)
		}
	}
	return writers, nil
}

func inside(v float64, mode fieldeval.Mode) bool {
	if mode == fieldeval.ModeDensity {
		return v >= 0.5
	}
	return v <= 0
}
