// Command fabfield evaluates a scene script and writes its surface as an STL
// file and, optionally, a PNG of the middle Z slice.
//
//	fabfield -script part.zy -voxel 0.1 -stl part.stl -slice part.png
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/soypat/fabfield/fieldaux"
	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/fabfield/scene"
	"github.com/soypat/geometry/md3"
)

func run() error {
	var (
		scriptPath string
		stlPath    string
		slicePath  string
		voxel      float64
		resDiv     uint
		workers    int
		density    bool
		allowFiles bool
		verbose    bool
	)
	flag.StringVar(&scriptPath, "script", "", "scene script file. Required")
	flag.StringVar(&stlPath, "stl", "", "output STL file")
	flag.StringVar(&slicePath, "slice", "", "output PNG of the middle Z slice")
	flag.Float64Var(&voxel, "voxel", 0, "voxel size in scene units. If not set resdiv is used")
	flag.UintVar(&resDiv, "resdiv", 200, "voxel size in bounding box diagonal divisions, used when voxel is not set")
	flag.IntVar(&workers, "workers", 0, "rasterizer workers. 0 uses all CPUs")
	flag.BoolVar(&density, "density", false, "create fields in density mode")
	flag.BoolVar(&allowFiles, "files", false, "allow scripts to read files such as images")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Parse()
	if scriptPath == "" {
		return errors.New("missing -script flag")
	} else if stlPath == "" && slicePath == "" {
		return errors.New("need at least one of -stl or -slice flags")
	} else if voxel == 0 && resDiv == 0 {
		return errors.New("need a non zero -voxel or -resdiv")
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	mode := fieldeval.ModeDistance
	if density {
		mode = fieldeval.ModeDensity
	}
	field, err := loadScene(scriptPath, scene.Config{
		Mode:       mode,
		AllowFiles: allowFiles,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if voxel == 0 {
		voxel = md3.Norm(field.Bounds().Size()) / float64(resDiv)
	}

	cfg := fieldaux.RenderConfig{
		Voxel:   voxel,
		Workers: workers,
		Logger:  logger,
	}
	if stlPath != "" {
		fp, err := os.Create(stlPath)
		if err != nil {
			return err
		}
		defer fp.Close()
		cfg.STLOutput = fp
	}
	if slicePath != "" {
		fp, err := os.Create(slicePath)
		if err != nil {
			return err
		}
		defer fp.Close()
		cfg.SliceOutput = fp
	}
	stats, err := fieldaux.Render(field, cfg)
	if err != nil {
		return err
	}
	logger.Info("done", slog.Int("triangles", stats.Triangles), slog.Int64("voxels", stats.Raster.Voxels))
	return nil
}

// loadScene evaluates the script at path and returns its initialized field.
// Script errors are printed to stderr.
func loadScene(path string, cfg scene.Config) (fieldeval.Field, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	field, evalErrs, err := scene.Evaluate(string(source), cfg)
	if err != nil {
		return nil, err
	} else if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, e)
		}
		return nil, fmt.Errorf("%d errors in script", len(evalErrs))
	}
	if err = field.Initialize(); err != nil {
		return nil, err
	}
	return field, nil
}

func main() {
	err := run()
	if err != nil {
		log.Fatal(err)
	}
}
