package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/fabfield/scene"
	"github.com/soypat/geometry/md3"
)

func TestLoadScene(t *testing.T) {
	f, err := loadScene(filepath.Join("testdata", "bracket.zy"), scene.Config{})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		p      md3.Vec
		inside bool
	}{
		{md3.Vec{Y: 5}, true},
		{md3.Vec{X: 5}, false},  // Hole.
		{md3.Vec{X: 14}, false}, // Hole.
		{md3.Vec{X: -18, Z: 20}, true},
		{md3.Vec{X: 10, Z: 20}, false},
	}
	for _, test := range tests {
		d, _, err := fieldeval.EvaluateAt(f, test.p, 0.1)
		if err != nil {
			t.Fatal(err)
		}
		if (d < 0) != test.inside {
			t.Errorf("at %v got %g, want inside=%v", test.p, d, test.inside)
		}
	}
}

func TestLoadSceneErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zy")
	if err := os.WriteFile(path, []byte("(sphere -1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadScene(path, scene.Config{}); err == nil {
		t.Error("expected error for invalid script")
	}
	if _, err := loadScene(filepath.Join(t.TempDir(), "missing.zy"), scene.Config{}); err == nil {
		t.Error("expected error for missing file")
	}
}
