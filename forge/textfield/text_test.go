package textfield_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/fabfield/forge/textfield"
	"github.com/soypat/geometry/md3"
)

func newField(t *testing.T, text string, cfg textfield.TextConfig) fieldeval.Field {
	t.Helper()
	font, err := textfield.GoRegular()
	if err != nil {
		t.Fatal(err)
	}
	f, err := font.TextField(text, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err = f.Initialize(); err != nil {
		t.Fatal(err)
	}
	return f
}

func dist(t *testing.T, f fieldeval.Field, p md3.Vec) float64 {
	t.Helper()
	d, _, err := fieldeval.EvaluateAt(f, p, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// signChanges counts inside/outside transitions along the x axis at y=z=0.
func signChanges(t *testing.T, f fieldeval.Field, halfWidth float64) int {
	const n = 600
	changes := 0
	prevInside := false
	for i := 0; i <= n; i++ {
		x := -halfWidth + 2*halfWidth*float64(i)/n
		inside := dist(t, f, md3.Vec{X: x}) < 0
		if i > 0 && inside != prevInside {
			changes++
		}
		prevInside = inside
	}
	return changes
}

func TestTextFieldGlyphs(t *testing.T) {
	cfg := textfield.TextConfig{Size: md3.Vec{X: 1, Y: 1, Z: 0.2}}
	tests := []struct {
		text    string
		changes int
	}{
		{"I", 2},
		{"II", 4},
		{"O", 4},
		{"I I", 4},
	}
	for _, test := range tests {
		f := newField(t, test.text, cfg)
		got := signChanges(t, f, 0.6)
		if got != test.changes {
			t.Errorf("%q: got %d sign changes along x, want %d", test.text, got, test.changes)
		}
	}
}

func TestTextFieldDistance(t *testing.T) {
	size := md3.Vec{X: 1, Y: 1, Z: 0.2}
	f := newField(t, "I", textfield.TextConfig{Size: size})
	bb := f.Bounds()
	if bb.Max != md3.Scale(0.5, size) || bb.Min != md3.Scale(-0.5, size) {
		t.Errorf("bounds %+v", bb)
	}
	if d := dist(t, f, md3.Vec{}); d >= 0 {
		t.Errorf("center of I should be inside, got %g", d)
	}
	// Above the interior the distance is vertical.
	if d := dist(t, f, md3.Vec{Z: 0.3}); math.Abs(d-0.2) > 1e-9 {
		t.Errorf("distance above glyph %g, want 0.2", d)
	}
	if d := dist(t, f, md3.Vec{X: 5}); d < 4.4 {
		t.Errorf("far point distance %g", d)
	}
	// Distances are 1-Lipschitz.
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		p := md3.Vec{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5, Z: 0.3 * (rng.Float64() - 0.5)}
		q := md3.Add(p, md3.Vec{X: 0.05 * (rng.Float64() - 0.5), Y: 0.05 * (rng.Float64() - 0.5)})
		dp, dq := dist(t, f, p), dist(t, f, q)
		if math.Abs(dp-dq) > md3.Norm(md3.Sub(p, q))+1e-9 {
			t.Fatalf("distance not Lipschitz between %v (%g) and %v (%g)", p, dp, q, dq)
		}
	}
}

func TestTextFieldDensity(t *testing.T) {
	f := newField(t, "I", textfield.TextConfig{Size: md3.Vec{X: 1, Y: 1, Z: 0.2}, Mode: fieldeval.ModeDensity})
	if f.Mode() != fieldeval.ModeDensity {
		t.Fatal("wrong mode")
	}
	if d := dist(t, f, md3.Vec{}); d != 1 {
		t.Errorf("density at center %g, want 1", d)
	}
	if d := dist(t, f, md3.Vec{X: 0.45}); d != 0 {
		t.Errorf("density outside glyph %g, want 0", d)
	}
}

func TestTextFieldNormalization(t *testing.T) {
	cfg := textfield.TextConfig{Size: md3.Vec{X: 1, Y: 1, Z: 0.2}}
	composed := newField(t, "\u00e9", cfg)
	decomposed := newField(t, "e\u0301", cfg)
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		p := md3.Vec{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5}
		if a, b := dist(t, composed, p), dist(t, decomposed, p); a != b {
			t.Fatalf("normalized text differs at %v: %g != %g", p, a, b)
		}
	}
}

func TestTextFieldMultiline(t *testing.T) {
	cfg := textfield.TextConfig{Size: md3.Vec{X: 1, Y: 2, Z: 0.2}}
	f := newField(t, "I\nI", cfg)
	// Two stacked bars: scanning along y crosses both.
	const n = 600
	changes := 0
	prev := false
	for i := 0; i <= n; i++ {
		y := -1.1 + 2.2*float64(i)/n
		inside := dist(t, f, md3.Vec{Y: y}) < 0
		if i > 0 && inside != prev {
			changes++
		}
		prev = inside
	}
	if changes != 4 {
		t.Errorf("got %d sign changes along y, want 4", changes)
	}
}

func TestTextFieldErrors(t *testing.T) {
	font, err := textfield.GoRegular()
	if err != nil {
		t.Fatal(err)
	}
	good := textfield.TextConfig{Size: md3.Vec{X: 1, Y: 1, Z: 1}}
	tests := []struct {
		name string
		text string
		cfg  textfield.TextConfig
	}{
		{"whitespace", " \t ", good},
		{"empty", "", good},
		{"control char", "a\x01", good},
		{"zero size", "a", textfield.TextConfig{}},
		{"negative spacing", "a", textfield.TextConfig{Size: good.Size, LineSpacing: -1}},
	}
	for _, test := range tests {
		if _, err := font.TextField(test.text, test.cfg); err == nil {
			t.Errorf("%s: expected error", test.name)
		}
	}
	var unloaded textfield.Font
	if _, err := unloaded.TextField("a", good); err == nil {
		t.Error("expected error from unloaded font")
	}
	if err := unloaded.LoadTTFBytes([]byte("not a font")); err == nil {
		t.Error("expected parse error")
	}
	if err := font.Configure(textfield.FontConfig{RelativeGlyphTolerance: 1}); err == nil {
		t.Error("expected tolerance error")
	}
}

func TestKern(t *testing.T) {
	font, err := textfield.GoRegular()
	if err != nil {
		t.Fatal(err)
	}
	if font.AdvanceWidth('W') <= font.AdvanceWidth('i') {
		t.Error("W should be wider than i")
	}
}
