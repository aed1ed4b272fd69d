package fieldeval

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/geometry/md3"
)

// MaxChannels is the maximum amount of output channels a field may write per sample.
// Channel 0 holds distance or density, channels 1..3 hold RGB and channel 4 holds alpha.
const MaxChannels = 5

// LargeDistance is the distance written when a field makes no contribution to a sample.
const LargeDistance = 1e20

// Channel indices into [Value.V].
const (
	ChanValue = iota
	ChanRed
	ChanGreen
	ChanBlue
	ChanAlpha
)

// Mode selects the kind of scalar a field outputs in channel 0.
type Mode uint8

const (
	// ModeDistance fields output signed distance, negative inside.
	ModeDistance Mode = iota
	// ModeDensity fields output antialiased solid fraction in [0,1].
	ModeDensity
)

func (m Mode) String() string {
	switch m {
	case ModeDistance:
		return "distance"
	case ModeDensity:
		return "density"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Result is a per-sample evaluation result code.
type Result uint8

const (
	ResultOK Result = iota
	// ResultOutOfRange signals the sample fell outside the field's domain.
	// Callers treat it as no contribution, never as an error.
	ResultOutOfRange
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultOutOfRange:
		return "out of range"
	}
	return fmt.Sprintf("Result(%d)", uint8(r))
}

// Sample is a query point and its local sampling scale (voxel size).
// Scale controls antialiasing bandwidth in density mode and is not geometry.
type Sample struct {
	Pos md3.Vec
	// W is an optional fourth coordinate. 3D transforms pass it through unchanged.
	W     float64
	Scale float64
}

// Value is the output of a field for a single sample.
type Value struct {
	V    [MaxChannels]float64
	Code Result
}

// Field is an implicit field in vectorized form.
type Field interface {
	// Initialize binds and validates the field and all of its children.
	// It must be called before Evaluate. Calling Initialize on an already
	// initialized field is a no-op so graphs may share nodes.
	Initialize() error
	// Evaluate evaluates the field over samples and stores results in dst.
	// samples and dst must be of same length.
	//
	// userData facilitates getting data to the evaluators for use in processing, such as [VecPool].
	Evaluate(samples []Sample, dst []Value, userData any) error
	// Bounds returns the field's bounding box such that all of the shape is contained within.
	Bounds() md3.Box
	// Mode returns the output mode fixed at construction.
	Mode() Mode
	// Channels returns the amount of channels written by Evaluate, between 1 and [MaxChannels].
	Channels() int
}

var (
	ErrNotInitialized       = errors.New("field evaluated before Initialize")
	ErrEmptyBuffers         = errors.New("empty buffers")
	ErrMismatchBufferLength = errors.New("sample and value buffer length mismatch")
	ErrMissingVecPool       = errors.New("userData does not contain a VecPool")
)

// Density converts a signed distance to an antialiased solid fraction.
// Returns exactly 0.5 for d == 0. A non positive scale yields a hard step.
func Density(d, scale float64) float64 {
	if !(scale > 0) {
		switch {
		case d < 0:
			return 1
		case d > 0:
			return 0
		}
		return 0.5
	}
	v := 0.5 - d/scale
	if v < 0 {
		return 0
	} else if v > 1 {
		return 1
	}
	return v
}

// NoContribution returns the channel 0 value of a sample the field does not cover.
func NoContribution(m Mode) float64 {
	if m == ModeDensity {
		return 0
	}
	return LargeDistance
}

// SetNoContribution overwrites v with the no contribution value for the mode
// and marks it out of range. Color channels are zeroed.
func SetNoContribution(v *Value, m Mode) {
	*v = Value{Code: ResultOutOfRange}
	v.V[ChanValue] = NoContribution(m)
}

// CheckBuffers validates the lengths of evaluation buffers.
func CheckBuffers(samples []Sample, dst []Value) error {
	if len(samples) != len(dst) {
		return ErrMismatchBufferLength
	} else if len(samples) == 0 {
		return ErrEmptyBuffers
	}
	return nil
}

// InitFlag tracks a node's initialization state. Embed it in field nodes.
type InitFlag struct {
	initialized bool
}

// Initialized reports whether MarkInitialized has been called.
func (f *InitFlag) Initialized() bool { return f.initialized }

// MarkInitialized sets the initialized state.
func (f *InitFlag) MarkInitialized() { f.initialized = true }

// MustBeInitialized panics if the node has not been initialized.
func (f *InitFlag) MustBeInitialized(name string) {
	if !f.initialized {
		panic(name + ": " + ErrNotInitialized.Error())
	}
}

// EvaluateOne evaluates a single sample. It is meant for tests and tooling;
// rasterization should evaluate in batches.
func EvaluateOne(f Field, s Sample) (Value, error) {
	var vp VecPool
	var dst [1]Value
	err := f.Evaluate([]Sample{s}, dst[:], &vp)
	if err != nil {
		return Value{}, err
	}
	return dst[0], nil
}

// EvaluateAt is a shorthand for [EvaluateOne] returning only channel 0.
func EvaluateAt(f Field, p md3.Vec, scale float64) (float64, Result, error) {
	v, err := EvaluateOne(f, Sample{Pos: p, Scale: scale})
	return v.V[ChanValue], v.Code, err
}

// NormalsCentralDiff uses central differences algorithm for normal calculation, which are stored in normals for each position.
// The returned normals are not normalized (converted to unit length). Normals are
// computed through the whole graph so they are in world space.
func NormalsCentralDiff(f Field, pos []md3.Vec, normals []md3.Vec, step float64, userData any) error {
	step *= 0.5
	if step <= 0 {
		return errors.New("invalid step")
	} else if len(pos) != len(normals) {
		return errors.New("length of position must match length of normals")
	} else if f == nil {
		return errors.New("nil Field")
	} else if len(pos) == 0 {
		return ErrEmptyBuffers
	}
	vp, err := GetVecPool(userData)
	if err != nil {
		return fmt.Errorf("VecPool required for normal calculation: %w", err)
	}
	s := vp.Samples.Acquire(len(pos))
	v1 := vp.Values.Acquire(len(pos))
	v2 := vp.Values.Acquire(len(pos))
	defer vp.Samples.Release(s)
	defer vp.Values.Release(v1)
	defer vp.Values.Release(v2)
	var vecs = [3]md3.Vec{{X: step}, {Y: step}, {Z: step}}
	for dim := 0; dim < 3; dim++ {
		h := vecs[dim]
		for i, p := range pos {
			s[i] = Sample{Pos: md3.Add(p, h), Scale: step}
		}
		err = f.Evaluate(s, v1, userData)
		if err != nil {
			return err
		}
		for i, p := range pos {
			s[i] = Sample{Pos: md3.Sub(p, h), Scale: step}
		}
		err = f.Evaluate(s, v2, userData)
		if err != nil {
			return err
		}
		switch dim {
		case 0:
			for i := range v1 {
				normals[i].X = v1[i].V[0] - v2[i].V[0]
			}
		case 1:
			for i := range v1 {
				normals[i].Y = v1[i].V[0] - v2[i].V[0]
			}
		case 2:
			for i := range v1 {
				normals[i].Z = v1[i].V[0] - v2[i].V[0]
			}
		}
	}
	if f.Mode() == ModeDensity {
		// Density grows inwards; flip so normals point out of the solid.
		for i := range normals {
			normals[i] = md3.Scale(-1, normals[i])
		}
	}
	return nil
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
