package grid

import (
	"errors"
	"fmt"
	"math"
)

// Kind is the semantic meaning of a channel's value.
type Kind uint8

const (
	KindDistance Kind = iota
	KindDensity
	KindColorRed
	KindColorGreen
	KindColorBlue
	KindAlpha
	// KindMaterial holds 1 inside the solid and 0 outside.
	KindMaterial
)

func (k Kind) String() string {
	switch k {
	case KindDistance:
		return "distance"
	case KindDensity:
		return "density"
	case KindColorRed:
		return "red"
	case KindColorGreen:
		return "green"
	case KindColorBlue:
		return "blue"
	case KindAlpha:
		return "alpha"
	case KindMaterial:
		return "material"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// MaxChannelBits is the largest bit width of a single channel.
const MaxChannelBits = 32

var (
	errBits  = errors.New("channel bit width must be in [1,32]")
	errScale = errors.New("channel scale must be finite and positive")
)

// Channel describes how a physical value maps to a bit field of a voxel word:
//
//	code  = clamp(round((value - Bias) / Scale), 0, 2^Bits - 1)
//	value = code*Scale + Bias
//
// Rounding is half away from zero.
type Channel struct {
	Name  string
	Kind  Kind
	Bits  uint8
	Shift uint8
	Bias  float64
	Scale float64
}

// NewChannel returns a validated channel descriptor.
func NewChannel(kind Kind, name string, bits, shift uint8, bias, scale float64) (Channel, error) {
	c := Channel{Name: name, Kind: kind, Bits: bits, Shift: shift, Bias: bias, Scale: scale}
	return c, c.validate()
}

// NewChannelRange returns a channel whose codes span [v0, v1] evenly.
func NewChannelRange(kind Kind, name string, bits, shift uint8, v0, v1 float64) (Channel, error) {
	if bits == 0 || bits > MaxChannelBits {
		return Channel{}, errBits
	}
	if !(v1 > v0) {
		return Channel{}, fmt.Errorf("channel %q: empty value range [%g, %g]", name, v0, v1)
	}
	maxCode := float64(uint64(1)<<bits - 1)
	return NewChannel(kind, name, bits, shift, v0, (v1-v0)/maxCode)
}

func (c Channel) validate() error {
	if c.Bits == 0 || c.Bits > MaxChannelBits {
		return fmt.Errorf("channel %q: %w", c.Name, errBits)
	}
	if !(c.Scale > 0) || math.IsInf(c.Scale, 0) || math.IsNaN(c.Bias) || math.IsInf(c.Bias, 0) {
		return fmt.Errorf("channel %q: %w", c.Name, errScale)
	}
	return nil
}

// MaxCode is the largest code representable by the channel.
func (c Channel) MaxCode() uint64 { return uint64(1)<<c.Bits - 1 }

// Mask returns the bits the channel occupies within a word.
func (c Channel) Mask() uint64 { return c.MaxCode() << c.Shift }

// Encode quantizes v. NaN encodes as 0.
func (c Channel) Encode(v float64) uint64 {
	code := math.Round((v - c.Bias) / c.Scale)
	if !(code > 0) {
		return 0
	}
	maxCode := c.MaxCode()
	if code >= float64(maxCode) {
		return maxCode
	}
	return uint64(code)
}

// Decode maps a code back into the physical value.
func (c Channel) Decode(code uint64) float64 {
	// The conversion keeps the product from fusing with the addition.
	return float64(float64(code)*c.Scale) + c.Bias
}

// Extract returns the channel's code stored in word.
func (c Channel) Extract(word uint64) uint64 {
	return (word >> c.Shift) & c.MaxCode()
}

// Insert returns word with the channel's bits replaced by code.
func (c Channel) Insert(word, code uint64) uint64 {
	mask := c.Mask()
	return (word &^ mask) | ((code << c.Shift) & mask)
}
