package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrOverlappingChannels is returned when two channels of a layout share bits.
	ErrOverlappingChannels = errors.New("overlapping channels")
	// ErrChannelOverflow is returned when a channel does not fit its layout's word.
	ErrChannelOverflow = errors.New("channel exceeds word width")
)

// WordWidth is the bit size of a voxel word.
type WordWidth uint8

const (
	Width8  WordWidth = 8
	Width16 WordWidth = 16
	Width32 WordWidth = 32
)

// Layout is the set of channels packed into each voxel word.
type Layout struct {
	Width    WordWidth
	Channels []Channel
}

// Validate checks that channels are valid, fit in the word and do not overlap.
func (l Layout) Validate() error {
	switch l.Width {
	case Width8, Width16, Width32:
	default:
		return fmt.Errorf("unsupported word width %d", l.Width)
	}
	if len(l.Channels) == 0 {
		return errors.New("layout without channels")
	}
	var used uint64
	for _, c := range l.Channels {
		if err := c.validate(); err != nil {
			return err
		}
		if int(c.Shift)+int(c.Bits) > int(l.Width) {
			return fmt.Errorf("channel %q bits [%d,%d) in %d bit word: %w", c.Name, c.Shift, int(c.Shift)+int(c.Bits), l.Width, ErrChannelOverflow)
		}
		if used&c.Mask() != 0 {
			return fmt.Errorf("channel %q: %w", c.Name, ErrOverlappingChannels)
		}
		used |= c.Mask()
	}
	return nil
}

// Find returns the index of the first channel of kind k.
func (l Layout) Find(k Kind) (int, bool) {
	for i, c := range l.Channels {
		if c.Kind == k {
			return i, true
		}
	}
	return -1, false
}

// Pack encodes values, one per channel, into a word.
func (l Layout) Pack(values []float64) uint64 {
	var w uint64
	for i, c := range l.Channels {
		w = c.Insert(w, c.Encode(values[i]))
	}
	return w
}

// Unpack decodes word into dst, one value per channel.
func (l Layout) Unpack(word uint64, dst []float64) {
	for i, c := range l.Channels {
		dst[i] = c.Decode(c.Extract(word))
	}
}

func mustLayout(l Layout) Layout {
	if err := l.Validate(); err != nil {
		panic(err)
	}
	return l
}

func mustChannel(c Channel, err error) Channel {
	if err != nil {
		panic(err)
	}
	return c
}

// DensityLayout8 stores an 8 bit density in [0,1].
func DensityLayout8() Layout {
	return mustLayout(Layout{Width: Width8, Channels: []Channel{
		mustChannel(NewChannelRange(KindDensity, "density", 8, 0, 0, 1)),
	}})
}

// DistanceLayout16 stores a 16 bit distance covering [-maxDist, maxDist] with
// an exact code for zero, see [symmetricDistance].
func DistanceLayout16(maxDist float64) Layout {
	return mustLayout(Layout{Width: Width16, Channels: []Channel{
		mustChannel(symmetricDistance(16, 0, maxDist)),
	}})
}

// DensityColorLayout32 stores 8 bit density followed by 8 bit blue, green and red components.
func DensityColorLayout32() Layout {
	return mustLayout(Layout{Width: Width32, Channels: colorChannels(
		mustChannel(NewChannelRange(KindDensity, "density", 8, 0, 0, 1)),
	)})
}

// DistanceColorLayout32 stores 8 bit distance covering [-maxDist, maxDist] followed by 8 bit blue, green and red components.
func DistanceColorLayout32(maxDist float64) Layout {
	return mustLayout(Layout{Width: Width32, Channels: colorChannels(
		mustChannel(symmetricDistance(8, 0, maxDist)),
	)})
}

// symmetricDistance returns a distance channel whose code (2^bits-2)/2 decodes to
// exactly 0 so voxels on the surface keep their sign. The top code decodes one
// step past maxDist.
func symmetricDistance(bits, shift uint8, maxDist float64) (Channel, error) {
	if bits < 2 || bits > MaxChannelBits {
		return Channel{}, errBits
	}
	steps := uint64(1)<<bits - 2
	scale := 2 * maxDist / float64(steps)
	bias := -float64(float64(steps/2) * scale)
	return NewChannel(KindDistance, "distance", bits, shift, bias, scale)
}

func colorChannels(value Channel) []Channel {
	return []Channel{
		value,
		mustChannel(NewChannelRange(KindColorBlue, "blue", 8, 8, 0, 1)),
		mustChannel(NewChannelRange(KindColorGreen, "green", 8, 16, 0, 1)),
		mustChannel(NewChannelRange(KindColorRed, "red", 8, 24, 0, 1)),
	}
}
