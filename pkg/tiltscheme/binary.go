package tiltscheme

import (
	"fmt"
	"math"
)

// Binary is the binary-subdivision scheme. The range is swept repeatedly
// on the lattice Min + (phase + i)·step with step = (Max-Min)/(K+0.5).
// The first sweep has phase 0; every following sweep takes the next phase
// from the dyadic sequence 1/2, 1/4, 3/4, 1/8, 3/8, 5/8, 7/8, 1/16, … so
// each completed group of sweeps halves the spacing of the sampled set.
//
// A lattice point within boundaryTolerance·step of Min or Max counts as
// inside the range. That one rule decides every sweep end.
type Binary struct {
	Min           float64
	Max           float64
	K             int
	Bidirectional bool

	step    float64
	index   int
	phase   float64
	pos     int
	forward bool
	offsets dyadicOffsets
}

// dyadicOffsets walks the odd multiples of 1/den for den = 2, 4, 8, …
type dyadicOffsets struct {
	num, den int
}

func (d *dyadicOffsets) next() float64 {
	if d.den == 0 {
		d.num, d.den = 1, 2
	} else {
		d.num += 2
		if d.num > d.den {
			d.num = 1
			d.den *= 2
		}
	}
	return float64(d.num) / float64(d.den)
}

// NewBinary creates a binary-subdivision schedule with k base samples per
// sweep. When bidirectional is false every sweep runs from Min upward.
func NewBinary(min, max float64, k int, bidirectional bool) (*Binary, error) {
	if !(max > min) {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrInvalidRange, min, max)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k=%d", ErrInvalidStep, k)
	}
	b := &Binary{
		Min:           min,
		Max:           max,
		K:             k,
		Bidirectional: bidirectional,
		step:          (max - min) / (float64(k) + 0.5),
	}
	b.Reset()
	return b, nil
}

// Step returns the base lattice spacing.
func (b *Binary) Step() float64 {
	return b.step
}

// Phase returns the lattice phase of the current sweep as a fraction of a step.
func (b *Binary) Phase() float64 {
	return b.phase
}

func (b *Binary) Next() float64 {
	angle := b.Min + (b.phase+float64(b.pos))*b.step
	b.index++
	b.advance()
	return round2(angle)
}

func (b *Binary) advance() {
	if b.forward {
		if b.pos < b.lastPos() {
			b.pos++
			return
		}
	} else if b.pos > 0 {
		b.pos--
		return
	}
	b.nextSweep()
}

func (b *Binary) nextSweep() {
	b.phase = b.offsets.next()
	if b.Bidirectional {
		b.forward = !b.forward
	}
	if b.forward {
		b.pos = 0
	} else {
		b.pos = b.lastPos()
	}
}

// lastPos is the largest lattice index of the current sweep still inside
// [Min, Max].
func (b *Binary) lastPos() int {
	return int(math.Floor((b.Max-b.Min)/b.step - b.phase + boundaryTolerance))
}

// AngleArray replays a fresh copy of the schedule up to the largest
// requested index; the receiver is left untouched.
func (b *Binary) AngleArray(indices []int) []float64 {
	maxIdx := -1
	for _, idx := range indices {
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	replay := *b
	replay.Reset()
	seq := make([]float64, maxIdx+1)
	for i := range seq {
		seq[i] = replay.Next()
	}
	angles := make([]float64, len(indices))
	for i, idx := range indices {
		angles[i] = seq[idx]
	}
	return angles
}

func (b *Binary) Finished() bool { return false }
func (b *Binary) Index() int     { return b.index }

func (b *Binary) Reset() {
	b.index = 0
	b.phase = 0
	b.pos = 0
	b.forward = true
	b.offsets = dyadicOffsets{}
}
