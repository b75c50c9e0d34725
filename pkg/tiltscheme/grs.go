package tiltscheme

import (
	"fmt"
	"math"
)

// goldenRatio is (1+√5)/2.
var goldenRatio = (1 + math.Sqrt(5)) / 2

// GRS is the Golden Ratio Sequence: every prefix of the schedule covers
// [Min, Max] near-uniformly, so acquisition can stop at any point.
type GRS struct {
	Min float64
	Max float64

	start int
	index int
}

// NewGRS creates a golden-ratio schedule whose first angle is the one at
// startIndex.
func NewGRS(min, max float64, startIndex int) (*GRS, error) {
	if !(max > min) {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrInvalidRange, min, max)
	}
	if startIndex < 0 {
		return nil, fmt.Errorf("tiltscheme: negative start index %d", startIndex)
	}
	return &GRS{Min: min, Max: max, start: startIndex, index: startIndex}, nil
}

// At returns the angle at sequence position idx.
func (s *GRS) At(idx int) float64 {
	span := s.Max - s.Min
	return round2(math.Mod(float64(idx)*goldenRatio*span, span) + s.Min)
}

func (s *GRS) Next() float64 {
	angle := s.At(s.index)
	s.index++
	return angle
}

// AngleArray evaluates the sequence at absolute sequence positions.
func (s *GRS) AngleArray(indices []int) []float64 {
	angles := make([]float64, len(indices))
	for i, idx := range indices {
		angles[i] = s.At(idx)
	}
	return angles
}

func (s *GRS) Finished() bool { return false }

// Index returns how many angles have been produced since the start index.
func (s *GRS) Index() int { return s.index - s.start }

func (s *GRS) Reset() { s.index = s.start }
