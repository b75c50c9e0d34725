package tiltscheme

import (
	"fmt"
	"math"
)

// Incremental steps linearly from Start towards End.
type Incremental struct {
	Start float64
	End   float64

	// step carries the direction of travel.
	step     float64
	index    int
	finished bool
}

// NewIncremental creates a linear schedule. The sign of step is taken from
// the direction end - start, so only its magnitude matters.
func NewIncremental(start, end, step float64) (*Incremental, error) {
	if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidStep, step)
	}
	step = math.Abs(step)
	if end < start {
		step = -step
	}
	return &Incremental{Start: start, End: end, step: step}, nil
}

// Step returns the signed step.
func (s *Incremental) Step() float64 {
	return s.step
}

func (s *Incremental) Next() float64 {
	angle := s.Start + float64(s.index)*s.step
	s.index++
	if s.beyondEnd(angle + s.step) {
		s.finished = true
	}
	return angle
}

// beyondEnd reports whether angle lies past End in the direction of travel
// by more than the boundary tolerance.
func (s *Incremental) beyondEnd(angle float64) bool {
	tol := boundaryTolerance * math.Abs(s.step)
	if s.step > 0 {
		return angle > s.End+tol
	}
	return angle < s.End-tol
}

func (s *Incremental) AngleArray(indices []int) []float64 {
	angles := make([]float64, len(indices))
	for i, idx := range indices {
		angles[i] = s.Start + float64(idx)*s.step
	}
	return angles
}

// Count returns how many angles the schedule holds before it finishes.
func (s *Incremental) Count() int {
	n := 1
	for !s.beyondEnd(s.Start + float64(n)*s.step) {
		n++
	}
	return n
}

func (s *Incremental) Finished() bool { return s.finished }
func (s *Incremental) Index() int     { return s.index }

func (s *Incremental) Reset() {
	s.index = 0
	s.finished = false
}
