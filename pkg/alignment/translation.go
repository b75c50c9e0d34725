package alignment

import (
	"fmt"

	"tomoalign/pkg/imaging"
	"tomoalign/pkg/sinogram"
)

// AlignCrossCorrelation registers every projection onto its predecessor
// by phase correlation and rolls it into place. Relative shifts
// accumulate along the stack, so every projection ends up registered to
// the first. The returned table can be replayed onto a co-acquired
// sinogram with ApplyShifts.
func AlignCrossCorrelation(s *sinogram.Sinogram) (Result[[]Shift], error) {
	if err := s.Validate(); err != nil {
		return Result[[]Shift]{}, err
	}
	rows, cols := s.Dims()

	shifts := make([]Shift, s.Len())
	for i := 1; i < s.Len(); i++ {
		dy, dx := imaging.PhaseCorrelate(s.Images[i-1], s.Images[i])
		shifts[i] = Shift{
			Rows: wrap(shifts[i-1].Rows+dy, rows),
			Cols: wrap(shifts[i-1].Cols+dx, cols),
		}
	}

	if err := ApplyShifts(s, shifts); err != nil {
		return Result[[]Shift]{}, err
	}
	return Result[[]Shift]{Sinogram: s, Diagnostic: shifts}, nil
}

// AlignCrossCorrelationCopy is AlignCrossCorrelation on a deep copy of s.
func AlignCrossCorrelationCopy(s *sinogram.Sinogram) (Result[[]Shift], error) {
	return AlignCrossCorrelation(s.Clone())
}

// ApplyShifts rolls projection i circularly by shifts[i].
func ApplyShifts(s *sinogram.Sinogram, shifts []Shift) error {
	if len(shifts) != s.Len() {
		return fmt.Errorf("%w: %d shifts for %d projections", sinogram.ErrLengthMismatch, len(shifts), s.Len())
	}
	for i, sh := range shifts {
		if sh.Rows == 0 && sh.Cols == 0 {
			continue
		}
		s.Images[i] = imaging.Roll(s.Images[i], sh.Rows, sh.Cols)
	}
	return nil
}

// ApplyShiftsCopy is ApplyShifts on a deep copy of s.
func ApplyShiftsCopy(s *sinogram.Sinogram, shifts []Shift) (*sinogram.Sinogram, error) {
	c := s.Clone()
	if err := ApplyShifts(c, shifts); err != nil {
		return nil, err
	}
	return c, nil
}

// AlignCenterOfMass moves the centroid of the summed stack onto the image
// center ((rows-1)/2, (cols-1)/2). Every projection receives the same
// sub-pixel shift; content pushed off the canvas is lost and uncovered
// pixels are zero. A stack with zero total intensity has no centroid and
// is rejected with sinogram.ErrDegenerateRange.
func AlignCenterOfMass(s *sinogram.Sinogram) (Result[Offset], error) {
	if err := s.Validate(); err != nil {
		return Result[Offset]{}, err
	}
	cy, cx, ok := imaging.CenterOfMass(s.Sum())
	if !ok {
		return Result[Offset]{}, fmt.Errorf("center of mass: %w", sinogram.ErrDegenerateRange)
	}
	rows, cols := s.Dims()
	offset := Offset{
		Rows: float64(rows-1)/2 - cy,
		Cols: float64(cols-1)/2 - cx,
	}

	ApplyOffset(s, offset)
	return Result[Offset]{Sinogram: s, Diagnostic: offset}, nil
}

// AlignCenterOfMassCopy is AlignCenterOfMass on a deep copy of s.
func AlignCenterOfMassCopy(s *sinogram.Sinogram) (Result[Offset], error) {
	return AlignCenterOfMass(s.Clone())
}

// ApplyOffset shifts every projection by the same sub-pixel offset, e.g.
// one estimated by AlignCenterOfMass on a co-acquired sinogram.
func ApplyOffset(s *sinogram.Sinogram, offset Offset) {
	if offset.Rows == 0 && offset.Cols == 0 {
		return
	}
	for i, img := range s.Images {
		s.Images[i] = imaging.Shift(img, offset.Rows, offset.Cols)
	}
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
