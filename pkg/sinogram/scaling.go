package sinogram

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Normalize rescales the whole stack into [0, 1]. A stack with
// max == min has no range to rescale and yields ErrDegenerateRange.
func (s *Sinogram) Normalize() error {
	lo, hi := s.MinMax()
	if hi == lo {
		return fmt.Errorf("%w: min == max == %g", ErrDegenerateRange, lo)
	}
	scale := 1 / (hi - lo)
	for _, img := range s.Images {
		img.Apply(func(_, _ int, v float64) float64 {
			return (v - lo) * scale
		}, img)
	}
	return nil
}

// NormalizeCopy is Normalize on a deep copy.
func (s *Sinogram) NormalizeCopy() (*Sinogram, error) {
	c := s.Clone()
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// Bin averages factor×factor pixel blocks. Trailing rows and columns that
// do not fill a whole block are dropped. The pixel size grows by factor.
func (s *Sinogram) Bin(factor int) error {
	if factor < 1 {
		return fmt.Errorf("sinogram: invalid bin factor %d", factor)
	}
	if factor == 1 {
		return nil
	}
	rows, cols := s.Dims()
	br, bc := rows/factor, cols/factor
	if br == 0 || bc == 0 {
		return fmt.Errorf("sinogram: bin factor %d larger than %dx%d projections", factor, rows, cols)
	}
	norm := 1 / float64(factor*factor)
	for i, img := range s.Images {
		binned := mat.NewDense(br, bc, nil)
		for r := 0; r < br; r++ {
			for c := 0; c < bc; c++ {
				sum := 0.0
				for dr := 0; dr < factor; dr++ {
					for dc := 0; dc < factor; dc++ {
						sum += img.At(r*factor+dr, c*factor+dc)
					}
				}
				binned.Set(r, c, sum*norm)
			}
		}
		s.Images[i] = binned
	}
	s.PixelSize *= float64(factor)
	return nil
}

// BinCopy is Bin on a deep copy.
func (s *Sinogram) BinCopy(factor int) (*Sinogram, error) {
	c := s.Clone()
	if err := c.Bin(factor); err != nil {
		return nil, err
	}
	return c, nil
}

// Pad zero-pads every projection symmetrically to rows×cols.
func (s *Sinogram) Pad(rows, cols int) error {
	r0, c0 := s.Dims()
	if rows < r0 || cols < c0 {
		return fmt.Errorf("sinogram: cannot pad %dx%d to smaller %dx%d", r0, c0, rows, cols)
	}
	top, left := (rows-r0)/2, (cols-c0)/2
	for i, img := range s.Images {
		padded := mat.NewDense(rows, cols, nil)
		padded.Slice(top, top+r0, left, left+c0).(*mat.Dense).Copy(img)
		s.Images[i] = padded
	}
	return nil
}

// PadCopy is Pad on a deep copy.
func (s *Sinogram) PadCopy(rows, cols int) (*Sinogram, error) {
	c := s.Clone()
	if err := c.Pad(rows, cols); err != nil {
		return nil, err
	}
	return c, nil
}

// Crop keeps the central rows×cols window of every projection.
func (s *Sinogram) Crop(rows, cols int) error {
	r0, c0 := s.Dims()
	if rows > r0 || cols > c0 || rows < 1 || cols < 1 {
		return fmt.Errorf("sinogram: cannot crop %dx%d to %dx%d", r0, c0, rows, cols)
	}
	top, left := (r0-rows)/2, (c0-cols)/2
	for i, img := range s.Images {
		s.Images[i] = mat.DenseCopyOf(img.Slice(top, top+rows, left, left+cols))
	}
	return nil
}

// CropCopy is Crop on a deep copy.
func (s *Sinogram) CropCopy(rows, cols int) (*Sinogram, error) {
	c := s.Clone()
	if err := c.Crop(rows, cols); err != nil {
		return nil, err
	}
	return c, nil
}

// SubtractMedian zeroes every value below the median of the whole stack.
func (s *Sinogram) SubtractMedian() {
	m := s.Median()
	for _, img := range s.Images {
		img.Apply(func(_, _ int, v float64) float64 {
			if v < m {
				return 0
			}
			return v
		}, img)
	}
}

// SubtractMedianCopy is SubtractMedian on a deep copy.
func (s *Sinogram) SubtractMedianCopy() *Sinogram {
	c := s.Clone()
	c.SubtractMedian()
	return c
}

// Median returns the median value over the whole stack.
func (s *Sinogram) Median() float64 {
	rows, cols := s.Dims()
	values := make([]float64, 0, rows*cols*s.Len())
	for _, img := range s.Images {
		for r := 0; r < rows; r++ {
			values = append(values, img.RawRowView(r)...)
		}
	}
	return median(values)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
