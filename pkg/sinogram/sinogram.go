// Package sinogram provides the tilt-series data model used by every
// alignment stage: an ordered stack of projection images with per-image
// tilt angle and acquisition time.
package sinogram

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrLengthMismatch is returned when images, angles and times disagree in length.
	ErrLengthMismatch = errors.New("sinogram: length mismatch")

	// ErrShapeMismatch is returned when projection images differ in dimensions.
	ErrShapeMismatch = errors.New("sinogram: image shape mismatch")

	// ErrEmpty is returned when a sinogram is built without any projections.
	ErrEmpty = errors.New("sinogram: no projections")

	// ErrDegenerateRange is returned when an operation needs a non-zero
	// dynamic range (or non-zero mass) and the data has none.
	ErrDegenerateRange = errors.New("sinogram: degenerate value range")
)

// Sinogram is a stack of projection images. Images[i] was acquired at
// Angles[i] degrees at time Times[i].
type Sinogram struct {
	// Images holds N projections, each rows×columns (y, x).
	Images []*mat.Dense

	// Angles holds the tilt angle of every projection in degrees.
	Angles []float64

	// Times holds acquisition timestamps; defaults to 1..N.
	Times []float64

	// PixelSize is the physical width of one pixel (x and y alike).
	PixelSize float64

	// Metadata is carried along untouched by all processing.
	Metadata map[string]string
}

// Option customises sinogram construction.
type Option func(*Sinogram)

// WithTimes sets explicit acquisition times.
func WithTimes(times []float64) Option {
	return func(s *Sinogram) {
		s.Times = append([]float64(nil), times...)
	}
}

// WithPixelSize sets the physical pixel size.
func WithPixelSize(size float64) Option {
	return func(s *Sinogram) {
		s.PixelSize = size
	}
}

// WithMetadata attaches free-form metadata.
func WithMetadata(md map[string]string) Option {
	return func(s *Sinogram) {
		for k, v := range md {
			s.Metadata[k] = v
		}
	}
}

// New builds a sinogram and enforces len(images) == len(angles) == len(times).
// The image matrices are referenced, not copied; angles are copied.
func New(images []*mat.Dense, angles []float64, opts ...Option) (*Sinogram, error) {
	s := &Sinogram{
		Images:    images,
		Angles:    append([]float64(nil), angles...),
		PixelSize: 1.0,
		Metadata:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Times == nil {
		s.Times = DefaultTimes(len(images))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// DefaultTimes returns the timestamps 1..n.
func DefaultTimes(n int) []float64 {
	times := make([]float64, n)
	for i := range times {
		times[i] = float64(i + 1)
	}
	return times
}

// Validate checks the sinogram invariants.
func (s *Sinogram) Validate() error {
	if len(s.Images) == 0 {
		return ErrEmpty
	}
	if len(s.Angles) != len(s.Images) {
		return fmt.Errorf("%w: %d images but %d angles", ErrLengthMismatch, len(s.Images), len(s.Angles))
	}
	if len(s.Times) != len(s.Images) {
		return fmt.Errorf("%w: %d images but %d times", ErrLengthMismatch, len(s.Images), len(s.Times))
	}
	rows, cols := s.Images[0].Dims()
	for i, img := range s.Images {
		if img == nil {
			return fmt.Errorf("%w: projection %d is nil", ErrShapeMismatch, i)
		}
		r, c := img.Dims()
		if r != rows || c != cols {
			return fmt.Errorf("%w: projection %d is %dx%d, expected %dx%d", ErrShapeMismatch, i, r, c, rows, cols)
		}
	}
	return nil
}

// Len returns the number of projections.
func (s *Sinogram) Len() int {
	return len(s.Images)
}

// Dims returns the rows and columns of every projection.
func (s *Sinogram) Dims() (rows, cols int) {
	if len(s.Images) == 0 {
		return 0, 0
	}
	return s.Images[0].Dims()
}

// Clone returns a deep copy that shares no mutable state with s.
func (s *Sinogram) Clone() *Sinogram {
	c := &Sinogram{
		Images:    make([]*mat.Dense, len(s.Images)),
		Angles:    append([]float64(nil), s.Angles...),
		Times:     append([]float64(nil), s.Times...),
		PixelSize: s.PixelSize,
		Metadata:  make(map[string]string, len(s.Metadata)),
	}
	for i, img := range s.Images {
		c.Images[i] = mat.DenseCopyOf(img)
	}
	for k, v := range s.Metadata {
		c.Metadata[k] = v
	}
	return c
}

// WithImages returns a sinogram sharing metadata values with s but holding
// the given images and a private copy of the angles and times.
func (s *Sinogram) WithImages(images []*mat.Dense) *Sinogram {
	c := &Sinogram{
		Images:    images,
		Angles:    append([]float64(nil), s.Angles...),
		Times:     append([]float64(nil), s.Times...),
		PixelSize: s.PixelSize,
		Metadata:  make(map[string]string, len(s.Metadata)),
	}
	for k, v := range s.Metadata {
		c.Metadata[k] = v
	}
	return c
}

// Subset returns a sinogram holding only the projections at indices.
// Images are referenced, not copied.
func (s *Sinogram) Subset(indices []int) *Sinogram {
	c := &Sinogram{
		Images:    make([]*mat.Dense, len(indices)),
		Angles:    make([]float64, len(indices)),
		Times:     make([]float64, len(indices)),
		PixelSize: s.PixelSize,
		Metadata:  s.Metadata,
	}
	for j, i := range indices {
		c.Images[j] = s.Images[i]
		c.Angles[j] = s.Angles[i]
		c.Times[j] = s.Times[i]
	}
	return c
}

// SortByAngle reorders images, angles and times by ascending angle. The
// sort is stable so equal angles keep their acquisition order. It returns
// the permutation applied (new position -> old index).
func (s *Sinogram) SortByAngle() []int {
	order := make([]int, len(s.Angles))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.Angles[order[a]] < s.Angles[order[b]]
	})

	images := make([]*mat.Dense, len(order))
	angles := make([]float64, len(order))
	times := make([]float64, len(order))
	for j, i := range order {
		images[j] = s.Images[i]
		angles[j] = s.Angles[i]
		times[j] = s.Times[i]
	}
	s.Images, s.Angles, s.Times = images, angles, times
	return order
}

// Sum adds all projections into one image.
func (s *Sinogram) Sum() *mat.Dense {
	rows, cols := s.Dims()
	total := mat.NewDense(rows, cols, nil)
	for _, img := range s.Images {
		total.Add(total, img)
	}
	return total
}

// MinMax returns the smallest and largest value over the whole stack.
func (s *Sinogram) MinMax() (lo, hi float64) {
	first := true
	for _, img := range s.Images {
		l, h := mat.Min(img), mat.Max(img)
		if first || l < lo {
			lo = l
		}
		if first || h > hi {
			hi = h
		}
		first = false
	}
	return lo, hi
}
