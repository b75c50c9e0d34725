package sinogram

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func constantImages(n, rows, cols int, value float64) []*mat.Dense {
	images := make([]*mat.Dense, n)
	for i := range images {
		data := make([]float64, rows*cols)
		for j := range data {
			data[j] = value
		}
		images[i] = mat.NewDense(rows, cols, data)
	}
	return images
}

func rampImages(n, rows, cols int) []*mat.Dense {
	images := make([]*mat.Dense, n)
	for i := range images {
		img := mat.NewDense(rows, cols, nil)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				img.Set(r, c, float64(i*rows*cols+r*cols+c))
			}
		}
		images[i] = img
	}
	return images
}

func TestNewDefaults(t *testing.T) {
	s, err := New(constantImages(3, 4, 5, 1), []float64{-10, 0, 10})
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{1, 2, 3}, s.Times)
	assert.Equal(t, 1.0, s.PixelSize)
	rows, cols := s.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 5, cols)
}

func TestNewRejectsMismatchedAngles(t *testing.T) {
	_, err := New(constantImages(3, 4, 4, 1), []float64{0, 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestNewRejectsMismatchedTimes(t *testing.T) {
	_, err := New(constantImages(2, 4, 4, 1), []float64{0, 1}, WithTimes([]float64{5}))
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestNewRejectsMixedShapes(t *testing.T) {
	images := append(constantImages(1, 4, 4, 1), constantImages(1, 4, 5, 1)...)
	_, err := New(images, []float64{0, 1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCloneIsDeep(t *testing.T) {
	s, err := New(constantImages(2, 3, 3, 1), []float64{0, 1}, WithMetadata(map[string]string{"k": "v"}))
	require.NoError(t, err)

	c := s.Clone()
	c.Images[0].Set(0, 0, 42)
	c.Angles[0] = 99
	c.Times[0] = 99
	c.Metadata["k"] = "changed"

	assert.Equal(t, 1.0, s.Images[0].At(0, 0))
	assert.Equal(t, 0.0, s.Angles[0])
	assert.Equal(t, 1.0, s.Times[0])
	assert.Equal(t, "v", s.Metadata["k"])
}

func TestSortByAngleMovesEverythingTogether(t *testing.T) {
	images := rampImages(3, 2, 2)
	s, err := New(images, []float64{30, -30, 0}, WithTimes([]float64{10, 20, 30}))
	require.NoError(t, err)

	order := s.SortByAngle()

	assert.Equal(t, []int{1, 2, 0}, order)
	assert.Equal(t, []float64{-30, 0, 30}, s.Angles)
	assert.Equal(t, []float64{20, 30, 10}, s.Times)
	assert.Same(t, images[1], s.Images[0])
	assert.Same(t, images[0], s.Images[2])
	require.NoError(t, s.Validate())
}

func TestNormalize(t *testing.T) {
	s, err := New(rampImages(2, 2, 2), []float64{0, 1})
	require.NoError(t, err)

	require.NoError(t, s.Normalize())
	lo, hi := s.MinMax()
	assert.InDelta(t, 0, lo, 1e-12)
	assert.InDelta(t, 1, hi, 1e-12)
}

func TestNormalizeRejectsConstantStack(t *testing.T) {
	s, err := New(constantImages(2, 3, 3, 7), []float64{0, 1})
	require.NoError(t, err)

	err = s.Normalize()
	require.ErrorIs(t, err, ErrDegenerateRange)
	for _, img := range s.Images {
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				v := img.At(r, c)
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
				assert.Equal(t, 7.0, v)
			}
		}
	}
}

func TestNormalizeCopyLeavesOriginal(t *testing.T) {
	s, err := New(rampImages(1, 2, 2), []float64{0})
	require.NoError(t, err)

	c, err := s.NormalizeCopy()
	require.NoError(t, err)
	assert.Equal(t, 3.0, s.Images[0].At(1, 1))
	assert.Equal(t, 1.0, c.Images[0].At(1, 1))
}

func TestBin(t *testing.T) {
	s, err := New(rampImages(1, 4, 4), []float64{0}, WithPixelSize(0.5))
	require.NoError(t, err)

	require.NoError(t, s.Bin(2))
	rows, cols := s.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 1.0, s.PixelSize)
	// top-left block holds 0, 1, 4, 5
	assert.InDelta(t, 2.5, s.Images[0].At(0, 0), 1e-12)
}

func TestPadAndCrop(t *testing.T) {
	s, err := New(constantImages(1, 2, 2, 1), []float64{0})
	require.NoError(t, err)

	require.NoError(t, s.Pad(4, 6))
	rows, cols := s.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 6, cols)
	assert.Equal(t, 0.0, s.Images[0].At(0, 0))
	assert.Equal(t, 1.0, s.Images[0].At(1, 2))
	assert.Equal(t, 4.0, mat.Sum(s.Images[0]))

	require.NoError(t, s.Crop(2, 2))
	assert.Equal(t, 4.0, mat.Sum(s.Images[0]))

	assert.Error(t, s.Pad(1, 1))
	assert.Error(t, s.Crop(3, 3))
}

func TestSubtractMedian(t *testing.T) {
	s, err := New(rampImages(1, 2, 2), []float64{0})
	require.NoError(t, err)

	assert.InDelta(t, 1.5, s.Median(), 1e-12)
	s.SubtractMedian()
	assert.Equal(t, []float64{0, 0, 2, 3}, s.Images[0].RawMatrix().Data)
}
