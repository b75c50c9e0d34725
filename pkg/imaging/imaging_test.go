package imaging

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// blobImage creates a test image with an off-center bright blob and a
// weaker bar so that no circular shift maps it onto itself.
func blobImage(rows, cols int) *mat.Dense {
	img := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dy, dx := float64(r)-float64(rows)/3, float64(c)-float64(cols)/2.5
			v := math.Exp(-(dy*dy + dx*dx) / 8)
			if r == rows-4 && c > 2 && c < cols/2 {
				v += 0.5
			}
			img.Set(r, c, v)
		}
	}
	return img
}

func TestFFT2RoundTrip(t *testing.T) {
	img := blobImage(12, 10)
	back := FFT2(img).Inverse()
	assert.True(t, mat.EqualApprox(img, back, 1e-10))
}

func TestFFT2DCComponent(t *testing.T) {
	img := blobImage(8, 6)
	spec := FFT2(img)
	assert.InDelta(t, mat.Sum(img), real(spec.Data[0]), 1e-9)
	assert.InDelta(t, 0, imag(spec.Data[0]), 1e-9)
}

func TestRollWrapsAround(t *testing.T) {
	img := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})
	rolled := Roll(img, 1, -1)
	want := mat.NewDense(2, 3, []float64{
		5, 6, 4,
		2, 3, 1,
	})
	assert.True(t, mat.Equal(want, rolled))
}

func TestPhaseCorrelateRecoversRoll(t *testing.T) {
	img := blobImage(16, 20)
	cases := []struct{ dy, dx int }{{0, 0}, {3, -2}, {-5, 7}, {15, 19}}
	for _, tc := range cases {
		moving := Roll(img, tc.dy, tc.dx)
		dy, dx := PhaseCorrelate(img, moving)
		assert.Equal(t, wrap(-tc.dy, 16), dy, "dy for %+v", tc)
		assert.Equal(t, wrap(-tc.dx, 20), dx, "dx for %+v", tc)
		assert.True(t, mat.EqualApprox(img, Roll(moving, dy, dx), 1e-12))
	}
}

func TestShiftInteger(t *testing.T) {
	img := blobImage(10, 10)
	shifted := Shift(img, 2, -3)
	assert.Equal(t, img.At(4, 6), shifted.At(6, 3))
	assert.Equal(t, 0.0, shifted.At(0, 0))
	assert.Equal(t, 0.0, shifted.At(5, 9))
}

func TestShiftSubPixelPreservesCentroidOffset(t *testing.T) {
	img := mat.NewDense(9, 9, nil)
	img.Set(4, 4, 1)
	img.Set(4, 5, 1)
	cy0, cx0, ok := CenterOfMass(img)
	require.True(t, ok)

	shifted := Shift(img, 0.25, -0.5)
	cy, cx, ok := CenterOfMass(shifted)
	require.True(t, ok)
	assert.InDelta(t, cy0+0.25, cy, 1e-12)
	assert.InDelta(t, cx0-0.5, cx, 1e-12)
	assert.InDelta(t, 2.0, mat.Sum(shifted), 1e-12)
}

func TestRotateKeepsCanvas(t *testing.T) {
	img := blobImage(11, 15)
	rotated := Rotate(img, 3)
	rows, cols := rotated.Dims()
	assert.Equal(t, 11, rows)
	assert.Equal(t, 15, cols)

	assert.True(t, mat.Equal(img, Rotate(img, 0)))
}

func TestRotateQuarterTurn(t *testing.T) {
	img := mat.NewDense(5, 5, nil)
	img.Set(2, 4, 1) // right of center
	rotated := Rotate(img, 90)
	// counter-clockwise as displayed moves "right" to "up"
	assert.InDelta(t, 1, rotated.At(0, 2), 1e-9)
	assert.InDelta(t, 0, rotated.At(2, 4), 1e-9)
}

func TestCenterOfMassZeroMass(t *testing.T) {
	_, _, ok := CenterOfMass(mat.NewDense(3, 3, nil))
	assert.False(t, ok)
}

func TestGaussianBlurConstantAndImpulse(t *testing.T) {
	flat := mat.NewDense(5, 7, nil)
	for r := 0; r < 5; r++ {
		for c := 0; c < 7; c++ {
			flat.Set(r, c, 3)
		}
	}
	assert.True(t, mat.EqualApprox(flat, GaussianBlur(flat, 1.5), 1e-12))

	impulse := mat.NewDense(21, 21, nil)
	impulse.Set(10, 10, 1)
	b := GaussianBlur(impulse, 1)
	assert.InDelta(t, 1.0, mat.Sum(b), 1e-12)
	assert.InDelta(t, b.At(10, 9), b.At(10, 11), 1e-15)
	assert.InDelta(t, b.At(9, 10), b.At(10, 9), 1e-15)
	assert.Less(t, b.At(10, 10), 1.0)
	assert.Equal(t, 0.0, b.At(0, 0))

	assert.True(t, mat.Equal(impulse, GaussianBlur(impulse, 0)))
}

func TestMirror(t *testing.T) {
	got := make([]int, 0, 10)
	for i := -3; i < 7; i++ {
		got = append(got, mirror(i, 4))
	}
	assert.Equal(t, []int{2, 1, 0, 0, 1, 2, 3, 3, 2, 1}, got)
	assert.Equal(t, 0, mirror(5, 1))
}

func TestGaussianSmooth(t *testing.T) {
	flat := []float64{2, 2, 2, 2, 2}
	for _, v := range GaussianSmooth(flat, 10) {
		assert.InDelta(t, 2, v, 1e-12)
	}

	impulse := make([]float64, 31)
	impulse[15] = 1
	got := GaussianSmooth(impulse, 2)
	assert.InDelta(t, 1, floats.Sum(got), 1e-12)
	assert.InDelta(t, got[14], got[16], 1e-15)
	assert.Equal(t, 1.0, impulse[15])

	assert.Equal(t, impulse, GaussianSmooth(impulse, 0))
	assert.Empty(t, GaussianSmooth(nil, 1))
}
