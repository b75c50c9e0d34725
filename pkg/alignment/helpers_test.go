package alignment

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"tomoalign/pkg/sinogram"
	"tomoalign/pkg/tomography"
)

var errBoom = errors.New("boom")

func randomImage(rng *rand.Rand, rows, cols int) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Set(r, c, rng.Float64())
		}
	}
	return m
}

func filled(rows, cols int, v float64) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Set(r, c, v)
		}
	}
	return m
}

// diskImage draws a uniform disk of radius rad centered at (cy, cx).
func diskImage(rows, cols int, cy, cx, rad, v float64) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dy, dx := float64(r)-cy, float64(c)-cx
			if dy*dy+dx*dx <= rad*rad {
				m.Set(r, c, v)
			}
		}
	}
	return m
}

func newSinogram(t *testing.T, images []*mat.Dense, angles []float64) *sinogram.Sinogram {
	t.Helper()
	s, err := sinogram.New(images, angles)
	require.NoError(t, err)
	return s
}

func requireShapeInvariant(t *testing.T, s *sinogram.Sinogram) {
	t.Helper()
	require.Equal(t, len(s.Images), len(s.Angles))
	require.Equal(t, len(s.Images), len(s.Times))
}

// targetOperator ignores its input: every projection request returns a
// copy of target, so a candidate scores zero exactly when it turns the
// data into target.
type targetOperator struct {
	target *sinogram.Sinogram
	calls  atomic.Int32
	fail   bool
}

func (o *targetOperator) Reconstruct(_ context.Context, s *sinogram.Sinogram, _ tomography.Method, _ int) (*tomography.Volume, error) {
	o.calls.Add(1)
	if o.fail {
		return nil, errBoom
	}
	rows, cols := s.Dims()
	return tomography.NewVolume(rows, cols), nil
}

func (o *targetOperator) Project(_ context.Context, _ *tomography.Volume, _ []float64) (*sinogram.Sinogram, error) {
	return o.target.Clone(), nil
}

// angleOperator projects every angle to a 2×2 image filled with the
// angle value.
type angleOperator struct{}

func (angleOperator) ConcurrencySafe() bool { return true }

func (angleOperator) Reconstruct(_ context.Context, _ *sinogram.Sinogram, m tomography.Method, _ int) (*tomography.Volume, error) {
	if m != tomography.FBP {
		return nil, errBoom
	}
	return tomography.NewVolume(2, 2), nil
}

func (angleOperator) Project(_ context.Context, _ *tomography.Volume, angles []float64) (*sinogram.Sinogram, error) {
	images := make([]*mat.Dense, len(angles))
	for i, a := range angles {
		images[i] = filled(2, 2, a)
	}
	return sinogram.New(images, angles)
}
