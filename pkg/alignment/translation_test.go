package alignment

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"tomoalign/pkg/imaging"
	"tomoalign/pkg/sinogram"
)

func TestCrossCorrelationRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	const rows, cols = 16, 20
	ref := randomImage(rng, rows, cols)
	injected := []Shift{{0, 0}, {3, -2}, {-5, 7}, {1, 1}, {8, -10}}

	images := make([]*mat.Dense, len(injected))
	for i, d := range injected {
		images[i] = imaging.Roll(ref, d.Rows, d.Cols)
	}
	s := newSinogram(t, images, []float64{-20, -10, 0, 10, 20})

	res, err := AlignCrossCorrelation(s)
	require.NoError(t, err)
	assert.Same(t, s, res.Sinogram)

	want := make([]Shift, len(injected))
	for i, d := range injected {
		want[i] = Shift{Rows: wrap(-d.Rows, rows), Cols: wrap(-d.Cols, cols)}
	}
	assert.Empty(t, cmp.Diff(want, res.Diagnostic))
	for i, img := range s.Images {
		assert.True(t, mat.EqualApprox(ref, img, 1e-12), "projection %d", i)
	}
	requireShapeInvariant(t, s)
}

func TestCrossCorrelationAccumulatesPairwiseShifts(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	images := []*mat.Dense{randomImage(rng, 12, 12)}
	images = append(images, imaging.Roll(images[0], 2, -1))
	images = append(images, imaging.Roll(images[1], -4, 3))
	s := newSinogram(t, images, []float64{0, 5, 10})
	raw := s.Clone()

	res, err := AlignCrossCorrelation(s)
	require.NoError(t, err)

	var acc Shift
	for i := 1; i < raw.Len(); i++ {
		dy, dx := imaging.PhaseCorrelate(raw.Images[i-1], raw.Images[i])
		acc = Shift{Rows: wrap(acc.Rows+dy, 12), Cols: wrap(acc.Cols+dx, 12)}
		assert.Equal(t, acc, res.Diagnostic[i], "projection %d", i)
	}
}

func TestCrossCorrelationCopyLeavesInput(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	ref := randomImage(rng, 8, 8)
	s := newSinogram(t, []*mat.Dense{ref, imaging.Roll(ref, 2, 3)}, []float64{0, 1})
	before := s.Clone()

	res, err := AlignCrossCorrelationCopy(s)
	require.NoError(t, err)
	assert.NotSame(t, s, res.Sinogram)
	assert.True(t, mat.Equal(before.Images[1], s.Images[1]))
	assert.True(t, mat.EqualApprox(ref, res.Sinogram.Images[1], 1e-12))
}

func TestApplyShiftsReplaysTable(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	ref := randomImage(rng, 10, 12)
	haadf := newSinogram(t, []*mat.Dense{ref, imaging.Roll(ref, 1, -4)}, []float64{0, 5})
	edx := haadf.Clone()

	res, err := AlignCrossCorrelation(haadf)
	require.NoError(t, err)
	require.NoError(t, ApplyShifts(edx, res.Diagnostic))
	assert.True(t, mat.Equal(haadf.Images[1], edx.Images[1]))

	err = ApplyShifts(edx, res.Diagnostic[:1])
	assert.ErrorIs(t, err, sinogram.ErrLengthMismatch)

	_, err = ApplyShiftsCopy(edx, nil)
	assert.ErrorIs(t, err, sinogram.ErrLengthMismatch)
}

func TestCenterOfMassIdempotent(t *testing.T) {
	images := []*mat.Dense{
		diskImage(24, 24, 8, 9, 3, 1),
		diskImage(24, 24, 8, 9, 3, 2),
		diskImage(24, 24, 8.5, 9.5, 3, 0.5),
	}
	s := newSinogram(t, images, []float64{-30, 0, 30})

	first, err := AlignCenterOfMass(s)
	require.NoError(t, err)
	assert.Greater(t, first.Diagnostic.Rows, 1.0)
	assert.Greater(t, first.Diagnostic.Cols, 1.0)

	second, err := AlignCenterOfMass(s)
	require.NoError(t, err)
	assert.InDelta(t, 0, second.Diagnostic.Rows, 1e-6)
	assert.InDelta(t, 0, second.Diagnostic.Cols, 1e-6)

	cy, cx, ok := imaging.CenterOfMass(s.Sum())
	require.True(t, ok)
	assert.InDelta(t, 11.5, cy, 1e-6)
	assert.InDelta(t, 11.5, cx, 1e-6)
	requireShapeInvariant(t, s)
}

func TestCenterOfMassCopyAndDegenerate(t *testing.T) {
	s := newSinogram(t, []*mat.Dense{diskImage(12, 12, 3, 3, 2, 1)}, []float64{0})
	before := mat.DenseCopyOf(s.Images[0])

	res, err := AlignCenterOfMassCopy(s)
	require.NoError(t, err)
	assert.True(t, mat.Equal(before, s.Images[0]))
	assert.False(t, mat.Equal(before, res.Sinogram.Images[0]))

	empty := newSinogram(t, []*mat.Dense{mat.NewDense(4, 4, nil)}, []float64{0})
	_, err = AlignCenterOfMass(empty)
	assert.ErrorIs(t, err, sinogram.ErrDegenerateRange)
}
