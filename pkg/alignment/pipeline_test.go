package alignment

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"tomoalign/pkg/imaging"
	"tomoalign/pkg/tomography"
)

func TestParseStage(t *testing.T) {
	st, err := ParseStage(" XCorr ")
	require.NoError(t, err)
	assert.Equal(t, StageCrossCorrelation, st)

	_, err = ParseStage("denoise")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestPipelineRunsStagesInFixedOrder(t *testing.T) {
	ref := randomImage(rand.New(rand.NewPCG(8, 8)), 12, 12)
	angles := []float64{20, -20, 0, 40}
	images := []*mat.Dense{ref, imaging.Roll(ref, 1, 2), imaging.Roll(ref, -3, 0), imaging.Roll(ref, 0, 5)}
	s := newSinogram(t, images, angles)

	p := &Pipeline{
		// listed out of order on purpose
		Stages:          []Stage{StageWeighting, StageTiltShift, StageCrossCorrelation},
		Calibrator:      NewCalibrator(&targetOperator{target: s.Clone()}, WithWorkers(2)),
		ShiftCandidates: []float64{0},
		Reconstruct:     true,
		Operator:        &targetOperator{target: s},
		Method:          tomography.SIRT,
	}
	res, err := p.RunCopy(context.Background(), s)
	require.NoError(t, err)

	report := res.Diagnostic
	require.Len(t, report.Shifts, 4)
	assert.Equal(t, Shift{Rows: 11, Cols: 10}, report.Shifts[1])
	require.NotNil(t, report.TiltShift)
	assert.Zero(t, report.TiltShift.Best)
	assert.Len(t, report.Weights, 4)
	assert.Nil(t, report.Backlash)
	assert.Nil(t, report.CenterOffset)
	assert.NotNil(t, report.Volume)

	// cross-correlation ran before weighting sorted the stack
	assert.Equal(t, []float64{-20, 0, 20, 40}, res.Sinogram.Angles)
	assert.Equal(t, []float64{20, -20, 0, 40}, s.Angles)
}

func TestPipelineRejectsMisconfiguration(t *testing.T) {
	s := newSinogram(t, []*mat.Dense{filled(2, 2, 1)}, []float64{0})

	_, err := (&Pipeline{Stages: []Stage{"denoise"}}).Run(context.Background(), s)
	assert.ErrorIs(t, err, ErrUnknownStage)

	_, err = (&Pipeline{Stages: []Stage{StageBacklash}}).Run(context.Background(), s)
	assert.Error(t, err)

	_, err = (&Pipeline{Reconstruct: true}).Run(context.Background(), s)
	assert.Error(t, err)
}
