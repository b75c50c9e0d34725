package simulation

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tomoalign/pkg/alignment"
	"tomoalign/pkg/config"
	"tomoalign/pkg/phantom"
	"tomoalign/pkg/tiltscheme"
	"tomoalign/pkg/tomography"
)

func smallParams(t *testing.T) *Params {
	t.Helper()
	scheme, err := tiltscheme.NewIncremental(-90, 88, 4)
	require.NoError(t, err)
	return &Params{
		Phantom:            phantom.KindRod,
		Size:               16,
		Scheme:             scheme,
		Count:              1000,
		MaxTranslation:     0.1,
		TiltAxisShift:      0,
		Seed:               7,
		NumCores:           2,
		Method:             tomography.FBP,
		Mask:               true,
		Stages:             []alignment.Stage{alignment.StageCrossCorrelation},
		ShiftCandidates:    []float64{-2, -1, 0, 1, 2},
		RotationCandidates: []float64{0},
		BacklashTolerance:  alignment.DefaultBacklashTolerance,
		BacklashMethod:     alignment.MethodBounded,
	}
}

func TestProcess(t *testing.T) {
	sim := NewSimulator(smallParams(t), nil)
	require.NoError(t, sim.Process(context.Background()))

	m := sim.GetMetrics()
	assert.Len(t, m.InjectedShifts, 45)
	assert.Equal(t, alignment.Shift{}, m.InjectedShifts[0])
	assert.Positive(t, m.Duration)
	for _, v := range []float64{m.Unaligned.SSIM, m.Aligned.SSIM, m.Aligned.RMSE} {
		assert.False(t, math.IsNaN(v))
	}

	report := sim.Report()
	require.NotNil(t, report)
	assert.Len(t, report.Shifts, 45)
	assert.Nil(t, report.TiltShift)
	require.NotNil(t, report.Volume)
	depth, size := report.Volume.Dims()
	assert.Equal(t, 16, depth)
	assert.Equal(t, 16, size)
	assert.Equal(t, 45, sim.Aligned().Len())

	assert.Nil(t, m.InjectedRotations)
	assert.Positive(t, m.Phantom.Volume)
	assert.Positive(t, m.Recovered.Volume)
	// the rod holds a shell and a core material
	assert.False(t, math.IsNaN(m.Alloying))
}

func TestProcessIsDeterministic(t *testing.T) {
	run := func() Metrics {
		sim := NewSimulator(smallParams(t), nil)
		require.NoError(t, sim.Process(context.Background()))
		m := sim.GetMetrics()
		m.Duration = 0
		return m
	}
	assert.Empty(t, cmp.Diff(run(), run(), cmpopts.EquateNaNs()))
}

func TestProcessWithBlurAndNoise(t *testing.T) {
	clean := NewSimulator(smallParams(t), nil)
	require.NoError(t, clean.Process(context.Background()))

	p := smallParams(t)
	p.BlurSigma = 0.7
	p.Dose = 20
	noisy := NewSimulator(p, nil)
	require.NoError(t, noisy.Process(context.Background()))

	assert.NotEqual(t, clean.GetMetrics().Unaligned.RMSE, noisy.GetMetrics().Unaligned.RMSE)
	assert.False(t, math.IsNaN(noisy.GetMetrics().Aligned.SSIM))
}

func TestProcessRecoversTiltAxisShift(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping calibration run in short mode")
	}
	p := smallParams(t)
	p.Size = 24
	p.MaxTranslation = 0
	p.TiltAxisShift = 2
	p.Stages = []alignment.Stage{alignment.StageTiltShift}
	p.ShiftCandidates = []float64{-4, -3, -2, -1, 0, 1, 2, 3, 4}

	sim := NewSimulator(p, nil)
	require.NoError(t, sim.Process(context.Background()))

	require.NotNil(t, sim.Report().TiltShift)
	assert.Equal(t, -2.0, sim.Report().TiltShift.Best)
	assert.Greater(t, sim.GetMetrics().Aligned.SSIM, sim.GetMetrics().Unaligned.SSIM)
}

func TestProcessRecoversTiltAxisRotation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping calibration run in short mode")
	}
	p := smallParams(t)
	p.Size = 24
	p.MaxTranslation = 0
	p.TiltAxisRotation = 4
	p.Stages = []alignment.Stage{alignment.StageTiltRotation}
	p.RotationCandidates = []float64{-8, -4, 0, 4, 8}

	sim := NewSimulator(p, nil)
	require.NoError(t, sim.Process(context.Background()))

	assert.Equal(t, 4.0, sim.GetMetrics().InjectedAxisRotation)
	require.NotNil(t, sim.Report().TiltRotation)
	assert.Equal(t, -4.0, sim.Report().TiltRotation.Best, "scores %v", sim.Report().TiltRotation.Scores)
}

func TestProcessInjectsBacklashAtReversals(t *testing.T) {
	scheme, err := tiltscheme.NewGRS(-90, 90, 0)
	require.NoError(t, err)
	p := smallParams(t)
	p.Phantom = phantom.KindCube
	p.Scheme = scheme
	p.Count = 30
	p.MaxTranslation = 0
	p.Rotation = alignment.RotationOptions{Backlash: 4, Backwards: true}
	p.Stages = []alignment.Stage{alignment.StageBacklash}

	sim := NewSimulator(p, nil)
	require.NoError(t, sim.Process(context.Background()))

	m := sim.GetMetrics()
	require.Len(t, m.InjectedAngleOffsets, 30)
	require.Len(t, m.InjectedRotations, 30)
	reversals := alignment.ReversalIndices(tiltscheme.Plan(scheme, 30))
	require.NotEmpty(t, reversals)
	isReversal := make(map[int]bool)
	for _, i := range reversals {
		isReversal[i] = true
	}
	for i, off := range m.InjectedAngleOffsets {
		if isReversal[i] {
			assert.InDelta(t, 4, off, 1e-12, "projection %d", i)
		} else {
			assert.Zero(t, off, "projection %d", i)
		}
		assert.Zero(t, m.InjectedRotations[i])
	}
	assert.True(t, math.IsNaN(m.Alloying))

	b := sim.Report().Backlash
	require.NotNil(t, b)
	assert.Equal(t, reversals, b.Reversals)
	if !testing.Short() {
		assert.InDelta(t, -4, b.Correction, 1.5)
	}
}

func TestProcessPadsAndPreparesSeries(t *testing.T) {
	p := smallParams(t)
	p.Padding = 3
	p.SubtractMedian = true
	p.Normalize = true

	sim := NewSimulator(p, nil)
	require.NoError(t, sim.Process(context.Background()))

	lo, hi := sim.Measured().MinMax()
	assert.Equal(t, 0.0, lo)
	assert.InDelta(t, 1.0, hi, 1e-12)

	rows, cols := sim.Aligned().Dims()
	assert.Equal(t, 16, rows)
	assert.Equal(t, 16, cols)
	depth, size := sim.Report().Volume.Dims()
	assert.Equal(t, 16, depth)
	assert.Equal(t, 16, size)
	assert.False(t, math.IsNaN(sim.GetMetrics().Aligned.SSIM))
}

func TestProcessDamagesPhantom(t *testing.T) {
	p := smallParams(t)
	p.Phantom = phantom.KindCube
	intact := NewSimulator(p, nil)
	require.NoError(t, intact.Process(context.Background()))

	p = smallParams(t)
	p.Phantom = phantom.KindCube
	p.Damage = phantom.DamageParams{KnockOn: 1}
	damaged := NewSimulator(p, nil)
	require.NoError(t, damaged.Process(context.Background()))

	// an 8-voxel cube keeps only its 6-voxel enclosed core
	assert.Equal(t, 512.0, intact.GetMetrics().Phantom.Volume)
	assert.Equal(t, 216.0, damaged.GetMetrics().Phantom.Volume)
}

func TestProcessWritesOutputs(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	p := smallParams(t)
	p.Stages = []alignment.Stage{alignment.StageCrossCorrelation, alignment.StageTiltShift}
	p.OutputDir = filepath.Join(t.TempDir(), "out")
	p.SaveImages = true
	p.SavePlots = true

	sim := NewSimulator(p, nil)
	require.NoError(t, sim.Process(context.Background()))

	for _, name := range []string{
		"angles.png",
		"xcorr_shifts.png",
		"tilt_shift.png",
		"03_phantom/slice_z_000.png",
		"05_aligned_volume/slice_z_015.png",
		"01_measured_projections/projection_000_-090.0.png",
	} {
		_, err := os.Stat(filepath.Join(p.OutputDir, name))
		assert.NoError(t, err, name)
	}
	_, err := os.Stat(filepath.Join(p.OutputDir, "tilt_rotation.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewSimulator(smallParams(t), nil).Process(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessUnknownPhantom(t *testing.T) {
	p := smallParams(t)
	p.Phantom = "cage"
	err := NewSimulator(p, nil).Process(context.Background())
	assert.ErrorIs(t, err, phantom.ErrUnknownPhantom)
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Alignment.Stages = []string{"weighting", "xcorr"}
	p, err := ParamsFromConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, phantom.KindRod, p.Phantom)
	assert.Equal(t, tomography.FBP, p.Method)
	assert.Equal(t, []alignment.Stage{alignment.StageWeighting, alignment.StageCrossCorrelation}, p.Stages)
	assert.Len(t, p.ShiftCandidates, 21)
	assert.Equal(t, 1, p.ScoreBinning)
	assert.True(t, p.Rotation.Backwards)
	assert.True(t, p.Damage.Normalize)
	assert.False(t, p.Damage.Enabled())
	assert.Equal(t, 71, tiltscheme.Limit(p.Scheme, p.Count))

	cfg.Reconstruction.Method = "art"
	_, err = ParamsFromConfig(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
