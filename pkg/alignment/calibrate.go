package alignment

import (
	"context"
	"fmt"
	"runtime"

	"gonum.org/v1/gonum/mat"

	"tomoalign/internal/logger"
	"tomoalign/pkg/imaging"
	"tomoalign/pkg/quality"
	"tomoalign/pkg/sinogram"
	"tomoalign/pkg/tomography"
)

// Calibration reports a tilt-axis grid search. Scores[i] is the
// reprojection MSE of Candidates[i]; Scores is nil when a single
// candidate was applied without searching.
type Calibration struct {
	Best       float64
	Candidates []float64
	Scores     []float64
}

// DefaultShiftCandidates are the horizontal tilt-axis offsets searched
// when none are given: -10..10 pixels.
func DefaultShiftCandidates() []float64 { return integerRange(-10, 10) }

// DefaultRotationCandidates are the in-plane tilt-axis rotations searched
// when none are given: -4..4 degrees.
func DefaultRotationCandidates() []float64 { return integerRange(-4, 4) }

// Calibrator estimates the tilt-axis offset and rotation by reprojection
// consistency: each candidate correction is applied to a private copy of
// the sinogram, which is reconstructed, re-projected at the measured
// angles and compared with the corrected copy. The candidate with the
// lowest error wins.
type Calibrator struct {
	operator   tomography.Operator
	method     tomography.Method
	iterations int
	workers    int
	binning    int
	log        logger.Logger
}

// CalibratorOption customises a Calibrator.
type CalibratorOption func(*Calibrator)

// WithMethod selects the reconstruction method used for scoring (default FBP).
func WithMethod(m tomography.Method) CalibratorOption {
	return func(c *Calibrator) { c.method = m }
}

// WithIterations sets the iteration count passed to the reconstructor;
// zero selects the method default.
func WithIterations(n int) CalibratorOption {
	return func(c *Calibrator) { c.iterations = n }
}

// WithWorkers bounds the number of candidates scored at once.
func WithWorkers(n int) CalibratorOption {
	return func(c *Calibrator) { c.workers = n }
}

// WithScoreBinning scores every trial on a copy binned by factor, trading
// accuracy for speed. Corrections are still applied at full resolution.
func WithScoreBinning(factor int) CalibratorOption {
	return func(c *Calibrator) { c.binning = factor }
}

// WithLogger sets the logger trial scores and winners are reported to.
func WithLogger(l logger.Logger) CalibratorOption {
	return func(c *Calibrator) { c.log = l }
}

// NewCalibrator returns a Calibrator scoring with op. Operators that do
// not declare themselves concurrency safe are serialised.
func NewCalibrator(op tomography.Operator, opts ...CalibratorOption) *Calibrator {
	c := &Calibrator{
		method:  tomography.FBP,
		workers: runtime.NumCPU(),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.operator = tomography.Serialized(op)
	return c
}

type imageTransform func(img *mat.Dense, value float64) *mat.Dense

func shiftColumns(img *mat.Dense, offset float64) *mat.Dense {
	return imaging.Shift(img, 0, offset)
}

func rotateImage(img *mat.Dense, deg float64) *mat.Dense {
	return imaging.Rotate(img, deg)
}

// CalibrateShift finds the horizontal tilt-axis offset (pixels) among
// offsets and shifts every projection of s by it. An empty offsets uses
// DefaultShiftCandidates; a single offset is applied without searching.
func (c *Calibrator) CalibrateShift(ctx context.Context, s *sinogram.Sinogram, offsets []float64) (Result[Calibration], error) {
	if len(offsets) == 0 {
		offsets = DefaultShiftCandidates()
	}
	return c.calibrate(ctx, "tilt-shift", s, offsets, shiftColumns)
}

// CalibrateShiftCopy is CalibrateShift on a deep copy of s.
func (c *Calibrator) CalibrateShiftCopy(ctx context.Context, s *sinogram.Sinogram, offsets []float64) (Result[Calibration], error) {
	return c.CalibrateShift(ctx, s.Clone(), offsets)
}

// CalibrateRotation finds the in-plane tilt-axis rotation (degrees) among
// angles and rotates every projection of s by it about the image center,
// keeping the canvas size. An empty angles uses
// DefaultRotationCandidates; a single angle is applied without searching.
func (c *Calibrator) CalibrateRotation(ctx context.Context, s *sinogram.Sinogram, angles []float64) (Result[Calibration], error) {
	if len(angles) == 0 {
		angles = DefaultRotationCandidates()
	}
	return c.calibrate(ctx, "tilt-rotation", s, angles, rotateImage)
}

// CalibrateRotationCopy is CalibrateRotation on a deep copy of s.
func (c *Calibrator) CalibrateRotationCopy(ctx context.Context, s *sinogram.Sinogram, angles []float64) (Result[Calibration], error) {
	return c.CalibrateRotation(ctx, s.Clone(), angles)
}

func (c *Calibrator) calibrate(ctx context.Context, component string, s *sinogram.Sinogram, candidates []float64, transform imageTransform) (Result[Calibration], error) {
	if err := s.Validate(); err != nil {
		return Result[Calibration]{}, err
	}
	cal := Calibration{Candidates: append([]float64(nil), candidates...)}

	if len(candidates) == 1 {
		cal.Best = candidates[0]
	} else {
		best, scores, err := gridSearch(ctx, candidates, c.workers, func(ctx context.Context, v float64) (float64, error) {
			score, err := c.score(ctx, s, v, transform)
			if err != nil {
				return 0, err
			}
			c.log.Debug(component, "trial scored", map[string]interface{}{
				"candidate": v,
				"mse":       score,
			})
			return score, nil
		})
		cal.Scores = scores
		if err != nil {
			return Result[Calibration]{}, fmt.Errorf("%s search: %w", component, err)
		}
		cal.Best = candidates[best]
		c.log.Info(component, "calibrated", map[string]interface{}{
			"best": cal.Best,
			"mse":  scores[best],
		})
	}

	for i, img := range s.Images {
		s.Images[i] = transform(img, cal.Best)
	}
	return Result[Calibration]{Sinogram: s, Diagnostic: cal}, nil
}

// score transforms a private copy of s by value and returns the MSE
// between that copy and its reprojection.
func (c *Calibrator) score(ctx context.Context, s *sinogram.Sinogram, value float64, transform imageTransform) (float64, error) {
	images := make([]*mat.Dense, s.Len())
	for i, img := range s.Images {
		images[i] = transform(img, value)
	}
	trial := s.WithImages(images)
	if c.binning > 1 {
		binned, err := trial.BinCopy(c.binning)
		if err != nil {
			return 0, err
		}
		trial = binned
	}

	vol, err := c.operator.Reconstruct(ctx, trial, c.method, c.iterations)
	if err != nil {
		return 0, fmt.Errorf("reconstruct: %w", err)
	}
	reproj, err := c.operator.Project(ctx, vol, trial.Angles)
	if err != nil {
		return 0, fmt.Errorf("project: %w", err)
	}
	return quality.SinogramMSE(trial, reproj)
}
