package alignment

import (
	"context"
	"fmt"
	"math"

	"tomoalign/internal/logger"
	"tomoalign/pkg/quality"
	"tomoalign/pkg/sinogram"
	"tomoalign/pkg/tomography"
)

// DefaultBacklashTolerance bounds the angular correction searched, in degrees.
const DefaultBacklashTolerance = 10.0

// ReversalIndices returns every i with angles[i] < angles[i-1]: the
// projections acquired right after the stage changed direction.
func ReversalIndices(angles []float64) []int {
	var out []int
	for i := 1; i < len(angles); i++ {
		if angles[i] < angles[i-1] {
			out = append(out, i)
		}
	}
	return out
}

// BacklashReport describes a backlash correction. Correction was added to
// the angle of every projection in Reversals; Error is the reprojection
// RMSE at that correction.
type BacklashReport struct {
	Reversals   []int
	Correction  float64
	Error       float64
	Evaluations int
	Method      string
}

// BacklashCorrector estimates the angular lag introduced at stage
// direction reversals and corrects the recorded angles.
type BacklashCorrector struct {
	operator  tomography.Operator
	tolerance float64
	method    string
	log       logger.Logger
}

// BacklashOption customises a BacklashCorrector.
type BacklashOption func(*BacklashCorrector)

// WithTolerance bounds the correction to [-deg, +deg].
func WithTolerance(deg float64) BacklashOption {
	return func(b *BacklashCorrector) { b.tolerance = math.Abs(deg) }
}

// WithMinimizer selects the scalar minimisation method (see MinimizeScalar).
func WithMinimizer(method string) BacklashOption {
	return func(b *BacklashCorrector) { b.method = method }
}

// WithBacklashLogger sets the logger objective values are reported to.
func WithBacklashLogger(l logger.Logger) BacklashOption {
	return func(b *BacklashCorrector) { b.log = l }
}

// NewBacklashCorrector returns a corrector using op for reprojection.
func NewBacklashCorrector(op tomography.Operator, opts ...BacklashOption) *BacklashCorrector {
	b := &BacklashCorrector{
		operator:  op,
		tolerance: DefaultBacklashTolerance,
		method:    MethodBounded,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Correct minimises the reprojection RMSE of the reversal projections
// over a common angular correction and adds the minimiser to their
// angles. Reconstructions use FBP. A sinogram without reversals is
// returned unchanged.
func (b *BacklashCorrector) Correct(ctx context.Context, s *sinogram.Sinogram) (Result[BacklashReport], error) {
	if err := s.Validate(); err != nil {
		return Result[BacklashReport]{}, err
	}
	report := BacklashReport{
		Reversals: ReversalIndices(s.Angles),
		Method:    b.method,
	}
	if len(report.Reversals) == 0 {
		b.log.Info("backlash", "no direction reversals", nil)
		return Result[BacklashReport]{Sinogram: s, Diagnostic: report}, nil
	}
	measured := s.Subset(report.Reversals)

	objective := func(correction float64) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		corrected := s.WithImages(s.Images)
		for _, i := range report.Reversals {
			corrected.Angles[i] += correction
		}
		vol, err := b.operator.Reconstruct(ctx, corrected, tomography.FBP, 0)
		if err != nil {
			return 0, fmt.Errorf("reconstruct: %w", err)
		}
		angles := make([]float64, len(report.Reversals))
		for j, i := range report.Reversals {
			angles[j] = corrected.Angles[i]
		}
		reproj, err := b.operator.Project(ctx, vol, angles)
		if err != nil {
			return 0, fmt.Errorf("project: %w", err)
		}
		mse, err := quality.SinogramMSE(measured, reproj)
		if err != nil {
			return 0, err
		}
		rmse := math.Sqrt(mse)
		b.log.Debug("backlash", "objective evaluated", map[string]interface{}{
			"correction": correction,
			"rmse":       rmse,
		})
		return rmse, nil
	}

	best, err := MinimizeScalar(objective, -b.tolerance, b.tolerance, b.method)
	if err != nil {
		return Result[BacklashReport]{}, fmt.Errorf("backlash: %w", err)
	}
	for _, i := range report.Reversals {
		s.Angles[i] += best.X
	}
	report.Correction = best.X
	report.Error = best.F
	report.Evaluations = best.Evaluations
	b.log.Info("backlash", "corrected", map[string]interface{}{
		"reversals":  len(report.Reversals),
		"correction": best.X,
		"rmse":       best.F,
	})
	return Result[BacklashReport]{Sinogram: s, Diagnostic: report}, nil
}

// CorrectCopy is Correct on a deep copy of s.
func (b *BacklashCorrector) CorrectCopy(ctx context.Context, s *sinogram.Sinogram) (Result[BacklashReport], error) {
	return b.Correct(ctx, s.Clone())
}
