package alignment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tomoalign/internal/logger"
	"tomoalign/pkg/sinogram"
	"tomoalign/pkg/tomography"
)

// ErrUnknownStage is returned for a pipeline stage name that does not exist.
var ErrUnknownStage = errors.New("alignment: unknown pipeline stage")

// Stage names one step of the alignment pipeline.
type Stage string

const (
	StageCrossCorrelation Stage = "xcorr"
	StageCenterOfMass     Stage = "com"
	StageTiltShift        Stage = "shift"
	StageTiltRotation     Stage = "rotation"
	StageBacklash         Stage = "backlash"
	StageWeighting        Stage = "weighting"
)

// stageOrder is the order stages always run in, whatever order they
// were listed in.
var stageOrder = []Stage{
	StageCrossCorrelation,
	StageCenterOfMass,
	StageTiltShift,
	StageTiltRotation,
	StageBacklash,
	StageWeighting,
}

// ParseStage resolves a case-insensitive stage name.
func ParseStage(name string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range stageOrder {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// Pipeline runs the enabled alignment stages in their fixed order and
// optionally reconstructs the result.
type Pipeline struct {
	Stages []Stage

	Calibrator         *Calibrator
	ShiftCandidates    []float64
	RotationCandidates []float64

	Backlash *BacklashCorrector

	// Operator and Method drive the final reconstruction, skipped when
	// Reconstruct is false.
	Reconstruct bool
	Operator    tomography.Operator
	Method      tomography.Method
	Iterations  int

	Log logger.Logger
}

// PipelineReport collects the diagnostic of every stage that ran.
type PipelineReport struct {
	Shifts       []Shift
	CenterOffset *Offset
	TiltShift    *Calibration
	TiltRotation *Calibration
	Backlash     *BacklashReport
	Weights      []float64
	Volume       *tomography.Volume
}

// Run aligns s in place.
func (p *Pipeline) Run(ctx context.Context, s *sinogram.Sinogram) (*PipelineReport, error) {
	log := p.Log
	if log == nil {
		log = logger.Nop()
	}
	enabled := make(map[Stage]bool, len(p.Stages))
	for _, st := range p.Stages {
		if _, err := ParseStage(string(st)); err != nil {
			return nil, err
		}
		enabled[st] = true
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	report := &PipelineReport{}
	for _, st := range stageOrder {
		if !enabled[st] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		log.Info("pipeline", "running stage", map[string]interface{}{"stage": string(st)})
		if err := p.runStage(ctx, st, s, report); err != nil {
			return report, fmt.Errorf("stage %s: %w", st, err)
		}
	}

	if p.Reconstruct {
		if p.Operator == nil {
			return report, errors.New("pipeline: reconstruction requested without an operator")
		}
		vol, err := p.Operator.Reconstruct(ctx, s, p.Method, p.Iterations)
		if err != nil {
			return report, fmt.Errorf("reconstruct: %w", err)
		}
		report.Volume = vol
	}
	return report, nil
}

// RunCopy runs the pipeline on a deep copy of s.
func (p *Pipeline) RunCopy(ctx context.Context, s *sinogram.Sinogram) (Result[*PipelineReport], error) {
	c := s.Clone()
	report, err := p.Run(ctx, c)
	return Result[*PipelineReport]{Sinogram: c, Diagnostic: report}, err
}

func (p *Pipeline) runStage(ctx context.Context, st Stage, s *sinogram.Sinogram, report *PipelineReport) error {
	switch st {
	case StageCrossCorrelation:
		res, err := AlignCrossCorrelation(s)
		if err != nil {
			return err
		}
		report.Shifts = res.Diagnostic
	case StageCenterOfMass:
		res, err := AlignCenterOfMass(s)
		if err != nil {
			return err
		}
		report.CenterOffset = &res.Diagnostic
	case StageTiltShift:
		if p.Calibrator == nil {
			return errors.New("no calibrator configured")
		}
		res, err := p.Calibrator.CalibrateShift(ctx, s, p.ShiftCandidates)
		if err != nil {
			return err
		}
		report.TiltShift = &res.Diagnostic
	case StageTiltRotation:
		if p.Calibrator == nil {
			return errors.New("no calibrator configured")
		}
		res, err := p.Calibrator.CalibrateRotation(ctx, s, p.RotationCandidates)
		if err != nil {
			return err
		}
		report.TiltRotation = &res.Diagnostic
	case StageBacklash:
		if p.Backlash == nil {
			return errors.New("no backlash corrector configured")
		}
		res, err := p.Backlash.Correct(ctx, s)
		if err != nil {
			return err
		}
		report.Backlash = &res.Diagnostic
	case StageWeighting:
		res, err := WeightByAngle(s)
		if err != nil {
			return err
		}
		report.Weights = res.Diagnostic
	}
	return nil
}
