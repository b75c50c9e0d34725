// Package simulation drives an end-to-end synthetic experiment: a phantom
// is projected along a tilt scheme, misaligned, run through the alignment
// pipeline and reconstructed, and the result is scored against the
// phantom.
package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"tomoalign/internal/logger"
	"tomoalign/pkg/alignment"
	"tomoalign/pkg/config"
	"tomoalign/pkg/imaging"
	"tomoalign/pkg/phantom"
	"tomoalign/pkg/quality"
	"tomoalign/pkg/sinogram"
	"tomoalign/pkg/tiltscheme"
	"tomoalign/pkg/tomography"
	"tomoalign/pkg/visualization"
)

// Metrics holds the outcome of one simulation run.
type Metrics struct {
	// Unaligned scores a reconstruction of the misaligned tilt series
	// against the phantom.
	Unaligned quality.Report

	// Aligned scores the reconstruction produced after alignment.
	Aligned quality.Report

	// InjectedShifts are the translations applied to each projection.
	InjectedShifts []alignment.Shift

	// InjectedAxisShift is the horizontal tilt-axis offset applied to
	// every projection, in pixels.
	InjectedAxisShift float64

	// InjectedAxisRotation is the in-plane rotation applied to every
	// projection, in degrees.
	InjectedAxisRotation float64

	// InjectedRotations and InjectedAngleOffsets hold the random
	// per-projection rotation and recorded-angle error, backlash
	// included. Both are nil when no rotational misalignment was injected.
	InjectedRotations    []float64
	InjectedAngleOffsets []float64

	// Phantom and Recovered describe the particle segmented from the
	// phantom and from the aligned reconstruction.
	Phantom   quality.Properties
	Recovered quality.Properties

	// Alloying is the apparent mixing of the aligned reconstruction
	// relative to a two-material phantom; NaN for other phantoms.
	Alloying float64

	Duration time.Duration
}

// Params holds the simulation parameters.
type Params struct {
	Phantom phantom.Kind
	Size    int

	// Damage degrades the phantom before it is projected.
	Damage phantom.DamageParams

	// Scheme and Count select the acquisition angles.
	Scheme tiltscheme.Scheme
	Count  int

	// MaxTranslation bounds the injected per-projection shift as a
	// fraction of the image size; 0 disables it.
	MaxTranslation float64

	// Rotation injects random per-projection rotations, angle errors and
	// backlash; the zero value disables it.
	Rotation alignment.RotationOptions

	// TiltAxisShift offsets every projection horizontally, in pixels.
	TiltAxisShift float64

	// TiltAxisRotation rotates every projection in-plane, in degrees.
	TiltAxisRotation float64

	// BlurSigma and Dose degrade the projections after misalignment;
	// zero disables either.
	BlurSigma float64
	Dose      float64

	Seed uint64

	// NumCores specifies how many goroutines the operator and grid
	// searches may use.
	NumCores int

	Method     tomography.Method
	Iterations int
	Mask       bool

	// SubtractMedian, Normalize and Padding prepare the measured series
	// before it is reconstructed or aligned. Padding is removed again
	// before the aligned series is reconstructed.
	SubtractMedian bool
	Normalize      bool
	Padding        int

	Stages             []alignment.Stage
	ShiftCandidates    []float64
	RotationCandidates []float64
	ScoreBinning       int
	BacklashTolerance  float64
	BacklashMethod     string

	// OutputDir receives images and plots. Nothing is written when both
	// SaveImages and SavePlots are off.
	OutputDir  string
	SaveImages bool
	SavePlots  bool
}

// ParamsFromConfig resolves a validated configuration into Params.
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	method, err := cfg.Method()
	if err != nil {
		return nil, err
	}
	stages, err := cfg.Stages()
	if err != nil {
		return nil, err
	}
	scheme, err := cfg.Scheme()
	if err != nil {
		return nil, err
	}
	sim := cfg.Simulation
	return &Params{
		Phantom: phantom.Kind(sim.Phantom),
		Size:    sim.Size,
		Damage: phantom.DamageParams{
			KnockOn:   sim.KnockOn,
			Deform:    sim.ElasticDeform,
			Normalize: sim.NormalizeDamage,
		},
		Scheme:         scheme,
		Count:          cfg.TiltScheme.Count,
		MaxTranslation: sim.MaxTranslation,
		Rotation: alignment.RotationOptions{
			MaxTheta:  sim.MaxRotation,
			MaxAlpha:  sim.MaxAngleError,
			Backlash:  sim.Backlash,
			Backwards: sim.Backwards,
		},
		TiltAxisShift:      sim.TiltAxisShift,
		TiltAxisRotation:   sim.TiltAxisRotation,
		BlurSigma:          sim.BlurSigma,
		Dose:               sim.Dose,
		Seed:               sim.Seed,
		NumCores:           cfg.Processing.NumCores,
		Method:             method,
		Iterations:         cfg.Reconstruction.Iterations,
		Mask:               cfg.Reconstruction.Mask,
		SubtractMedian:     cfg.Alignment.SubtractMedian,
		Normalize:          cfg.Alignment.Normalize,
		Padding:            cfg.Alignment.Padding,
		Stages:             stages,
		ShiftCandidates:    cfg.Alignment.ShiftRange.Values(),
		RotationCandidates: cfg.Alignment.RotationRange.Values(),
		ScoreBinning:       cfg.Alignment.ScoreBinning,
		BacklashTolerance:  cfg.Alignment.BacklashTolerance,
		BacklashMethod:     cfg.Alignment.BacklashMethod,
		OutputDir:          cfg.Output.Directory,
		SaveImages:         cfg.Output.SaveImages,
		SavePlots:          cfg.Output.SavePlots,
	}, nil
}

// Simulator runs one synthetic misalign-and-recover experiment.
//
// The process consists of several steps:
// 1. Building and optionally damaging the phantom volume
// 2. Projecting it along the planned tilt angles
// 3. Injecting translations, rotations, angle errors, tilt-axis
// misalignment, blur and shot noise
// 4. Preparing the series for alignment
// 5. Reconstructing the misaligned series as a baseline
// 6. Aligning and reconstructing with the alignment pipeline
// 7. Scoring both reconstructions and writing outputs
type Simulator struct {
	params   *Params
	log      logger.Logger
	operator *tomography.ParallelBeam

	truth     *tomography.Volume
	measured  *sinogram.Sinogram
	aligned   *sinogram.Sinogram
	report    *alignment.PipelineReport
	unaligned *tomography.Volume

	metrics Metrics
}

// NewSimulator creates a simulator; a nil log discards messages.
func NewSimulator(params *Params, log logger.Logger) *Simulator {
	if log == nil {
		log = logger.Nop()
	}
	return &Simulator{
		params:   params,
		log:      log,
		operator: &tomography.ParallelBeam{Workers: params.NumCores, Mask: params.Mask},
	}
}

// Process runs the complete simulation.
func (s *Simulator) Process(ctx context.Context) error {
	start := time.Now()
	p := s.params
	s.metrics = Metrics{Alloying: math.NaN()}
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))

	// Step 1: Build the phantom
	s.log.Info("simulation", "building phantom", map[string]interface{}{"phantom": string(p.Phantom), "size": p.Size})
	truth, err := phantom.New(p.Phantom, p.Size)
	if err != nil {
		return fmt.Errorf("failed to build phantom: %w", err)
	}
	if p.Damage.Enabled() {
		if truth, err = phantom.BeamDamage(truth, p.Damage, rng); err != nil {
			return fmt.Errorf("failed to damage phantom: %w", err)
		}
	}
	s.truth = truth

	// Step 2: Project along the tilt scheme
	angles := tiltscheme.Plan(p.Scheme, tiltscheme.Limit(p.Scheme, p.Count))
	s.log.Info("simulation", "projecting", map[string]interface{}{"angles": len(angles)})
	measured, err := s.operator.Project(ctx, truth, angles)
	if err != nil {
		return fmt.Errorf("failed to project phantom: %w", err)
	}

	// Step 3: Misalign
	if err := s.misalign(measured, rng); err != nil {
		return err
	}

	// Step 4: Prepare
	if err := s.prepare(measured); err != nil {
		return err
	}
	s.measured = measured

	// Step 5: Baseline reconstruction
	s.unaligned, err = s.operator.Reconstruct(ctx, measured, p.Method, p.Iterations)
	if err != nil {
		return fmt.Errorf("failed to reconstruct baseline: %w", err)
	}
	if s.metrics.Unaligned, err = quality.CompareVolumes(s.unaligned, truth); err != nil {
		return fmt.Errorf("failed to score baseline: %w", err)
	}

	// Step 6: Align and reconstruct
	if err := s.align(ctx, measured); err != nil {
		return err
	}

	// Step 7: Score and write outputs
	if err := s.score(); err != nil {
		return err
	}
	if err := s.saveOutputs(angles); err != nil {
		return err
	}

	s.metrics.Duration = time.Since(start)
	s.log.Info("simulation", "done", map[string]interface{}{
		"unalignedSSIM": s.metrics.Unaligned.SSIM,
		"alignedSSIM":   s.metrics.Aligned.SSIM,
		"seconds":       s.metrics.Duration.Seconds(),
	})
	return nil
}

// misalign applies every configured acquisition error to measured. The
// tilt-axis rotation goes in before the tilt-axis shift, mirroring the
// order in which the pipeline undoes them.
func (s *Simulator) misalign(measured *sinogram.Sinogram, rng *rand.Rand) error {
	p := s.params
	s.metrics.InjectedShifts = make([]alignment.Shift, measured.Len())
	if p.MaxTranslation > 0 {
		s.metrics.InjectedShifts = alignment.InjectTranslation(measured, p.MaxTranslation, rng)
	}
	if r := p.Rotation; r.MaxTheta > 0 || r.MaxAlpha > 0 || r.Backlash != 0 {
		m := alignment.InjectRotation(measured, r, rng)
		s.metrics.InjectedRotations = m.Rotations
		s.metrics.InjectedAngleOffsets = make([]float64, measured.Len())
		for i, a := range measured.Angles {
			s.metrics.InjectedAngleOffsets[i] = a - m.OriginalAngles[i]
		}
	}
	if p.TiltAxisRotation != 0 {
		for i, img := range measured.Images {
			measured.Images[i] = imaging.Rotate(img, p.TiltAxisRotation)
		}
	}
	s.metrics.InjectedAxisRotation = p.TiltAxisRotation
	if p.TiltAxisShift != 0 {
		for i, img := range measured.Images {
			measured.Images[i] = imaging.Shift(img, 0, p.TiltAxisShift)
		}
	}
	s.metrics.InjectedAxisShift = p.TiltAxisShift
	if p.BlurSigma > 0 {
		alignment.Blur(measured, p.BlurSigma)
	}
	if p.Dose > 0 {
		if err := alignment.AddPoissonNoise(measured, p.Dose, rng); err != nil {
			return fmt.Errorf("failed to add noise: %w", err)
		}
	}
	s.log.Debug("simulation", "misalignment injected", map[string]interface{}{
		"maxTranslation":   p.MaxTranslation,
		"maxRotation":      p.Rotation.MaxTheta,
		"maxAngleError":    p.Rotation.MaxAlpha,
		"backlash":         p.Rotation.Backlash,
		"tiltAxisShift":    p.TiltAxisShift,
		"tiltAxisRotation": p.TiltAxisRotation,
		"blurSigma":        p.BlurSigma,
		"dose":             p.Dose,
	})
	return nil
}

// prepare applies the background and intensity preparation in place.
func (s *Simulator) prepare(measured *sinogram.Sinogram) error {
	p := s.params
	if p.SubtractMedian {
		measured.SubtractMedian()
	}
	if p.Normalize {
		if err := measured.Normalize(); err != nil {
			return fmt.Errorf("failed to normalize projections: %w", err)
		}
	}
	return nil
}

// align runs the pipeline on measured, padded when configured, and
// reconstructs the aligned series at the measured size.
func (s *Simulator) align(ctx context.Context, measured *sinogram.Sinogram) error {
	p := s.params
	input := measured
	if p.Padding > 0 {
		rows, cols := measured.Dims()
		padded, err := measured.PadCopy(rows+2*p.Padding, cols+2*p.Padding)
		if err != nil {
			return fmt.Errorf("failed to pad projections: %w", err)
		}
		input = padded
	}

	res, err := s.pipeline(p.Padding == 0).RunCopy(ctx, input)
	if err != nil {
		return fmt.Errorf("alignment failed: %w", err)
	}
	s.aligned, s.report = res.Sinogram, res.Diagnostic
	if p.Padding == 0 {
		return nil
	}

	rows, cols := measured.Dims()
	if err := s.aligned.Crop(rows, cols); err != nil {
		return fmt.Errorf("failed to crop projections: %w", err)
	}
	if s.report.Volume, err = s.operator.Reconstruct(ctx, s.aligned, p.Method, p.Iterations); err != nil {
		return fmt.Errorf("failed to reconstruct aligned series: %w", err)
	}
	return nil
}

// score compares the aligned reconstruction with the phantom and
// measures the particle in both.
func (s *Simulator) score() error {
	var err error
	if s.metrics.Aligned, err = quality.CompareVolumes(s.report.Volume, s.truth); err != nil {
		return fmt.Errorf("failed to score aligned reconstruction: %w", err)
	}
	if s.metrics.Phantom, err = quality.Measure(s.truth, 0); err != nil {
		return fmt.Errorf("failed to measure phantom: %w", err)
	}
	if s.metrics.Recovered, err = quality.Measure(s.report.Volume, 0); err != nil {
		s.log.Warning("simulation", "reconstruction not measured", map[string]interface{}{"error": err.Error()})
		s.metrics.Recovered = quality.Properties{SurfaceToVolume: math.NaN()}
	}
	if materials := quality.Materials(s.truth); len(materials) == 2 {
		a, err := quality.Alloying(s.report.Volume, s.truth, materials[0], materials[1])
		if err != nil {
			return fmt.Errorf("failed to measure alloying: %w", err)
		}
		s.metrics.Alloying = a
	}
	return nil
}

func (s *Simulator) pipeline(reconstruct bool) *alignment.Pipeline {
	p := s.params
	return &alignment.Pipeline{
		Stages: p.Stages,
		Calibrator: alignment.NewCalibrator(s.operator,
			alignment.WithMethod(p.Method),
			alignment.WithIterations(p.Iterations),
			alignment.WithWorkers(p.NumCores),
			alignment.WithScoreBinning(p.ScoreBinning),
			alignment.WithLogger(s.log)),
		ShiftCandidates:    p.ShiftCandidates,
		RotationCandidates: p.RotationCandidates,
		Backlash: alignment.NewBacklashCorrector(s.operator,
			alignment.WithTolerance(p.BacklashTolerance),
			alignment.WithMinimizer(p.BacklashMethod),
			alignment.WithBacklashLogger(s.log)),
		Reconstruct: reconstruct,
		Operator:    s.operator,
		Method:      p.Method,
		Iterations:  p.Iterations,
		Log:         s.log,
	}
}

// saveOutputs writes projections, reconstructions and diagnostic plots.
// A failing plot is logged and skipped; image I/O errors abort.
func (s *Simulator) saveOutputs(angles []float64) error {
	p := s.params
	if !p.SaveImages && !p.SavePlots {
		return nil
	}
	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if p.SaveImages {
		for stage, sino := range map[string]*sinogram.Sinogram{
			"01_measured_projections": s.measured,
			"02_aligned_projections":  s.aligned,
		} {
			if err := visualization.SaveProjections(sino, filepath.Join(p.OutputDir, stage)); err != nil {
				return fmt.Errorf("failed to save %s: %w", stage, err)
			}
		}
		for stage, vol := range map[string]*tomography.Volume{
			"03_phantom":          s.truth,
			"04_unaligned_volume": s.unaligned,
			"05_aligned_volume":   s.report.Volume,
		} {
			if err := visualization.NewViewer(vol).SaveSliceSequence("z", filepath.Join(p.OutputDir, stage)); err != nil {
				return fmt.Errorf("failed to save %s: %w", stage, err)
			}
		}
	}

	if p.SavePlots {
		plots := map[string]func(string) error{
			"angles.png": func(f string) error { return visualization.PlotAngles(angles, "Tilt schedule", f) },
		}
		if s.report.Shifts != nil {
			plots["xcorr_shifts.png"] = func(f string) error {
				return visualization.PlotShifts(s.report.Shifts, angles, f)
			}
		}
		if c := s.report.TiltShift; c != nil {
			plots["tilt_shift.png"] = func(f string) error {
				return visualization.PlotSearch(*c, "Tilt-axis shift", "offset (px)", f)
			}
		}
		if c := s.report.TiltRotation; c != nil {
			plots["tilt_rotation.png"] = func(f string) error {
				return visualization.PlotSearch(*c, "Tilt-axis rotation", "rotation (deg)", f)
			}
		}
		for name, plot := range plots {
			if err := plot(filepath.Join(p.OutputDir, name)); err != nil {
				s.log.Warning("simulation", "plot skipped", map[string]interface{}{"file": name, "error": err.Error()})
			}
		}
	}
	return nil
}

// GetMetrics returns the scores of the last run.
func (s *Simulator) GetMetrics() Metrics {
	return s.metrics
}

// Report returns the alignment diagnostics of the last run.
func (s *Simulator) Report() *alignment.PipelineReport {
	return s.report
}

// Measured returns the misaligned, prepared tilt series of the last run.
func (s *Simulator) Measured() *sinogram.Sinogram {
	return s.measured
}

// Aligned returns the aligned tilt series of the last run.
func (s *Simulator) Aligned() *sinogram.Sinogram {
	return s.aligned
}
