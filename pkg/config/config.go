// Package config provides configuration loading and management for tomoalign.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"tomoalign/internal/logger"
	"tomoalign/pkg/alignment"
	"tomoalign/pkg/phantom"
	"tomoalign/pkg/tiltscheme"
	"tomoalign/pkg/tomography"
)

// ErrInvalidConfig is returned by Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Range is an inclusive integer candidate range.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Values expands the range to its candidate values. An inverted range
// has none.
func (r Range) Values() []float64 {
	if r.Min > r.Max {
		return []float64{}
	}
	out := make([]float64, 0, r.Max-r.Min+1)
	for v := r.Min; v <= r.Max; v++ {
		out = append(out, float64(v))
	}
	return out
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores bounds the goroutines used by grid searches and the
		// reference operator
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Reconstruction parameters used for scoring and the final volume
	Reconstruction struct {
		// Method is one of bp, fbp, sirt, em, sart, cgls
		Method string `yaml:"method"`

		// Iterations of iterative methods; 0 selects the method default
		Iterations int `yaml:"iterations"`

		// Mask restricts reconstructions to the inscribed circle
		Mask bool `yaml:"mask"`
	} `yaml:"reconstruction"`

	// Alignment stages and their search spaces
	Alignment struct {
		// Stages lists the enabled stages; they always run in pipeline order
		Stages []string `yaml:"stages"`

		// ShiftRange holds the tilt-axis offsets searched, in pixels
		ShiftRange Range `yaml:"shiftRange"`

		// RotationRange holds the tilt-axis rotations searched, in degrees
		RotationRange Range `yaml:"rotationRange"`

		// BacklashTolerance bounds the backlash correction in degrees
		BacklashTolerance float64 `yaml:"backlashTolerance"`

		// BacklashMethod is bounded, golden or nelder-mead
		BacklashMethod string `yaml:"backlashMethod"`

		// ScoreBinning bins trial sinograms by this factor before they are
		// scored during tilt-axis searches; 1 scores at full resolution
		ScoreBinning int `yaml:"scoreBinning"`

		// SubtractMedian zeroes projection values below the stack median
		// before alignment
		SubtractMedian bool `yaml:"subtractMedian"`

		// Normalize rescales the projections into [0, 1] before alignment
		Normalize bool `yaml:"normalize"`

		// Padding adds this many zero pixels on every side of each
		// projection while aligning, so rolled content does not wrap
		Padding int `yaml:"padding"`
	} `yaml:"alignment"`

	// Tilt scheme used to plan acquisitions and simulations
	TiltScheme struct {
		Kind          string  `yaml:"kind"`
		Min           float64 `yaml:"min"`
		Max           float64 `yaml:"max"`
		Step          float64 `yaml:"step"`
		K             int     `yaml:"k"`
		Bidirectional bool    `yaml:"bidirectional"`
		StartIndex    int     `yaml:"startIndex"`

		// Count is the number of angles planned for schemes without an end
		Count int `yaml:"count"`
	} `yaml:"tiltScheme"`

	// Simulation parameters for synthetic tilt series
	Simulation struct {
		// Phantom is one of rod, cube, ellipsoid
		Phantom string `yaml:"phantom"`

		// Size is the phantom volume edge in voxels
		Size int `yaml:"size"`

		// MaxTranslation is the largest injected shift as a fraction of the image
		MaxTranslation float64 `yaml:"maxTranslation"`

		// TiltAxisShift offsets every projection horizontally, in pixels
		TiltAxisShift float64 `yaml:"tiltAxisShift"`

		// TiltAxisRotation rotates every projection in-plane, in degrees
		TiltAxisRotation float64 `yaml:"tiltAxisRotation"`

		// MaxRotation bounds a random in-plane rotation of each projection,
		// in degrees
		MaxRotation float64 `yaml:"maxRotation"`

		// MaxAngleError bounds a random error of each recorded tilt angle,
		// in degrees
		MaxAngleError float64 `yaml:"maxAngleError"`

		// Backlash is added to the recorded angle of projections acquired
		// after the stage reverses; Backwards selects decreasing moves
		Backlash  float64 `yaml:"backlash"`
		Backwards bool    `yaml:"backwards"`

		// KnockOn and ElasticDeform damage the phantom before it is
		// projected; 0 disables either. NormalizeDamage binarises the
		// deformed phantom
		KnockOn         float64 `yaml:"knockOn"`
		ElasticDeform   float64 `yaml:"elasticDeform"`
		NormalizeDamage bool    `yaml:"normalizeDamage"`

		// BlurSigma smooths every projection in-plane, in pixels; 0 disables it
		BlurSigma float64 `yaml:"blurSigma"`

		// Dose adds Poisson noise at this many counts per unit intensity;
		// 0 disables it
		Dose float64 `yaml:"dose"`

		// Seed makes injected misalignments reproducible
		Seed uint64 `yaml:"seed"`
	} `yaml:"simulation"`

	// Output parameters
	Output struct {
		// Directory receives images, plots and reports
		Directory string `yaml:"directory"`

		// SavePlots writes search curves and acquisition plots
		SavePlots bool `yaml:"savePlots"`

		// SaveImages writes projections and reconstructed slices as PNG
		SaveImages bool `yaml:"saveImages"`

		// LogLevel is debug, info, warn or error
		LogLevel string `yaml:"logLevel"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Reconstruction.Method = tomography.FBP.String()
	cfg.Reconstruction.Iterations = 0
	cfg.Reconstruction.Mask = true

	cfg.Alignment.Stages = []string{
		string(alignment.StageCrossCorrelation),
		string(alignment.StageTiltShift),
		string(alignment.StageTiltRotation),
	}
	cfg.Alignment.ShiftRange = Range{Min: -10, Max: 10}
	cfg.Alignment.RotationRange = Range{Min: -4, Max: 4}
	cfg.Alignment.BacklashTolerance = alignment.DefaultBacklashTolerance
	cfg.Alignment.BacklashMethod = alignment.MethodBounded
	cfg.Alignment.ScoreBinning = 1

	cfg.TiltScheme.Kind = string(tiltscheme.KindIncremental)
	cfg.TiltScheme.Min = -70
	cfg.TiltScheme.Max = 70
	cfg.TiltScheme.Step = 2
	cfg.TiltScheme.K = 8
	cfg.TiltScheme.Bidirectional = true
	cfg.TiltScheme.Count = 71

	cfg.Simulation.Phantom = string(phantom.KindRod)
	cfg.Simulation.Size = 64
	cfg.Simulation.MaxTranslation = 0.05
	cfg.Simulation.TiltAxisShift = 3
	cfg.Simulation.Backwards = true
	cfg.Simulation.NormalizeDamage = true
	cfg.Simulation.Seed = 1

	cfg.Output.Directory = "tomoalign_output"
	cfg.Output.SavePlots = true
	cfg.Output.SaveImages = false
	cfg.Output.LogLevel = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks every enumerated name and numeric range, reporting the
// first problem found.
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("%w: numCores must be positive, got %d", ErrInvalidConfig, c.Processing.NumCores)
	}
	if _, err := c.Method(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Reconstruction.Iterations < 0 {
		return fmt.Errorf("%w: negative iterations", ErrInvalidConfig)
	}
	if _, err := c.Stages(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for name, r := range map[string]Range{
		"shiftRange":    c.Alignment.ShiftRange,
		"rotationRange": c.Alignment.RotationRange,
	} {
		if r.Min > r.Max {
			return fmt.Errorf("%w: %s min %d exceeds max %d", ErrInvalidConfig, name, r.Min, r.Max)
		}
	}
	if c.Alignment.BacklashTolerance <= 0 {
		return fmt.Errorf("%w: backlashTolerance must be positive", ErrInvalidConfig)
	}
	if c.Alignment.ScoreBinning < 1 {
		return fmt.Errorf("%w: scoreBinning must be at least 1", ErrInvalidConfig)
	}
	if c.Alignment.Padding < 0 {
		return fmt.Errorf("%w: negative padding", ErrInvalidConfig)
	}
	switch c.Alignment.BacklashMethod {
	case alignment.MethodBounded, alignment.MethodGolden, alignment.MethodNelderMead:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, alignment.ErrUnknownMethod, c.Alignment.BacklashMethod)
	}
	if _, err := c.Scheme(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.TiltScheme.Count < 1 {
		return fmt.Errorf("%w: tiltScheme count must be positive", ErrInvalidConfig)
	}
	if !knownPhantom(c.Simulation.Phantom) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, phantom.ErrUnknownPhantom, c.Simulation.Phantom)
	}
	if c.Simulation.Size < 4 {
		return fmt.Errorf("%w: simulation size %d too small", ErrInvalidConfig, c.Simulation.Size)
	}
	if c.Simulation.MaxTranslation < 0 || c.Simulation.MaxTranslation > 0.5 {
		return fmt.Errorf("%w: maxTranslation must lie in [0, 0.5]", ErrInvalidConfig)
	}
	if c.Simulation.BlurSigma < 0 || c.Simulation.Dose < 0 {
		return fmt.Errorf("%w: blurSigma and dose must not be negative", ErrInvalidConfig)
	}
	if c.Simulation.MaxRotation < 0 || c.Simulation.MaxAngleError < 0 {
		return fmt.Errorf("%w: maxRotation and maxAngleError must not be negative", ErrInvalidConfig)
	}
	if c.Simulation.KnockOn < 0 || c.Simulation.KnockOn > 1 || c.Simulation.ElasticDeform < 0 {
		return fmt.Errorf("%w: knockOn must lie in [0, 1] and elasticDeform must not be negative", ErrInvalidConfig)
	}
	if _, err := logger.ParseLevel(c.Output.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Method resolves the configured reconstruction method.
func (c *Config) Method() (tomography.Method, error) {
	return tomography.ParseMethod(c.Reconstruction.Method)
}

// Stages resolves the configured alignment stages.
func (c *Config) Stages() ([]alignment.Stage, error) {
	stages := make([]alignment.Stage, 0, len(c.Alignment.Stages))
	for _, name := range c.Alignment.Stages {
		st, err := alignment.ParseStage(name)
		if err != nil {
			return nil, err
		}
		stages = append(stages, st)
	}
	return stages, nil
}

// Scheme builds the configured tilt scheme.
func (c *Config) Scheme() (tiltscheme.Scheme, error) {
	ts := c.TiltScheme
	return tiltscheme.New(tiltscheme.Kind(ts.Kind), tiltscheme.Params{
		Min:           ts.Min,
		Max:           ts.Max,
		Step:          ts.Step,
		K:             ts.K,
		Bidirectional: ts.Bidirectional,
		StartIndex:    ts.StartIndex,
	})
}

func knownPhantom(name string) bool {
	for _, k := range phantom.Kinds() {
		if string(k) == name {
			return true
		}
	}
	return false
}
