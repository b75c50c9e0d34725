package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tomoalign/pkg/alignment"
	"tomoalign/pkg/tiltscheme"
	"tomoalign/pkg/tomography"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	m, err := cfg.Method()
	require.NoError(t, err)
	assert.Equal(t, tomography.FBP, m)

	stages, err := cfg.Stages()
	require.NoError(t, err)
	assert.Equal(t, []alignment.Stage{alignment.StageCrossCorrelation, alignment.StageTiltShift, alignment.StageTiltRotation}, stages)

	assert.Equal(t, alignment.DefaultShiftCandidates(), cfg.Alignment.ShiftRange.Values())
	assert.Equal(t, alignment.DefaultRotationCandidates(), cfg.Alignment.RotationRange.Values())

	scheme, err := cfg.Scheme()
	require.NoError(t, err)
	assert.IsType(t, &tiltscheme.Incremental{}, scheme)
}

func TestRangeValues(t *testing.T) {
	assert.Equal(t, []float64{-1, 0, 1}, Range{Min: -1, Max: 1}.Values())
	assert.Equal(t, []float64{2}, Range{Min: 2, Max: 2}.Values())
	assert.Empty(t, Range{Min: 5, Max: -5}.Values())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tomoalign.yaml")
	cfg := DefaultConfig()
	cfg.TiltScheme.Kind = "grs"
	cfg.Alignment.Stages = []string{"xcorr", "backlash", "weighting"}
	cfg.Simulation.Seed = 99
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(cfg, loaded))
}

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(DefaultConfig(), cfg))
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reconstruction:\n  method: sirt\n  iterations: 40\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sirt", cfg.Reconstruction.Method)
	assert.Equal(t, 40, cfg.Reconstruction.Iterations)
	assert.Equal(t, -70.0, cfg.TiltScheme.Min)
	assert.True(t, cfg.Reconstruction.Mask)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing: [1, 2\n"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"method":      func(c *Config) { c.Reconstruction.Method = "art" },
		"stage":       func(c *Config) { c.Alignment.Stages = []string{"denoise"} },
		"range":       func(c *Config) { c.Alignment.ShiftRange = Range{Min: 3, Max: -3} },
		"minimizer":   func(c *Config) { c.Alignment.BacklashMethod = "powell" },
		"scheme":      func(c *Config) { c.TiltScheme.Kind = "spiral" },
		"step":        func(c *Config) { c.TiltScheme.Step = 0 },
		"phantom":     func(c *Config) { c.Simulation.Phantom = "cage" },
		"cores":       func(c *Config) { c.Processing.NumCores = 0 },
		"logLevel":    func(c *Config) { c.Output.LogLevel = "loud" },
		"tolerance":   func(c *Config) { c.Alignment.BacklashTolerance = 0 },
		"translation": func(c *Config) { c.Simulation.MaxTranslation = 0.9 },
		"dose":        func(c *Config) { c.Simulation.Dose = -1 },
		"binning":     func(c *Config) { c.Alignment.ScoreBinning = 0 },
		"padding":     func(c *Config) { c.Alignment.Padding = -2 },
		"rotation":    func(c *Config) { c.Simulation.MaxRotation = -1 },
		"angleError":  func(c *Config) { c.Simulation.MaxAngleError = -0.5 },
		"knockOn":     func(c *Config) { c.Simulation.KnockOn = 1.5 },
		"deform":      func(c *Config) { c.Simulation.ElasticDeform = -0.1 },
	} {
		cfg := DefaultConfig()
		mutate(cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, name)
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tiltScheme:")
	assert.Contains(t, string(data), "backlashMethod: bounded")
	assert.Contains(t, string(data), "scoreBinning: 1")
	assert.Contains(t, string(data), "backwards: true")
}
