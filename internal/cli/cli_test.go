package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tomoalign/pkg/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPlanUsesConfigAndOverrides(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "none.yaml")

	out, err := run(t, "plan", "--config", cfgPath)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if !strings.Contains(out, "incremental (71 angles)") {
		t.Fatalf("expected 71 incremental angles, got:\n%s", out)
	}
	if !strings.Contains(out, "   0    -70.00") || !strings.Contains(out, "  70     70.00") {
		t.Fatalf("expected -70..70 schedule, got:\n%s", out)
	}

	out, err = run(t, "plan", "--config", cfgPath, "--kind", "grs", "--count", "3")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if !strings.Contains(out, "grs (3 angles)") {
		t.Fatalf("expected 3 GRS angles, got:\n%s", out)
	}
}

func TestPlanRejectsUnknownKind(t *testing.T) {
	_, err := run(t, "plan", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--kind", "spiral")
	if err == nil {
		t.Fatalf("expected error for unknown scheme")
	}
}

func TestPlanWritesPlot(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	dir := t.TempDir()
	plot := filepath.Join(dir, "schedule.png")
	if _, err := run(t, "plan", "--config", filepath.Join(dir, "none.yaml"), "--kind", "binary", "--count", "30", "--plot", plot); err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if _, err := os.Stat(plot); err != nil {
		t.Fatalf("expected plot file: %v", err)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "tomoalign.yaml")
	out, err := run(t, "config", "init", path)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("expected path in output, got %q", out)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("written config invalid: %v", err)
	}

	out, err = run(t, "config", "show", "--config", path, "--log-level", "debug")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "logLevel: debug") {
		t.Fatalf("expected log level override, got:\n%s", out)
	}
}

func TestConfigShowRejectsInvalidLevel(t *testing.T) {
	_, err := run(t, "config", "show", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--log-level", "loud")
	if err == nil {
		t.Fatalf("expected error for invalid log level")
	}
}

func TestSimulate(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Processing.NumCores = 2
	cfg.TiltScheme.Min = -60
	cfg.TiltScheme.Max = 60
	cfg.TiltScheme.Step = 10
	cfg.Simulation.Size = 12
	cfg.Output.SavePlots = false
	cfg.Output.LogLevel = "error"
	path := filepath.Join(dir, "tomoalign.yaml")
	if err := config.SaveConfig(cfg, path); err != nil {
		t.Fatalf("save config: %v", err)
	}

	out, err := run(t, "simulate", "--config", path, "--stages", "xcorr,weighting", "--seed", "3")
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	for _, want := range []string{"13 projections", "Cross-correlation:", "Angular weights applied to 13", "Aligned:", "Recovered: threshold="} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Tilt-axis shift: ") {
		t.Errorf("shift stage should not have run:\n%s", out)
	}
}

func TestSimulateInjectsRotationAndBacklash(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Processing.NumCores = 2
	cfg.TiltScheme.Kind = "grs"
	cfg.TiltScheme.Min = -90
	cfg.TiltScheme.Max = 90
	cfg.TiltScheme.Count = 12
	cfg.Simulation.Phantom = "cube"
	cfg.Simulation.Size = 12
	cfg.Simulation.TiltAxisShift = 0
	cfg.Output.SavePlots = false
	cfg.Output.LogLevel = "error"
	path := filepath.Join(dir, "tomoalign.yaml")
	if err := config.SaveConfig(cfg, path); err != nil {
		t.Fatalf("save config: %v", err)
	}

	out, err := run(t, "simulate", "--config", path, "--stages", "backlash",
		"--tilt-rotation", "2", "--backlash", "1.5", "--padding", "2")
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	for _, want := range []string{"Injected tilt-axis rotation: +2.00 deg", "Injected angle error: up to 1.50 deg", "Backlash: "} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Alloying:") {
		t.Errorf("single-material phantom should not report alloying:\n%s", out)
	}
}

func TestSimulateRejectsUnknownStage(t *testing.T) {
	_, err := run(t, "simulate", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--stages", "denoise")
	if err == nil {
		t.Fatalf("expected error for unknown stage")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, Version) {
		t.Fatalf("expected version in output, got %q", out)
	}
}
