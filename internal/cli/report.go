package cli

import (
	"fmt"
	"io"
	"math"

	"tomoalign/pkg/config"
	"tomoalign/pkg/simulation"
)

func printAngles(w io.Writer, kind string, angles []float64) {
	fmt.Fprintf(w, "Tilt scheme: %s (%d angles)\n", kind, len(angles))
	for i, a := range angles {
		fmt.Fprintf(w, "%4d  %8.2f\n", i, a)
	}
}

func printSimulation(w io.Writer, cfg *config.Config, sim *simulation.Simulator) {
	m := sim.GetMetrics()
	report := sim.Report()

	fmt.Fprintf(w, "\nSimulation completed in %.2f seconds\n", m.Duration.Seconds())
	fmt.Fprintf(w, "Phantom: %s, %d voxels, %d projections\n",
		cfg.Simulation.Phantom, cfg.Simulation.Size, sim.Aligned().Len())
	fmt.Fprintf(w, "Injected tilt-axis shift: %+.2f px\n", m.InjectedAxisShift)
	fmt.Fprintf(w, "Injected tilt-axis rotation: %+.2f deg\n", m.InjectedAxisRotation)
	if m.InjectedAngleOffsets != nil {
		fmt.Fprintf(w, "Injected angle error: up to %.2f deg, rotations up to %.2f deg\n",
			maxAbs(m.InjectedAngleOffsets), maxAbs(m.InjectedRotations))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Alignment:\n")
	fmt.Fprintf(w, "==========\n")
	if report.Shifts != nil {
		rows, cols := sim.Aligned().Dims()
		var mismatched int
		for i, s := range report.Shifts {
			inj := m.InjectedShifts[i]
			if mod(s.Rows+inj.Rows, rows) != 0 || mod(s.Cols+inj.Cols, cols) != 0 {
				mismatched++
			}
		}
		fmt.Fprintf(w, "Cross-correlation: %d/%d shifts undo the injected translation\n",
			len(report.Shifts)-mismatched, len(report.Shifts))
	}
	if report.CenterOffset != nil {
		fmt.Fprintf(w, "Center of mass offset: (%.2f, %.2f) px\n", report.CenterOffset.Rows, report.CenterOffset.Cols)
	}
	if report.TiltShift != nil {
		fmt.Fprintf(w, "Tilt-axis shift: %+.2f px\n", report.TiltShift.Best)
	}
	if report.TiltRotation != nil {
		fmt.Fprintf(w, "Tilt-axis rotation: %+.2f deg\n", report.TiltRotation.Best)
	}
	if b := report.Backlash; b != nil {
		fmt.Fprintf(w, "Backlash: %+.3f deg over %d reversals (%s, %d evaluations)\n",
			b.Correction, len(b.Reversals), b.Method, b.Evaluations)
	}
	if report.Weights != nil {
		fmt.Fprintf(w, "Angular weights applied to %d projections\n", len(report.Weights))
	}

	fmt.Fprintf(w, "\nReconstruction quality (%s):\n", cfg.Reconstruction.Method)
	fmt.Fprintf(w, "==========================\n")
	fmt.Fprintf(w, "Unaligned: %s\n", m.Unaligned)
	fmt.Fprintf(w, "Aligned:   %s\n", m.Aligned)

	fmt.Fprintf(w, "\nParticle properties:\n")
	fmt.Fprintf(w, "====================\n")
	fmt.Fprintf(w, "Phantom:   %s\n", m.Phantom)
	fmt.Fprintf(w, "Recovered: %s\n", m.Recovered)
	if !math.IsNaN(m.Alloying) {
		fmt.Fprintf(w, "Alloying:  %.4f\n", m.Alloying)
	}

	if cfg.Output.SaveImages || cfg.Output.SavePlots {
		fmt.Fprintf(w, "\nOutputs saved to: %s\n", cfg.Output.Directory)
	}
}

func maxAbs(values []float64) float64 {
	var out float64
	for _, v := range values {
		out = math.Max(out, math.Abs(v))
	}
	return out
}

func mod(i, n int) int {
	return ((i % n) + n) % n
}
