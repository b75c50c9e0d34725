package visualization

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"tomoalign/pkg/alignment"
)

// ErrNothingToPlot is returned when a chart would have no finite points.
var ErrNothingToPlot = errors.New("visualization: nothing to plot")

var (
	seriesColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	bestColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	altColor    = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// PlotSearch draws the score of every grid-search candidate and marks the
// winner. Non-finite scores are left out.
func PlotSearch(c alignment.Calibration, title, xLabel, filename string) error {
	if len(c.Scores) == 0 {
		return fmt.Errorf("%w: calibration has no scores", ErrNothingToPlot)
	}
	pts := make(plotter.XYs, 0, len(c.Scores))
	best := make(plotter.XYs, 0, 1)
	for i, s := range c.Scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: c.Candidates[i], Y: s})
		if c.Candidates[i] == c.Best && len(best) == 0 {
			best = append(best, plotter.XY{X: c.Best, Y: s})
		}
	}
	if len(pts) == 0 {
		return fmt.Errorf("%w: no finite scores", ErrNothingToPlot)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "reprojection MSE"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create score line: %w", err)
	}
	line.Color = seriesColor
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("score", line)

	if len(best) > 0 {
		marker, err := plotter.NewScatter(best)
		if err != nil {
			return fmt.Errorf("failed to create best marker: %w", err)
		}
		marker.GlyphStyle.Color = bestColor
		marker.GlyphStyle.Radius = vg.Points(4)
		p.Add(marker)
		p.Legend.Add(fmt.Sprintf("best %g", c.Best), marker)
	}

	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return save(p, 8*vg.Inch, 5*vg.Inch, filename)
}

// PlotAngles draws a tilt schedule: tilt angle against acquisition index.
func PlotAngles(angles []float64, title, filename string) error {
	if len(angles) == 0 {
		return fmt.Errorf("%w: no angles", ErrNothingToPlot)
	}
	pts := make(plotter.XYs, len(angles))
	for i, a := range angles {
		pts[i] = plotter.XY{X: float64(i), Y: a}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "acquisition index"
	p.Y.Label.Text = "tilt angle (deg)"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create schedule line: %w", err)
	}
	line.Color = seriesColor
	line.Width = vg.Points(0.5)
	p.Add(line)

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to create schedule points: %w", err)
	}
	scatter.GlyphStyle.Color = seriesColor
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(scatter)

	return save(p, 10*vg.Inch, 4*vg.Inch, filename)
}

// PlotShifts draws the per-projection translation found by cross
// correlation against tilt angle.
func PlotShifts(shifts []alignment.Shift, angles []float64, filename string) error {
	if len(shifts) == 0 {
		return fmt.Errorf("%w: no shifts", ErrNothingToPlot)
	}
	if len(shifts) != len(angles) {
		return fmt.Errorf("visualization: %d shifts for %d angles", len(shifts), len(angles))
	}
	rows := make(plotter.XYs, len(shifts))
	cols := make(plotter.XYs, len(shifts))
	for i, s := range shifts {
		rows[i] = plotter.XY{X: angles[i], Y: float64(s.Rows)}
		cols[i] = plotter.XY{X: angles[i], Y: float64(s.Cols)}
	}

	p := plot.New()
	p.Title.Text = "Cross-correlation shifts"
	p.X.Label.Text = "tilt angle (deg)"
	p.Y.Label.Text = "shift (px)"
	p.Add(plotter.NewGrid())

	for _, series := range []struct {
		name string
		pts  plotter.XYs
		c    color.Color
	}{
		{"rows", rows, seriesColor},
		{"cols", cols, altColor},
	} {
		s, err := plotter.NewScatter(series.pts)
		if err != nil {
			return fmt.Errorf("failed to create %s series: %w", series.name, err)
		}
		s.GlyphStyle.Color = series.c
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add(series.name, s)
	}

	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return save(p, 8*vg.Inch, 5*vg.Inch, filename)
}

func save(p *plot.Plot, w, h vg.Length, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.Save(w, h, filename); err != nil {
		return fmt.Errorf("failed to save %s: %w", filename, err)
	}
	return nil
}
