package imaging

import (
	"gonum.org/v1/gonum/mat"
)

// PhaseCorrelate returns the integer (row, column) displacement that best
// maps moving back onto fixed: rolling moving by (dy, dx) aligns it with
// fixed. Both values lie in [0, rows) and [0, cols); callers wanting a
// signed shift wrap them themselves.
func PhaseCorrelate(fixed, moving mat.Matrix) (dy, dx int) {
	corr := FFT2(fixed).CrossPower(FFT2(moving)).Inverse()
	return ArgMax(corr)
}

// ArgMax returns the position of the largest element; ties resolve to
// the first position in row-major order.
func ArgMax(m *mat.Dense) (row, col int) {
	rows, cols := m.Dims()
	best := m.At(0, 0)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if v := m.At(r, c); v > best {
				best, row, col = v, r, c
			}
		}
	}
	return row, col
}

// CenterOfMass returns the intensity-weighted centroid (row, column) of m.
// ok is false when the total intensity is zero and no centroid exists.
func CenterOfMass(m mat.Matrix) (cy, cx float64, ok bool) {
	rows, cols := m.Dims()
	var total, sy, sx float64
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := m.At(r, c)
			total += v
			sy += v * float64(r)
			sx += v * float64(c)
		}
	}
	if total == 0 {
		return 0, 0, false
	}
	return sy / total, sx / total, true
}
