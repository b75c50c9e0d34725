package imaging

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Roll circularly shifts m by dy rows and dx columns: the value at (r, c)
// moves to ((r+dy) mod rows, (c+dx) mod cols).
func Roll(m mat.Matrix, dy, dx int) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		tr := wrap(r+dy, rows)
		for c := 0; c < cols; c++ {
			out.Set(tr, wrap(c+dx, cols), m.At(r, c))
		}
	}
	return out
}

// Shift translates m by a sub-pixel (dy, dx) using bilinear interpolation.
// Content leaving the canvas is lost and uncovered pixels become zero.
func Shift(m mat.Matrix, dy, dx float64) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.Set(r, c, Bilinear(m, float64(r)-dy, float64(c)-dx))
		}
	}
	return out
}

// Rotate rotates m by deg degrees about the image center, counter-clockwise
// as displayed (rows growing downward). The canvas keeps its size: corners
// rotated out of view are clipped and uncovered pixels become zero.
func Rotate(m mat.Matrix, deg float64) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	if deg == 0 {
		out.Copy(m)
		return out
	}
	sin, cos := math.Sincos(deg * math.Pi / 180)
	cy, cx := float64(rows-1)/2, float64(cols-1)/2
	for r := 0; r < rows; r++ {
		y := float64(r) - cy
		for c := 0; c < cols; c++ {
			x := float64(c) - cx
			sx := cos*x - sin*y
			sy := sin*x + cos*y
			out.Set(r, c, Bilinear(m, sy+cy, sx+cx))
		}
	}
	return out
}

// Bilinear samples m at the fractional position (y, x). Neighbours outside
// the image count as zero.
func Bilinear(m mat.Matrix, y, x float64) float64 {
	rows, cols := m.Dims()
	y0, x0 := math.Floor(y), math.Floor(x)
	fy, fx := y-y0, x-x0
	r0, c0 := int(y0), int(x0)

	at := func(r, c int) float64 {
		if r < 0 || r >= rows || c < 0 || c >= cols {
			return 0
		}
		return m.At(r, c)
	}

	v := (1 - fy) * (1 - fx) * at(r0, c0)
	if fx != 0 {
		v += (1 - fy) * fx * at(r0, c0+1)
	}
	if fy != 0 {
		v += fy * (1 - fx) * at(r0+1, c0)
		if fx != 0 {
			v += fy * fx * at(r0+1, c0+1)
		}
	}
	return v
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
