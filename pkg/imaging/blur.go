package imaging

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// GaussianBlur smooths m with a separable Gaussian of standard deviation
// sigma pixels. The kernel is truncated at 4 sigma and edges are mirrored
// (d c b a | a b c d). A non-positive sigma returns a copy.
func GaussianBlur(m mat.Matrix, sigma float64) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.DenseCopyOf(m)
	if sigma <= 0 {
		return out
	}
	kernel := gaussianKernel(sigma)

	line := make([]float64, max(rows, cols))
	for r := 0; r < rows; r++ {
		row := out.RawRowView(r)
		copy(line, row)
		convolve(row, line[:cols], kernel)
	}
	col := make([]float64, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			line[r] = out.At(r, c)
		}
		convolve(col, line[:rows], kernel)
		out.SetCol(c, col)
	}
	return out
}

// GaussianSmooth is the one-dimensional GaussianBlur of values.
func GaussianSmooth(values []float64, sigma float64) []float64 {
	out := append([]float64(nil), values...)
	if sigma <= 0 || len(values) == 0 {
		return out
	}
	convolve(out, values, gaussianKernel(sigma))
	return out
}

// gaussianKernel returns a normalised kernel of radius round(4·sigma).
func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	for i := range k {
		x := float64(i - radius)
		k[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

func convolve(dst, src, kernel []float64) {
	radius := len(kernel) / 2
	n := len(src)
	for i := range dst {
		var v float64
		for j, w := range kernel {
			v += w * src[mirror(i+j-radius, n)]
		}
		dst[i] = v
	}
}

// mirror reflects an out-of-range index about the half-sample edge.
func mirror(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
