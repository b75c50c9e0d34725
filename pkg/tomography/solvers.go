package tomography

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Each solver reconstructs one slice from its sinogram rows (angles×size,
// row-major) and returns the size×size slice.

func backProject(g *geometry, sino []float64, _ int) []float64 {
	slice := make([]float64, g.size*g.size)
	g.back(sino, slice)
	floats.Scale(1/float64(len(g.cos)), slice)
	return slice
}

// filteredBackProject applies the Ram-Lak filter to every projection row
// and back-projects with the π/N quadrature weight.
func filteredBackProject(g *geometry, sino []float64, _ int) []float64 {
	n := g.size
	filtered := make([]float64, len(sino))
	ramp := newRampFilter(n)
	for a := range g.cos {
		ramp.apply(filtered[a*n:(a+1)*n], sino[a*n:(a+1)*n])
	}
	slice := make([]float64, n*n)
	g.back(filtered, slice)
	floats.Scale(math.Pi/float64(len(g.cos)), slice)
	return slice
}

// rampFilter convolves rows with the spatial Ram-Lak kernel through a
// zero-padded FFT so the circular convolution equals the linear one.
type rampFilter struct {
	n      int
	fft    *fourier.FFT
	kernel []complex128
	padded []float64
	coeff  []complex128
}

func newRampFilter(n int) *rampFilter {
	p := 2 * n
	h := make([]float64, p)
	h[0] = 0.25
	for k := 1; k <= p/2; k++ {
		if k%2 == 1 {
			v := -1 / (math.Pi * math.Pi * float64(k*k))
			h[k] = v
			h[p-k] = v
		}
	}
	fft := fourier.NewFFT(p)
	return &rampFilter{
		n:      n,
		fft:    fft,
		kernel: fft.Coefficients(nil, h),
		padded: make([]float64, p),
		coeff:  make([]complex128, p/2+1),
	}
}

func (r *rampFilter) apply(dst, row []float64) {
	for i := range r.padded {
		r.padded[i] = 0
	}
	copy(r.padded, row)
	r.fft.Coefficients(r.coeff, r.padded)
	for i := range r.coeff {
		r.coeff[i] *= r.kernel[i]
	}
	r.fft.Sequence(r.padded, r.coeff)
	scale := 1 / float64(len(r.padded))
	for i := 0; i < r.n; i++ {
		dst[i] = r.padded[i] * scale
	}
}

// inverseSums returns 1/(A·1) and 1/(Aᵀ·1) with zeros where the sums vanish.
func inverseSums(g *geometry) (rowInv, colInv []float64) {
	n := g.size
	ones := make([]float64, n*n)
	for i := range ones {
		ones[i] = 1
	}
	rowInv = make([]float64, len(g.cos)*n)
	g.forward(ones, rowInv)
	invert(rowInv)

	onesSino := make([]float64, len(g.cos)*n)
	for i := range onesSino {
		onesSino[i] = 1
	}
	colInv = make([]float64, n*n)
	g.back(onesSino, colInv)
	invert(colInv)
	return rowInv, colInv
}

func invert(v []float64) {
	for i, x := range v {
		if x > 1e-12 {
			v[i] = 1 / x
		} else {
			v[i] = 0
		}
	}
}

func clampNonNegative(v []float64) {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
}

// sirt runs the simultaneous iterative reconstruction technique with a
// non-negativity constraint.
func sirt(g *geometry, sino []float64, iterations int) []float64 {
	n := g.size
	rowInv, colInv := inverseSums(g)
	x := make([]float64, n*n)
	proj := make([]float64, len(sino))
	update := make([]float64, n*n)
	for it := 0; it < iterations; it++ {
		g.forward(x, proj)
		floats.SubTo(proj, sino, proj)
		floats.Mul(proj, rowInv)
		g.back(proj, update)
		floats.Mul(update, colInv)
		floats.Add(x, update)
		clampNonNegative(x)
	}
	return x
}

// sart updates the slice one projection at a time, cycling through the
// angles in acquisition order; one iteration is one projection.
func sart(g *geometry, sino []float64, iterations int) []float64 {
	n := g.size
	x := make([]float64, n*n)
	ones := make([]float64, n*n)
	for i := range ones {
		ones[i] = 1
	}

	single := make([]*geometry, len(g.cos))
	rowInv := make([][]float64, len(g.cos))
	colInv := make([][]float64, len(g.cos))
	for a := range g.cos {
		ga := &geometry{size: n, center: g.center, cos: g.cos[a : a+1], sin: g.sin[a : a+1]}
		single[a] = ga
		rowInv[a], colInv[a] = inverseSums(ga)
	}

	proj := make([]float64, n)
	update := make([]float64, n*n)
	for it := 0; it < iterations; it++ {
		a := it % len(g.cos)
		ga := single[a]
		ga.forward(x, proj)
		floats.SubTo(proj, sino[a*n:(a+1)*n], proj)
		floats.Mul(proj, rowInv[a])
		ga.back(proj, update)
		floats.Mul(update, colInv[a])
		floats.Add(x, update)
		clampNonNegative(x)
	}
	return x
}

// cgls runs conjugate gradient least squares on the normal equations.
func cgls(g *geometry, sino []float64, iterations int) []float64 {
	n := g.size
	x := make([]float64, n*n)
	r := append([]float64(nil), sino...)
	s := make([]float64, n*n)
	g.back(r, s)
	p := append([]float64(nil), s...)
	q := make([]float64, len(sino))
	gamma := floats.Dot(s, s)

	for it := 0; it < iterations && gamma > 0; it++ {
		g.forward(p, q)
		qq := floats.Dot(q, q)
		if qq == 0 {
			break
		}
		alpha := gamma / qq
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, q)
		g.back(r, s)
		next := floats.Dot(s, s)
		beta := next / gamma
		gamma = next
		floats.AddScaledTo(p, s, beta, p)
	}
	return x
}
