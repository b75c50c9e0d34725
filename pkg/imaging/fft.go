// Package imaging holds the 2D numeric image primitives the alignment
// stages are built on: Fourier transforms, phase correlation and
// geometric resampling of projection images.
package imaging

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// Spectrum is a 2D complex array in row-major order, usually the Fourier
// transform of an image.
type Spectrum struct {
	Rows, Cols int
	Data       []complex128
}

// FFT2 performs a 2D Fast Fourier Transform of m. Rows are transformed
// first, then columns, both with gonum's complex FFT so any image size
// is accepted (not just powers of two).
func FFT2(m mat.Matrix) *Spectrum {
	rows, cols := m.Dims()
	s := &Spectrum{Rows: rows, Cols: cols, Data: make([]complex128, rows*cols)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			s.Data[r*cols+c] = complex(m.At(r, c), 0)
		}
	}
	s.transform(false)
	return s
}

// Inverse returns the real part of the inverse 2D transform, scaled so
// that FFT2(m).Inverse() reproduces m.
func (s *Spectrum) Inverse() *mat.Dense {
	c := &Spectrum{Rows: s.Rows, Cols: s.Cols, Data: append([]complex128(nil), s.Data...)}
	c.transform(true)
	out := mat.NewDense(s.Rows, s.Cols, nil)
	for r := 0; r < s.Rows; r++ {
		row := out.RawRowView(r)
		for col := range row {
			row[col] = real(c.Data[r*s.Cols+col])
		}
	}
	return out
}

// CrossPower returns the normalized cross-power spectrum s·conj(o)/|s·conj(o)|.
// Bins whose magnitude is negligible relative to the strongest bin are set
// to zero instead of being divided by (almost) nothing.
func (s *Spectrum) CrossPower(o *Spectrum) *Spectrum {
	out := &Spectrum{Rows: s.Rows, Cols: s.Cols, Data: make([]complex128, len(s.Data))}
	peak := 0.0
	for i := range s.Data {
		p := s.Data[i] * cmplx.Conj(o.Data[i])
		out.Data[i] = p
		if a := cmplx.Abs(p); a > peak {
			peak = a
		}
	}
	floor := peak * 1e-12
	for i, p := range out.Data {
		a := cmplx.Abs(p)
		if a <= floor {
			out.Data[i] = 0
			continue
		}
		out.Data[i] = p / complex(a, 0)
	}
	return out
}

// transform runs the separable 2D (inverse) FFT in place. gonum's
// transforms are unnormalized, so the inverse divides by rows*cols.
func (s *Spectrum) transform(inverse bool) {
	rowFFT := fourier.NewCmplxFFT(s.Cols)
	buf := make([]complex128, s.Cols)
	for r := 0; r < s.Rows; r++ {
		row := s.Data[r*s.Cols : (r+1)*s.Cols]
		if inverse {
			rowFFT.Sequence(buf, row)
		} else {
			rowFFT.Coefficients(buf, row)
		}
		copy(row, buf)
	}

	colFFT := fourier.NewCmplxFFT(s.Rows)
	col := make([]complex128, s.Rows)
	out := make([]complex128, s.Rows)
	for c := 0; c < s.Cols; c++ {
		for r := 0; r < s.Rows; r++ {
			col[r] = s.Data[r*s.Cols+c]
		}
		if inverse {
			colFFT.Sequence(out, col)
		} else {
			colFFT.Coefficients(out, col)
		}
		for r := 0; r < s.Rows; r++ {
			s.Data[r*s.Cols+c] = out[r]
		}
	}

	if inverse {
		scale := complex(1/float64(s.Rows*s.Cols), 0)
		for i := range s.Data {
			s.Data[i] *= scale
		}
	}
}
