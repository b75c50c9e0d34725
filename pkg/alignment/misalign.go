package alignment

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"tomoalign/pkg/imaging"
	"tomoalign/pkg/sinogram"
)

// InjectTranslation rolls every projection but the first by a random
// integer shift of up to maxFraction of the image size along each axis
// and returns the shifts applied. It is the synthetic counterpart of
// AlignCrossCorrelation.
func InjectTranslation(s *sinogram.Sinogram, maxFraction float64, rng *rand.Rand) []Shift {
	rows, cols := s.Dims()
	shifts := make([]Shift, s.Len())
	for i := 1; i < s.Len(); i++ {
		shifts[i] = Shift{
			Rows: int(math.Round(float64(rows) * uniform(rng, maxFraction))),
			Cols: int(math.Round(float64(cols) * uniform(rng, maxFraction))),
		}
		s.Images[i] = imaging.Roll(s.Images[i], shifts[i].Rows, shifts[i].Cols)
	}
	return shifts
}

// InjectTranslationCopy is InjectTranslation on a deep copy of s.
func InjectTranslationCopy(s *sinogram.Sinogram, maxFraction float64, rng *rand.Rand) Result[[]Shift] {
	c := s.Clone()
	return Result[[]Shift]{Sinogram: c, Diagnostic: InjectTranslation(c, maxFraction, rng)}
}

// RotationMisalignment records what InjectRotation did.
type RotationMisalignment struct {
	// Rotations holds the in-plane rotation of each projection in degrees.
	Rotations []float64

	// OriginalAngles are the tilt angles before offsets were added.
	OriginalAngles []float64
}

// RotationOptions configures InjectRotation.
type RotationOptions struct {
	// MaxTheta bounds the in-plane rotation per projection (degrees).
	MaxTheta float64

	// MaxAlpha bounds the random tilt-angle error per projection (degrees).
	MaxAlpha float64

	// Backlash is added to the angle error of projections acquired after
	// a direction change: decreasing angles when Backwards is set,
	// increasing angles otherwise.
	Backlash  float64
	Backwards bool
}

// DefaultRotationOptions are 3° rotations, 2° angle errors and 0.5°
// backlash on backward moves.
func DefaultRotationOptions() RotationOptions {
	return RotationOptions{MaxTheta: 3, MaxAlpha: 2, Backlash: 0.5, Backwards: true}
}

// InjectRotation rotates every projection in-plane by a random angle and
// perturbs its recorded tilt angle, adding a backlash term on moves in
// the configured direction.
func InjectRotation(s *sinogram.Sinogram, opts RotationOptions, rng *rand.Rand) RotationMisalignment {
	m := RotationMisalignment{
		Rotations:      make([]float64, s.Len()),
		OriginalAngles: append([]float64(nil), s.Angles...),
	}
	for i, img := range s.Images {
		m.Rotations[i] = opts.MaxTheta * uniform(rng, 1)
		s.Images[i] = imaging.Rotate(img, m.Rotations[i])
	}
	for i := range s.Angles {
		offset := opts.MaxAlpha * uniform(rng, 1)
		if i > 0 {
			prev, cur := m.OriginalAngles[i-1], m.OriginalAngles[i]
			if (opts.Backwards && cur < prev) || (!opts.Backwards && cur > prev) {
				offset += opts.Backlash
			}
		}
		s.Angles[i] += offset
	}
	return m
}

// InjectRotationCopy is InjectRotation on a deep copy of s.
func InjectRotationCopy(s *sinogram.Sinogram, opts RotationOptions, rng *rand.Rand) Result[RotationMisalignment] {
	c := s.Clone()
	return Result[RotationMisalignment]{Sinogram: c, Diagnostic: InjectRotation(c, opts, rng)}
}

// Blur smooths every projection in-plane with a Gaussian of the given
// sigma in pixels.
func Blur(s *sinogram.Sinogram, sigma float64) {
	for i, img := range s.Images {
		s.Images[i] = imaging.GaussianBlur(img, sigma)
	}
}

// BlurCopy is Blur on a deep copy of s.
func BlurCopy(s *sinogram.Sinogram, sigma float64) *sinogram.Sinogram {
	c := s.Clone()
	Blur(c, sigma)
	return c
}

// AddPoissonNoise replaces every pixel v by a Poisson draw with mean
// v·scale, simulating a dose of scale counts per unit intensity. Pixels
// at or below zero become zero.
func AddPoissonNoise(s *sinogram.Sinogram, scale float64, rng *rand.Rand) error {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: poisson scale %g", sinogram.ErrDegenerateRange, scale)
	}
	for _, img := range s.Images {
		data := img.RawMatrix()
		for r := 0; r < data.Rows; r++ {
			row := data.Data[r*data.Stride : r*data.Stride+data.Cols]
			for c, v := range row {
				lambda := v * scale
				if !(lambda > 0) {
					row[c] = 0
					continue
				}
				row[c] = distuv.Poisson{Lambda: lambda, Src: rng}.Rand()
			}
		}
	}
	return nil
}

// AddPoissonNoiseCopy is AddPoissonNoise on a deep copy of s.
func AddPoissonNoiseCopy(s *sinogram.Sinogram, scale float64, rng *rand.Rand) (*sinogram.Sinogram, error) {
	c := s.Clone()
	return c, AddPoissonNoise(c, scale, rng)
}

// uniform draws from [-limit, limit).
func uniform(rng *rand.Rand, limit float64) float64 {
	return limit * (2*rng.Float64() - 1)
}
