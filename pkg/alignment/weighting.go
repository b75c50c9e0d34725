package alignment

import (
	"tomoalign/pkg/sinogram"
)

// WeightByAngle compensates non-uniform angular sampling. It sorts s by
// angle (permanently) and scales every projection by its share of the
// 180° arc: half the sum of its two neighbouring gaps, wrapping around
// at the ends. Weights are normalised so their mean is exactly 1.
func WeightByAngle(s *sinogram.Sinogram) (Result[[]float64], error) {
	if err := s.Validate(); err != nil {
		return Result[[]float64]{}, err
	}
	s.SortByAngle()
	weights := arcWeights(s.Angles)
	for i, img := range s.Images {
		if weights[i] != 1 {
			img.Scale(weights[i], img)
		}
	}
	return Result[[]float64]{Sinogram: s, Diagnostic: weights}, nil
}

// WeightByAngleCopy is WeightByAngle on a deep copy of s.
func WeightByAngleCopy(s *sinogram.Sinogram) (Result[[]float64], error) {
	return WeightByAngle(s.Clone())
}

// arcWeights computes normalised trapezoidal arc weights for ascending
// angles. The raw weights always sum to 180.
func arcWeights(sorted []float64) []float64 {
	n := len(sorted)
	weights := make([]float64, n)
	if n == 1 {
		weights[0] = 1
		return weights
	}
	a := make([]float64, n)
	for i, v := range sorted {
		a[i] = v + 90
	}
	for i := range a {
		switch i {
		case 0:
			weights[i] = 0.5 * (180 - a[n-1] + a[1])
		case n - 1:
			weights[i] = 0.5 * (180 - a[n-2] + a[0])
		default:
			weights[i] = 0.5 * ((a[i+1] - a[i]) + (a[i] - a[i-1]))
		}
	}
	ratio := 180 / float64(n)
	for i := range weights {
		weights[i] /= ratio
	}
	return weights
}
