package quality

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tomoalign/pkg/sinogram"
	"tomoalign/pkg/tomography"
)

// Properties describes the particle segmented from a volume by a global
// threshold.
type Properties struct {
	Threshold float64

	// Volume is in PixelSize³ units and SurfaceArea in PixelSize² units.
	Volume      float64
	SurfaceArea float64

	// SurfaceToVolume is NaN when nothing lies above the threshold.
	SurfaceToVolume float64
}

func (p Properties) String() string {
	return fmt.Sprintf("threshold=%.4f volume=%.1f surface=%.1f S/V=%.4f",
		p.Threshold, p.Volume, p.SurfaceArea, p.SurfaceToVolume)
}

// OtsuThreshold splits a 256-bin histogram of values where the
// between-class variance is largest and returns the upper edge of the
// lower class, so every value of that class is at or below it. Constant
// input has no threshold.
func OtsuThreshold(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, sinogram.ErrEmpty
	}
	lo, hi := floats.Min(values), floats.Max(values)
	if hi <= lo {
		return 0, fmt.Errorf("%w: constant volume %g", sinogram.ErrDegenerateRange, lo)
	}
	const bins = 256
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sortedCopy(values), nil)

	width := (hi - lo) / bins
	moments := make([]float64, bins)
	for i := range moments {
		moments[i] = counts[i] * (lo + (float64(i)+0.5)*width)
	}

	// class 1 holds bins [0, i], class 2 holds bins (i, bins)
	w1 := floats.CumSum(make([]float64, bins), counts)
	m1 := floats.CumSum(make([]float64, bins), moments)
	total, totalMoment := w1[bins-1], m1[bins-1]
	between := make([]float64, bins-1)
	for i := range between {
		w2 := total - w1[i]
		if w1[i] == 0 || w2 == 0 {
			continue
		}
		d := m1[i]/w1[i] - (totalMoment-m1[i])/w2
		between[i] = w1[i] * w2 * d * d
	}
	return dividers[floats.MaxIdx(between)+1], nil
}

// Measure segments vol at threshold, or at its Otsu threshold when
// threshold is zero, and measures the segmented particle. Surface voxels
// are those whose 3×3×3 block is partly but not wholly inside the
// particle, on either side of its boundary.
func Measure(vol *tomography.Volume, threshold float64) (Properties, error) {
	voxels := vol.Voxels()
	if len(voxels) == 0 {
		return Properties{}, sinogram.ErrEmpty
	}
	if threshold == 0 {
		t, err := OtsuThreshold(voxels)
		if err != nil {
			return Properties{}, err
		}
		threshold = t
	}

	var inside, surface int
	for _, v := range voxels {
		if v > threshold {
			inside++
		}
	}
	for _, n := range vol.Neighbours(func(v float64) bool { return v > threshold }) {
		if n > 0 && n < 27 {
			surface++
		}
	}

	px := vol.PixelSize
	p := Properties{
		Threshold:       threshold,
		Volume:          float64(inside) * px * px * px,
		SurfaceArea:     float64(surface) * px * px,
		SurfaceToVolume: math.NaN(),
	}
	if inside > 0 {
		p.SurfaceToVolume = p.SurfaceArea / p.Volume
	}
	return p, nil
}

// Alloying measures how far vol has mixed two materials relative to
// reference. reference holds materialA and materialB voxels on a zero
// background; its fully homogenised counterpart replaces every nonzero
// voxel by the mean of the material voxels. The result is 0 for a volume
// as segregated as reference and 1 for one as flat as the homogenised
// particle, judged by the population standard deviation.
func Alloying(vol, reference *tomography.Volume, materialA, materialB float64) (float64, error) {
	x, ref := vol.Voxels(), reference.Voxels()
	if len(x) != len(ref) {
		return 0, fmt.Errorf("%w: %d vs %d voxels", sinogram.ErrShapeMismatch, len(x), len(ref))
	}
	if len(x) == 0 {
		return 0, sinogram.ErrEmpty
	}

	var sum float64
	var count int
	for _, v := range ref {
		if isClose(v, materialA) || isClose(v, materialB) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: reference holds neither %g nor %g", sinogram.ErrDegenerateRange, materialA, materialB)
	}
	mean := sum / float64(count)
	homogenised := make([]float64, len(ref))
	for i, v := range ref {
		if v > 0 {
			homogenised[i] = mean
		}
	}

	_, stdRef := stat.PopMeanStdDev(ref, nil)
	_, stdHom := stat.PopMeanStdDev(homogenised, nil)
	_, stdVol := stat.PopMeanStdDev(x, nil)
	if stdHom == stdRef {
		return 0, fmt.Errorf("%w: reference is already homogeneous", sinogram.ErrDegenerateRange)
	}
	return (stdVol - stdRef) / (stdHom - stdRef), nil
}

// Materials returns the distinct nonzero values of vol in ascending order.
func Materials(vol *tomography.Volume) []float64 {
	var out []float64
	for _, v := range sortedCopy(vol.Voxels()) {
		if v != 0 && (len(out) == 0 || v != out[len(out)-1]) {
			out = append(out, v)
		}
	}
	return out
}

func isClose(a, b float64) bool {
	return floats.EqualWithinAbsOrRel(a, b, 1e-8, 1e-5)
}
