// Package quality scores reconstructions and projections against a
// reference. All metrics take two equally shaped matrices; a shape
// mismatch is reported as sinogram.ErrShapeMismatch.
package quality

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"tomoalign/pkg/sinogram"
	"tomoalign/pkg/tomography"
)

// Report holds the full set of quality metrics for one comparison.
type Report struct {
	// SSIM is the mean windowed structural similarity in [-1, 1].
	SSIM float64

	// PSNR is the peak signal to noise ratio in dB.
	PSNR float64

	// RMSE and MAE are reported in percent of the intensity unit.
	RMSE float64
	MAE  float64

	// MI is the Gaussian mutual information approximation.
	MI float64

	// EntropyDiff is the absolute Shannon entropy difference in bits.
	EntropyDiff float64
}

func (r Report) String() string {
	return fmt.Sprintf("SSIM=%.4f PSNR=%.2fdB RMSE=%.3f%% MAE=%.3f%% MI=%.4f ΔH=%.4f",
		r.SSIM, r.PSNR, r.RMSE, r.MAE, r.MI, r.EntropyDiff)
}

// Compare computes every metric of image against reference.
func Compare(image, reference mat.Matrix) (Report, error) {
	x, y, err := flatten(image, reference)
	if err != nil {
		return Report{}, err
	}
	ssim, err := SSIM(image, reference)
	if err != nil {
		return Report{}, err
	}
	return Report{
		SSIM:        ssim,
		PSNR:        psnr(x, y, dataRange(x)),
		RMSE:        math.Sqrt(mse(x, y)) * 100,
		MAE:         mae(x, y) * 100,
		MI:          mutualInformation(x, y),
		EntropyDiff: math.Abs(Entropy(x) - Entropy(y)),
	}, nil
}

// CompareVolumes averages Compare over corresponding slices.
func CompareVolumes(volume, reference *tomography.Volume) (Report, error) {
	if len(volume.Slices) != len(reference.Slices) {
		return Report{}, fmt.Errorf("%w: %d vs %d slices", sinogram.ErrShapeMismatch,
			len(volume.Slices), len(reference.Slices))
	}
	if len(volume.Slices) == 0 {
		return Report{}, sinogram.ErrEmpty
	}
	var sum Report
	for i := range volume.Slices {
		r, err := Compare(volume.Slices[i], reference.Slices[i])
		if err != nil {
			return Report{}, fmt.Errorf("slice %d: %w", i, err)
		}
		sum.SSIM += r.SSIM
		sum.PSNR += r.PSNR
		sum.RMSE += r.RMSE
		sum.MAE += r.MAE
		sum.MI += r.MI
		sum.EntropyDiff += r.EntropyDiff
	}
	n := float64(len(volume.Slices))
	return Report{
		SSIM:        sum.SSIM / n,
		PSNR:        sum.PSNR / n,
		RMSE:        sum.RMSE / n,
		MAE:         sum.MAE / n,
		MI:          sum.MI / n,
		EntropyDiff: sum.EntropyDiff / n,
	}, nil
}

// MSE is the mean squared difference.
func MSE(a, b mat.Matrix) (float64, error) {
	x, y, err := flatten(a, b)
	if err != nil {
		return 0, err
	}
	return mse(x, y), nil
}

// RMSE is the square root of MSE.
func RMSE(a, b mat.Matrix) (float64, error) {
	v, err := MSE(a, b)
	return math.Sqrt(v), err
}

// MAE is the mean absolute difference.
func MAE(a, b mat.Matrix) (float64, error) {
	x, y, err := flatten(a, b)
	if err != nil {
		return 0, err
	}
	return mae(x, y), nil
}

// PSNR is 10·log10(range²/MSE). The data range is 1 for data inside
// [0, 1] and the observed max-min of image otherwise. Identical inputs
// give +Inf.
func PSNR(image, reference mat.Matrix) (float64, error) {
	x, y, err := flatten(image, reference)
	if err != nil {
		return 0, err
	}
	return psnr(x, y, dataRange(x)), nil
}

// SNR is 10·log10(mean²/variance) of a single image.
func SNR(image mat.Matrix) float64 {
	x := flat(image)
	mean, std := stat.PopMeanStdDev(x, nil)
	return 10 * math.Log10(mean*mean/(std*std))
}

// Correlation is the Pearson correlation of the two images.
func Correlation(a, b mat.Matrix) (float64, error) {
	x, y, err := flatten(a, b)
	if err != nil {
		return 0, err
	}
	return stat.Correlation(x, y, nil), nil
}

// SinogramMSE is the MSE over every projection of two sinograms of equal
// length and shape.
func SinogramMSE(a, b *sinogram.Sinogram) (float64, error) {
	if a.Len() != b.Len() {
		return 0, fmt.Errorf("%w: %d vs %d projections", sinogram.ErrLengthMismatch, a.Len(), b.Len())
	}
	if a.Len() == 0 {
		return 0, sinogram.ErrEmpty
	}
	var sum float64
	for i := range a.Images {
		v, err := MSE(a.Images[i], b.Images[i])
		if err != nil {
			return 0, fmt.Errorf("projection %d: %w", i, err)
		}
		sum += v
	}
	return sum / float64(a.Len()), nil
}

func mse(x, y []float64) float64 {
	var sum float64
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum / float64(len(x))
}

func mae(x, y []float64) float64 {
	var sum float64
	for i := range x {
		sum += math.Abs(x[i] - y[i])
	}
	return sum / float64(len(x))
}

func psnr(x, y []float64, dr float64) float64 {
	return 10 * math.Log10(dr*dr/mse(x, y))
}

func dataRange(x []float64) float64 {
	hi := floats.Max(x)
	if hi <= 1 {
		return 1
	}
	return hi - floats.Min(x)
}

// mutualInformation uses the bivariate Gaussian approximation
// MI = ½·log(σx²σy² / (σx²σy² - σxy²)).
func mutualInformation(x, y []float64) float64 {
	vx := stat.Variance(x, nil)
	vy := stat.Variance(y, nil)
	cxy := stat.Covariance(x, y, nil)
	if vx <= 0 || vy <= 0 {
		return 0
	}
	det := vx*vy - cxy*cxy
	if det <= 0 {
		return math.Inf(1)
	}
	return 0.5 * math.Log(vx*vy/det)
}

// Entropy is the Shannon entropy in bits of a 256-bin histogram of x.
func Entropy(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	lo, hi := floats.Min(x), floats.Max(x)
	if hi <= lo {
		return 0
	}
	const bins = 256
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	// Histogram includes the upper edge only if it is strictly below the last divider.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sortedCopy(x), nil)
	floats.Scale(1/float64(len(x)), counts)
	return stat.Entropy(counts) / math.Ln2
}

func flat(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}

func flatten(a, b mat.Matrix) (x, y []float64, err error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return nil, nil, fmt.Errorf("%w: %dx%d vs %dx%d", sinogram.ErrShapeMismatch, ar, ac, br, bc)
	}
	if ar*ac == 0 {
		return nil, nil, sinogram.ErrEmpty
	}
	return flat(a), flat(b), nil
}

func sortedCopy(x []float64) []float64 {
	out := append([]float64(nil), x...)
	sort.Float64s(out)
	return out
}
