package quality

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
)

// SSIM is the mean structural similarity over every 7×7 window that lies
// fully inside the images, using sample statistics per window. Images
// smaller than the window use the largest odd window that fits; below
// 3×3 the whole image is one window.
func SSIM(image, reference mat.Matrix) (float64, error) {
	x, y, err := flatten(image, reference)
	if err != nil {
		return 0, err
	}
	rows, cols := image.Dims()
	dr := dataRange(x)
	c1 := (ssimK1 * dr) * (ssimK1 * dr)
	c2 := (ssimK2 * dr) * (ssimK2 * dr)

	win := min(ssimWindow, rows, cols)
	if win%2 == 0 {
		win--
	}
	if win < 3 {
		return globalSSIM(x, y, c1, c2), nil
	}

	np := float64(win * win)
	norm := np / (np - 1)
	var total float64
	var count int
	for r := 0; r+win <= rows; r++ {
		for c := 0; c+win <= cols; c++ {
			var sx, sy, sxx, syy, sxy float64
			for i := r; i < r+win; i++ {
				for j := c; j < c+win; j++ {
					a, b := x[i*cols+j], y[i*cols+j]
					sx += a
					sy += b
					sxx += a * a
					syy += b * b
					sxy += a * b
				}
			}
			ux, uy := sx/np, sy/np
			vx := norm * (sxx/np - ux*ux)
			vy := norm * (syy/np - uy*uy)
			vxy := norm * (sxy/np - ux*uy)
			total += ((2*ux*uy + c1) * (2*vxy + c2)) /
				((ux*ux + uy*uy + c1) * (vx + vy + c2))
			count++
		}
	}
	return total / float64(count), nil
}

// GlobalSSIM treats each image as a single window.
func GlobalSSIM(image, reference mat.Matrix) (float64, error) {
	x, y, err := flatten(image, reference)
	if err != nil {
		return 0, err
	}
	dr := dataRange(x)
	return globalSSIM(x, y, (ssimK1*dr)*(ssimK1*dr), (ssimK2*dr)*(ssimK2*dr)), nil
}

func globalSSIM(x, y []float64, c1, c2 float64) float64 {
	muX := stat.Mean(x, nil)
	muY := stat.Mean(y, nil)
	sigmaX := stat.Variance(x, nil)
	sigmaY := stat.Variance(y, nil)
	sigmaXY := stat.Covariance(x, y, nil)
	if len(x) < 2 {
		sigmaX, sigmaY, sigmaXY = 0, 0, 0
	}

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	if den > 0 {
		return num / den
	}
	return 0
}
