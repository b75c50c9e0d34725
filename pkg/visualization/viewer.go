// Package visualization renders tilt series and reconstructed volumes as
// 16-bit grayscale PNG images and draws alignment diagnostics with
// gonum/plot.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"tomoalign/pkg/sinogram"
	"tomoalign/pkg/tomography"
)

// Viewer extracts orthogonal slices from a reconstructed volume. Voxel
// values are windowed to the volume's own [min, max] range.
type Viewer struct {
	volume *tomography.Volume

	// dimensions of the volume
	depth int
	size  int

	lo, hi float64
}

// NewViewer creates a viewer over vol. The volume is not copied.
func NewViewer(vol *tomography.Volume) *Viewer {
	depth, size := vol.Dims()
	v := &Viewer{volume: vol, depth: depth, size: size}
	v.lo, v.hi = math.Inf(1), math.Inf(-1)
	for _, s := range vol.Slices {
		v.lo = math.Min(v.lo, mat.Min(s))
		v.hi = math.Max(v.hi, mat.Max(s))
	}
	return v
}

// ExtractSlice extracts a 2D slice along the specified axis. Axis "z"
// selects a reconstructed slice (one detector row), "y" and "x" cut
// across slices.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16

	switch axis {
	case "x", "X":
		if position >= v.size {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.size)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.size))
		for z, s := range v.volume.Slices {
			for y := 0; y < v.size; y++ {
				img.SetGray16(z, y, v.gray(s.At(y, position)))
			}
		}

	case "y", "Y":
		if position >= v.size {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.size)
		}
		img = image.NewGray16(image.Rect(0, 0, v.size, v.depth))
		for z, s := range v.volume.Slices {
			for x := 0; x < v.size; x++ {
				img.SetGray16(x, z, v.gray(s.At(position, x)))
			}
		}

	case "z", "Z":
		if position >= v.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.depth)
		}
		img = image.NewGray16(image.Rect(0, 0, v.size, v.size))
		s := v.volume.Slices[position]
		for y := 0; y < v.size; y++ {
			for x := 0; x < v.size; x++ {
				img.SetGray16(x, y, v.gray(s.At(y, x)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

func (v *Viewer) gray(value float64) color.Gray16 {
	return toGray16(value, v.lo, v.hi)
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	var maxPos int
	switch axis {
	case "x", "X", "y", "Y":
		maxPos = v.size
	case "z", "Z":
		maxPos = v.depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := SaveImage(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// ProjectionImage renders one projection windowed to its own range.
func ProjectionImage(m mat.Matrix) image.Image {
	rows, cols := m.Dims()
	lo, hi := math.Inf(1), math.Inf(-1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			lo = math.Min(lo, m.At(r, c))
			hi = math.Max(hi, m.At(r, c))
		}
	}
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			img.SetGray16(c, r, toGray16(m.At(r, c), lo, hi))
		}
	}
	return img
}

// SaveProjections writes every projection of s to outputDir, named by
// index and tilt angle.
func SaveProjections(s *sinogram.Sinogram, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	for i, m := range s.Images {
		filename := filepath.Join(outputDir, fmt.Sprintf("projection_%03d_%+06.1f.png", i, s.Angles[i]))
		if err := SaveImage(ProjectionImage(m), filename); err != nil {
			return fmt.Errorf("projection %d: %w", i, err)
		}
	}
	return nil
}

// SaveImage saves an image as PNG, keeping 16-bit depth.
func SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func toGray16(value, lo, hi float64) color.Gray16 {
	if !(hi > lo) {
		return color.Gray16{}
	}
	scaled := (value - lo) / (hi - lo) * 65535
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, math.Round(scaled))))}
}
