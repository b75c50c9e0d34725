package phantom

import (
	"fmt"

	"tomoalign/pkg/tomography"
)

// RodParams describes a nanorod: a cylinder along the tilt axis closed by
// two hemispherical caps, with a brighter core.
type RodParams struct {
	// Dim is the volume edge in voxels.
	Dim int

	// Length is the tip-to-tip length and Radius the shell radius, in voxels.
	Length int
	Radius int

	// Proportion is the core radius relative to the shell radius.
	Proportion float64

	// Intensity is the shell value; the core is always 1.
	Intensity float64
}

// Nanorod builds the rod described by p.
func Nanorod(p RodParams) (*tomography.Volume, error) {
	if err := checkDim(p.Dim); err != nil {
		return nil, err
	}
	if p.Radius < 1 || p.Length < 2*p.Radius || p.Length > p.Dim {
		return nil, fmt.Errorf("%w: rod length %d radius %d in %d voxels", ErrInvalidParams, p.Length, p.Radius, p.Dim)
	}
	dim := p.Dim
	vol := tomography.NewVolume(dim, dim)

	pr := 2 * float64(p.Radius) / float64(dim)
	core := pr * p.Proportion
	half := (p.Length - 2*p.Radius) / 2
	z1, z2 := dim/2-half, dim/2+half

	for y, slice := range vol.Slices {
		var axial float64
		switch {
		case y >= z1 && y <= z2:
			axial = 0
		case y > z2 && y < z2+p.Radius:
			axial = coord(dim/2+y-z2, dim)
		case y < z1 && y >= z1-p.Radius:
			axial = coord(dim/2+y-z1, dim)
		default:
			continue
		}
		shell2 := pr*pr - axial*axial
		// core is an ellipsoid stretched along the rod axis
		core2 := core * core * (1 - axial*axial/(pr*pr))
		if shell2 < 0 {
			continue
		}
		for r := 0; r < dim; r++ {
			v := coord(r, dim)
			for c := 0; c < dim; c++ {
				u := coord(c, dim)
				d2 := u*u + v*v
				switch {
				case d2 <= core2:
					slice.Set(r, c, 1)
				case d2 <= shell2:
					slice.Set(r, c, p.Intensity)
				}
			}
		}
	}
	return vol, nil
}

// Nanocube builds a dim³ volume holding a centered cube of edge size
// voxels with value 1.
func Nanocube(dim, size int) (*tomography.Volume, error) {
	if err := checkDim(dim); err != nil {
		return nil, err
	}
	if size < 1 || size > dim {
		return nil, fmt.Errorf("%w: cube of %d in %d voxels", ErrInvalidParams, size, dim)
	}
	vol := tomography.NewVolume(dim, dim)
	start, end := dim/2-size/2, dim/2+size/2
	if size%2 == 1 {
		end++
	}
	for y := start; y < end; y++ {
		for r := start; r < end; r++ {
			for c := start; c < end; c++ {
				vol.Slices[y].Set(r, c, 1)
			}
		}
	}
	return vol, nil
}

// Ellipsoid builds a centered solid ellipsoid with normalised semi-axes
// ax (x), ay (tilt axis) and az (beam direction at zero tilt).
func Ellipsoid(dim int, ax, ay, az, intensity float64) (*tomography.Volume, error) {
	if err := checkDim(dim); err != nil {
		return nil, err
	}
	if ax <= 0 || ay <= 0 || az <= 0 {
		return nil, fmt.Errorf("%w: ellipsoid axes %v %v %v", ErrInvalidParams, ax, ay, az)
	}
	vol := tomography.NewVolume(dim, dim)
	for y, slice := range vol.Slices {
		w := coord(y, dim) / ay
		for r := 0; r < dim; r++ {
			v := coord(r, dim) / az
			for c := 0; c < dim; c++ {
				u := coord(c, dim) / ax
				if u*u+v*v+w*w <= 1 {
					slice.Set(r, c, intensity)
				}
			}
		}
	}
	return vol, nil
}
