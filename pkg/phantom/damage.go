package phantom

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"tomoalign/pkg/imaging"
	"tomoalign/pkg/tomography"
)

// deformSigma is the smoothing length of the elastic displacement field,
// in voxels.
const deformSigma = 10

// DamageParams configures BeamDamage.
type DamageParams struct {
	// KnockOn is the base of the atom removal probability: an occupied
	// voxel with n occupied voxels in its 3×3×3 block is removed with
	// probability KnockOn^(n/3). Fully enclosed voxels always survive.
	// Zero disables knock-on.
	KnockOn float64

	// Deform is the length, in voxels, of the smooth random displacement
	// applied to every voxel. Zero disables deformation.
	Deform float64

	// Normalize binarises a deformed volume, keeping as many voxels as
	// were occupied before.
	Normalize bool
}

// DefaultDamageParams are a 1% knock-on base and a 0.1 voxel deformation.
func DefaultDamageParams() DamageParams {
	return DamageParams{KnockOn: 0.01, Deform: 0.1, Normalize: true}
}

// Enabled reports whether p changes a volume at all.
func (p DamageParams) Enabled() bool {
	return p.KnockOn > 0 || p.Deform > 0
}

// BeamDamage returns a copy of vol after elastic deformation followed by
// knock-on erosion of its surface. vol is not modified.
func BeamDamage(vol *tomography.Volume, p DamageParams, rng *rand.Rand) (*tomography.Volume, error) {
	if !(p.KnockOn >= 0 && p.KnockOn <= 1) {
		return nil, fmt.Errorf("%w: knock-on %g outside [0, 1]", ErrInvalidParams, p.KnockOn)
	}
	if !(p.Deform >= 0) || math.IsInf(p.Deform, 0) {
		return nil, fmt.Errorf("%w: deformation %g", ErrInvalidParams, p.Deform)
	}
	out := vol.Clone()
	if p.Deform > 0 {
		out = deform(out, p.Deform, p.Normalize, rng)
	}
	if p.KnockOn > 0 {
		knockOn(out, p.KnockOn, rng)
	}
	return out, nil
}

// knockOn zeroes occupied voxels at random, favouring those with few
// occupied neighbours.
func knockOn(vol *tomography.Volume, base float64, rng *rand.Rand) {
	_, size := vol.Dims()
	counts := vol.Neighbours(func(v float64) bool { return v != 0 })
	for y, slice := range vol.Slices {
		for r := 0; r < size; r++ {
			for c := 0; c < size; c++ {
				n := counts[(y*size+r)*size+c]
				if slice.At(r, c) == 0 || n >= 27 {
					continue
				}
				if math.Pow(base, float64(n)/3) > rng.Float64() {
					slice.Set(r, c, 0)
				}
			}
		}
	}
}

// deform resamples vol along a random displacement field of length
// amount, smoothed over deformSigma voxels. Samples falling outside the
// volume read as zero.
func deform(vol *tomography.Volume, amount float64, normalize bool, rng *rand.Rand) *tomography.Volume {
	depth, size := vol.Dims()
	n := depth * size * size

	var field [3][]float64
	for k := range field {
		seed := make([]float64, n)
		for i := range seed {
			seed[i] = 2*rng.Float64() - 1
		}
		field[k] = smooth3D(seed, depth, size, deformSigma)
	}

	out := tomography.NewVolume(depth, size)
	out.PixelSize = vol.PixelSize
	for y := 0; y < depth; y++ {
		for r := 0; r < size; r++ {
			for c := 0; c < size; c++ {
				i := (y*size+r)*size + c
				amp := math.Sqrt(field[0][i]*field[0][i] + field[1][i]*field[1][i] + field[2][i]*field[2][i])
				if amp == 0 {
					out.Slices[y].Set(r, c, vol.Slices[y].At(r, c))
					continue
				}
				scale := amount / amp
				out.Slices[y].Set(r, c, trilinear(vol,
					float64(y)+field[0][i]*scale,
					float64(r)+field[1][i]*scale,
					float64(c)+field[2][i]*scale))
			}
		}
	}
	if normalize {
		binarise(out, occupied(vol))
	}
	return out
}

// smooth3D blurs a depth×size×size field, stored in Voxels order, with a
// Gaussian of sigma voxels along every axis.
func smooth3D(data []float64, depth, size int, sigma float64) []float64 {
	plane := size * size
	out := make([]float64, len(data))
	for y := 0; y < depth; y++ {
		slice := imaging.GaussianBlur(mat.NewDense(size, size, data[y*plane:(y+1)*plane]), sigma)
		for r := 0; r < size; r++ {
			copy(out[y*plane+r*size:], slice.RawRowView(r))
		}
	}
	column := make([]float64, depth)
	for i := 0; i < plane; i++ {
		for y := range column {
			column[y] = out[y*plane+i]
		}
		for y, v := range imaging.GaussianSmooth(column, sigma) {
			out[y*plane+i] = v
		}
	}
	return out
}

// trilinear samples vol at a fractional (slice, row, column) position.
func trilinear(vol *tomography.Volume, y, r, c float64) float64 {
	depth, size := vol.Dims()
	y0, r0, c0 := math.Floor(y), math.Floor(r), math.Floor(c)
	fy, fr, fc := y-y0, r-r0, c-c0
	var v float64
	for dy := 0; dy <= 1; dy++ {
		yi := int(y0) + dy
		if yi < 0 || yi >= depth {
			continue
		}
		wy := 1 - fy
		if dy == 1 {
			wy = fy
		}
		for dr := 0; dr <= 1; dr++ {
			ri := int(r0) + dr
			if ri < 0 || ri >= size {
				continue
			}
			wr := 1 - fr
			if dr == 1 {
				wr = fr
			}
			for dc := 0; dc <= 1; dc++ {
				ci := int(c0) + dc
				if ci < 0 || ci >= size {
					continue
				}
				wc := 1 - fc
				if dc == 1 {
					wc = fc
				}
				v += wy * wr * wc * vol.Slices[yi].At(ri, ci)
			}
		}
	}
	return v
}

func occupied(vol *tomography.Volume) int {
	n := 0
	for _, v := range vol.Voxels() {
		if v != 0 {
			n++
		}
	}
	return n
}

// binarise sets the count brightest nonzero voxels of vol to 1 and the
// rest to 0. Ties at the cut are all kept.
func binarise(vol *tomography.Volume, count int) {
	var nonzero []float64
	for _, v := range vol.Voxels() {
		if v != 0 {
			nonzero = append(nonzero, v)
		}
	}
	if len(nonzero) == 0 || count == 0 {
		return
	}
	sort.Float64s(nonzero)
	cut := nonzero[0]
	if len(nonzero) > count {
		cut = nonzero[len(nonzero)-count]
	}
	for _, slice := range vol.Slices {
		slice.Apply(func(_, _ int, v float64) float64 {
			if v != 0 && v >= cut {
				return 1
			}
			return 0
		}, slice)
	}
}
