package tomography

import "gonum.org/v1/gonum/mat"

// Voxels returns every voxel value in slice, row, column order.
func (v *Volume) Voxels() []float64 {
	depth, size := v.Dims()
	out := make([]float64, 0, depth*size*size)
	for _, s := range v.Slices {
		out = append(out, denseData(s)...)
	}
	return out
}

// Clone returns a deep copy of v.
func (v *Volume) Clone() *Volume {
	c := &Volume{Slices: make([]*mat.Dense, len(v.Slices)), PixelSize: v.PixelSize}
	for i, s := range v.Slices {
		c.Slices[i] = mat.DenseCopyOf(s)
	}
	return c
}

// Neighbours counts, for every voxel, how many voxels of its 3×3×3 block
// (itself included) satisfy occupied. Voxels beyond the edge count as
// empty. The result is in Voxels order, so 27 marks a fully enclosed
// voxel.
func (v *Volume) Neighbours(occupied func(float64) bool) []int {
	depth, size := v.Dims()
	mask := make([]bool, 0, depth*size*size)
	for _, x := range v.Voxels() {
		mask = append(mask, occupied(x))
	}
	at := func(y, r, c int) bool {
		if y < 0 || y >= depth || r < 0 || r >= size || c < 0 || c >= size {
			return false
		}
		return mask[(y*size+r)*size+c]
	}

	counts := make([]int, len(mask))
	for y := 0; y < depth; y++ {
		for r := 0; r < size; r++ {
			for c := 0; c < size; c++ {
				n := 0
				for dy := -1; dy <= 1; dy++ {
					for dr := -1; dr <= 1; dr++ {
						for dc := -1; dc <= 1; dc++ {
							if at(y+dy, r+dr, c+dc) {
								n++
							}
						}
					}
				}
				counts[(y*size+r)*size+c] = n
			}
		}
	}
	return counts
}
