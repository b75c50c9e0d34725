package tomography

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"

	"tomoalign/pkg/sinogram"
)

// ParallelBeam is a CPU parallel-beam operator. Every detector row is an
// independent 2D problem: a W×W slice projected onto W detector bins.
// The projector spreads each pixel linearly over the two nearest bins and
// the back-projector is its exact adjoint, so iterative methods converge.
//
// ParallelBeam holds no mutable state and is safe for concurrent use.
type ParallelBeam struct {
	// Workers bounds the number of slices processed at once.
	Workers int

	// Mask restricts reconstructions to the circle inscribed in each slice.
	Mask bool
}

// NewParallelBeam returns an operator using all CPU cores with masking on.
func NewParallelBeam() *ParallelBeam {
	return &ParallelBeam{Workers: runtime.NumCPU(), Mask: true}
}

func (p *ParallelBeam) ConcurrencySafe() bool { return true }

// geometry caches the per-angle direction cosines for one detector width.
type geometry struct {
	size   int
	center float64
	cos    []float64
	sin    []float64
}

func newGeometry(size int, angles []float64) *geometry {
	g := &geometry{
		size:   size,
		center: float64(size-1) / 2,
		cos:    make([]float64, len(angles)),
		sin:    make([]float64, len(angles)),
	}
	for i, a := range angles {
		g.sin[i], g.cos[i] = math.Sincos(a * math.Pi / 180)
	}
	return g
}

// forward projects one slice (row-major size×size) into sino (angles×size).
func (g *geometry) forward(slice, sino []float64) {
	n := g.size
	for i := range sino {
		sino[i] = 0
	}
	for a := range g.cos {
		row := sino[a*n : (a+1)*n]
		cos, sin := g.cos[a], g.sin[a]
		for z := 0; z < n; z++ {
			dz := float64(z) - g.center
			for x := 0; x < n; x++ {
				v := slice[z*n+x]
				if v == 0 {
					continue
				}
				t := (float64(x)-g.center)*cos + dz*sin + g.center
				t0 := math.Floor(t)
				f := t - t0
				b := int(t0)
				if b >= 0 && b < n {
					row[b] += v * (1 - f)
				}
				if b+1 >= 0 && b+1 < n {
					row[b+1] += v * f
				}
			}
		}
	}
}

// back is the adjoint of forward: it smears sino (angles×size) back into
// slice (size×size).
func (g *geometry) back(sino, slice []float64) {
	n := g.size
	for i := range slice {
		slice[i] = 0
	}
	for a := range g.cos {
		row := sino[a*n : (a+1)*n]
		cos, sin := g.cos[a], g.sin[a]
		for z := 0; z < n; z++ {
			dz := float64(z) - g.center
			for x := 0; x < n; x++ {
				t := (float64(x)-g.center)*cos + dz*sin + g.center
				t0 := math.Floor(t)
				f := t - t0
				b := int(t0)
				v := 0.0
				if b >= 0 && b < n {
					v += row[b] * (1 - f)
				}
				if b+1 >= 0 && b+1 < n {
					v += row[b+1] * f
				}
				slice[z*n+x] += v
			}
		}
	}
}

// circle returns the inscribed-circle mask of a size×size slice.
func (g *geometry) circle() []bool {
	n := g.size
	mask := make([]bool, n*n)
	r2 := g.center*g.center + 1e-9
	for z := 0; z < n; z++ {
		dz := float64(z) - g.center
		for x := 0; x < n; x++ {
			dx := float64(x) - g.center
			mask[z*n+x] = dx*dx+dz*dz <= r2
		}
	}
	return mask
}

// Project forward-projects vol at angles. The result has one W-wide
// projection per angle with as many rows as vol has slices.
func (p *ParallelBeam) Project(ctx context.Context, vol *Volume, angles []float64) (*sinogram.Sinogram, error) {
	depth, size := vol.Dims()
	if depth == 0 || size == 0 {
		return nil, fmt.Errorf("tomography: empty volume")
	}
	if len(angles) == 0 {
		return nil, fmt.Errorf("tomography: no projection angles")
	}
	g := newGeometry(size, angles)

	images := make([]*mat.Dense, len(angles))
	for a := range images {
		images[a] = mat.NewDense(depth, size, nil)
	}

	err := p.eachSlice(ctx, depth, func(z int) {
		slice := denseData(vol.Slices[z])
		sino := make([]float64, len(angles)*size)
		g.forward(slice, sino)
		for a := range angles {
			copy(images[a].RawRowView(z), sino[a*size:(a+1)*size])
		}
	})
	if err != nil {
		return nil, err
	}
	return sinogram.New(images, angles, sinogram.WithPixelSize(vol.PixelSize))
}

// Reconstruct inverts s slice by slice with the requested method.
func (p *ParallelBeam) Reconstruct(ctx context.Context, s *sinogram.Sinogram, method Method, iterations int) (*Volume, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	var solve func(g *geometry, sino []float64, iterations int) []float64
	switch method {
	case BP:
		solve = backProject
	case FBP:
		solve = filteredBackProject
	case SIRT:
		solve = sirt
	case SART:
		solve = sart
	case CGLS:
		solve = cgls
	case EM:
		return nil, fmt.Errorf("%w: %s requires GPU support", ErrUnsupportedMethod, method)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	if iterations <= 0 {
		iterations = method.DefaultIterations()
	}

	depth, size := s.Dims()
	g := newGeometry(size, s.Angles)
	var mask []bool
	if p.Mask {
		mask = g.circle()
	}

	vol := NewVolume(depth, size)
	vol.PixelSize = s.PixelSize
	err := p.eachSlice(ctx, depth, func(z int) {
		sino := make([]float64, s.Len()*size)
		for a, img := range s.Images {
			copy(sino[a*size:(a+1)*size], img.RawRowView(z))
		}
		slice := solve(g, sino, iterations)
		if mask != nil {
			for i, inside := range mask {
				if !inside {
					slice[i] = 0
				}
			}
		}
		copy(vol.Slices[z].RawMatrix().Data, slice)
	})
	if err != nil {
		return nil, err
	}
	return vol, nil
}

// eachSlice runs fn for z in [0, depth) on up to p.Workers goroutines.
// Cancellation is honoured between slices.
func (p *ParallelBeam) eachSlice(ctx context.Context, depth int, fn func(z int)) error {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > depth {
		workers = depth
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for z := range jobs {
				fn(z)
			}
		}()
	}

	var err error
feed:
	for z := 0; z < depth; z++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- z:
		}
	}
	close(jobs)
	wg.Wait()
	return err
}

// denseData returns the row-major contents of m without aliasing it.
func denseData(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	data := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		data = append(data, m.RawRowView(r)...)
	}
	return data
}
