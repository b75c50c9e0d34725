// Package phantom builds synthetic nanoparticle volumes used to simulate
// tilt series and to test the alignment stages end to end.
//
// Volumes follow tomography.Volume: Slices[y] is the slice at detector
// row y, indexed (z, x). Shapes are defined in normalised coordinates
// running from -1 to 1 across the volume edge.
package phantom

import (
	"errors"
	"fmt"
	"strings"

	"tomoalign/pkg/tomography"
)

var (
	// ErrUnknownPhantom is returned for a phantom kind without a builder.
	ErrUnknownPhantom = errors.New("phantom: unknown kind")

	// ErrInvalidParams is returned for geometrically impossible parameters.
	ErrInvalidParams = errors.New("phantom: invalid parameters")
)

// Kind names a phantom shape.
type Kind string

const (
	KindRod       Kind = "rod"
	KindCube      Kind = "cube"
	KindEllipsoid Kind = "ellipsoid"
)

// builders holds each shape's constructor with proportions taken from the
// 512-voxel reference sizes.
var builders = map[Kind]func(dim int) (*tomography.Volume, error){
	KindRod: func(dim int) (*tomography.Volume, error) {
		return Nanorod(RodParams{
			Dim:        dim,
			Length:     dim * 300 / 512,
			Radius:     dim * 100 / 512,
			Proportion: 0.5,
			Intensity:  0.3,
		})
	},
	KindCube: func(dim int) (*tomography.Volume, error) {
		return Nanocube(dim, dim/2)
	},
	KindEllipsoid: func(dim int) (*tomography.Volume, error) {
		return Ellipsoid(dim, 0.6, 0.35, 0.45, 1)
	},
}

// New builds the phantom of the given kind with its default proportions.
func New(kind Kind, dim int) (*tomography.Volume, error) {
	build, ok := builders[Kind(strings.ToLower(string(kind)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhantom, kind)
	}
	return build(dim)
}

// Kinds lists the available phantom kinds.
func Kinds() []Kind {
	return []Kind{KindRod, KindCube, KindEllipsoid}
}

// coord maps voxel index i of an n-voxel edge onto [-1, 1].
func coord(i, n int) float64 {
	if n == 1 {
		return 0
	}
	return -1 + 2*float64(i)/float64(n-1)
}

func checkDim(dim int) error {
	if dim < 1 {
		return fmt.Errorf("%w: dimension %d", ErrInvalidParams, dim)
	}
	return nil
}
