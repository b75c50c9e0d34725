// Package alignment corrects acquisition-induced geometric errors in a
// tilt series: translational jitter, tilt-axis offset and rotation,
// stage backlash and non-uniform angular sampling.
//
// Every operation comes in two forms. X mutates the sinogram it is given;
// XCopy works on a deep copy and leaves the caller's sinogram untouched.
// Both return the processed sinogram together with the value the
// operation estimated.
package alignment

import (
	"errors"

	"tomoalign/pkg/sinogram"
)

// ErrUnknownMethod is returned for an unrecognised optimisation method.
var ErrUnknownMethod = errors.New("alignment: unknown optimization method")

// Result pairs a processed sinogram with the diagnostic its operation
// produced.
type Result[T any] struct {
	Sinogram   *sinogram.Sinogram
	Diagnostic T
}

// Shift is an integer (row, column) displacement.
type Shift struct {
	Rows int
	Cols int
}

// Offset is a sub-pixel (row, column) displacement.
type Offset struct {
	Rows float64
	Cols float64
}
