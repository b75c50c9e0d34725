// Package tomography defines the forward projector and reconstructor
// contract the alignment engine talks to, and ships a reference CPU
// parallel-beam implementation of it.
package tomography

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"

	"tomoalign/pkg/sinogram"
)

var (
	// ErrUnknownMethod is returned when a reconstruction method name is not recognised.
	ErrUnknownMethod = errors.New("tomography: unknown reconstruction method")

	// ErrUnsupportedMethod is returned when an operator cannot run a known method.
	ErrUnsupportedMethod = errors.New("tomography: unsupported reconstruction method")
)

// Method selects a reconstruction algorithm.
type Method int

const (
	BP Method = iota
	FBP
	SIRT
	EM
	SART
	CGLS
)

var methodNames = map[Method]string{
	BP:   "bp",
	FBP:  "fbp",
	SIRT: "sirt",
	EM:   "em",
	SART: "sart",
	CGLS: "cgls",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod resolves a case-insensitive method name.
func ParseMethod(name string) (Method, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for m, n := range methodNames {
		if n == lower {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// DefaultIterations is the iteration count used when a caller passes zero.
func (m Method) DefaultIterations() int {
	switch m {
	case EM:
		return 15
	case SIRT, SART:
		return 150
	case CGLS:
		return 20
	default:
		return 1
	}
}

// Volume is a reconstructed object: one W×W slice per detector row.
type Volume struct {
	Slices    []*mat.Dense
	PixelSize float64
}

// NewVolume allocates depth zero-valued slices of size×size.
func NewVolume(depth, size int) *Volume {
	v := &Volume{Slices: make([]*mat.Dense, depth), PixelSize: 1.0}
	for i := range v.Slices {
		v.Slices[i] = mat.NewDense(size, size, nil)
	}
	return v
}

// Dims returns the slice count and the edge length of each slice.
func (v *Volume) Dims() (depth, size int) {
	if len(v.Slices) == 0 {
		return 0, 0
	}
	size, _ = v.Slices[0].Dims()
	return len(v.Slices), size
}

// Projector forward-projects a volume at the given tilt angles (degrees).
type Projector interface {
	Project(ctx context.Context, vol *Volume, angles []float64) (*sinogram.Sinogram, error)
}

// Reconstructor inverts a sinogram. iterations <= 0 selects the method default.
type Reconstructor interface {
	Reconstruct(ctx context.Context, s *sinogram.Sinogram, method Method, iterations int) (*Volume, error)
}

// Operator is a matched projector/reconstructor pair.
type Operator interface {
	Projector
	Reconstructor
}

// ConcurrencySafe is implemented by operators that may be called from
// several goroutines at once.
type ConcurrencySafe interface {
	ConcurrencySafe() bool
}

// IsConcurrencySafe reports whether op documents itself as safe for
// concurrent use. Operators that say nothing are assumed unsafe.
func IsConcurrencySafe(op any) bool {
	cs, ok := op.(ConcurrencySafe)
	return ok && cs.ConcurrencySafe()
}

// Serialized wraps op so that at most one call is in flight at a time.
// Concurrency-safe operators are returned unchanged.
func Serialized(op Operator) Operator {
	if IsConcurrencySafe(op) {
		return op
	}
	return &serialOperator{op: op}
}

type serialOperator struct {
	mu sync.Mutex
	op Operator
}

// ConcurrencySafe is true: the mutex makes concurrent calls safe.
func (s *serialOperator) ConcurrencySafe() bool { return true }

func (s *serialOperator) Project(ctx context.Context, vol *Volume, angles []float64) (*sinogram.Sinogram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.op.Project(ctx, vol, angles)
}

func (s *serialOperator) Reconstruct(ctx context.Context, sino *sinogram.Sinogram, method Method, iterations int) (*Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.op.Reconstruct(ctx, sino, method, iterations)
}
