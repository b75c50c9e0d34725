// Package tiltscheme generates tilt-angle acquisition schedules. Each
// scheme is a small state machine: Next advances it by one angle, while
// AngleArray evaluates the schedule at arbitrary indices without touching
// the generator's state.
package tiltscheme

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrUnknownScheme is returned for scheme names missing from the lookup table.
	ErrUnknownScheme = errors.New("tiltscheme: unknown scheme")

	// ErrInvalidStep is returned when a scheme cannot make progress.
	ErrInvalidStep = errors.New("tiltscheme: invalid step")

	// ErrInvalidRange is returned when angle_max <= angle_min.
	ErrInvalidRange = errors.New("tiltscheme: invalid angle range")
)

// boundaryTolerance is the fraction of a step within which a sample is
// treated as lying exactly on a range limit. Samples within tolerance of a
// limit are inside the range.
const boundaryTolerance = 1e-9

// Scheme produces tilt angles in degrees.
type Scheme interface {
	// Next returns the next angle and advances the generator.
	Next() float64

	// AngleArray returns the angles the scheme produces at the given
	// indices. It never changes the generator's state.
	AngleArray(indices []int) []float64

	// Finished reports whether the scheme has run out of angles. Schemes
	// without a hard end never finish.
	Finished() bool

	// Index returns how many angles Next has produced.
	Index() int

	// Reset returns the generator to its initial state.
	Reset()
}

// Plan returns the first count angles of a scheme without advancing it.
func Plan(s Scheme, count int) []float64 {
	return s.AngleArray(Indices(count))
}

// Limit caps count at the length of schemes that finish, such as
// Incremental. Endless schemes return count unchanged.
func Limit(s Scheme, count int) int {
	if c, ok := s.(interface{ Count() int }); ok && c.Count() < count {
		return c.Count()
	}
	return count
}

// Indices returns 0..count-1.
func Indices(count int) []int {
	idx := make([]int, count)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Kind names a scheme in configuration files and on the command line.
type Kind string

const (
	KindIncremental Kind = "incremental"
	KindGRS         Kind = "grs"
	KindBinary      Kind = "binary"
)

// Params carries the settings any scheme may need. Each constructor reads
// only the fields relevant to it.
type Params struct {
	Min           float64
	Max           float64
	Step          float64
	K             int
	Bidirectional bool
	StartIndex    int
}

// constructors is the static kind → constructor table.
var constructors = map[Kind]func(Params) (Scheme, error){
	KindIncremental: func(p Params) (Scheme, error) {
		return NewIncremental(p.Min, p.Max, p.Step)
	},
	KindGRS: func(p Params) (Scheme, error) {
		return NewGRS(p.Min, p.Max, p.StartIndex)
	},
	KindBinary: func(p Params) (Scheme, error) {
		return NewBinary(p.Min, p.Max, p.K, p.Bidirectional)
	},
}

// New builds the scheme registered under kind.
func New(kind Kind, p Params) (Scheme, error) {
	ctor, ok := constructors[Kind(strings.ToLower(string(kind)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, kind)
	}
	return ctor(p)
}

// Kinds lists the registered scheme names.
func Kinds() []Kind {
	return []Kind{KindIncremental, KindGRS, KindBinary}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
