package alignment

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/optimize"
)

// Scalar minimisation methods accepted by MinimizeScalar.
const (
	MethodBounded    = "bounded"
	MethodGolden     = "golden"
	MethodNelderMead = "nelder-mead"
)

const (
	minimizeXTol    = 1e-5
	minimizeMaxEval = 500
)

// Objective is a scalar function that may fail, e.g. because the
// operator it calls failed or the context was cancelled.
type Objective func(x float64) (float64, error)

// Minimum is the outcome of a scalar minimisation.
type Minimum struct {
	X           float64
	F           float64
	Evaluations int
}

// MinimizeScalar minimises f with the named method. bounded (Brent's
// method restricted to [lo, hi]) and golden (golden-section search over
// [lo, hi]) stay inside the bounds; nelder-mead starts at the midpoint
// and is unbounded. All methods stop after a bounded number of
// evaluations and return the best point found. The first error returned
// by f aborts the search.
func MinimizeScalar(f Objective, lo, hi float64, method string) (Minimum, error) {
	if lo > hi {
		lo, hi = hi, lo
	}
	switch strings.ToLower(strings.TrimSpace(method)) {
	case MethodBounded, "":
		return brentBounded(f, lo, hi, minimizeXTol, minimizeMaxEval)
	case MethodGolden:
		return goldenSection(f, lo, hi, minimizeXTol, minimizeMaxEval)
	case MethodNelderMead, "neldermead":
		return nelderMead(f, (lo+hi)/2, minimizeMaxEval)
	default:
		return Minimum{}, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// brentBounded is Brent's parabolic-interpolation / golden-section
// minimiser confined to [a, b].
func brentBounded(f Objective, a, b, xatol float64, maxEval int) (Minimum, error) {
	sqrtEps := math.Sqrt(2.2e-16)
	goldenMean := 0.5 * (3 - math.Sqrt(5))

	fulc := a + goldenMean*(b-a)
	nfc, xf := fulc, fulc
	var rat, e float64
	x := xf
	fx, err := f(x)
	if err != nil {
		return Minimum{}, err
	}
	evals := 1
	ffulc, fnfc := fx, fx
	xm := 0.5 * (a + b)
	tol1 := sqrtEps*math.Abs(xf) + xatol/3
	tol2 := 2 * tol1

	for math.Abs(xf-xm) > tol2-0.5*(b-a) && evals < maxEval {
		golden := true
		if math.Abs(e) > tol1 {
			golden = false
			r := (xf - nfc) * (fx - ffulc)
			q := (xf - fulc) * (fx - fnfc)
			p := (xf-fulc)*q - (xf-nfc)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = rat

			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-xf) && p < q*(b-xf) {
				rat = p / q
				x = xf + rat
				if x-a < tol2 || b-x < tol2 {
					rat = tol1 * signOrOne(xm-xf)
				}
			} else {
				golden = true
			}
		}
		if golden {
			if xf >= xm {
				e = a - xf
			} else {
				e = b - xf
			}
			rat = goldenMean * e
		}

		x = xf + signOrOne(rat)*math.Max(math.Abs(rat), tol1)
		fu, err := f(x)
		if err != nil {
			return Minimum{}, err
		}
		evals++

		if fu <= fx {
			if x >= xf {
				a = xf
			} else {
				b = xf
			}
			fulc, ffulc = nfc, fnfc
			nfc, fnfc = xf, fx
			xf, fx = x, fu
		} else {
			if x < xf {
				a = x
			} else {
				b = x
			}
			if fu <= fnfc || nfc == xf {
				fulc, ffulc = nfc, fnfc
				nfc, fnfc = x, fu
			} else if fu <= ffulc || fulc == xf || fulc == nfc {
				fulc, ffulc = x, fu
			}
		}

		xm = 0.5 * (a + b)
		tol1 = sqrtEps*math.Abs(xf) + xatol/3
		tol2 = 2 * tol1
	}
	return Minimum{X: xf, F: fx, Evaluations: evals}, nil
}

func signOrOne(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// goldenSection narrows [a, b] by the golden ratio until it is narrower
// than xtol.
func goldenSection(f Objective, a, b, xtol float64, maxEval int) (Minimum, error) {
	invPhi := (math.Sqrt(5) - 1) / 2
	c := b - invPhi*(b-a)
	d := a + invPhi*(b-a)
	fc, err := f(c)
	if err != nil {
		return Minimum{}, err
	}
	fd, err := f(d)
	if err != nil {
		return Minimum{}, err
	}
	evals := 2

	for b-a > xtol && evals < maxEval {
		if fc <= fd {
			b, d, fd = d, c, fc
			c = b - invPhi*(b-a)
			if fc, err = f(c); err != nil {
				return Minimum{}, err
			}
		} else {
			a, c, fc = c, d, fd
			d = a + invPhi*(b-a)
			if fd, err = f(d); err != nil {
				return Minimum{}, err
			}
		}
		evals++
	}
	if fc <= fd {
		return Minimum{X: c, F: fc, Evaluations: evals}, nil
	}
	return Minimum{X: d, F: fd, Evaluations: evals}, nil
}

// nelderMead runs gonum's Nelder-Mead simplex on the one-dimensional
// problem starting at x0.
func nelderMead(f Objective, x0 float64, maxEval int) (Minimum, error) {
	var ferr error
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if ferr != nil {
				return math.Inf(1)
			}
			v, err := f(x[0])
			if err != nil {
				ferr = err
				return math.Inf(1)
			}
			return v
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEval,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 20,
		},
	}
	result, err := optimize.Minimize(problem, []float64{x0}, settings, &optimize.NelderMead{SimplexSize: 1})
	if ferr != nil {
		return Minimum{}, ferr
	}
	if err != nil {
		return Minimum{}, fmt.Errorf("nelder-mead: %w", err)
	}
	return Minimum{X: result.X[0], F: result.F, Evaluations: result.Stats.FuncEvaluations}, nil
}
