// Package optimize provides the numerical minimizers the CRF trainer
// runs against: a limited-memory quasi-Newton batch minimizer, a scaled
// stochastic gradient minimizer, and a stochastic-to-quasi-Newton hybrid.
// All of them consume functions of a flat weight vector through value and
// gradient queries.
package optimize

import "errors"

// DifferentiableFunction is a scalar function of a weight vector with a
// gradient. Implementations may cache the last evaluation; callers must
// not mutate the returned gradient slice.
type DifferentiableFunction interface {
	Dimension() int
	ValueAt(x []float64) float64
	GradientAt(x []float64) []float64
}

// StochasticFunction additionally evaluates on a subset of its samples,
// for mini-batch optimization. Batch results are scaled so they estimate
// the full objective without bias.
type StochasticFunction interface {
	DifferentiableFunction
	NumSamples() int
	BatchValueAt(x []float64, batch []int) float64
	BatchGradientAt(x []float64, batch []int) []float64
}

// Minimizer searches for a minimum starting from x0. On a numerical
// failure it returns the last point reached before the NaN together with
// the error.
type Minimizer interface {
	Minimize(f DifferentiableFunction, x0 []float64) ([]float64, error)
}

// ErrNaN reports that the objective or its gradient produced NaN; the
// minimizer stops and returns the last safe weights.
var ErrNaN = errors.New("optimize: objective returned NaN")

// ErrNotStochastic reports that a stochastic minimizer was handed a
// function without mini-batch support.
var ErrNotStochastic = errors.New("optimize: function does not support mini-batches")
