package optimize

import (
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// QNMinimizer is a limited-memory BFGS minimizer: it keeps the last
// MemorySize position and gradient differences, builds a search direction
// with the two-loop recursion, and backtracks to a point satisfying the
// Armijo sufficient-decrease condition.
type QNMinimizer struct {
	MemorySize    int
	MaxIterations int
	// Tolerance stops the run when the relative function decrease over an
	// iteration falls below it.
	Tolerance float64
	// GradTolerance stops the run when the gradient max-norm falls below it.
	GradTolerance float64
	// MaxTime bounds the wall clock; zero means unbounded.
	MaxTime time.Duration
	// Robust skips curvature pairs whose inner product is too small
	// relative to their norms, not merely non-positive.
	Robust bool
	// Monitor, when set, is called every MonitorEvery iterations with the
	// current point.
	Monitor      func(iteration int, x []float64, value float64)
	MonitorEvery int

	warmS, warmY [][]float64
	warmScale    float64
}

// NewQNMinimizer creates a quasi-Newton minimizer with the given history
// size and conventional stopping tolerances.
func NewQNMinimizer(memorySize int) *QNMinimizer {
	if memorySize <= 0 {
		memorySize = 10
	}
	return &QNMinimizer{
		MemorySize:    memorySize,
		MaxIterations: 1000,
		Tolerance:     1e-6,
		GradTolerance: 1e-6,
		MonitorEvery:  10,
	}
}

// WarmStart seeds the L-BFGS history with externally harvested position
// and gradient differences, plus an initial diagonal scaling. Used by the
// stochastic-to-quasi-Newton handover.
func (q *QNMinimizer) WarmStart(s, y [][]float64, scale float64) {
	q.warmS, q.warmY = s, y
	q.warmScale = scale
}

// Minimize runs the quasi-Newton iteration from x0.
func (q *QNMinimizer) Minimize(f DifferentiableFunction, x0 []float64) ([]float64, error) {
	n := f.Dimension()
	x := make([]float64, n)
	copy(x, x0)

	hist := newHistory(n, q.MemorySize)
	hist.scale = q.warmScale
	for i := range q.warmS {
		hist.update(q.warmS[i], q.warmY[i], q.Robust)
	}

	value := f.ValueAt(x)
	if math.IsNaN(value) {
		return x, ErrNaN
	}
	grad := make([]float64, n)
	copy(grad, f.GradientAt(x))

	best := make([]float64, n)
	copy(best, x)
	bestValue := value

	start := time.Now()
	xNew := make([]float64, n)

	for iter := 0; iter < q.MaxIterations; iter++ {
		if q.MaxTime > 0 && time.Since(start) > q.MaxTime {
			slog.Debug("QN time budget exhausted", "iteration", iter)
			break
		}
		if floats.Norm(grad, math.Inf(1)) < q.GradTolerance {
			slog.Debug("QN converged on gradient norm", "iteration", iter)
			break
		}

		dir := hist.direction(grad)
		step, ok := armijoBacktrack(f, x, dir, value, grad, xNew)
		if !ok {
			slog.Warn("QN line search failed", "iteration", iter)
			break
		}

		newValue := f.ValueAt(xNew)
		if math.IsNaN(newValue) {
			return best, ErrNaN
		}
		newGrad := f.GradientAt(xNew)

		s := make([]float64, n)
		yv := make([]float64, n)
		floats.SubTo(s, xNew, x)
		floats.SubTo(yv, newGrad, grad)
		hist.update(s, yv, q.Robust)

		copy(x, xNew)
		copy(grad, newGrad)
		prevValue := value
		value = newValue
		if value < bestValue {
			bestValue = value
			copy(best, x)
		}

		if q.Monitor != nil && q.MonitorEvery > 0 && (iter+1)%q.MonitorEvery == 0 {
			q.Monitor(iter+1, x, value)
		}
		slog.Debug("QN iteration", "iteration", iter+1, "value", value, "step", step)

		if relativeChange(prevValue, value) < q.Tolerance {
			slog.Debug("QN converged on function value", "iteration", iter+1)
			break
		}
	}
	return best, nil
}

func relativeChange(prev, cur float64) float64 {
	denom := math.Max(math.Abs(prev), math.Max(math.Abs(cur), 1))
	return math.Abs(prev-cur) / denom
}

// armijoBacktrack halves the step until f(x+a*dir) <= f(x) + c*a*g'dir,
// writing the accepted point into out. A valid step never increases the
// objective.
func armijoBacktrack(f DifferentiableFunction, x, dir []float64, value float64, grad, out []float64) (float64, bool) {
	const c = 1e-4
	dirDeriv := floats.Dot(dir, grad)
	if dirDeriv >= 0 {
		return 0, false
	}
	step := 1.0
	for range 30 {
		copy(out, x)
		floats.AddScaled(out, step, dir)
		v := f.ValueAt(out)
		if !math.IsNaN(v) && v <= value+c*step*dirDeriv {
			return step, true
		}
		step *= 0.5
	}
	return 0, false
}

// history is the L-BFGS ring buffer and two-loop recursion.
type history struct {
	n, m  int
	s, y  [][]float64
	rho   []float64
	count int
	scale float64
}

func newHistory(n, m int) *history {
	return &history{n: n, m: m}
}

func (h *history) update(s, y []float64, robust bool) {
	sy := floats.Dot(s, y)
	if sy <= 0 {
		return
	}
	if robust && sy < 1e-10*floats.Norm(s, 2)*floats.Norm(y, 2) {
		return
	}
	if h.count == h.m {
		h.s = h.s[1:]
		h.y = h.y[1:]
		h.rho = h.rho[1:]
		h.count--
	}
	sc := make([]float64, h.n)
	yc := make([]float64, h.n)
	copy(sc, s)
	copy(yc, y)
	h.s = append(h.s, sc)
	h.y = append(h.y, yc)
	h.rho = append(h.rho, 1/sy)
	h.count++
}

// direction returns the descent direction -H*grad via the two-loop
// recursion; with an empty history it is steepest descent.
func (h *history) direction(grad []float64) []float64 {
	q := make([]float64, h.n)
	copy(q, grad)
	if h.count == 0 {
		if h.scale > 0 {
			floats.Scale(h.scale, q)
		}
		floats.Scale(-1, q)
		return q
	}

	alpha := make([]float64, h.count)
	for i := h.count - 1; i >= 0; i-- {
		alpha[i] = h.rho[i] * floats.Dot(h.s[i], q)
		floats.AddScaled(q, -alpha[i], h.y[i])
	}

	last := h.count - 1
	yy := floats.Dot(h.y[last], h.y[last])
	gamma := h.scale
	if yy > 0 {
		gamma = floats.Dot(h.s[last], h.y[last]) / yy
	}
	if gamma > 0 {
		floats.Scale(gamma, q)
	}

	for i := range h.count {
		beta := h.rho[i] * floats.Dot(h.y[i], q)
		floats.AddScaled(q, alpha[i]-beta, h.s[i])
	}
	floats.Scale(-1, q)
	return q
}
