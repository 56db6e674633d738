package optimize

import "log/slog"

// SGDToQNMinimizer warm-starts a quasi-Newton run from a stochastic
// phase: scaled SGD runs for SGDPasses, its per-pass position and
// gradient differences seed the L-BFGS history, and the quasi-Newton
// minimizer finishes from the stochastic iterate.
type SGDToQNMinimizer struct {
	SGD      *SGDMinimizer
	QN       *QNMinimizer
	SGDPasses int
	QNPasses  int
}

// NewSGDToQNMinimizer combines the two phases with the given pass budgets.
func NewSGDToQNMinimizer(sgd *SGDMinimizer, qn *QNMinimizer, sgdPasses, qnPasses int) *SGDToQNMinimizer {
	return &SGDToQNMinimizer{SGD: sgd, QN: qn, SGDPasses: sgdPasses, QNPasses: qnPasses}
}

// Minimize runs the stochastic phase then hands its trajectory to the
// quasi-Newton phase. A NaN in either phase stops with the last weights
// reached before the NaN.
func (m *SGDToQNMinimizer) Minimize(f DifferentiableFunction, x0 []float64) ([]float64, error) {
	m.SGD.Passes = m.SGDPasses
	x, err := m.SGD.Minimize(f, x0)
	if err != nil {
		return x, err
	}

	s, y, scale := m.SGD.Harvest()
	m.QN.WarmStart(s, y, scale)
	m.QN.MaxIterations = m.QNPasses
	slog.Debug("SGD phase complete, starting QN", "harvested_pairs", len(s), "scale", scale)
	return m.QN.Minimize(f, x)
}
