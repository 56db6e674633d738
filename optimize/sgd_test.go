package optimize

import (
	"math"
	"testing"
	"time"
)

// leastSquares is a stochastic objective: mean over samples s of
// 0.5 * (x . features_s - target_s)^2, with mini-batch estimates scaled
// by the batch fraction.
type leastSquares struct {
	features [][]float64
	targets  []float64
}

func (l *leastSquares) Dimension() int  { return len(l.features[0]) }
func (l *leastSquares) NumSamples() int { return len(l.targets) }

func (l *leastSquares) ValueAt(x []float64) float64 {
	all := make([]int, l.NumSamples())
	for i := range all {
		all[i] = i
	}
	return l.BatchValueAt(x, all)
}

func (l *leastSquares) GradientAt(x []float64) []float64 {
	all := make([]int, l.NumSamples())
	for i := range all {
		all[i] = i
	}
	return l.BatchGradientAt(x, all)
}

func (l *leastSquares) BatchValueAt(x []float64, batch []int) float64 {
	var v float64
	for _, s := range batch {
		d := dot(x, l.features[s]) - l.targets[s]
		v += 0.5 * d * d
	}
	return v / float64(l.NumSamples())
}

func (l *leastSquares) BatchGradientAt(x []float64, batch []int) []float64 {
	g := make([]float64, len(x))
	for _, s := range batch {
		d := dot(x, l.features[s]) - l.targets[s]
		for i := range g {
			g[i] += d * l.features[s][i] / float64(l.NumSamples())
		}
	}
	return g
}

func dot(a, b []float64) float64 {
	var v float64
	for i := range a {
		v += a[i] * b[i]
	}
	return v
}

func newLeastSquares() *leastSquares {
	// Ten samples drawn from y = 2*x1 - x2 exactly, so the optimum is known.
	l := &leastSquares{}
	for i := range 10 {
		f := []float64{float64(i%5) - 2, float64(i%3) - 1}
		l.features = append(l.features, f)
		l.targets = append(l.targets, 2*f[0]-f[1])
	}
	return l
}

func TestSGDDecreasesObjective(t *testing.T) {
	l := newLeastSquares()
	sgd := NewSGDMinimizer(3, 40, 0.5, 7)
	x0 := []float64{5, 5}
	x, err := sgd.Minimize(l, x0)
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if l.ValueAt(x) >= l.ValueAt(x0) {
		t.Errorf("SGD did not decrease: %v -> %v", l.ValueAt(x0), l.ValueAt(x))
	}
}

func TestSGDDeterministicGivenSeed(t *testing.T) {
	l := newLeastSquares()
	a, err := NewSGDMinimizer(3, 10, 0.5, 11).Minimize(l, []float64{1, 1})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	b, err := NewSGDMinimizer(3, 10, 0.5, 11).Minimize(l, []float64{1, 1})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged: %v vs %v", a, b)
		}
	}
}

func TestSGDRejectsPlainFunction(t *testing.T) {
	f := &quadratic{a: []float64{1}, b: []float64{1}}
	if _, err := NewSGDMinimizer(2, 5, 0.1, 1).Minimize(f, []float64{0}); err != ErrNotStochastic {
		t.Errorf("err = %v, want ErrNotStochastic", err)
	}
}

func TestSGDHarvestsTrajectory(t *testing.T) {
	l := newLeastSquares()
	sgd := NewSGDMinimizer(3, 5, 0.3, 3)
	if _, err := sgd.Minimize(l, []float64{2, 2}); err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	s, y, scale := sgd.Harvest()
	if len(s) != 5 || len(y) != 5 {
		t.Errorf("harvested %d/%d pairs, want 5 passes", len(s), len(y))
	}
	if scale <= 0 {
		t.Errorf("harvested scale = %v, want > 0", scale)
	}
}

func TestSGDToQNConverges(t *testing.T) {
	l := newLeastSquares()
	sgd := NewSGDMinimizer(3, 5, 0.3, 5)
	qn := NewQNMinimizer(5)
	qn.Tolerance = 1e-12
	m := NewSGDToQNMinimizer(sgd, qn, 5, 200)
	x, err := m.Minimize(l, []float64{5, -5})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if math.Abs(x[0]-2) > 1e-3 || math.Abs(x[1]+1) > 1e-3 {
		t.Errorf("x = %v, want [2 -1]", x)
	}
}

func TestSGDTuning(t *testing.T) {
	l := newLeastSquares()
	sgd := NewSGDMinimizer(2, 5, 0.8, 9)
	gain := sgd.TuneGain(l, []float64{1, 1}, 2*time.Second)
	if gain <= 0 || gain > 0.8 {
		t.Errorf("tuned gain = %v", gain)
	}
	size := sgd.TuneBatchSize(l, []float64{1, 1}, 2*time.Second)
	if size < 2 || size > l.NumSamples() {
		t.Errorf("tuned batch size = %d", size)
	}
}
