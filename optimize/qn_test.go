package optimize

import (
	"math"
	"testing"
)

// quadratic is f(x) = 0.5 * sum a_i (x_i - b_i)^2.
type quadratic struct {
	a, b []float64
}

func (q *quadratic) Dimension() int { return len(q.a) }

func (q *quadratic) ValueAt(x []float64) float64 {
	var v float64
	for i := range x {
		d := x[i] - q.b[i]
		v += 0.5 * q.a[i] * d * d
	}
	return v
}

func (q *quadratic) GradientAt(x []float64) []float64 {
	g := make([]float64, len(x))
	for i := range x {
		g[i] = q.a[i] * (x[i] - q.b[i])
	}
	return g
}

func TestQNMinimizesQuadratic(t *testing.T) {
	f := &quadratic{
		a: []float64{1, 10, 0.5, 4},
		b: []float64{3, -2, 7, 0.25},
	}
	qn := NewQNMinimizer(5)
	qn.Tolerance = 1e-12
	x, err := qn.Minimize(f, make([]float64, 4))
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	for i := range x {
		if math.Abs(x[i]-f.b[i]) > 1e-4 {
			t.Errorf("x[%d] = %v, want %v", i, x[i], f.b[i])
		}
	}
}

func TestQNMonotoneDescent(t *testing.T) {
	f := &quadratic{
		a: []float64{2, 1, 5},
		b: []float64{1, -1, 2},
	}
	qn := NewQNMinimizer(3)
	qn.MonitorEvery = 1
	var values []float64
	qn.Monitor = func(iter int, x []float64, value float64) {
		values = append(values, value)
	}
	if _, err := qn.Minimize(f, []float64{10, 10, 10}); err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1]+1e-12 {
			t.Errorf("objective rose at monitored step %d: %v -> %v", i, values[i-1], values[i])
		}
	}
}

func TestQNIterationCap(t *testing.T) {
	f := &quadratic{a: []float64{1}, b: []float64{100}}
	qn := NewQNMinimizer(2)
	qn.MaxIterations = 1
	x, err := qn.Minimize(f, []float64{0})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if f.ValueAt(x) >= f.ValueAt([]float64{0}) {
		t.Error("single iteration did not decrease the objective")
	}
}

// nanFunction yields NaN away from the origin.
type nanFunction struct{}

func (nanFunction) Dimension() int { return 1 }
func (nanFunction) ValueAt(x []float64) float64 {
	if x[0] != 0 {
		return math.NaN()
	}
	return 1
}
func (nanFunction) GradientAt(x []float64) []float64 { return []float64{1} }

func TestQNStopsOnNaN(t *testing.T) {
	qn := NewQNMinimizer(2)
	x, err := qn.Minimize(nanFunction{}, []float64{1})
	if err == nil {
		t.Fatal("expected an error from a NaN objective")
	}
	if len(x) != 1 {
		t.Fatal("expected best-so-far weights back")
	}
}

func TestQNWarmStart(t *testing.T) {
	f := &quadratic{a: []float64{1, 2}, b: []float64{4, -3}}
	s := [][]float64{{0.5, 0.5}}
	y := [][]float64{{0.5, 1.0}}
	qn := NewQNMinimizer(4)
	qn.Tolerance = 1e-12
	qn.WarmStart(s, y, 0.5)
	x, err := qn.Minimize(f, make([]float64, 2))
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	for i := range x {
		if math.Abs(x[i]-f.b[i]) > 1e-4 {
			t.Errorf("x[%d] = %v, want %v", i, x[i], f.b[i])
		}
	}
}
