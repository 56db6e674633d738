package crf

import (
	"math"
	"math/rand"
	"testing"
)

func randomTable(numClasses, window int, rng *rand.Rand) *FactorTable {
	f := NewFactorTable(numClasses, window)
	for i := 0; i < f.Size(); i++ {
		f.SetAt(i, rng.NormFloat64()*2)
	}
	return f
}

func TestLogSumExpStability(t *testing.T) {
	// Max shifting keeps huge inputs finite.
	got := logSumExp([]float64{1000, 1000})
	want := 1000 + math.Log(2)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("logSumExp = %v, want %v", got, want)
	}
	if v := logSumExp([]float64{math.Inf(-1), math.Inf(-1)}); !math.IsInf(v, -1) {
		t.Errorf("logSumExp of -Inf = %v, want -Inf", v)
	}
}

func TestFactorTableGetSet(t *testing.T) {
	f := NewFactorTable(3, 2)
	f.Set(LabelTuple{2, 1}, 5)
	if f.Get(LabelTuple{2, 1}) != 5 {
		t.Error("Get after Set failed")
	}
	if f.GetAt(2*3+1) != 5 {
		t.Error("packed index disagrees with tuple index")
	}
}

func TestSumOutBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := randomTable(3, 3, rng)

	front := f.SumOutFront()
	end := f.SumOutEnd()
	for j := 0; j < 9; j++ {
		rest := UnpackLabelTuple(j, 2, 3)

		var vals []float64
		for y := range 3 {
			vals = append(vals, f.Get(LabelTuple{y, rest[0], rest[1]}))
		}
		if math.Abs(front.GetAt(j)-logSumExp(vals)) > 1e-12 {
			t.Errorf("SumOutFront[%d] = %v, want %v", j, front.GetAt(j), logSumExp(vals))
		}

		vals = vals[:0]
		for y := range 3 {
			vals = append(vals, f.Get(LabelTuple{rest[0], rest[1], y}))
		}
		if math.Abs(end.GetAt(j)-logSumExp(vals)) > 1e-12 {
			t.Errorf("SumOutEnd[%d] = %v, want %v", j, end.GetAt(j), logSumExp(vals))
		}
	}
}

func TestMarginalizeOrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	f := randomTable(2, 3, rng)

	// Down to width 1 along two different sweep orders.
	a := f.Clone().SumOutFront().SumOutFront()
	b := f.Clone().SumOutFront().SumOutEnd()
	// a keeps the last position, b keeps the middle; compare total mass,
	// which both must preserve exactly.
	if math.Abs(a.TotalMass()-f.TotalMass()) > 1e-12 {
		t.Errorf("mass after sumOutFront^2 = %v, want %v", a.TotalMass(), f.TotalMass())
	}
	if math.Abs(b.TotalMass()-f.TotalMass()) > 1e-12 {
		t.Errorf("mass after mixed sweep = %v, want %v", b.TotalMass(), f.TotalMass())
	}
}

func TestMultiplyDivide(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	f := randomTable(2, 2, rng)
	orig := f.Clone()

	small := randomTable(2, 1, rng)
	f.MultiplyInEnd(small)
	for i := 0; i < f.Size(); i++ {
		want := orig.GetAt(i) + small.GetAt(i%2)
		if math.Abs(f.GetAt(i)-want) > 1e-12 {
			t.Errorf("MultiplyInEnd[%d] = %v, want %v", i, f.GetAt(i), want)
		}
	}

	g := f.Clone()
	g.DivideBy(f)
	for i := 0; i < g.Size(); i++ {
		if g.GetAt(i) != 0 {
			t.Errorf("DivideBy self [%d] = %v, want 0", i, g.GetAt(i))
		}
	}
}

func TestMultiplyInFront(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	f := randomTable(2, 2, rng)
	orig := f.Clone()
	small := randomTable(2, 1, rng)
	f.MultiplyInFront(small)
	for i := 0; i < f.Size(); i++ {
		want := orig.GetAt(i) + small.GetAt(i/2)
		if math.Abs(f.GetAt(i)-want) > 1e-12 {
			t.Errorf("MultiplyInFront[%d] = %v, want %v", i, f.GetAt(i), want)
		}
	}
}

func TestDivideByNegInf(t *testing.T) {
	f := NewFactorTable(2, 1)
	g := NewFactorTable(2, 1)
	f.SetAt(0, math.Inf(-1))
	g.SetAt(0, math.Inf(-1))
	f.DivideBy(g)
	if !math.IsInf(f.GetAt(0), -1) {
		t.Errorf("-Inf / -Inf = %v, want -Inf", f.GetAt(0))
	}
	if f.HasNaN() {
		t.Error("DivideBy produced NaN")
	}
}

func TestConditionalNormalization(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	f := randomTable(3, 2, rng)
	for prev := range 3 {
		var sum float64
		for y := range 3 {
			sum += math.Exp(f.ConditionalLogProbGivenPrevious(LabelTuple{prev}, y))
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("conditional given prev=%d sums to %v", prev, sum)
		}
	}
	for next := range 3 {
		var sum float64
		for y := range 3 {
			sum += math.Exp(f.ConditionalLogProbGivenNext(LabelTuple{next}, y))
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("conditional given next=%d sums to %v", next, sum)
		}
	}
}

func TestUnnormalizedLogProbEndFront(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	f := randomTable(2, 3, rng)

	var vals []float64
	for a := range 2 {
		for b := range 2 {
			vals = append(vals, f.Get(LabelTuple{a, b, 1}))
		}
	}
	if got := f.UnnormalizedLogProbEnd(LabelTuple{1}); math.Abs(got-logSumExp(vals)) > 1e-12 {
		t.Errorf("UnnormalizedLogProbEnd = %v, want %v", got, logSumExp(vals))
	}

	vals = vals[:0]
	for b := range 2 {
		for c := range 2 {
			vals = append(vals, f.Get(LabelTuple{1, b, c}))
		}
	}
	if got := f.UnnormalizedLogProbFront(LabelTuple{1}); math.Abs(got-logSumExp(vals)) > 1e-12 {
		t.Errorf("UnnormalizedLogProbFront = %v, want %v", got, logSumExp(vals))
	}
}
