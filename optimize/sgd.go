package optimize

import (
	"log/slog"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
)

// SGDMinimizer is a scaled stochastic gradient minimizer. The step at
// update k is gain * tau/(tau+k) with tau = 5 * numBatches, applied to
// the pointwise mean of the last SmoothingWindow mini-batch gradients.
type SGDMinimizer struct {
	BatchSize int
	Passes    int
	// InitialGain is the base learning rate eta.
	InitialGain float64
	// SmoothingWindow is how many recent batch gradients are averaged.
	SmoothingWindow int
	// MaxTime bounds the wall clock; zero means unbounded.
	MaxTime time.Duration
	// Seed drives batch shuffling deterministically.
	Seed int64

	// Harvested trajectory for the quasi-Newton handover: per-pass
	// position and gradient differences.
	passS, passY [][]float64
	lastGain     float64
}

// NewSGDMinimizer creates a stochastic minimizer with the given batch
// size, pass count, and base gain.
func NewSGDMinimizer(batchSize, passes int, gain float64, seed int64) *SGDMinimizer {
	if batchSize <= 0 {
		batchSize = 15
	}
	if passes <= 0 {
		passes = 50
	}
	if gain <= 0 {
		gain = 0.1
	}
	return &SGDMinimizer{
		BatchSize:       batchSize,
		Passes:          passes,
		InitialGain:     gain,
		SmoothingWindow: 10,
		Seed:            seed,
	}
}

// Minimize runs SGD passes over the shuffled samples. The function must
// implement StochasticFunction.
func (m *SGDMinimizer) Minimize(f DifferentiableFunction, x0 []float64) ([]float64, error) {
	sf, ok := f.(StochasticFunction)
	if !ok {
		return x0, ErrNotStochastic
	}
	n := f.Dimension()
	x := make([]float64, n)
	copy(x, x0)

	rng := rand.New(rand.NewSource(m.Seed))
	numSamples := sf.NumSamples()
	numBatches := (numSamples + m.BatchSize - 1) / m.BatchSize
	if numBatches == 0 {
		return x, nil
	}
	tau := float64(5 * numBatches)

	order := make([]int, numSamples)
	for i := range order {
		order[i] = i
	}

	recent := make([][]float64, 0, m.SmoothingWindow)
	smoothed := make([]float64, n)
	prevX := make([]float64, n)
	m.passS = nil
	m.passY = nil

	start := time.Now()
	k := 0
	var passStartX, passStartG []float64

	for pass := range m.Passes {
		if m.MaxTime > 0 && time.Since(start) > m.MaxTime {
			slog.Debug("SGD time budget exhausted", "pass", pass)
			break
		}
		rng.Shuffle(numSamples, func(i, j int) { order[i], order[j] = order[j], order[i] })

		var passValue float64
		for b := range numBatches {
			lo := b * m.BatchSize
			hi := min(lo+m.BatchSize, numSamples)
			batch := order[lo:hi]

			g := sf.BatchGradientAt(x, batch)
			if hasNaN(g) {
				return x, ErrNaN
			}
			if passStartX == nil {
				passStartX = append([]float64(nil), x...)
				passStartG = append([]float64(nil), g...)
			}

			gc := append([]float64(nil), g...)
			if len(recent) == m.SmoothingWindow {
				recent = recent[1:]
			}
			recent = append(recent, gc)
			for i := range smoothed {
				smoothed[i] = 0
			}
			for _, r := range recent {
				floats.Add(smoothed, r)
			}
			floats.Scale(1/float64(len(recent)), smoothed)

			gain := m.InitialGain * tau / (tau + float64(k))
			m.lastGain = gain
			copy(prevX, x)
			floats.AddScaled(x, -gain, smoothed)
			k++
			passValue = sf.BatchValueAt(x, batch)
			if math.IsNaN(passValue) {
				return prevX, ErrNaN
			}
		}

		// Record the pass trajectory for a possible QN warm start.
		gEnd := sf.BatchGradientAt(x, order[:min(m.BatchSize, numSamples)])
		s := make([]float64, n)
		y := make([]float64, n)
		floats.SubTo(s, x, passStartX)
		floats.SubTo(y, gEnd, passStartG)
		m.passS = append(m.passS, s)
		m.passY = append(m.passY, y)
		passStartX = nil
		passStartG = nil

		slog.Debug("SGD pass", "pass", pass+1, "batch_value", passValue, "gain", m.lastGain)
	}
	return x, nil
}

// Harvest returns the per-pass position and gradient differences and the
// final gain, for seeding a quasi-Newton run.
func (m *SGDMinimizer) Harvest() (s, y [][]float64, scale float64) {
	return m.passS, m.passY, m.lastGain
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

// TuneGain tries the base gain and up to seven successive halvings of it,
// each in a one-pass trial run scored on a fixed probe batch, while the
// time budget lasts. It returns the gain with the lowest probe value and
// updates InitialGain.
func (m *SGDMinimizer) TuneGain(f StochasticFunction, x0 []float64, budget time.Duration) float64 {
	probe := make([]int, min(m.BatchSize, f.NumSamples()))
	for i := range probe {
		probe[i] = i
	}
	bestGain := m.InitialGain
	bestValue := math.Inf(1)
	deadline := time.Now().Add(budget)

	gain := m.InitialGain
	for trial := 0; trial < 8 && time.Now().Before(deadline); trial++ {
		trialMin := &SGDMinimizer{
			BatchSize:       m.BatchSize,
			Passes:          1,
			InitialGain:     gain,
			SmoothingWindow: m.SmoothingWindow,
			Seed:            m.Seed,
		}
		x, err := trialMin.Minimize(f, x0)
		if err == nil {
			if v := f.BatchValueAt(x, probe); v < bestValue {
				bestValue = v
				bestGain = gain
			}
		}
		gain /= 2
	}
	m.InitialGain = bestGain
	slog.Debug("SGD gain tuned", "gain", bestGain)
	return bestGain
}

// TuneBatchSize doubles the batch size, up to the number of samples, with
// a one-pass trial run scored on a fixed probe batch at each size, while
// the time budget lasts. It returns the size with the lowest probe value
// and updates BatchSize.
func (m *SGDMinimizer) TuneBatchSize(f StochasticFunction, x0 []float64, budget time.Duration) int {
	probe := make([]int, min(32, f.NumSamples()))
	for i := range probe {
		probe[i] = i
	}
	bestSize := m.BatchSize
	bestValue := math.Inf(1)
	deadline := time.Now().Add(budget)

	for size := m.BatchSize; size <= f.NumSamples() && time.Now().Before(deadline); size *= 2 {
		trialMin := &SGDMinimizer{
			BatchSize:       size,
			Passes:          1,
			InitialGain:     m.InitialGain,
			SmoothingWindow: m.SmoothingWindow,
			Seed:            m.Seed,
		}
		x, err := trialMin.Minimize(f, x0)
		if err != nil {
			break
		}
		if v := f.BatchValueAt(x, probe); v < bestValue {
			bestValue = v
			bestSize = size
		}
	}
	m.BatchSize = bestSize
	slog.Debug("SGD batch size tuned", "batch_size", bestSize)
	return bestSize
}
