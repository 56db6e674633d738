package crf

import (
	"math"
	"math/rand"
)

// CoolingSchedule yields the sampling temperature for each Gibbs sweep.
type CoolingSchedule interface {
	TemperatureAt(iteration int) float64
}

// LinearSchedule cools from 1 to 0 over a fixed number of sweeps.
type LinearSchedule struct {
	Sweeps int
}

func (s LinearSchedule) TemperatureAt(iteration int) float64 {
	if s.Sweeps <= 0 {
		return 0
	}
	t := 1 - float64(iteration)/float64(s.Sweeps)
	if t < 0 {
		return 0
	}
	return t
}

// ExponentialSchedule multiplies the temperature by Rate each sweep,
// starting from 1.
type ExponentialSchedule struct {
	Rate float64
}

func (s ExponentialSchedule) TemperatureAt(iteration int) float64 {
	return math.Pow(s.Rate, float64(iteration))
}

// ConstantSchedule holds the temperature fixed. Zero turns every sweep
// into iterated conditional modes.
type ConstantSchedule struct {
	T float64
}

func (s ConstantSchedule) TemperatureAt(int) float64 { return s.T }

// GibbsSampler resamples one position at a time from its conditional
// given the rest of the sequence. All randomness flows through the seeded
// generator, so runs are reproducible.
type GibbsSampler struct {
	rng *rand.Rand
}

// NewGibbsSampler creates a sampler with a deterministic seed.
func NewGibbsSampler(seed int64) *GibbsSampler {
	return &GibbsSampler{rng: rand.New(rand.NewSource(seed))}
}

// FindBestUsingAnnealing runs numSweeps annealed Gibbs sweeps and returns
// the best complete assignment seen, scored by the model. init, when
// non-nil, seeds the chain (typically with the Viterbi sequence);
// otherwise the start is sampled uniformly from the allowed classes.
func (g *GibbsSampler) FindBestUsingAnnealing(m SequenceModel, schedule CoolingSchedule, numSweeps int, init []int) []int {
	n := m.Length()
	if n == 0 {
		return []int{}
	}
	left := m.LeftWindow()
	padded := left + n + m.RightWindow()
	seq := make([]int, padded)
	for p := range left {
		seq[p] = m.PossibleValues(p)[0]
	}
	for p := left; p < padded; p++ {
		if init != nil {
			seq[p] = init[p-left]
		} else {
			vals := m.PossibleValues(p)
			seq[p] = vals[g.rng.Intn(len(vals))]
		}
	}

	best := make([]int, padded)
	copy(best, seq)
	bestScore := m.ScoreOfSequence(seq)

	for sweep := range numSweeps {
		t := schedule.TemperatureAt(sweep)
		for p := left; p < padded; p++ {
			seq[p] = g.samplePosition(m, seq, p, t)
		}
		if score := m.ScoreOfSequence(seq); score > bestScore {
			bestScore = score
			copy(best, seq)
		}
	}
	return best[left : left+n]
}

// samplePosition draws a label from the temperature-warped conditional at
// pos. Zero temperature degenerates to argmax, keeping the current label
// on ties so a mode is a fixed point.
func (g *GibbsSampler) samplePosition(m SequenceModel, seq []int, pos int, t float64) int {
	scores := m.ScoresOf(seq, pos)
	if t <= 0 {
		best := math.Inf(-1)
		for _, s := range scores {
			if s > best {
				best = s
			}
		}
		if scores[seq[pos]] == best {
			return seq[pos]
		}
		for y, s := range scores {
			if s == best {
				return y
			}
		}
		return seq[pos]
	}

	for y := range scores {
		scores[y] /= t
	}
	z := logSumExp(scores)
	r := g.rng.Float64()
	var cum float64
	for y, s := range scores {
		cum += math.Exp(s - z)
		if r < cum {
			return y
		}
	}
	return len(scores) - 1
}
