package crf

import (
	"math"
	"math/rand"
	"testing"
)

// bruteBest enumerates every labeling of the test chain and returns the
// best, preferring the lexicographically smallest on exact ties.
func (c *testChain) bruteBest() ([]int, float64) {
	best := []int{0, 0, 0}
	bestScore := math.Inf(-1)
	for a := range 2 {
		for b := range 2 {
			for d := range 2 {
				labels := []int{a, b, d}
				if s := c.score(labels); s > bestScore {
					bestScore = s
					best = labels
				}
			}
		}
	}
	return best, bestScore
}

func TestViterbiMatchesBruteForce(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		c := newTestChain(rand.New(rand.NewSource(seed)))
		tree := c.tree(t)
		got := NewViterbiSearcher().BestSequence(NewChainModel(tree))
		want, _ := c.bruteBest()
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("seed %d: Viterbi = %v, want %v", seed, got, want)
			}
		}
	}
}

func TestBeamEqualsViterbiWhenWide(t *testing.T) {
	for seed := int64(20); seed < 35; seed++ {
		c := newTestChain(rand.New(rand.NewSource(seed)))
		tree := c.tree(t)
		chain := NewChainModel(tree)
		viterbi := NewViterbiSearcher().BestSequence(chain)
		// Beam of C^(W-1) contexts is exhaustive.
		beam := NewBeamSearcher(2).BestSequence(chain)
		for j := range viterbi {
			if beam[j] != viterbi[j] {
				t.Fatalf("seed %d: beam = %v, viterbi = %v", seed, beam, viterbi)
			}
		}
	}
}

func TestKBestOneBestEqualsViterbi(t *testing.T) {
	for seed := int64(35); seed < 50; seed++ {
		c := newTestChain(rand.New(rand.NewSource(seed)))
		tree := c.tree(t)
		chain := NewChainModel(tree)
		viterbi := NewViterbiSearcher().BestSequence(chain)
		kbest := NewKBestSearcher(1).KBestSequences(chain)
		if len(kbest) != 1 {
			t.Fatalf("seed %d: got %d sequences, want 1", seed, len(kbest))
		}
		for j := range viterbi {
			if kbest[0].Sequence[j] != viterbi[j] {
				t.Fatalf("seed %d: 1-best = %v, viterbi = %v", seed, kbest[0].Sequence, viterbi)
			}
		}
	}
}

func TestKBestEnumeratesAllInOrder(t *testing.T) {
	c := newTestChain(rand.New(rand.NewSource(51)))
	tree := c.tree(t)
	kbest := NewKBestSearcher(8).KBestSequences(NewChainModel(tree))
	if len(kbest) != 8 {
		t.Fatalf("got %d sequences, want all 8", len(kbest))
	}
	for i := 1; i < len(kbest); i++ {
		if kbest[i].Score > kbest[i-1].Score+1e-12 {
			t.Errorf("sequence %d outscores sequence %d", i, i-1)
		}
	}
	// Scores are raw sequence scores up to the shared normalizer.
	for _, s := range kbest {
		want := c.score(s.Sequence) - c.logZ()
		if math.Abs(s.Score-want) > 1e-9 {
			t.Errorf("sequence %v score = %v, want %v", s.Sequence, s.Score, want)
		}
	}
}

func TestChainModelScoreOfSequence(t *testing.T) {
	c := newTestChain(rand.New(rand.NewSource(52)))
	tree := c.tree(t)
	chain := NewChainModel(tree)
	labels := []int{1, 1, 0}
	padded := append([]int{0}, labels...)
	want := c.score(labels) - c.logZ()
	if got := chain.ScoreOfSequence(padded); math.Abs(got-want) > 1e-9 {
		t.Errorf("ScoreOfSequence = %v, want %v", got, want)
	}
}

func TestGibbsConditionalMatchesFlipEnumeration(t *testing.T) {
	// The sampling model's ScoresOf must be the conditional of the label
	// at a position given the rest of the sequence, up to a constant.
	c := newTestChain(rand.New(rand.NewSource(53)))
	tree := c.tree(t)
	model := NewCliqueTreeModel(tree)

	seq := []int{0, 1, 0, 1} // padded: background then three labels
	for pos := 1; pos < 4; pos++ {
		scores := model.ScoresOf(seq, pos)
		z := logSumExp(scores)
		for y := range 2 {
			flipped := append([]int(nil), seq...)
			flipped[pos] = y
			labels := flipped[1:]
			var denom []float64
			for alt := range 2 {
				other := append([]int(nil), labels...)
				other[pos-1] = alt
				denom = append(denom, c.score(other))
			}
			want := c.score(labels) - logSumExp(denom)
			if got := scores[y] - z; math.Abs(got-want) > 1e-9 {
				t.Errorf("pos %d class %d: conditional %v, want %v", pos, y, got, want)
			}
		}
	}
}

func TestGibbsZeroTemperatureReturnsViterbi(t *testing.T) {
	for seed := int64(60); seed < 70; seed++ {
		c := newTestChain(rand.New(rand.NewSource(seed)))
		tree := c.tree(t)
		viterbi := NewViterbiSearcher().BestSequence(NewChainModel(tree))

		sampler := NewGibbsSampler(seed)
		got := sampler.FindBestUsingAnnealing(
			NewCliqueTreeModel(tree), ConstantSchedule{T: 0}, 5, viterbi)
		for j := range viterbi {
			if got[j] != viterbi[j] {
				t.Fatalf("seed %d: annealed = %v, viterbi = %v", seed, got, viterbi)
			}
		}
	}
}

func TestGibbsDeterministicGivenSeed(t *testing.T) {
	c := newTestChain(rand.New(rand.NewSource(71)))
	tree := c.tree(t)
	model := NewCliqueTreeModel(tree)
	schedule := LinearSchedule{Sweeps: 20}

	a := NewGibbsSampler(42).FindBestUsingAnnealing(model, schedule, 20, nil)
	b := NewGibbsSampler(42).FindBestUsingAnnealing(model, schedule, 20, nil)
	for j := range a {
		if a[j] != b[j] {
			t.Fatalf("same seed diverged: %v vs %v", a, b)
		}
	}
}

func TestCoolingSchedules(t *testing.T) {
	lin := LinearSchedule{Sweeps: 4}
	if lin.TemperatureAt(0) != 1 || lin.TemperatureAt(4) != 0 {
		t.Errorf("linear endpoints: %v, %v", lin.TemperatureAt(0), lin.TemperatureAt(4))
	}
	exp := ExponentialSchedule{Rate: 0.5}
	if exp.TemperatureAt(2) != 0.25 {
		t.Errorf("exponential at 2 = %v, want 0.25", exp.TemperatureAt(2))
	}
}

func TestFactoredSequenceModelSums(t *testing.T) {
	c := newTestChain(rand.New(rand.NewSource(72)))
	tree := c.tree(t)
	model := NewCliqueTreeModel(tree)
	prior := NewEntityPrior(model, 2, 0, 2.5)
	combined := NewFactoredSequenceModel(model, prior)

	seq := []int{0, 1, 1, 0}
	for pos := 1; pos < 4; pos++ {
		a := model.ScoresOf(seq, pos)
		b := prior.ScoresOf(seq, pos)
		sum := combined.ScoresOf(seq, pos)
		for y := range sum {
			if math.Abs(sum[y]-(a[y]+b[y])) > 1e-12 {
				t.Errorf("pos %d class %d: %v != %v + %v", pos, y, sum[y], a[y], b[y])
			}
		}
	}
}

func TestEntityPriorPenalizesTypeSwitch(t *testing.T) {
	c := newTestChain(rand.New(rand.NewSource(73)))
	tree := c.tree(t)
	model := NewCliqueTreeModel(tree)
	prior := NewEntityPrior(model, 3, 0, 1.0)

	// Adjacent distinct entity types are penalized once per boundary.
	clean := []int{0, 1, 1, 0}
	mixed := []int{0, 1, 2, 0}
	if got := prior.ScoreOfSequence(clean); got != 0 {
		t.Errorf("clean run scored %v, want 0", got)
	}
	if got := prior.ScoreOfSequence(mixed); got != -1 {
		t.Errorf("mixed run scored %v, want -1", got)
	}
}

func TestDecodersEmptyDocument(t *testing.T) {
	tree, err := NewCliqueTree(nil, []*LabelTupleIndex{AllLabelTuples(1, 2), AllLabelTuples(2, 2)}, nil, 2, 2, 0)
	if err != nil {
		t.Fatalf("NewCliqueTree: %v", err)
	}
	chain := NewChainModel(tree)
	if got := NewViterbiSearcher().BestSequence(chain); len(got) != 0 {
		t.Errorf("Viterbi on empty document = %v", got)
	}
	if got := NewBeamSearcher(3).BestSequence(chain); len(got) != 0 {
		t.Errorf("beam on empty document = %v", got)
	}
	if got := NewGibbsSampler(1).FindBestUsingAnnealing(NewCliqueTreeModel(tree), ConstantSchedule{}, 3, nil); len(got) != 0 {
		t.Errorf("Gibbs on empty document = %v", got)
	}
}
