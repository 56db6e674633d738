package crf

import (
	"math"
	"sort"
)

// chainModel scores a position by the conditional of its label given the
// preceding window only. Per-position scores then telescope to the log
// probability of the whole sequence, which makes the dynamic-programming
// decoders exact. The Gibbs sampler uses NewCliqueTreeModel instead.
type chainModel struct {
	*cliqueTreeModel
}

// NewChainModel wraps a calibrated clique tree as a SequenceModel whose
// scores decompose along the chain.
func NewChainModel(tree *CliqueTree) SequenceModel {
	return &chainModel{NewCliqueTreeModel(tree).(*cliqueTreeModel)}
}

func (m *chainModel) ScoresOf(sequence []int, pos int) []float64 {
	left := m.LeftWindow()
	prev := LabelTuple(sequence[pos-left : pos])
	return m.tree.CondLogProbsGivenPrevious(pos-left, prev)
}

func (m *chainModel) ScoreOf(sequence []int, pos int) float64 {
	return m.ScoresOf(sequence, pos)[sequence[pos]]
}

// contextSpace enumerates decoder states: the packed tuples of the last
// LeftWindow() labels. The decoders run over extended positions, with the
// leading LeftWindow() slots pinned to the background class.
type contextSpace struct {
	model      SequenceModel
	numClasses int
	left       int
	states     int // numClasses^left
	padded     int
	background int
}

func newContextSpace(m SequenceModel) contextSpace {
	numClasses := 0
	for _, v := range m.PossibleValues(m.LeftWindow()) {
		if v+1 > numClasses {
			numClasses = v + 1
		}
	}
	bg := m.PossibleValues(0)[0]
	if m.LeftWindow() == 0 {
		bg = 0
	}
	return contextSpace{
		model:      m,
		numClasses: numClasses,
		left:       m.LeftWindow(),
		states:     intPow(numClasses, m.LeftWindow()),
		padded:     m.LeftWindow() + m.Length() + m.RightWindow(),
		background: bg,
	}
}

// startState is the all-background context that precedes the document.
func (c contextSpace) startState() int {
	s := 0
	for range c.left {
		s = s*c.numClasses + c.background
	}
	return s
}

// advance shifts a label into a context, dropping its oldest label.
func (c contextSpace) advance(state, label int) int {
	if c.left == 0 {
		return 0
	}
	return (state*c.numClasses + label) % c.states
}

// fill writes the labels of a context into the extended sequence so the
// model can score position pos with label y.
func (c contextSpace) fill(seq []int, pos, state, y int) {
	seq[pos] = y
	for i := pos - 1; i >= pos-c.left; i-- {
		seq[i] = state % c.numClasses
		state /= c.numClasses
	}
}

// ViterbiSearcher finds the exact best sequence by dynamic programming
// over windowed contexts. Ties break toward the smallest class ID.
type ViterbiSearcher struct{}

// NewViterbiSearcher creates an exact decoder.
func NewViterbiSearcher() *ViterbiSearcher { return &ViterbiSearcher{} }

// BestSequence returns the highest-scoring tag assignment for the real
// token positions. Empty input yields an empty sequence.
func (v *ViterbiSearcher) BestSequence(m SequenceModel) []int {
	if m.Length() == 0 {
		return []int{}
	}
	c := newContextSpace(m)
	seq := make([]int, c.padded)

	delta := make([]float64, c.states)
	for i := range delta {
		delta[i] = math.Inf(-1)
	}
	delta[c.startState()] = 0
	// back[p][state] is the context the best path was in before absorbing
	// the label that produced state at extended position p.
	back := make([][]int32, c.padded)

	next := make([]float64, c.states)
	for p := c.left; p < c.padded; p++ {
		for i := range next {
			next[i] = math.Inf(-1)
		}
		back[p] = make([]int32, c.states)
		for state := range c.states {
			if math.IsInf(delta[state], -1) {
				continue
			}
			for _, y := range m.PossibleValues(p) {
				c.fill(seq, p, state, y)
				score := delta[state] + m.ScoreOf(seq, p)
				ns := c.advance(state, y)
				if score > next[ns] {
					next[ns] = score
					back[p][ns] = int32(state)
				}
			}
		}
		copy(delta, next)
	}

	best, bestScore := 0, math.Inf(-1)
	for state := range c.states {
		if delta[state] > bestScore {
			bestScore = delta[state]
			best = state
		}
	}

	out := make([]int, m.Length())
	state := best
	for p := c.padded - 1; p >= c.left; p-- {
		out[p-c.left] = state % c.numClasses
		if c.left > 0 {
			state = int(back[p][state])
		} else {
			// With no context the per-position argmax stands alone.
			state = 0
		}
	}
	if c.left == 0 {
		// Window 1: positions are independent; recover each argmax.
		for p := c.left; p < c.padded; p++ {
			bestY, bestS := 0, math.Inf(-1)
			for _, y := range m.PossibleValues(p) {
				c.fill(seq, p, 0, y)
				if s := m.ScoreOf(seq, p); s > bestS {
					bestS, bestY = s, y
				}
			}
			out[p-c.left] = bestY
		}
	}
	return out
}

// BeamSearcher keeps a bounded frontier of contexts per position. With a
// beam at least as large as the context space it matches Viterbi.
type BeamSearcher struct {
	BeamSize int
}

// NewBeamSearcher creates a beam decoder of the given width.
func NewBeamSearcher(size int) *BeamSearcher { return &BeamSearcher{BeamSize: size} }

type beamEntry struct {
	state int
	score float64
	prev  int // index into previous frontier
	label int
}

// BestSequence returns the best sequence found within the beam.
func (b *BeamSearcher) BestSequence(m SequenceModel) []int {
	if m.Length() == 0 {
		return []int{}
	}
	c := newContextSpace(m)
	seq := make([]int, c.padded)

	frontier := []beamEntry{{state: c.startState(), prev: -1}}
	history := make([][]beamEntry, 0, c.padded-c.left)

	for p := c.left; p < c.padded; p++ {
		bestByState := make(map[int]beamEntry, len(frontier)*c.numClasses)
		for fi, e := range frontier {
			for _, y := range m.PossibleValues(p) {
				c.fill(seq, p, e.state, y)
				score := e.score + m.ScoreOf(seq, p)
				ns := c.advance(e.state, y)
				cur, ok := bestByState[ns]
				if !ok || score > cur.score {
					bestByState[ns] = beamEntry{state: ns, score: score, prev: fi, label: y}
				}
			}
		}
		cand := make([]beamEntry, 0, len(bestByState))
		for _, e := range bestByState {
			cand = append(cand, e)
		}
		sort.Slice(cand, func(i, j int) bool {
			if cand[i].score != cand[j].score {
				return cand[i].score > cand[j].score
			}
			return cand[i].state < cand[j].state
		})
		if len(cand) > b.BeamSize {
			cand = cand[:b.BeamSize]
		}
		history = append(history, cand)
		frontier = cand
	}

	out := make([]int, m.Length())
	idx := 0 // frontier is sorted, best first
	for p := len(history) - 1; p >= 0; p-- {
		e := history[p][idx]
		out[p] = e.label
		idx = e.prev
	}
	return out
}

// ScoredSequence is one decoded assignment and its model score.
type ScoredSequence struct {
	Sequence []int
	Score    float64
}

// KBestSearcher enumerates the k highest-scoring sequences by keeping k
// back-pointers per context.
type KBestSearcher struct {
	K int
}

// NewKBestSearcher creates a k-best decoder.
func NewKBestSearcher(k int) *KBestSearcher { return &KBestSearcher{K: k} }

type kbestEntry struct {
	score float64
	prev  int // previous context
	rank  int // rank within previous context's list
	label int
}

// KBestSequences returns up to k sequences ordered by decreasing score.
// The 1-best equals the Viterbi sequence.
func (kb *KBestSearcher) KBestSequences(m SequenceModel) []ScoredSequence {
	if m.Length() == 0 {
		return []ScoredSequence{{Sequence: []int{}, Score: 0}}
	}
	c := newContextSpace(m)
	seq := make([]int, c.padded)

	lists := make([][]kbestEntry, c.states)
	lists[c.startState()] = []kbestEntry{{prev: -1}}
	trellis := make([][][]kbestEntry, c.padded)

	for p := c.left; p < c.padded; p++ {
		next := make([][]kbestEntry, c.states)
		for state := range c.states {
			for rank, e := range lists[state] {
				for _, y := range m.PossibleValues(p) {
					c.fill(seq, p, state, y)
					score := e.score + m.ScoreOf(seq, p)
					ns := c.advance(state, y)
					next[ns] = append(next[ns], kbestEntry{score: score, prev: state, rank: rank, label: y})
				}
			}
		}
		for ns := range next {
			sort.Slice(next[ns], func(i, j int) bool {
				if next[ns][i].score != next[ns][j].score {
					return next[ns][i].score > next[ns][j].score
				}
				return next[ns][i].label < next[ns][j].label
			})
			if len(next[ns]) > kb.K {
				next[ns] = next[ns][:kb.K]
			}
		}
		trellis[p] = next
		lists = next
	}

	// Gather the global top k endpoints, then trace each back.
	type endpoint struct {
		state, rank int
		score       float64
	}
	var ends []endpoint
	for state := range c.states {
		for rank, e := range lists[state] {
			ends = append(ends, endpoint{state: state, rank: rank, score: e.score})
		}
	}
	sort.Slice(ends, func(i, j int) bool {
		if ends[i].score != ends[j].score {
			return ends[i].score > ends[j].score
		}
		return ends[i].state < ends[j].state
	})
	if len(ends) > kb.K {
		ends = ends[:kb.K]
	}

	out := make([]ScoredSequence, len(ends))
	for i, end := range ends {
		labels := make([]int, m.Length())
		state, rank := end.state, end.rank
		for p := c.padded - 1; p >= c.left; p-- {
			e := trellis[p][state][rank]
			labels[p-c.left] = e.label
			state, rank = e.prev, e.rank
		}
		out[i] = ScoredSequence{Sequence: labels, Score: end.score}
	}
	return out
}
