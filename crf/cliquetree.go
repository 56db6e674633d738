package crf

import (
	"fmt"
	"math"
)

// CliqueTree is a chain of calibrated factor tables, one per token
// position. Table j spans the labels of positions j-window+1 .. j; after
// calibration every table carries the same total mass, the log partition
// function. Positions before the document start are clamped to the
// background class.
type CliqueTree struct {
	factors      []*FactorTable
	numClasses   int
	window       int
	backgroundID int
	z            float64
}

// NewCliqueTree builds and calibrates a clique tree for one encoded
// document. data[j][o] lists the feature IDs active at position j for
// clique order o+1; weights[f] is indexed by the dense tuple ID of the
// order that feature parameterizes.
func NewCliqueTree(data [][][]int, labelIndices []*LabelTupleIndex, weights [][]float64, numClasses, window, backgroundID int) (*CliqueTree, error) {
	n := len(data)
	factors := make([]*FactorTable, n)
	for j := range n {
		factors[j] = assembleFactor(data[j], labelIndices, weights, numClasses, window)
		clampPrehistory(factors[j], j, window, backgroundID)
	}

	// Forward sweep: push each table's mass over its shared labels into
	// the next table.
	messages := make([]*FactorTable, n)
	for j := 1; j < n; j++ {
		messages[j-1] = factors[j-1].SumOutFront()
		factors[j].MultiplyInFront(messages[j-1])
	}
	// Backward sweep: return the tail mass, cancelling the forward
	// message so it is not double counted.
	for j := n - 2; j >= 0; j-- {
		s := factors[j+1].SumOutEnd()
		s.DivideBy(messages[j])
		factors[j].MultiplyInEnd(s)
	}

	for j := range n {
		if factors[j].HasNaN() {
			return nil, fmt.Errorf("crf: NaN in factor table %d after calibration: %w", j, ErrNumeric)
		}
	}

	t := &CliqueTree{
		factors:      factors,
		numClasses:   numClasses,
		window:       window,
		backgroundID: backgroundID,
	}
	if n > 0 {
		t.z = factors[0].TotalMass()
	}
	return t, nil
}

// assembleFactor builds the raw table for one position: each clique order
// contributes the summed weights of its active features, embedded at the
// trailing end of the full window.
func assembleFactor(posData [][]int, labelIndices []*LabelTupleIndex, weights [][]float64, numClasses, window int) *FactorTable {
	full := NewFactorTable(numClasses, window)
	for o := range window {
		feats := posData[o]
		if len(feats) == 0 {
			continue
		}
		part := NewFactorTable(numClasses, o+1)
		ix := labelIndices[o]
		for k := range ix.Size() {
			var v float64
			for _, f := range feats {
				v += weights[f][k]
			}
			part.SetAt(ix.Get(k).Pack(numClasses), v)
		}
		full.MultiplyInEnd(part)
	}
	return full
}

// clampPrehistory zeroes the mass of every entry whose before-start labels
// are not the background class. Table j at j < window-1 spans positions
// before the document; those slots are fixed padding.
func clampPrehistory(f *FactorTable, pos, window, backgroundID int) {
	pad := window - 1 - pos
	if pad <= 0 {
		return
	}
	rest := intPow(f.NumClasses(), window-pad)
	padBG := make(LabelTuple, pad)
	for i := range padBG {
		padBG[i] = backgroundID
	}
	want := padBG.Pack(f.NumClasses())
	for i := 0; i < f.Size(); i++ {
		if i/rest != want {
			f.SetAt(i, math.Inf(-1))
		}
	}
}

// Length returns the number of token positions.
func (t *CliqueTree) Length() int { return len(t.factors) }

// Window returns the clique width.
func (t *CliqueTree) Window() int { return t.window }

// NumClasses returns the label count.
func (t *CliqueTree) NumClasses() int { return t.numClasses }

// BackgroundID returns the padding class.
func (t *CliqueTree) BackgroundID() int { return t.backgroundID }

// Factor returns the calibrated table at a position.
func (t *CliqueTree) Factor(pos int) *FactorTable { return t.factors[pos] }

// LogNormalization returns log Z, the shared total mass of every
// calibrated table. Zero for an empty document.
func (t *CliqueTree) LogNormalization() float64 {
	if len(t.factors) == 0 {
		return 0
	}
	return t.z
}

// LogProb returns the normalized log marginal of one label at a position.
func (t *CliqueTree) LogProb(pos, label int) float64 {
	return t.factors[pos].UnnormalizedLogProbEnd(LabelTuple{label}) - t.z
}

// Prob returns the normalized marginal of one label at a position.
func (t *CliqueTree) Prob(pos, label int) float64 {
	return math.Exp(t.LogProb(pos, label))
}

// Probs returns the full normalized marginal at a position.
func (t *CliqueTree) Probs(pos int) []float64 {
	out := make([]float64, t.numClasses)
	for y := range out {
		out[y] = t.Prob(pos, y)
	}
	return out
}

// LogProbTuple returns the normalized log marginal of a label tuple
// terminating at pos. The tuple length must not exceed the window.
func (t *CliqueTree) LogProbTuple(pos int, tuple LabelTuple) float64 {
	return t.factors[pos].UnnormalizedLogProbEnd(tuple) - t.z
}

// CondLogProbGivenPrevious returns log p(label at pos | the window-1
// previous labels). Previous labels that fall before the document are
// expected to be the background class.
func (t *CliqueTree) CondLogProbGivenPrevious(pos, label int, prev LabelTuple) float64 {
	return t.factors[pos].ConditionalLogProbGivenPrevious(prev, label)
}

// CondLogProbsGivenPrevious returns the normalized conditional over the
// label at pos given the window-1 previous labels.
func (t *CliqueTree) CondLogProbsGivenPrevious(pos int, prev LabelTuple) []float64 {
	return t.factors[pos].ConditionalLogProbsGivenPrevious(prev)
}

// CondLogProbGivenNext returns log p(label at pos | the window-1 following
// labels). Valid when pos+window-1 is inside the document.
func (t *CliqueTree) CondLogProbGivenNext(pos, label int, next LabelTuple) float64 {
	return t.factors[pos+t.window-1].ConditionalLogProbGivenNext(next, label)
}

// GoldLogProb sums the conditional log probability of each gold label
// given its preceding window, i.e. the log conditional likelihood of the
// whole sequence. Labels before the start read as background.
func (t *CliqueTree) GoldLogProb(labels []int) float64 {
	var total float64
	prev := make(LabelTuple, t.window-1)
	for j := range t.factors {
		for k := range prev {
			p := j - (t.window - 1) + k
			if p < 0 {
				prev[k] = t.backgroundID
			} else {
				prev[k] = labels[p]
			}
		}
		total += t.CondLogProbGivenPrevious(j, labels[j], prev)
	}
	return total
}

// FirstOrderMarginals returns the pairwise marginals p(y at pos-1, y' at
// pos) for every adjacent pair. Requires window >= 2; index 0 of the
// result describes positions (0, 1).
func (t *CliqueTree) FirstOrderMarginals() [][][]float64 {
	n := len(t.factors)
	if n < 2 || t.window < 2 {
		return nil
	}
	out := make([][][]float64, n-1)
	pair := make(LabelTuple, 2)
	for j := 1; j < n; j++ {
		m := make([][]float64, t.numClasses)
		for a := range t.numClasses {
			m[a] = make([]float64, t.numClasses)
			for b := range t.numClasses {
				pair[0], pair[1] = a, b
				m[a][b] = math.Exp(t.factors[j].UnnormalizedLogProbEnd(pair) - t.z)
			}
		}
		out[j-1] = m
	}
	return out
}
