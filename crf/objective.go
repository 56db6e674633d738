package crf

import (
	"fmt"
	"math"
)

// LogConditionalObjective is the negative regularized log conditional
// likelihood of a training set and its gradient, computed as expected
// minus empirical feature counts. It serves both whole-batch quasi-Newton
// training and mini-batch stochastic training; mini-batch results scale
// the empirical counts and the regularizer by |batch|/|data| so they
// estimate the full objective without bias.
//
// The last evaluation is cached against its argument; any coordinate
// change invalidates it.
type LogConditionalObjective struct {
	docs         []*EncodedDocument
	labelIndices []*LabelTupleIndex
	featureOrder []int
	window       int
	numClasses   int
	backgroundID int

	prior   string
	sigma   float64
	epsilon float64

	offsets   []int
	dimension int
	empirical []float64

	lastX     []float64
	lastValue float64
	lastGrad  []float64

	err error
}

// NewLogConditionalObjective precomputes the weight layout and the
// empirical feature counts for a fixed encoded training set.
func NewLogConditionalObjective(docs []*EncodedDocument, labelIndices []*LabelTupleIndex, featureOrder []int, flags Flags, numClasses, backgroundID int) *LogConditionalObjective {
	o := &LogConditionalObjective{
		docs:         docs,
		labelIndices: labelIndices,
		featureOrder: featureOrder,
		window:       flags.Window,
		numClasses:   numClasses,
		backgroundID: backgroundID,
		prior:        flags.Prior,
		sigma:        flags.Sigma,
		epsilon:      flags.Epsilon,
	}
	o.offsets = make([]int, len(featureOrder))
	for f, ord := range featureOrder {
		o.offsets[f] = o.dimension
		o.dimension += labelIndices[ord].Size()
	}
	o.empirical = make([]float64, o.dimension)
	for _, doc := range docs {
		o.accumulateEmpirical(doc)
	}
	return o
}

// accumulateEmpirical counts each feature against the gold label window
// of its order, padded on the left with background.
func (o *LogConditionalObjective) accumulateEmpirical(doc *EncodedDocument) {
	for j := range doc.Data {
		for ord := range o.window {
			if len(doc.Data[j][ord]) == 0 {
				continue
			}
			tuple := goldWindow(doc.Labels, j, ord+1, o.backgroundID)
			k := o.labelIndices[ord].IndexOf(tuple)
			if k < 0 {
				continue
			}
			for _, f := range doc.Data[j][ord] {
				o.empirical[o.offsets[f]+k]++
			}
		}
	}
}

// Dimension returns the flat parameter count.
func (o *LogConditionalObjective) Dimension() int { return o.dimension }

// NumSamples returns the number of training documents.
func (o *LogConditionalObjective) NumSamples() int { return len(o.docs) }

// EmpiricalCount returns the gold co-occurrence count of one weight slot.
func (o *LogConditionalObjective) EmpiricalCount(f, k int) float64 {
	return o.empirical[o.offsets[f]+k]
}

// Err returns the first numerical failure encountered, if any.
func (o *LogConditionalObjective) Err() error { return o.err }

// unpack views the flat vector as the ragged per-feature weight table
// without copying.
func (o *LogConditionalObjective) unpack(x []float64) [][]float64 {
	w := make([][]float64, len(o.offsets))
	for f, off := range o.offsets {
		w[f] = x[off : off+o.labelIndices[o.featureOrder[f]].Size()]
	}
	return w
}

func sameVector(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValueAt returns the objective at x, evaluating over all documents.
func (o *LogConditionalObjective) ValueAt(x []float64) float64 {
	o.ensure(x, nil)
	return o.lastValue
}

// GradientAt returns the gradient at x, evaluating over all documents.
// Callers must not mutate the result.
func (o *LogConditionalObjective) GradientAt(x []float64) []float64 {
	o.ensure(x, nil)
	return o.lastGrad
}

// BatchValueAt returns the unbiased mini-batch estimate of the objective.
func (o *LogConditionalObjective) BatchValueAt(x []float64, batch []int) float64 {
	v, _ := o.compute(x, batch)
	return v
}

// BatchGradientAt returns the unbiased mini-batch gradient estimate.
func (o *LogConditionalObjective) BatchGradientAt(x []float64, batch []int) []float64 {
	_, g := o.compute(x, batch)
	return g
}

func (o *LogConditionalObjective) ensure(x []float64, batch []int) {
	if o.lastX != nil && sameVector(o.lastX, x) {
		return
	}
	v, g := o.compute(x, batch)
	o.lastX = append(o.lastX[:0], x...)
	o.lastValue = v
	o.lastGrad = g
}

// compute walks the documents of the batch (nil means all), building a
// calibrated clique tree per document to collect the conditional log
// likelihood of the gold labels and the expected feature counts.
func (o *LogConditionalObjective) compute(x []float64, batch []int) (float64, []float64) {
	weights := o.unpack(x)
	grad := make([]float64, o.dimension)
	scale := 1.0
	docs := o.docs
	if batch != nil {
		docs = make([]*EncodedDocument, len(batch))
		for i, b := range batch {
			docs[i] = o.docs[b]
		}
		scale = float64(len(batch)) / float64(len(o.docs))
	}

	var logLik float64
	for _, doc := range docs {
		tree, err := NewCliqueTree(doc.Data, o.labelIndices, weights, o.numClasses, o.window, o.backgroundID)
		if err != nil {
			o.fail(err)
			return math.NaN(), grad
		}
		p := tree.GoldLogProb(doc.Labels)
		if math.IsNaN(p) || math.IsInf(p, 1) {
			o.fail(fmt.Errorf("crf: log likelihood is %v: %w", p, ErrNumeric))
			return math.NaN(), grad
		}
		logLik += p
		o.accumulateExpected(tree, doc, grad)
	}

	// Gradient of the negative log likelihood: expected minus empirical.
	for i := range grad {
		grad[i] -= scale * o.empirical[i]
	}
	value := -logLik
	value += o.regularize(x, grad, scale)
	if math.IsNaN(value) {
		o.fail(fmt.Errorf("crf: objective is NaN: %w", ErrNumeric))
		return math.NaN(), grad
	}
	return value, grad
}

func (o *LogConditionalObjective) fail(err error) {
	if o.err == nil {
		o.err = err
	}
}

// accumulateExpected adds the model's expected count of every active
// feature and label window under the calibrated tree.
func (o *LogConditionalObjective) accumulateExpected(tree *CliqueTree, doc *EncodedDocument, grad []float64) {
	z := tree.LogNormalization()
	for j := range doc.Data {
		factor := tree.Factor(j)
		for ord := range o.window {
			feats := doc.Data[j][ord]
			if len(feats) == 0 {
				continue
			}
			ix := o.labelIndices[ord]
			for k := range ix.Size() {
				p := math.Exp(factor.UnnormalizedLogProbEnd(ix.Get(k)) - z)
				if p == 0 {
					continue
				}
				for _, f := range feats {
					grad[o.offsets[f]+k] += p
				}
			}
		}
	}
}

// regularize adds the penalty term to the value and gradient, scaled for
// mini-batches.
func (o *LogConditionalObjective) regularize(x, grad []float64, scale float64) float64 {
	var value float64
	switch o.prior {
	case PriorQuadratic:
		twoSigmaSq := 2 * o.sigma * o.sigma
		for i, w := range x {
			value += w * w / twoSigmaSq
			grad[i] += scale * w / (o.sigma * o.sigma)
		}
	case PriorHuber:
		sigmaSq := o.sigma * o.sigma
		for i, w := range x {
			abs := math.Abs(w)
			if abs < o.epsilon {
				value += w * w / (2 * o.epsilon * sigmaSq)
				grad[i] += scale * w / (o.epsilon * sigmaSq)
			} else {
				value += (abs - o.epsilon/2) / sigmaSq
				if w > 0 {
					grad[i] += scale / sigmaSq
				} else {
					grad[i] -= scale / sigmaSq
				}
			}
		}
	case PriorQuartic:
		sigmaQu := o.sigma * o.sigma * o.sigma * o.sigma
		for i, w := range x {
			value += w * w * w * w / (2 * sigmaQu)
			grad[i] += scale * w / sigmaQu
		}
	}
	return scale * value
}
