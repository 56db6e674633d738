package crf

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/happyhackingspace/nertag/optimize"
)

// Classifier owns the indices, weights, and configuration of one CRF
// model, and orchestrates training, decoding, and serialization. A
// trained classifier is immutable and safe for concurrent readers;
// training must not run concurrently with prediction on the same value.
type Classifier struct {
	Flags Flags

	classIndex   *Index
	featureIndex *Index
	labelIndices []*LabelTupleIndex
	featureOrder []int
	weights      [][]float64
	factory      FeatureFactory
	backgroundID int
	dropped      map[string]bool
}

// NewClassifier creates an untrained classifier with the given
// configuration and feature factory.
func NewClassifier(flags Flags, factory FeatureFactory) (*Classifier, error) {
	if err := flags.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		Flags:   flags,
		factory: factory,
		dropped: make(map[string]bool),
	}, nil
}

// Factory returns the classifier's feature factory.
func (c *Classifier) Factory() FeatureFactory { return c.factory }

// Classes returns the label strings in index order.
func (c *Classifier) Classes() []string { return c.classIndex.ToStr }

// NumFeatures returns the size of the feature index.
func (c *Classifier) NumFeatures() int { return c.featureIndex.Size() }

// Train builds the indices from the labeled documents, trains the
// weights, and optionally prunes low-range features and retrains.
func (c *Classifier) Train(docs [][]Token) error {
	if err := c.Flags.Validate(); err != nil {
		return err
	}
	if c.Flags.UseReverse {
		rev := make([][]Token, len(docs))
		for i, d := range docs {
			rev[i] = reverseTokens(d)
		}
		docs = rev
	}

	if err := c.trainOnce(docs); err != nil {
		return err
	}
	for pass := range c.Flags.NumTimesPruneFeatures {
		kept := c.pruneFeatures()
		slog.Info("Pruned features, retraining",
			"pass", pass+1, "kept", kept, "dropped", len(c.dropped))
		if err := c.trainOnce(docs); err != nil {
			return err
		}
	}

	c.featureIndex.Lock()
	if c.Flags.SaveFeatureIndexToDisk && c.Flags.FeatureIndexPath != "" {
		if err := c.writeFeatureIndex(c.Flags.FeatureIndexPath); err != nil {
			return err
		}
	}
	return nil
}

// trainOnce runs one full index-build, encode, and optimize cycle.
func (c *Classifier) trainOnce(docs [][]Token) error {
	c.buildClassIndex(docs)
	c.featureIndex = NewIndex()
	c.featureOrder = nil

	encoded := make([]*EncodedDocument, 0, len(docs))
	for _, d := range docs {
		enc, err := c.encodeTrainingDocument(d)
		if err != nil {
			return err
		}
		encoded = append(encoded, enc)
	}

	if c.Flags.RemoveBackgroundSingletonFeatures {
		c.removeBackgroundSingletons(encoded)
	}

	c.buildLabelIndices(encoded)

	objective := NewLogConditionalObjective(
		encoded, c.labelIndices, c.featureOrder, c.Flags,
		c.classIndex.Size(), c.backgroundID)

	x0 := make([]float64, objective.Dimension())
	if c.Flags.InitialWeights != "" {
		if err := c.loadInitialWeights(x0); err != nil {
			return err
		}
	}

	minimizer, err := c.selectMinimizer()
	if err != nil {
		return err
	}
	slog.Info("Training CRF", "documents", len(docs),
		"features", c.featureIndex.Size(), "parameters", objective.Dimension())

	x, err := minimizer.Minimize(objective, x0)
	if err != nil {
		// A numerical failure keeps the last weights reached before it.
		slog.Warn("Optimizer stopped early", "error", err)
		if objErr := objective.Err(); objErr != nil {
			err = objErr
		} else {
			err = fmt.Errorf("crf: optimizer failed: %w", ErrNumeric)
		}
		c.adoptWeights(x)
		return err
	}
	c.adoptWeights(x)
	return nil
}

// encodeTrainingDocument encodes with feature insertion, skipping
// features previously pruned.
func (c *Classifier) encodeTrainingDocument(tokens []Token) (*EncodedDocument, error) {
	if len(c.dropped) > 0 {
		return c.encodeFiltered(tokens)
	}
	return c.encodeDocument(tokens, true)
}

func (c *Classifier) encodeFiltered(tokens []Token) (*EncodedDocument, error) {
	n := len(tokens)
	doc := &EncodedDocument{Data: make([][][]int, n), Labels: make([]int, n)}
	for j := range n {
		doc.Data[j] = make([][]int, c.Flags.Window)
		for o := range c.Flags.Window {
			for _, fs := range c.factory.FeaturesAt(tokens, j, o) {
				if c.dropped[fs] {
					continue
				}
				known := c.featureIndex.Contains(fs)
				f := c.featureIndex.IndexOfOrAdd(fs)
				if !known {
					c.featureOrder = append(c.featureOrder, o)
				}
				doc.Data[j][o] = append(doc.Data[j][o], f)
			}
		}
		label := c.classIndex.IndexOf(tokens[j].Answer)
		if label < 0 {
			return nil, fmt.Errorf("crf: unknown gold class %q: %w", tokens[j].Answer, ErrData)
		}
		doc.Labels[j] = label
	}
	return doc, nil
}

func (c *Classifier) buildClassIndex(docs [][]Token) {
	c.classIndex = NewIndex()
	c.backgroundID = c.classIndex.IndexOfOrAdd(c.Flags.BackgroundSymbol)
	for _, d := range docs {
		for _, t := range d {
			if t.Answer != "" {
				c.classIndex.IndexOfOrAdd(t.Answer)
			}
		}
	}
}

func (c *Classifier) buildLabelIndices(encoded []*EncodedDocument) {
	w := c.Flags.Window
	numClasses := c.classIndex.Size()
	c.labelIndices = make([]*LabelTupleIndex, w)
	if c.Flags.UseObservedSequencesOnly {
		for o := range w {
			c.labelIndices[o] = NewLabelTupleIndex(o+1, numClasses)
		}
		for _, doc := range encoded {
			for j := range doc.Labels {
				addWithSuffixes(goldWindow(doc.Labels, j, w, c.backgroundID), c.labelIndices)
			}
		}
	} else {
		for o := range w {
			c.labelIndices[o] = AllLabelTuples(o+1, numClasses)
		}
	}
}

// removeBackgroundSingletons drops features that occur exactly once in
// the training data, with the background gold label, then re-encodes.
func (c *Classifier) removeBackgroundSingletons(encoded []*EncodedDocument) {
	counts := make([]int, c.featureIndex.Size())
	nonBG := make([]bool, c.featureIndex.Size())
	for _, doc := range encoded {
		for j := range doc.Data {
			for o := range doc.Data[j] {
				for _, f := range doc.Data[j][o] {
					counts[f]++
					if doc.Labels[j] != c.backgroundID {
						nonBG[f] = true
					}
				}
			}
		}
	}
	keep := make([]bool, c.featureIndex.Size())
	removed := 0
	for f := range keep {
		keep[f] = counts[f] != 1 || nonBG[f]
		if !keep[f] {
			c.dropped[c.featureIndex.Get(f)] = true
			removed++
		}
	}
	if removed > 0 {
		c.remapFeatures(encoded, keep)
		slog.Debug("Removed background singleton features", "removed", removed)
	}
}

// remapFeatures rebuilds the feature index over the kept features and
// rewrites every encoded document in place.
func (c *Classifier) remapFeatures(encoded []*EncodedDocument, keep []bool) {
	newIndex := NewIndex()
	newOrder := make([]int, 0, c.featureIndex.Size())
	remap := make([]int, c.featureIndex.Size())
	for f := range keep {
		if keep[f] {
			remap[f] = newIndex.IndexOfOrAdd(c.featureIndex.Get(f))
			newOrder = append(newOrder, c.featureOrder[f])
		} else {
			remap[f] = -1
		}
	}
	for _, doc := range encoded {
		for j := range doc.Data {
			for o := range doc.Data[j] {
				ids := doc.Data[j][o][:0]
				for _, f := range doc.Data[j][o] {
					if remap[f] >= 0 {
						ids = append(ids, remap[f])
					}
				}
				doc.Data[j][o] = ids
			}
		}
	}
	c.featureIndex = newIndex
	c.featureOrder = newOrder
}

// pruneFeatures marks features whose weight range does not exceed the
// configured threshold and returns how many survive.
func (c *Classifier) pruneFeatures() int {
	kept := 0
	for f, w := range c.weights {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range w {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if len(w) == 0 || hi-lo <= c.Flags.FeatureDiffThresh {
			c.dropped[c.featureIndex.Get(f)] = true
		} else {
			kept++
		}
	}
	return kept
}

func (c *Classifier) selectMinimizer() (optimize.Minimizer, error) {
	f := c.Flags
	switch {
	case f.UseQN:
		qn := optimize.NewQNMinimizer(f.QNSize)
		qn.MaxIterations = f.MaxIterations
		qn.Tolerance = f.Tolerance
		return qn, nil
	case f.UseSGD, f.UseScaledSGD:
		return optimize.NewSGDMinimizer(f.StochasticBatchSize, f.SGDPasses, f.InitialGain, f.Seed), nil
	case f.UseSGDtoQN:
		sgd := optimize.NewSGDMinimizer(f.StochasticBatchSize, f.SGDPasses, f.InitialGain, f.Seed)
		qn := optimize.NewQNMinimizer(f.QNSize)
		qn.Tolerance = f.Tolerance
		return optimize.NewSGDToQNMinimizer(sgd, qn, f.SGDPasses, f.QNPasses), nil
	}
	return nil, fmt.Errorf("crf: no optimizer selected: %w", ErrConfig)
}

// adoptWeights copies the flat vector into the ragged per-feature table.
func (c *Classifier) adoptWeights(x []float64) {
	c.weights = make([][]float64, len(c.featureOrder))
	off := 0
	for f, ord := range c.featureOrder {
		size := c.labelIndices[ord].Size()
		c.weights[f] = append([]float64(nil), x[off:off+size]...)
		off += size
	}
}

func (c *Classifier) loadInitialWeights(x []float64) error {
	data, err := os.ReadFile(c.Flags.InitialWeights)
	if err != nil {
		return fmt.Errorf("crf: reading initial weights: %v: %w", err, ErrResource)
	}
	fields := strings.Fields(string(data))
	if len(fields) != len(x) {
		return fmt.Errorf("crf: initial weights have %d values, want %d: %w",
			len(fields), len(x), ErrData)
	}
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("crf: bad initial weight %q: %w", s, ErrData)
		}
		x[i] = v
	}
	return nil
}

func (c *Classifier) writeFeatureIndex(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("crf: writing feature index: %v: %w", err, ErrResource)
	}
	defer f.Close()
	for _, s := range c.featureIndex.ToStr {
		if _, err := fmt.Fprintln(f, s); err != nil {
			return fmt.Errorf("crf: writing feature index: %v: %w", err, ErrResource)
		}
	}
	return nil
}

// buildTree encodes a document and calibrates its clique tree.
func (c *Classifier) buildTree(tokens []Token) (*CliqueTree, error) {
	enc, err := c.encodeDocument(tokens, false)
	if err != nil {
		return nil, err
	}
	return NewCliqueTree(enc.Data, c.labelIndices, c.weights,
		c.classIndex.Size(), c.Flags.Window, c.backgroundID)
}

// Classify tags a document and returns a copy of the tokens with the
// Answer field set to the predicted class. An empty document returns an
// empty slice.
func (c *Classifier) Classify(tokens []Token) ([]Token, error) {
	ids, err := c.ClassifyIDs(tokens)
	if err != nil {
		return nil, err
	}
	out := make([]Token, len(tokens))
	copy(out, tokens)
	for i, id := range ids {
		out[i].Answer = c.classIndex.Get(id)
	}
	return out, nil
}

// ClassifyIDs tags a document and returns the class IDs.
func (c *Classifier) ClassifyIDs(tokens []Token) ([]int, error) {
	if len(tokens) == 0 {
		return []int{}, nil
	}
	if c.Flags.UseReverse {
		tokens = reverseTokens(tokens)
	}
	tree, err := c.buildTree(tokens)
	if err != nil {
		return nil, err
	}

	var best []int
	chain := NewChainModel(tree)
	switch c.Flags.InferenceType {
	case InferenceBeam:
		best = NewBeamSearcher(c.Flags.BeamSize).BestSequence(chain)
	default:
		best = NewViterbiSearcher().BestSequence(chain)
	}

	if c.Flags.DoGibbs {
		model := c.gibbsModel(tree)
		var init []int
		if c.Flags.InitViterbi {
			init = best
		}
		var schedule CoolingSchedule
		if c.Flags.AnnealingType == AnnealingExponential {
			schedule = ExponentialSchedule{Rate: c.Flags.AnnealingRate}
		} else {
			schedule = LinearSchedule{Sweeps: c.Flags.NumSamples}
		}
		sampler := NewGibbsSampler(c.Flags.Seed)
		best = sampler.FindBestUsingAnnealing(model, schedule, c.Flags.NumSamples, init)
	}

	if c.Flags.UseReverse {
		best = reverseInts(best)
	}
	return best, nil
}

// gibbsModel wraps the clique tree for sampling, factoring in the
// configured entity prior if any.
func (c *Classifier) gibbsModel(tree *CliqueTree) SequenceModel {
	model := NewCliqueTreeModel(tree)
	penalty := 0.0
	switch {
	case c.Flags.UseNERPrior:
		penalty = nerPriorPenalty
	case c.Flags.UseAcqPrior:
		penalty = acqPriorPenalty
	case c.Flags.UseSemPrior:
		penalty = semPriorPenalty
	default:
		return model
	}
	prior := NewEntityPrior(model, c.classIndex.Size(), c.backgroundID, penalty)
	return NewFactoredSequenceModel(model, prior)
}

// ClassifyKBest returns the k highest-scoring labelings with their
// scores, best first.
func (c *Classifier) ClassifyKBest(tokens []Token, k int) ([]ScoredLabeling, error) {
	if len(tokens) == 0 {
		return []ScoredLabeling{}, nil
	}
	if c.Flags.UseReverse {
		tokens = reverseTokens(tokens)
	}
	tree, err := c.buildTree(tokens)
	if err != nil {
		return nil, err
	}
	seqs := NewKBestSearcher(k).KBestSequences(NewChainModel(tree))
	out := make([]ScoredLabeling, len(seqs))
	for i, s := range seqs {
		ids := s.Sequence
		if c.Flags.UseReverse {
			ids = reverseInts(ids)
		}
		labels := make([]string, len(ids))
		for j, id := range ids {
			labels[j] = c.classIndex.Get(id)
		}
		out[i] = ScoredLabeling{Labels: labels, Score: s.Score}
	}
	return out, nil
}

// ScoredLabeling is one decoded labeling and its score.
type ScoredLabeling struct {
	Labels []string
	Score  float64
}

// Marginals returns the per-position normalized class probabilities. An
// empty document returns an empty slice.
func (c *Classifier) Marginals(tokens []Token) ([]map[string]float64, error) {
	if len(tokens) == 0 {
		return []map[string]float64{}, nil
	}
	if c.Flags.UseReverse {
		tokens = reverseTokens(tokens)
	}
	tree, err := c.buildTree(tokens)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]float64, len(tokens))
	for j := range tokens {
		pos := j
		if c.Flags.UseReverse {
			pos = len(tokens) - 1 - j
		}
		m := make(map[string]float64, c.classIndex.Size())
		for y := range c.classIndex.Size() {
			m[c.classIndex.Get(y)] = tree.Prob(pos, y)
		}
		out[j] = m
	}
	return out, nil
}

// FirstOrderMarginals returns the pairwise marginals of adjacent
// positions; entry i describes original positions (i, i+1).
func (c *Classifier) FirstOrderMarginals(tokens []Token) ([][][]float64, error) {
	if len(tokens) < 2 {
		return [][][]float64{}, nil
	}
	if c.Flags.UseReverse {
		tokens = reverseTokens(tokens)
	}
	tree, err := c.buildTree(tokens)
	if err != nil {
		return nil, err
	}
	pairs := tree.FirstOrderMarginals()
	if c.Flags.UseReverse {
		// Reverse pair order and transpose each pair back to the
		// original orientation.
		n := len(pairs)
		out := make([][][]float64, n)
		for i, m := range pairs {
			t := make([][]float64, len(m))
			for a := range m {
				t[a] = make([]float64, len(m))
			}
			for a := range m {
				for b := range m[a] {
					t[b][a] = m[a][b]
				}
			}
			out[n-1-i] = t
		}
		pairs = out
	}
	return pairs, nil
}
