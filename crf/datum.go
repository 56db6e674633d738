package crf

import (
	"fmt"
	"sort"
)

// Token is one observed unit of a document: a word and its answer label.
// The engine treats tokens only as bags of feature strings per clique
// order plus a class; everything else about a token lives in the feature
// factory.
type Token struct {
	Word   string
	Answer string
}

// FeatureFactory turns token context into feature strings, one collection
// per clique order. Implementations must emit each distinct feature
// string at a single order, and are identified by a stable name persisted
// in the model file.
type FeatureFactory interface {
	Name() string
	// FeaturesAt returns the features of the given clique order (0-based)
	// at the focus position. Context positions outside [0, len(tokens))
	// are padding; features.WordFactory reads them as the word "<S>".
	FeaturesAt(tokens []Token, pos, order int) []string
}

var factoryRegistry = map[string]func() FeatureFactory{}

// RegisterFeatureFactory makes a factory constructor available for model
// deserialization under its stable name.
func RegisterFeatureFactory(name string, ctor func() FeatureFactory) {
	factoryRegistry[name] = ctor
}

// NewFeatureFactory instantiates a registered factory by name.
func NewFeatureFactory(name string) (FeatureFactory, error) {
	ctor, ok := factoryRegistry[name]
	if !ok {
		return nil, fmt.Errorf("crf: unknown feature factory %q: %w", name, ErrFormat)
	}
	return ctor(), nil
}

// EncodedDocument is a document reduced to dense IDs: Data[j][o] holds
// the feature IDs active at position j for clique order o+1, and
// Labels[j] the gold class at j.
type EncodedDocument struct {
	Data   [][][]int
	Labels []int
}

// encodeDocument converts tokens into an encoded document. With addFeatures
// set, unseen features are inserted into the index and their order
// recorded; otherwise unknown features are silently dropped, since they
// cannot affect any score.
func (c *Classifier) encodeDocument(tokens []Token, addFeatures bool) (*EncodedDocument, error) {
	n := len(tokens)
	doc := &EncodedDocument{
		Data:   make([][][]int, n),
		Labels: make([]int, n),
	}
	for j := range n {
		doc.Data[j] = make([][]int, c.Flags.Window)
		for o := range c.Flags.Window {
			feats := c.factory.FeaturesAt(tokens, j, o)
			ids := make([]int, 0, len(feats))
			for _, fs := range feats {
				var f int
				if addFeatures {
					known := c.featureIndex.Contains(fs)
					f = c.featureIndex.IndexOfOrAdd(fs)
					if f < 0 {
						continue
					}
					if !known {
						c.featureOrder = append(c.featureOrder, o)
					} else if c.featureOrder[f] != o {
						return nil, fmt.Errorf("crf: feature %q emitted at orders %d and %d: %w",
							fs, c.featureOrder[f], o, ErrData)
					}
				} else {
					f = c.featureIndex.IndexOf(fs)
					if f < 0 {
						continue
					}
				}
				ids = append(ids, f)
			}
			sort.Ints(ids)
			doc.Data[j][o] = ids
		}

		if tokens[j].Answer == "" {
			doc.Labels[j] = c.backgroundID
			continue
		}
		label := c.classIndex.IndexOf(tokens[j].Answer)
		if label < 0 {
			if addFeatures {
				return nil, fmt.Errorf("crf: unknown gold class %q: %w", tokens[j].Answer, ErrData)
			}
			label = c.backgroundID
		}
		doc.Labels[j] = label
	}
	return doc, nil
}

// goldWindow returns the label window of the given length terminating at
// pos, padded on the left with the background class.
func goldWindow(labels []int, pos, length, backgroundID int) LabelTuple {
	t := make(LabelTuple, length)
	for i := range t {
		p := pos - length + 1 + i
		if p < 0 {
			t[i] = backgroundID
		} else {
			t[i] = labels[p]
		}
	}
	return t
}

// reverseTokens returns a reversed copy for right-to-left processing.
func reverseTokens(tokens []Token) []Token {
	out := make([]Token, len(tokens))
	for i, t := range tokens {
		out[len(tokens)-1-i] = t
	}
	return out
}

func reverseInts(v []int) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[len(v)-1-i] = x
	}
	return out
}
