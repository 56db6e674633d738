// Package features provides the default feature factory for named-entity
// tagging: sparse binary features over the focus word, its shape, its
// affixes, and the words around it.
package features

import (
	"fmt"
	"strings"

	"github.com/happyhackingspace/nertag/crf"
	"github.com/happyhackingspace/nertag/internal/textutil"
)

// FactoryName is the stable identifier persisted in model files.
const FactoryName = "word"

func init() {
	crf.RegisterFeatureFactory(FactoryName, func() crf.FeatureFactory {
		return NewWordFactory()
	})
}

// WordFactory emits word, shape, affix, and context features at clique
// order zero, and word/shape conjunctions at the higher orders so label
// transitions can condition on the text. Features of different orders
// carry distinct prefixes, keeping each feature string at a single order.
type WordFactory struct {
	// ContextWindow is how many neighbor words contribute on each side.
	ContextWindow int
	// MaxAffix bounds the prefix and suffix lengths.
	MaxAffix int
}

// NewWordFactory returns a factory with the conventional settings.
func NewWordFactory() *WordFactory {
	return &WordFactory{ContextWindow: 2, MaxAffix: 4}
}

// Name returns the stable factory identifier.
func (w *WordFactory) Name() string { return FactoryName }

const boundaryWord = "<S>"

func wordAt(tokens []crf.Token, pos int) string {
	if pos < 0 || pos >= len(tokens) {
		return boundaryWord
	}
	return tokens[pos].Word
}

// FeaturesAt returns the features of the given clique order at pos.
func (w *WordFactory) FeaturesAt(tokens []crf.Token, pos, order int) []string {
	if order > 0 {
		return w.cliqueFeatures(tokens, pos, order)
	}

	word := wordAt(tokens, pos)
	lower := strings.ToLower(word)
	feats := []string{
		"bias",
		"w=" + lower,
		"shape=" + textutil.WordShape(word),
	}
	for _, p := range textutil.Prefixes(lower, w.MaxAffix) {
		feats = append(feats, "pre="+p)
	}
	for _, s := range textutil.Suffixes(lower, w.MaxAffix) {
		feats = append(feats, "suf="+s)
	}
	if textutil.IsCapitalized(word) {
		feats = append(feats, "caps")
	}
	if textutil.IsAllCaps(word) {
		feats = append(feats, "allcaps")
	}
	if textutil.HasDigit(word) {
		feats = append(feats, "digit")
	}
	if textutil.HasHyphen(word) {
		feats = append(feats, "hyphen")
	}
	for d := 1; d <= w.ContextWindow; d++ {
		feats = append(feats,
			fmt.Sprintf("w-%d=%s", d, strings.ToLower(wordAt(tokens, pos-d))),
			fmt.Sprintf("w+%d=%s", d, strings.ToLower(wordAt(tokens, pos+d))))
	}
	return feats
}

// cliqueFeatures parameterizes the label window ending at pos: a pure
// transition bias plus conjunctions with the focus word and shape.
func (w *WordFactory) cliqueFeatures(tokens []crf.Token, pos, order int) []string {
	word := wordAt(tokens, pos)
	prev := wordAt(tokens, pos-1)
	return []string{
		fmt.Sprintf("o%d|bias", order),
		fmt.Sprintf("o%d|w=%s", order, strings.ToLower(word)),
		fmt.Sprintf("o%d|shape=%s,%s", order, textutil.WordShape(prev), textutil.WordShape(word)),
	}
}
