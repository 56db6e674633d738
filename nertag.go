// Package nertag labels sequences of tokens with a higher-order
// linear-chain CRF, most prominently for named-entity recognition.
//
//	t, _ := nertag.Load("model.bin")
//	tagged, _ := t.TagText("John Smith visited Berlin.")
//	for _, tok := range tagged {
//	    fmt.Println(tok.Word, tok.Answer) // John PER
//	}
package nertag

import (
	"fmt"

	"github.com/happyhackingspace/nertag/crf"
	"github.com/happyhackingspace/nertag/features"
	"github.com/happyhackingspace/nertag/internal/corpus"
)

// Tagger wraps a trained CRF classifier with text-level entry points. A
// loaded Tagger is read-only and safe to share across goroutines.
type Tagger struct {
	c *crf.Classifier
}

// New creates an untrained tagger with the given configuration and the
// default word feature factory.
func New(flags crf.Flags) (*Tagger, error) {
	c, err := crf.NewClassifier(flags, features.NewWordFactory())
	if err != nil {
		return nil, fmt.Errorf("nertag: %w", err)
	}
	return &Tagger{c: c}, nil
}

// Load reads a trained model from a file.
func Load(path string) (*Tagger, error) {
	c, err := crf.LoadClassifier(path)
	if err != nil {
		return nil, fmt.Errorf("nertag: %w", err)
	}
	return &Tagger{c: c}, nil
}

// Save writes the model to a file.
func (t *Tagger) Save(path string) error {
	if t.c == nil {
		return fmt.Errorf("nertag: tagger not initialized")
	}
	if err := crf.SaveClassifier(t.c, path); err != nil {
		return fmt.Errorf("nertag: %w", err)
	}
	return nil
}

// Classifier exposes the underlying CRF classifier.
func (t *Tagger) Classifier() *crf.Classifier { return t.c }

// TagText tokenizes raw text and tags it. Returns an empty slice (not
// nil) for empty input.
func (t *Tagger) TagText(text string) ([]crf.Token, error) {
	tagged, err := t.c.Classify(corpus.ReadPlainText(text))
	if err != nil {
		return nil, fmt.Errorf("nertag: %w", err)
	}
	return tagged, nil
}

// TagTokens tags an already-tokenized document.
func (t *Tagger) TagTokens(tokens []crf.Token) ([]crf.Token, error) {
	tagged, err := t.c.Classify(tokens)
	if err != nil {
		return nil, fmt.Errorf("nertag: %w", err)
	}
	return tagged, nil
}

// Marginals returns the per-position class probabilities of a document.
func (t *Tagger) Marginals(tokens []crf.Token) ([]map[string]float64, error) {
	m, err := t.c.Marginals(tokens)
	if err != nil {
		return nil, fmt.Errorf("nertag: %w", err)
	}
	return m, nil
}
