package nertag

import (
	"fmt"

	"github.com/happyhackingspace/nertag/crf"
	"github.com/happyhackingspace/nertag/internal/corpus"
)

// Gold-tag encoding schemes the reader can rewrite documents into before
// training.
const (
	SchemeRaw   = ""
	SchemeIOB1  = "iob1"
	SchemeIOB2  = "iob2"
	SchemeIOE   = "ioe"
	SchemeSBIEO = "sbieo"
)

// TrainConfig holds configuration for training from a column file.
type TrainConfig struct {
	Flags        crf.Flags
	WordColumn   int
	AnswerColumn int
	Scheme       string
}

// DefaultTrainConfig returns the conventional two-column layout with
// default flags.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Flags:        crf.DefaultFlags(),
		WordColumn:   0,
		AnswerColumn: 1,
	}
}

// EvalConfig holds configuration for cross-validation evaluation.
type EvalConfig struct {
	TrainConfig
	Folds int
}

// EvalResult holds cross-validation evaluation results.
type EvalResult struct {
	TokenAccuracy    float64
	SequenceAccuracy float64
	EntityPrecision  float64
	EntityRecall     float64
	EntityF1         float64
	TokenCorrect     int
	TokenTotal       int
	SequenceCorrect  int
	SequenceTotal    int
}

// Train trains a tagger on the labeled column documents in the given file.
func Train(dataPath string, config *TrainConfig) (*Tagger, error) {
	cfg := DefaultTrainConfig()
	if config != nil {
		cfg = *config
	}
	docs, err := readTrainingDocs(dataPath, cfg)
	if err != nil {
		return nil, err
	}
	t, err := New(cfg.Flags)
	if err != nil {
		return nil, err
	}
	if err := t.c.Train(docs); err != nil {
		return nil, fmt.Errorf("nertag: %w", err)
	}
	return t, nil
}

// Evaluate runs k-fold cross-validation over the labeled documents and
// reports token, sequence, and entity-level scores.
func Evaluate(dataPath string, config *EvalConfig) (*EvalResult, error) {
	cfg := EvalConfig{TrainConfig: DefaultTrainConfig(), Folds: 10}
	if config != nil {
		cfg = *config
		if cfg.Folds <= 0 {
			cfg.Folds = 10
		}
	}
	docs, err := readTrainingDocs(dataPath, cfg.TrainConfig)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("nertag: no documents found in %s", dataPath)
	}

	nFolds := min(cfg.Folds, len(docs))
	result := &EvalResult{}
	var goldEntities, predEntities, matchedEntities int
	bg := cfg.Flags.BackgroundSymbol

	for fold := range nFolds {
		var trainDocs, testDocs [][]crf.Token
		for i, d := range docs {
			if i%nFolds == fold {
				testDocs = append(testDocs, d)
			} else {
				trainDocs = append(trainDocs, d)
			}
		}

		t, err := New(cfg.Flags)
		if err != nil {
			return nil, err
		}
		if err := t.c.Train(trainDocs); err != nil {
			return nil, fmt.Errorf("nertag: fold %d: %w", fold, err)
		}

		for _, gold := range testDocs {
			pred, err := t.c.Classify(gold)
			if err != nil {
				return nil, fmt.Errorf("nertag: fold %d: %w", fold, err)
			}
			allCorrect := true
			for j := range gold {
				if pred[j].Answer == gold[j].Answer {
					result.TokenCorrect++
				} else {
					allCorrect = false
				}
				result.TokenTotal++
			}
			if allCorrect {
				result.SequenceCorrect++
			}
			result.SequenceTotal++

			goldSpans := corpus.EntitySpans(gold, bg)
			predSpans := corpus.EntitySpans(pred, bg)
			goldEntities += len(goldSpans)
			predEntities += len(predSpans)
			matchedEntities += matchSpans(goldSpans, predSpans)
		}
	}

	if result.TokenTotal > 0 {
		result.TokenAccuracy = float64(result.TokenCorrect) / float64(result.TokenTotal)
	}
	if result.SequenceTotal > 0 {
		result.SequenceAccuracy = float64(result.SequenceCorrect) / float64(result.SequenceTotal)
	}
	if predEntities > 0 {
		result.EntityPrecision = float64(matchedEntities) / float64(predEntities)
	}
	if goldEntities > 0 {
		result.EntityRecall = float64(matchedEntities) / float64(goldEntities)
	}
	if result.EntityPrecision+result.EntityRecall > 0 {
		result.EntityF1 = 2 * result.EntityPrecision * result.EntityRecall /
			(result.EntityPrecision + result.EntityRecall)
	}
	return result, nil
}

func readTrainingDocs(dataPath string, cfg TrainConfig) ([][]crf.Token, error) {
	docs, err := corpus.ReadColumnFile(dataPath, cfg.WordColumn, cfg.AnswerColumn)
	if err != nil {
		return nil, fmt.Errorf("nertag: %w", err)
	}
	for _, d := range docs {
		switch cfg.Scheme {
		case SchemeIOB1:
			corpus.ToIOB1(d, cfg.Flags.BackgroundSymbol)
		case SchemeIOB2:
			corpus.ToIOB2(d, cfg.Flags.BackgroundSymbol)
		case SchemeIOE:
			corpus.ToIOE(d, cfg.Flags.BackgroundSymbol)
		case SchemeSBIEO:
			corpus.ToSBIEO(d, cfg.Flags.BackgroundSymbol)
		case SchemeRaw:
		default:
			return nil, fmt.Errorf("nertag: unknown tag scheme %q", cfg.Scheme)
		}
	}
	return docs, nil
}

func matchSpans(gold, pred []corpus.Span) int {
	type key struct {
		start, end int
		typ        string
	}
	set := make(map[key]bool, len(gold))
	for _, s := range gold {
		set[key{s.Start, s.End, s.Type}] = true
	}
	matched := 0
	for _, s := range pred {
		if set[key{s.Start, s.End, s.Type}] {
			matched++
		}
	}
	return matched
}
