package crf

import "fmt"

// Inference, annealing, and regularizer selections.
const (
	InferenceViterbi = "viterbi"
	InferenceBeam    = "beam"

	AnnealingLinear      = "linear"
	AnnealingExponential = "exponential"

	PriorNone      = "none"
	PriorQuadratic = "quadratic"
	PriorHuber     = "huber"
	PriorQuartic   = "quartic"
)

// Flags is the configuration bag for training and inference. It is
// persisted inside the model file so a loaded model decodes the way it
// was trained.
type Flags struct {
	Window           int    `json:"window" yaml:"window"`
	BackgroundSymbol string `json:"background_symbol" yaml:"backgroundSymbol"`

	UseReverse               bool `json:"use_reverse" yaml:"useReverse"`
	UseObservedSequencesOnly bool `json:"use_observed_sequences_only" yaml:"useObservedSequencesOnly"`
	// RemoveBackgroundSingletonFeatures drops features that occur exactly
	// once in training, with the background label.
	RemoveBackgroundSingletonFeatures bool `json:"remove_background_singleton_features" yaml:"removeBackgroundSingletonFeatures"`

	InferenceType string  `json:"inference_type" yaml:"inferenceType"`
	BeamSize      int     `json:"beam_size" yaml:"beamSize"`
	DoGibbs       bool    `json:"do_gibbs" yaml:"doGibbs"`
	NumSamples    int     `json:"num_samples" yaml:"numSamples"`
	AnnealingType string  `json:"annealing_type" yaml:"annealingType"`
	AnnealingRate float64 `json:"annealing_rate" yaml:"annealingRate"`
	InitViterbi   bool    `json:"init_viterbi" yaml:"initViterbi"`

	UseNERPrior bool `json:"use_ner_prior" yaml:"useNERPrior"`
	UseAcqPrior bool `json:"use_acq_prior" yaml:"useAcqPrior"`
	UseSemPrior bool `json:"use_sem_prior" yaml:"useSemPrior"`

	UseQN        bool `json:"use_qn" yaml:"useQN"`
	UseSGD       bool `json:"use_sgd" yaml:"useSGD"`
	UseSGDtoQN   bool `json:"use_sgd_to_qn" yaml:"useSGDtoQN"`
	UseSMD       bool `json:"use_smd" yaml:"useSMD"`
	UseScaledSGD bool `json:"use_scaled_sgd" yaml:"useScaledSGD"`

	QNSize              int     `json:"qn_size" yaml:"QNsize"`
	SGDPasses           int     `json:"sgd_passes" yaml:"SGDPasses"`
	QNPasses            int     `json:"qn_passes" yaml:"QNPasses"`
	InitialGain         float64 `json:"initial_gain" yaml:"initialGain"`
	StochasticBatchSize int     `json:"stochastic_batch_size" yaml:"stochasticBatchSize"`
	MaxIterations       int     `json:"max_iterations" yaml:"maxIterations"`

	Prior     string  `json:"prior" yaml:"prior"`
	Sigma     float64 `json:"sigma" yaml:"sigma"`
	Epsilon   float64 `json:"epsilon" yaml:"epsilon"`
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`

	FeatureDiffThresh      float64 `json:"feature_diff_thresh" yaml:"featureDiffThresh"`
	NumTimesPruneFeatures  int     `json:"num_times_prune_features" yaml:"numTimesPruneFeatures"`
	SaveFeatureIndexToDisk bool    `json:"save_feature_index_to_disk" yaml:"saveFeatureIndexToDisk"`
	FeatureIndexPath       string  `json:"feature_index_path" yaml:"featureIndexPath"`
	InitialWeights         string  `json:"initial_weights" yaml:"initialWeights"`

	Seed int64 `json:"seed" yaml:"seed"`
}

// DefaultFlags returns the conventional configuration: a second-order
// window over a background symbol "O", Viterbi decoding, quasi-Newton
// training with a quadratic prior.
func DefaultFlags() Flags {
	return Flags{
		Window:              2,
		BackgroundSymbol:    "O",
		InferenceType:       InferenceViterbi,
		BeamSize:            30,
		NumSamples:          100,
		AnnealingType:       AnnealingLinear,
		AnnealingRate:       0.95,
		UseQN:               true,
		QNSize:              10,
		SGDPasses:           20,
		QNPasses:            100,
		InitialGain:         0.1,
		StochasticBatchSize: 15,
		MaxIterations:       500,
		Prior:               PriorQuadratic,
		Sigma:               1.0,
		Tolerance:           1e-6,
		Seed:                1,
	}
}

// Validate rejects contradictory or unsupported selections.
func (f *Flags) Validate() error {
	if f.Window < 1 {
		return fmt.Errorf("crf: window %d < 1: %w", f.Window, ErrConfig)
	}
	if f.BackgroundSymbol == "" {
		return fmt.Errorf("crf: empty background symbol: %w", ErrConfig)
	}
	switch f.InferenceType {
	case InferenceViterbi, InferenceBeam:
	default:
		return fmt.Errorf("crf: unsupported inference type %q: %w", f.InferenceType, ErrConfig)
	}
	if f.InferenceType == InferenceBeam && f.BeamSize < 1 {
		return fmt.Errorf("crf: beam size %d < 1: %w", f.BeamSize, ErrConfig)
	}
	if f.DoGibbs {
		switch f.AnnealingType {
		case AnnealingLinear, AnnealingExponential:
		default:
			return fmt.Errorf("crf: unsupported annealing type %q: %w", f.AnnealingType, ErrConfig)
		}
	}
	if f.UseSMD {
		return fmt.Errorf("crf: SMD optimizer is not supported: %w", ErrConfig)
	}
	selected := 0
	for _, b := range []bool{f.UseQN, f.UseSGD, f.UseSGDtoQN, f.UseScaledSGD} {
		if b {
			selected++
		}
	}
	if selected == 0 {
		return fmt.Errorf("crf: no optimizer selected: %w", ErrConfig)
	}
	if selected > 1 {
		return fmt.Errorf("crf: multiple optimizers selected: %w", ErrConfig)
	}
	switch f.Prior {
	case PriorNone, PriorQuadratic, PriorQuartic:
	case PriorHuber:
		if f.Epsilon <= 0 {
			return fmt.Errorf("crf: huber prior requires epsilon > 0: %w", ErrConfig)
		}
	default:
		return fmt.Errorf("crf: unsupported prior %q: %w", f.Prior, ErrConfig)
	}
	if f.Prior != PriorNone && f.Sigma <= 0 {
		return fmt.Errorf("crf: prior requires sigma > 0: %w", ErrConfig)
	}
	priors := 0
	for _, b := range []bool{f.UseNERPrior, f.UseAcqPrior, f.UseSemPrior} {
		if b {
			priors++
		}
	}
	if priors > 1 {
		return fmt.Errorf("crf: multiple Gibbs priors selected: %w", ErrConfig)
	}
	if priors == 1 && !f.DoGibbs {
		return fmt.Errorf("crf: sequence priors require Gibbs decoding: %w", ErrConfig)
	}
	return nil
}
