package crf

import (
	"errors"
	"testing"
)

func TestDefaultFlagsValid(t *testing.T) {
	f := DefaultFlags()
	if err := f.Validate(); err != nil {
		t.Errorf("DefaultFlags invalid: %v", err)
	}
}

func TestFlagsValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Flags)
	}{
		{"zero window", func(f *Flags) { f.Window = 0 }},
		{"empty background", func(f *Flags) { f.BackgroundSymbol = "" }},
		{"unknown inference", func(f *Flags) { f.InferenceType = "exhaustive" }},
		{"zero beam", func(f *Flags) { f.InferenceType = InferenceBeam; f.BeamSize = 0 }},
		{"unknown annealing", func(f *Flags) { f.DoGibbs = true; f.AnnealingType = "quadratic" }},
		{"smd unsupported", func(f *Flags) { f.UseSMD = true }},
		{"no optimizer", func(f *Flags) { f.UseQN = false }},
		{"two optimizers", func(f *Flags) { f.UseSGD = true }},
		{"unknown prior", func(f *Flags) { f.Prior = "cubic" }},
		{"huber without epsilon", func(f *Flags) { f.Prior = PriorHuber }},
		{"non-positive sigma", func(f *Flags) { f.Sigma = 0 }},
		{"two gibbs priors", func(f *Flags) { f.DoGibbs = true; f.UseNERPrior = true; f.UseAcqPrior = true }},
		{"prior without gibbs", func(f *Flags) { f.UseNERPrior = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := DefaultFlags()
			tc.mutate(&f)
			if err := f.Validate(); !errors.Is(err, ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestHuberWithEpsilonValid(t *testing.T) {
	f := DefaultFlags()
	f.Prior = PriorHuber
	f.Epsilon = 0.25
	if err := f.Validate(); err != nil {
		t.Errorf("huber with epsilon invalid: %v", err)
	}
}
