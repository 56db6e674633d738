package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/happyhackingspace/nertag"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	cfg := nertag.DefaultTrainConfig()
	var propsFile string

	cmd := &cobra.Command{
		Use:   "train <trainfile> <modelfile>",
		Short: "Train a model on labeled column documents",
		Args:  cobra.ExactArgs(2),
		Example: `  nertag train train.tsv model.bin
  nertag train train.tsv model.bin --props crf.yaml --scheme iob2
  nertag train train.tsv model.bin --window 3 -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			trainPath, modelPath := args[0], args[1]
			if propsFile != "" {
				data, err := os.ReadFile(propsFile)
				if err != nil {
					return fmt.Errorf("reading properties: %w", err)
				}
				if err := yaml.Unmarshal(data, &cfg.Flags); err != nil {
					return fmt.Errorf("parsing properties: %w", err)
				}
			}
			applyFlagOverrides(cmd, &cfg)

			slog.Info("Training tagger", "train-file", trainPath, "output", modelPath,
				"window", cfg.Flags.Window)
			start := time.Now()
			t, err := nertag.Train(trainPath, &cfg)
			if err != nil {
				return err
			}
			slog.Debug("Training completed", "duration", time.Since(start))
			if err := t.Save(modelPath); err != nil {
				return err
			}
			slog.Info("Model saved", "path", modelPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&propsFile, "props", "", "YAML properties file with training flags")
	addTrainingFlags(cmd, &cfg)
	return cmd
}

// addTrainingFlags registers the per-flag overrides the command line can
// apply on top of a properties file.
func addTrainingFlags(cmd *cobra.Command, cfg *nertag.TrainConfig) {
	cmd.Flags().IntVar(&cfg.WordColumn, "word-column", cfg.WordColumn, "Zero-based column holding the word")
	cmd.Flags().IntVar(&cfg.AnswerColumn, "answer-column", cfg.AnswerColumn, "Zero-based column holding the gold class")
	cmd.Flags().StringVar(&cfg.Scheme, "scheme", cfg.Scheme, "Relabel gold tags: iob1, iob2, ioe, or sbieo")
	cmd.Flags().Int("window", cfg.Flags.Window, "Clique window size")
	cmd.Flags().String("background", cfg.Flags.BackgroundSymbol, "Background class symbol")
	cmd.Flags().Float64("sigma", cfg.Flags.Sigma, "Regularizer strength")
	cmd.Flags().String("prior", cfg.Flags.Prior, "Regularizer: none, quadratic, huber, or quartic")
	cmd.Flags().Int("max-iterations", cfg.Flags.MaxIterations, "Optimizer iteration cap")
}

func applyFlagOverrides(cmd *cobra.Command, cfg *nertag.TrainConfig) {
	if cmd.Flags().Changed("window") {
		cfg.Flags.Window, _ = cmd.Flags().GetInt("window")
	}
	if cmd.Flags().Changed("background") {
		cfg.Flags.BackgroundSymbol, _ = cmd.Flags().GetString("background")
	}
	if cmd.Flags().Changed("sigma") {
		cfg.Flags.Sigma, _ = cmd.Flags().GetFloat64("sigma")
	}
	if cmd.Flags().Changed("prior") {
		cfg.Flags.Prior, _ = cmd.Flags().GetString("prior")
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.Flags.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")
	}
}
