package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/nertag"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	cfg := nertag.EvalConfig{TrainConfig: nertag.DefaultTrainConfig(), Folds: 10}

	cmd := &cobra.Command{
		Use:   "evaluate <trainfile>",
		Short: "Cross-validate tagging accuracy on labeled documents",
		Args:  cobra.ExactArgs(1),
		Example: `  nertag evaluate train.tsv
  nertag evaluate train.tsv --folds 5 --scheme iob2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyFlagOverrides(cmd, &cfg.TrainConfig)
			slog.Info("Evaluating", "train-file", args[0], "folds", cfg.Folds)
			start := time.Now()
			result, err := nertag.Evaluate(args[0], &cfg)
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))

			fmt.Printf("Token accuracy:    %.4f (%d/%d)\n",
				result.TokenAccuracy, result.TokenCorrect, result.TokenTotal)
			fmt.Printf("Sequence accuracy: %.4f (%d/%d)\n",
				result.SequenceAccuracy, result.SequenceCorrect, result.SequenceTotal)
			fmt.Printf("Entity P/R/F1:     %.4f / %.4f / %.4f\n",
				result.EntityPrecision, result.EntityRecall, result.EntityF1)
			return nil
		},
	}

	cmd.Flags().IntVar(&cfg.Folds, "folds", 10, "Number of cross-validation folds")
	addTrainingFlags(cmd, &cfg.TrainConfig)
	return cmd
}
