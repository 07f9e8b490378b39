package cli

import (
	"log/slog"
	"time"

	"github.com/happyhackingspace/lextag"
	"github.com/spf13/cobra"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var dataFolder string
	var schemeName string
	var prefix bool
	config := lextag.DefaultTrainConfig()

	cmd := &cobra.Command{
		Use:   "train <modelfile>",
		Short: "Train a tagger on a labeled dataset folder",
		Args:  cobra.ExactArgs(1),
		Example: `  lextag train model.json --data-folder data
  lextag train model.json --max-examples 20000 -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath := args[0]

			scheme, err := parseScheme(schemeName, prefix)
			if err != nil {
				return err
			}
			config.Scheme = scheme

			slog.Info("Training tagger", "data-folder", dataFolder, "output", modelPath)
			start := time.Now()
			tg, err := lextag.Train(dataFolder, config)
			if err != nil {
				return err
			}
			slog.Debug("Training completed", "duration", time.Since(start))
			if err := tg.Save(modelPath); err != nil {
				return err
			}
			slog.Info("Model saved", "path", modelPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFolder, "data-folder", "data", "Path to dataset folder")
	cmd.Flags().IntVar(&config.MaxSeqLen, "max-seq-len", config.MaxSeqLen, "Truncate training sequences to this many tokens")
	cmd.Flags().IntVar(&config.Iterations, "iterations", config.Iterations, "Optimizer iteration cap")
	cmd.Flags().Float64Var(&config.C1, "c1", config.C1, "L1 regularization strength")
	cmd.Flags().Float64Var(&config.C2, "c2", config.C2, "L2 regularization strength")
	cmd.Flags().IntVar(&config.MaxExamples, "max-examples", 0, "Subsample the training split to this many examples (0 keeps all)")
	cmd.Flags().Int64Var(&config.Seed, "seed", 42, "Shuffle seed for subsampling")
	cmd.Flags().StringVar(&schemeName, "scheme", "bio", "Tagging scheme: bio or bioes")
	cmd.Flags().BoolVar(&prefix, "prefix", false, "Markers lead the tag (B-LOC) instead of trailing it (LOC-B)")
	return cmd
}
