package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/happyhackingspace/lextag"
	"github.com/happyhackingspace/lextag/internal/onnxemit"
	"github.com/spf13/cobra"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var dataFolder string
	var modelPath string
	var encoderDir string
	var batchSize int
	var maxSeqLen int
	var workers int
	var schemeName string
	var prefix bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a tagger against the test split of a dataset folder",
		Example: `  lextag evaluate --data-folder data --model model.json
  lextag evaluate --data-folder data --encoder bundle/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme, err := parseScheme(schemeName, prefix)
			if err != nil {
				return err
			}
			config := &lextag.EvalConfig{
				MaxSeqLen: maxSeqLen,
				BatchSize: batchSize,
				Workers:   workers,
				Scheme:    scheme,
			}

			var em lextag.Emitter
			switch {
			case encoderDir != "":
				slog.Info("Loading encoder bundle", "dir", encoderDir)
				emitter, err := onnxemit.Open(encoderDir)
				if err != nil {
					return err
				}
				defer func() { _ = emitter.Close() }()
				em = emitter
			case modelPath != "":
				tg, err := lextag.Load(modelPath)
				if err != nil {
					return err
				}
				em = tg
			default:
				tg, err := lextag.New()
				if err != nil {
					return err
				}
				em = tg
			}

			slog.Info("Evaluating", "data-folder", dataFolder)
			start := time.Now()
			result, err := lextag.Evaluate(em, dataFolder, config)
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))

			fmt.Printf("Chunks: %d inferred, %d gold, %d correct\n",
				result.Chunks.Inferred, result.Chunks.Gold, result.Chunks.Correct)
			fmt.Printf("Precision: %.2f%%  Recall: %.2f%%  F1: %.2f%%\n",
				result.Precision*100, result.Recall*100, result.F1*100)
			fmt.Printf("Token accuracy: %.2f%% (%d/%d)\n",
				result.TokenAccuracy*100, result.TokenCorrect, result.TokenTotal)
			fmt.Printf("Avg loss: %.4f over %d examples\n", result.AvgLoss, result.Examples)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFolder, "data-folder", "data", "Path to dataset folder")
	cmd.Flags().StringVar(&modelPath, "model", "", "Path to model file (default: auto-detect)")
	cmd.Flags().StringVar(&encoderDir, "encoder", "", "Path to an ONNX encoder bundle directory")
	cmd.Flags().IntVar(&batchSize, "batch-size", 300, "Evaluation batch size")
	cmd.Flags().IntVar(&maxSeqLen, "max-seq-len", 64, "Truncate test sequences to this many tokens")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent batch decoders (0 uses the CPU count)")
	cmd.Flags().StringVar(&schemeName, "scheme", "bio", "Tagging scheme: bio or bioes")
	cmd.Flags().BoolVar(&prefix, "prefix", false, "Markers lead the tag (B-LOC) instead of trailing it (LOC-B)")
	return cmd
}
