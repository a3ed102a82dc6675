package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/happyhackingspace/ffml"
	"github.com/happyhackingspace/ffml/hogwild"
	"github.com/happyhackingspace/ffml/parser"
	"github.com/spf13/cobra"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	mf := &modelFlags{}
	var inputPath string
	var progressEvery int

	cmd := &cobra.Command{
		Use:   "train <weights-out>",
		Short: "Train a regressor from a stream of labeled examples",
		Args:  cobra.ExactArgs(1),
		Example: `  ffml train weights.bin --namespaces ns.csv --field a=user,item --field b=context
  ffml train weights.bin --config model.yaml < train.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputPath := args[0]
			model, p, err := mf.resolve()
			if err != nil {
				return err
			}

			in, err := openInput(inputPath)
			if err != nil {
				return err
			}
			defer in.Close()

			start := time.Now()
			examples, skipped, err := runTrainingLoop(model, p, in, mf, progressEvery)
			if err != nil {
				return err
			}
			slog.Info("training complete", "examples", examples, "skipped", skipped, "duration", time.Since(start))

			out, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("cli: creating %q: %w", outputPath, err)
			}
			defer out.Close()
			if err := model.WriteWeights(out); err != nil {
				return fmt.Errorf("cli: writing weights: %w", err)
			}
			slog.Info("weights saved", "path", outputPath)
			return nil
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVar(&inputPath, "input", "", "Input example stream (default: stdin)")
	cmd.Flags().IntVar(&progressEvery, "progress-every", 100000, "Log progress every N examples (0 disables)")
	return cmd
}

func runTrainingLoop(model ffml.Model, p *parser.Parser, in *os.File, mf *modelFlags, progressEvery int) (examples, skipped uint64, err error) {
	pool := model.NewPool(mf.workers, mf.channelDepth)
	defer func() {
		if pool != nil {
			pool.Close()
		}
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var serial uint64
	for scanner.Scan() {
		outcome := p.Parse(scanner.Text(), serial)
		serial++

		switch outcome.Kind {
		case parser.OutcomeExample:
			examples++
			pool.Submit(hogwild.Job{Example: outcome.Example})
		case parser.OutcomeFlush:
			slog.Debug("flush received", "examples", examples)
		case parser.OutcomeHogwildLoad:
			pool.Close()
			if loadErr := loadWeights(model, outcome.HogwildPath); loadErr != nil {
				slog.Warn("hogwild_load failed", "path", outcome.HogwildPath, "error", loadErr)
			} else {
				slog.Info("hogwild_load applied", "path", outcome.HogwildPath)
			}
			pool = model.NewPool(mf.workers, mf.channelDepth)
		case parser.OutcomeErr:
			skipped++
			slog.Debug("skipping unparsable line", "error", outcome.Err)
		}

		if progressEvery > 0 && examples > 0 && examples%uint64(progressEvery) == 0 {
			loss := model.LossBlock()
			slog.Info("progress", "examples", examples, "skipped", skipped,
				"clamp_events", loss.ClampEvents(), "nan_events", loss.NaNEvents())
		}
	}
	if err := scanner.Err(); err != nil {
		return examples, skipped, fmt.Errorf("cli: reading input: %w", err)
	}
	return examples, skipped, nil
}

func loadWeights(model ffml.Model, path string) error {
	rc, err := hogwild.OpenHogwildLoad(context.Background(), nil, path)
	if err != nil {
		return err
	}
	defer rc.Close()
	return model.ReadWeights(rc)
}

func openInput(path string) (*os.File, error) {
	if path == "" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cli: opening input: %w", err)
	}
	return f, nil
}
