package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/happyhackingspace/ffml/parser"
	"github.com/spf13/cobra"
)

func (c *CLI) newPredictCommand() *cobra.Command {
	mf := &modelFlags{}
	var weightsPath, inputPath, outputPath string

	cmd := &cobra.Command{
		Use:   "predict <weights-in>",
		Short: "Score a stream of examples against a trained regressor",
		Args:  cobra.ExactArgs(1),
		Example: `  ffml predict weights.bin --namespaces ns.csv --field a=user,item < test.txt
  ffml predict weights.bin --config model.yaml --output predictions.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			weightsPath = args[0]
			model, p, err := mf.resolve()
			if err != nil {
				return err
			}

			wf, err := os.Open(weightsPath)
			if err != nil {
				return fmt.Errorf("cli: opening weights: %w", err)
			}
			defer wf.Close()
			if err := model.ReadWeights(wf); err != nil {
				return fmt.Errorf("cli: loading weights: %w", err)
			}

			in, err := openInput(inputPath)
			if err != nil {
				return err
			}
			defer in.Close()

			out := os.Stdout
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("cli: creating output: %w", err)
				}
				defer f.Close()
				out = f
			}

			pb := model.NewWorkerBuffer()
			scanner := bufio.NewScanner(in)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			w := bufio.NewWriter(out)
			defer w.Flush()

			var serial uint64
			var predicted, skipped uint64
			for scanner.Scan() {
				outcome := p.Parse(scanner.Text(), serial)
				serial++
				if outcome.Kind != parser.OutcomeExample {
					if outcome.Kind == parser.OutcomeErr {
						skipped++
						slog.Debug("skipping unparsable line", "error", outcome.Err)
					}
					continue
				}
				prediction := model.Predict(outcome.Example, pb)
				fmt.Fprintf(w, "%v\n", prediction)
				predicted++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("cli: reading input: %w", err)
			}
			slog.Info("prediction complete", "examples", predicted, "skipped", skipped)
			return nil
		},
	}

	mf.register(cmd)
	cmd.Flags().StringVar(&inputPath, "input", "", "Input example stream (default: stdin)")
	cmd.Flags().StringVar(&outputPath, "output", "", "Prediction output path (default: stdout)")
	return cmd
}
