package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/happyhackingspace/ffml/internal/cache"
	"github.com/happyhackingspace/ffml/parser"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "ffml-cache",
		Short:   "Pre-parse text example streams into a cache file",
		Version: version,
	}
	rootCmd.AddCommand(buildCmd(), inspectCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildCmd() *cobra.Command {
	var namespacesPath string
	var fields []string
	var ffmK int
	var inputPath, outputPath string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Parse a text example stream once and write it to a cache file",
		Example: `  ffml-cache build --namespaces ns.csv --field a=user,item --output train.cache < train.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fieldOf, err := fieldMap(fields)
			if err != nil {
				return err
			}

			nf, err := os.Open(namespacesPath)
			if err != nil {
				return fmt.Errorf("ffml-cache: opening namespaces: %w", err)
			}
			defer nf.Close()
			namespaces, err := parser.LoadNamespaces(nf, fieldOf)
			if err != nil {
				return err
			}
			p := parser.NewParser(namespaces, ffmK)

			in := os.Stdin
			if inputPath != "" {
				f, err := os.Open(inputPath)
				if err != nil {
					return fmt.Errorf("ffml-cache: opening input: %w", err)
				}
				defer f.Close()
				in = f
			}

			out, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("ffml-cache: creating output: %w", err)
			}
			defer out.Close()
			bw := bufio.NewWriter(out)
			defer bw.Flush()

			scanner := bufio.NewScanner(in)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

			var serial uint64
			var written, skipped uint64
			for scanner.Scan() {
				outcome := p.Parse(scanner.Text(), serial)
				serial++
				if outcome.Kind != parser.OutcomeExample {
					if outcome.Kind == parser.OutcomeErr {
						skipped++
						slog.Debug("ffml-cache: skipping unparsable line", "error", outcome.Err)
					}
					continue
				}
				if err := cache.WriteExample(bw, outcome.Example); err != nil {
					return fmt.Errorf("ffml-cache: writing frame: %w", err)
				}
				written++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("ffml-cache: reading input: %w", err)
			}
			if err := bw.Flush(); err != nil {
				return err
			}
			slog.Info("cache built", "examples", written, "skipped", skipped, "output", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&namespacesPath, "namespaces", "", "Namespace declaration CSV (name,verbose,[f32])")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "FFM field definition \"name=ns1,ns2\" (repeatable)")
	cmd.Flags().IntVar(&ffmK, "ffm-k", 4, "FFM embedding width, needed to compute contra-field offsets")
	cmd.Flags().StringVar(&inputPath, "input", "", "Input text example stream (default: stdin)")
	cmd.Flags().StringVar(&outputPath, "output", "", "Cache file to write")
	_ = cmd.MarkFlagRequired("namespaces")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <cache-file>",
		Short: "Report the example and feature counts stored in a cache file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("ffml-cache: opening cache file: %w", err)
			}
			defer f.Close()

			br := bufio.NewReader(f)
			var examples, labeled, lrFeatures, ffmFeatures uint64
			for {
				ex, err := cache.ReadExample(br)
				if err != nil {
					break
				}
				examples++
				if ex.HasLabel {
					labeled++
				}
				lrFeatures += uint64(len(ex.LR))
				ffmFeatures += uint64(len(ex.FFM))
			}
			fmt.Printf("examples=%d labeled=%d lr_features=%d ffm_features=%d\n",
				examples, labeled, lrFeatures, ffmFeatures)
			return nil
		},
	}
	return cmd
}

func fieldMap(fields []string) (map[string]int, error) {
	fieldOf := map[string]int{}
	for i, spec := range fields {
		name, names, ok := strings.Cut(spec, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("ffml-cache: malformed --field %q, want name=ns1,ns2", spec)
		}
		for _, n := range strings.Split(names, ",") {
			fieldOf[n] = i
		}
	}
	return fieldOf, nil
}
