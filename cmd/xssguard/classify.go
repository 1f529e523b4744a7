package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/klyr/xssguard/internal/detect"
)

func newClassifyCmd() *cobra.Command {
	var flags classifierFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify [text...]",
		Short: "Classify text given as arguments or one input per stdin line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadClassifierConfig(flags)
			if err != nil {
				return err
			}
			classifier, err := buildClassifier(cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = classifier.Close() }()

			inputs := args
			if len(inputs) == 0 {
				inputs, err = readLines(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, input := range inputs {
				verdict, err := classifier.Classify(cmd.Context(), input)
				if err != nil {
					return fmt.Errorf("classify %q: %w", input, err)
				}
				if err := writeResult(out, asJSON, scanResult{Input: input, Verdict: verdict}); err != nil {
					return err
				}
			}
			return nil
		},
	}

	addClassifierFlags(cmd, &flags)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per input")

	return cmd
}

func newScanCmd() *cobra.Command {
	var flags classifierFlags
	var inputPath string
	var format string
	var workers int
	var failOnMalicious bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Classify every line of a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "text", "jsonl":
			default:
				return fmt.Errorf("unknown format %q", format)
			}

			cfg, err := loadClassifierConfig(flags)
			if err != nil {
				return err
			}
			classifier, err := buildClassifier(cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = classifier.Close() }()

			var src io.Reader = cmd.InOrStdin()
			if inputPath != "" && inputPath != "-" {
				file, err := os.Open(inputPath)
				if err != nil {
					return err
				}
				defer file.Close()
				src = file
			}
			lines, err := readLines(src)
			if err != nil {
				return err
			}

			if workers <= 0 {
				workers = cfg.Classifier.Workers
			}
			results := scanLines(cmd.Context(), classifier, lines, workers)

			out := cmd.OutOrStdout()
			malicious, failed := 0, 0
			for _, result := range results {
				if result.Error != "" {
					failed++
				} else if result.Verdict.Malicious() {
					malicious++
				}
				if err := writeResult(out, format == "jsonl", result); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "scanned=%d malicious=%d unavailable=%d\n", len(results), malicious, failed)

			if !failOnMalicious {
				return nil
			}
			return gateResult(malicious, failed)
		},
	}

	addClassifierFlags(cmd, &flags)
	cmd.Flags().StringVar(&inputPath, "in", "", "Input file, one value per line (default stdin)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|jsonl")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent classifications (default classifier.workers)")
	cmd.Flags().BoolVar(&failOnMalicious, "fail-on-malicious", false, "Exit with status 2 if any line is malicious, 3 if any line could not be classified")

	return cmd
}

func addClassifierFlags(cmd *cobra.Command, flags *classifierFlags) {
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to config file (default built-in tables)")
	cmd.Flags().StringVar(&flags.modelPath, "model", "", "Override classifier.scorer.modelPath")
	cmd.Flags().StringVar(&flags.scorerType, "scorer", "", "Override classifier.scorer.type: linear|onnx")
}

type scanResult struct {
	Line    int            `json:"line,omitempty"`
	Input   string         `json:"input"`
	Verdict detect.Verdict `json:"verdict"`
	Error   string         `json:"error,omitempty"`
}

// scanLines classifies every line and keeps failures per line instead of
// aborting the scan.
// gateResult fails the scan when any line is malicious or lacks a verdict.
// A malicious line wins over an unclassified one.
func gateResult(malicious, failed int) error {
	switch {
	case malicious > 0:
		return fmt.Errorf("%w: %d line(s)", errMalicious, malicious)
	case failed > 0:
		return fmt.Errorf("%w: %d line(s)", errIncomplete, failed)
	default:
		return nil
	}
}

func scanLines(ctx context.Context, classifier *detect.Classifier, lines []string, workers int) []scanResult {
	results := make([]scanResult, len(lines))

	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, line := range lines {
		eg.Go(func() error {
			results[i] = scanResult{Line: i + 1, Input: line}
			verdict, err := classifier.Classify(ctx, line)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Verdict = verdict
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func writeResult(w io.Writer, asJSON bool, result scanResult) error {
	if asJSON {
		return json.NewEncoder(w).Encode(result)
	}
	if result.Error != "" {
		_, err := fmt.Fprintf(w, "unavailable\t-\t%s\t# %s\n", result.Input, result.Error)
		return err
	}
	_, err := fmt.Fprintf(w, "%s\t%s\t%s\n", result.Verdict.Label, result.Verdict.Decider(), result.Input)
	return err
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
