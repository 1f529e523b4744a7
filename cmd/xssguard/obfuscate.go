package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/klyr/xssguard/internal/obfuscate"
)

func newObfuscateCmd() *cobra.Command {
	var inputPath string
	var styleName string
	var seed uint64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "obfuscate [word...]",
		Short: "Encode words with entity, percent and escape styles for test corpora",
		RunE: func(cmd *cobra.Command, args []string) error {
			words := args
			if len(words) == 0 {
				src := cmd.InOrStdin()
				if inputPath != "" {
					file, err := os.Open(inputPath)
					if err != nil {
						return err
					}
					defer file.Close()
					src = file
				}
				var err error
				if words, err = readLines(src); err != nil {
					return err
				}
			}

			if !cmd.Flags().Changed("seed") {
				seed = uint64(time.Now().UnixNano())
			}
			gen := obfuscate.NewGenerator(seed)

			var samples []obfuscate.Sample
			if styleName == "" || styleName == "random" {
				samples = gen.Corpus(words)
			} else {
				style, err := obfuscate.ParseStyle(styleName)
				if err != nil {
					return err
				}
				for _, word := range words {
					samples = append(samples, obfuscate.Sample{Input: word, Style: style, Output: gen.Word(word, style)})
				}
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			for _, sample := range samples {
				if asJSON {
					if err := enc.Encode(sample); err != nil {
						return err
					}
					continue
				}
				if _, err := fmt.Fprintln(out, sample.Output); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "in", "", "Input file, one word per line (default stdin)")
	cmd.Flags().StringVar(&styleName, "style", "random", "decimal|hex|mixed|url|unicode|js|css|random")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "PRNG seed (default time based)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print input, style and output as JSON lines")

	return cmd
}
