package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
	"github.com/amanullahtanweer/fluency-coach/internal/logging"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <words.json>",
	Short: "Analyze a recognizer word list offline",
	Long: `Analyze reads a JSON array of recognized words, each with text, start and
end in milliseconds and an optional confidence, and prints the analysis result
as JSON. Use "-" to read from standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	vocabularyFile string
	noSummary      bool
)

func init() {
	analyzeCmd.Flags().StringVar(&vocabularyFile, "vocabulary", "", "vocabulary file (overrides analysis.vocabulary_file)")
	analyzeCmd.Flags().BoolVar(&noSummary, "no-summary", false, "do not print the one-line summary to stderr")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the result.
	cfg.Log.Output = "stderr"
	log := logging.New(cfg.Log)

	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	path := cfg.Analysis.VocabularyFile
	if vocabularyFile != "" {
		path = vocabularyFile
	}
	analyzer, err := loadAnalyzer(path, log)
	if err != nil {
		return err
	}

	res := analysis.NewService(analyzer, log, nil).AnalyzeJSON(cmd.Context(), data)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if !noSummary {
		fmt.Fprintln(cmd.ErrOrStderr(), res.Summary())
	}
	return nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read words: %w", err)
	}
	return data, nil
}
