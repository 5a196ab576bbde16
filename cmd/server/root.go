package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
	"github.com/amanullahtanweer/fluency-coach/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configFile string
	envFile    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "fluency-coach",
	Short: "Speech fluency analysis service",
	Long: `Fluency Coach transcribes speech and scores it for fluency: filler words
and phrases, stutters, repetitions, pauses and speaking pace.

It serves an HTTP API for hosted recordings and word lists, coaches live
callers over Asterisk AudioSocket, and analyzes word lists offline.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "configuration file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// loadConfig reads configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile, envFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Log.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadAnalyzer builds the analyzer from the configured vocabulary, or the
// built-in one when none is set.
func loadAnalyzer(path string, log zerolog.Logger) (*analysis.Analyzer, error) {
	vocab := analysis.DefaultVocabulary()
	if path != "" {
		var err error
		vocab, err = analysis.LoadVocabulary(path)
		if err != nil {
			return nil, fmt.Errorf("vocabulary: %w", err)
		}
		log.Info().
			Str("file", path).
			Int("phrases", len(vocab.Phrases)).
			Int("filler_words", len(vocab.FillerWords)).
			Msg("vocabulary loaded")
	}
	return analysis.NewAnalyzer(vocab), nil
}
