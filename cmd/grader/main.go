package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"submission-grader/internal/config"
)

var (
	configPath string
	logLevel   string
	output     string
	jsonOut    bool
)

func main() {
	root := &cobra.Command{
		Use:          "grader",
		Short:        "Grade code submissions against test cases and quality checks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to YAML config (defaults built in)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&output, "table", "ascii", "Table style (ascii, markdown, csv)")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print machine-readable JSON")

	root.AddCommand(
		newEvaluateCmd(),
		newBatchCmd(),
		newSimilarityCmd(),
		newPerfCmd(),
		newProfilesCmd(),
	)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(configPath)
}
