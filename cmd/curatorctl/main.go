package main

import (
	"os"

	"github.com/nulzo/model-curator/internal/cli"
	"github.com/nulzo/model-curator/internal/platform/logger"
	"github.com/spf13/cobra"

	_ "github.com/nulzo/model-curator/internal/llm/ollama"
	_ "github.com/nulzo/model-curator/internal/llm/openai"
	_ "github.com/nulzo/model-curator/internal/llm/openrouter"
)

var (
	cfgFile string
	asJSON  bool
	noColor bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "curatorctl",
		Short:         "Inspect and evaluate model providers",
		Long:          "Detects providers, reports their health and quality scores, and runs the benchmark suite against a provider/model pair.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				cli.SetEnabled(false)
			}
			if cfgFile != "" {
				return os.Setenv("CONFIG_FILE", cfgFile)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of tables")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		detectCmd(),
		statusCmd(),
		modelsCmd(),
		evaluateCmd(),
		chatCmd(),
	)

	cfg := logger.DefaultConfig()
	if os.Getenv("LOG_LEVEL") == "" {
		cfg.Level = "warn"
	}
	logger.Initialize(cfg)
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		logger.Sync()
		os.Stderr.WriteString(cli.CrossMark() + " " + err.Error() + "\n")
		os.Exit(1)
	}
}
