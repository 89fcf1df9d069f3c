package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"transcription-icd-coder/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "transcription-icd-coder",
		Short:         "Extract age and treatment from medical transcriptions and match ICD-10 codes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			applyFlags(cmd, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg); err != nil {
				log.Error().Err(err).Msg("Run failed")
				return err
			}
			return nil
		},
	}

	cmd.AddCommand(newTailCmd())

	f := cmd.Flags()
	f.String("input", "", "Path to the transcription CSV (overrides INPUT_PATH)")
	f.String("output", "", "Path to the result table (overrides OUTPUT_PATH)")
	f.String("format", "", "Output format: auto, csv or parquet (overrides OUTPUT_FORMAT)")
	f.String("provider", "", "Completion provider: openai, gemini or mock (overrides LLM_PROVIDER)")
	f.String("model", "", "Model name (overrides LLM_MODEL)")
	f.Int("limit", 0, "Process only the first N records (overrides INPUT_LIMIT)")
	f.Duration("timeout", 0, "Per-request timeout (overrides LLM_REQUEST_TIMEOUT)")

	return cmd
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("input") {
		cfg.Input.Path, _ = f.GetString("input")
	}
	if f.Changed("output") {
		cfg.Output.Path, _ = f.GetString("output")
	}
	if f.Changed("format") {
		cfg.Output.Format, _ = f.GetString("format")
	}
	if f.Changed("limit") {
		cfg.Input.Limit, _ = f.GetInt("limit")
	}
	if f.Changed("timeout") {
		cfg.LLM.Timeout, _ = f.GetDuration("timeout")
	}
	if f.Changed("provider") {
		provider, _ := f.GetString("provider")
		provider = strings.ToLower(strings.TrimSpace(provider))
		// A provider switch resets a model defaulted for the old provider.
		if cfg.LLM.Model == config.DefaultModel(cfg.LLM.Provider) {
			cfg.LLM.Model = config.DefaultModel(provider)
		}
		cfg.LLM.Provider = provider
	}
	if f.Changed("model") {
		cfg.LLM.Model, _ = f.GetString("model")
	}
}
