package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"transcription-icd-coder/internal/app"
	"transcription-icd-coder/internal/config"
	"transcription-icd-coder/internal/events"
	"transcription-icd-coder/internal/observability"
	"transcription-icd-coder/internal/observability/logging"
	"transcription-icd-coder/internal/observability/metrics"
	"transcription-icd-coder/internal/service/batch"
	"transcription-icd-coder/internal/service/extract"
	"transcription-icd-coder/internal/service/icd"
	"transcription-icd-coder/internal/service/llm"
	"transcription-icd-coder/internal/service/llm/gemini"
	"transcription-icd-coder/internal/service/llm/mock"
	"transcription-icd-coder/internal/service/llm/openai"
	"transcription-icd-coder/internal/tabular"
)

// run loads the input table, codes every record and writes the result table.
// Nothing is written when ctx is canceled before the batch completes.
func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		return err
	}
	defer application.Shutdown()

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	instrumented := llm.Instrument(client, metrics.DefaultMetrics, cfg.LLM.Timeout)

	sink, err := tabular.NewSink(cfg.Output.Path, cfg.Output.Format)
	if err != nil {
		return err
	}

	records, err := tabular.Load(cfg.Input.Path)
	if err != nil {
		return err
	}
	application.Logger.Info().
		Str("input", cfg.Input.Path).
		Msgf("loaded %d transcriptions", len(records))

	if cfg.Input.Limit > 0 && cfg.Input.Limit < len(records) {
		records = records[:cfg.Input.Limit]
		application.Logger.Info().Int("limit", cfg.Input.Limit).Msg("Processing a limited number of records")
	}

	if cfg.Observability.MetricsAddr != "" {
		srv := observability.NewServer(cfg.Observability.MetricsAddr, prometheus.DefaultGatherer)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start observability server: %w", err)
		}
		srv.SetReady(true)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	publisher := events.New(&events.Config{
		Enabled:     cfg.Kafka.Enabled,
		Brokers:     cfg.Kafka.Brokers,
		TopicCoded:  cfg.Kafka.TopicCoded,
		TopicFailed: cfg.Kafka.TopicFailed,
		Principal:   cfg.Kafka.Principal,
	})
	defer publisher.Close()

	runId := uuid.NewString()
	processor := batch.New(
		extract.New(instrumented),
		icd.New(instrumented),
		batch.WithRunID(runId),
		batch.WithPublisher(publisher),
		batch.WithMetrics(metrics.DefaultMetrics),
		batch.WithLogger(logging.WithRun(runId, client.Name(), client.Model())),
	)

	rows, summary, err := processor.ProcessWithSummary(ctx, records)
	if err != nil {
		return fmt.Errorf("batch interrupted, no output written: %w", err)
	}

	if err := sink.Write(rows); err != nil {
		return err
	}

	if url := cfg.Observability.PushgatewayURL; url != "" {
		if err := metrics.Push(ctx, url, cfg.Service.Name, prometheus.DefaultGatherer); err != nil {
			application.Logger.Warn().Err(err).Str("url", url).Msg("Failed to push metrics")
		}
	}

	application.Logger.Info().
		Str("runId", runId).
		Str("output", sink.Path()).
		Int("rows", len(rows)).
		Int("succeeded", summary.Succeeded).
		Int("extractionFailures", summary.ExtractionFailures).
		Int("matchingFailures", summary.MatchingFailures).
		Int("skippedMatches", summary.SkippedMatches).
		Dur("duration", summary.Duration).
		Msg("Results written")

	return nil
}

// newClient builds the completion client for the configured provider.
func newClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:      cfg.LLM.OpenAIAPIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		})
	case config.ProviderGemini:
		return gemini.New(ctx, gemini.Config{
			APIKey:      cfg.LLM.GeminiAPIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		})
	case config.ProviderMock:
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}
