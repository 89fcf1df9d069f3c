package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"transcription-icd-coder/internal/config"
	"transcription-icd-coder/internal/events"
	"transcription-icd-coder/internal/models"
	"transcription-icd-coder/internal/observability/logging"
)

func newTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow coded and failed row events on Kafka",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logging.Init(logging.Config{
				Level:  cfg.Observability.LogLevel,
				Format: cfg.Observability.LogFormat,
			})
			if len(cfg.Kafka.Brokers) == 0 {
				return errors.New("KAFKA_BROKERS is required")
			}
			since, _ := cmd.Flags().GetDuration("since")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			consumer := events.NewConsumer(events.ConsumerConfig{
				Brokers:     cfg.Kafka.Brokers,
				TopicCoded:  cfg.Kafka.TopicCoded,
				TopicFailed: cfg.Kafka.TopicFailed,
				Since:       since,
			})
			defer consumer.Close()

			err := consumer.Run(ctx, logHandler{logger: logging.WithComponent("tail")})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Duration("since", time.Hour, "How far back to start reading")
	return cmd
}

// logHandler prints each row event as a log line.
type logHandler struct {
	logger zerolog.Logger
}

func (h logHandler) OnCoded(ev models.RowCoded) {
	e := h.logger.Info().
		Str("runId", ev.RunID).
		Int("row", ev.RowIndex).
		Str("medicalSpecialty", ev.Row.MedicalSpecialty).
		Str("matchStatus", ev.MatchStatus)
	if ev.Row.Age != nil {
		e = e.Int("age", *ev.Row.Age)
	}
	if ev.Row.RecommendedTreatment != nil {
		e = e.Str("treatment", truncate(*ev.Row.RecommendedTreatment, 60))
	}
	if ev.Row.ICDCode != nil {
		e = e.Str("icdCode", *ev.Row.ICDCode)
	}
	e.Msg("Row coded")
}

func (h logHandler) OnFailed(ev models.RowFailed) {
	h.logger.Warn().
		Str("runId", ev.RunID).
		Int("row", ev.RowIndex).
		Str("medicalSpecialty", ev.MedicalSpecialty).
		Str("stage", ev.Stage).
		Str("error", ev.Error).
		Msg("Row failed")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
