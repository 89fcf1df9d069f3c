// Package batch drives the per-row extraction and code matching pipeline.
package batch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"transcription-icd-coder/internal/models"
	"transcription-icd-coder/internal/observability/logging"
	"transcription-icd-coder/internal/observability/metrics"
	"transcription-icd-coder/internal/service/extract"
	"transcription-icd-coder/internal/service/icd"
)

// Extractor pulls patient facts out of a transcription.
type Extractor interface {
	Extract(ctx context.Context, transcription, medicalSpecialty string) (*models.PatientExtraction, error)
}

// Matcher maps a treatment to a diagnostic code.
type Matcher interface {
	Match(ctx context.Context, treatment string) (*models.CodeMatch, error)
}

// Publisher receives one event per processed row.
type Publisher interface {
	PublishCoded(ctx context.Context, key string, event any) error
	PublishFailed(ctx context.Context, key string, event any) error
}

// Summary describes a finished run.
type Summary struct {
	RunID              string
	Total              int
	Succeeded          int
	ExtractionFailures int
	MatchingFailures   int
	SkippedMatches     int
	Duration           time.Duration
}

// Option configures a Processor.
type Option func(*Processor)

// WithPublisher sets the row event publisher.
func WithPublisher(p Publisher) Option {
	return func(proc *Processor) { proc.publisher = p }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(proc *Processor) { proc.metrics = m }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(proc *Processor) { proc.runId = id }
}

// WithLogger sets the base logger for the run.
func WithLogger(l zerolog.Logger) Option {
	return func(proc *Processor) { proc.logger = l }
}

// Processor runs Extractor then Matcher for each record, one row at a time.
// A failing row becomes a null-filled output row; the batch continues.
type Processor struct {
	extractor Extractor
	matcher   Matcher
	publisher Publisher
	metrics   *metrics.Metrics
	runId     string
	logger    zerolog.Logger
}

// New creates a Processor.
func New(extractor Extractor, matcher Matcher, opts ...Option) *Processor {
	p := &Processor{
		extractor: extractor,
		matcher:   matcher,
		runId:     uuid.NewString(),
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("runId", p.runId).Logger()
	return p
}

// RunID returns the identifier of this processor's run.
func (p *Processor) RunID() string {
	return p.runId
}

// Process returns exactly one output row per record, in input order.
// The only error is the context's, in which case no rows are returned.
func (p *Processor) Process(ctx context.Context, records []models.TranscriptionRecord) ([]models.OutputRow, error) {
	rows, _, err := p.ProcessWithSummary(ctx, records)
	return rows, err
}

// ProcessWithSummary is Process that also reports run counts.
func (p *Processor) ProcessWithSummary(ctx context.Context, records []models.TranscriptionRecord) ([]models.OutputRow, Summary, error) {
	start := time.Now()
	total := len(records)
	summary := Summary{RunID: p.runId, Total: total}

	if p.metrics != nil {
		p.metrics.RecordBatchStart(total)
	}

	rows := make([]models.OutputRow, 0, total)
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, summary, err
		}

		rowLog := logging.WithRow(p.logger, i+1, total)
		rowLog.Info().Msgf("processing row %d of %d", i+1, total)

		row, outcome, err := p.processRow(ctx, rec, rowLog)
		if outcome == OutcomePending {
			rowLog.Warn().Err(err).Msg("Batch interrupted")
			return nil, summary, ctx.Err()
		}

		rows = append(rows, row)
		summary.record(outcome)
		if p.metrics != nil {
			p.metrics.RecordRow(string(outcome.Stage()))
			if outcome == OutcomeSkipped {
				p.metrics.RecordMatchSkipped()
			}
		}
		p.publish(ctx, i, row, outcome, err, rowLog)
	}

	summary.Duration = time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordBatchEnd(summary.Duration.Seconds(), float64(time.Now().Unix()))
	}

	p.logger.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("extractionFailures", summary.ExtractionFailures).
		Int("matchingFailures", summary.MatchingFailures).
		Int("skippedMatches", summary.SkippedMatches).
		Dur("duration", summary.Duration).
		Msg("Batch complete")

	return rows, summary, nil
}

// processRow runs both stages for one record. The returned error is the
// stage error that determined the outcome, if any. A row cut short by
// cancellation of ctx stays OutcomePending.
func (p *Processor) processRow(ctx context.Context, rec models.TranscriptionRecord, rowLog zerolog.Logger) (models.OutputRow, Outcome, error) {
	ext, err := p.extractor.Extract(ctx, rec.Transcription, rec.MedicalSpecialty)
	if err != nil && ctx.Err() != nil {
		return models.OutputRow{}, OutcomePending, err
	}
	if err != nil {
		rowLog.Warn().
			Err(err).
			Str("stage", string(classify(err, StageExtraction))).
			Str("medicalSpecialty", rec.MedicalSpecialty).
			Msg("Row failed")
		return models.EmptyRow(rec.MedicalSpecialty), OutcomeExtractionFailed, err
	}
	// The specialty always comes from the input record.
	ext.MedicalSpecialty = rec.MedicalSpecialty

	if !ext.HasTreatment() {
		rowLog.Debug().Msg("No treatment extracted, skipping code match")
		return models.NewOutputRow(ext, nil), OutcomeSkipped, nil
	}

	match, err := p.matcher.Match(ctx, *ext.RecommendedTreatment)
	if err != nil && ctx.Err() != nil {
		return models.OutputRow{}, OutcomePending, err
	}
	if err != nil {
		rowLog.Warn().
			Err(err).
			Str("stage", string(classify(err, StageMatching))).
			Str("treatment", *ext.RecommendedTreatment).
			Msg("Row failed")
		return models.NewOutputRow(ext, nil), OutcomeMatchFailed, err
	}

	return models.NewOutputRow(ext, match), OutcomeCoded, nil
}

func (p *Processor) publish(ctx context.Context, index int, row models.OutputRow, outcome Outcome, stageErr error, rowLog zerolog.Logger) {
	if p.publisher == nil {
		return
	}

	key := rowKey(p.runId, index)
	now := time.Now().UnixMilli()

	var err error
	if outcome == OutcomeExtractionFailed {
		err = p.publisher.PublishFailed(ctx, key, models.RowFailed{
			EventType:        "transcription.row.failed",
			RunID:            p.runId,
			RowIndex:         index,
			Timestamp:        now,
			MedicalSpecialty: row.MedicalSpecialty,
			Stage:            string(outcome.Stage()),
			Error:            stageErr.Error(),
		})
	} else {
		err = p.publisher.PublishCoded(ctx, key, models.RowCoded{
			EventType:   "transcription.row.coded",
			RunID:       p.runId,
			RowIndex:    index,
			Timestamp:   now,
			Row:         row,
			MatchStatus: outcome.matchStatus(),
		})
	}
	if err != nil {
		rowLog.Warn().Err(err).Str("key", key).Msg("Failed to publish row event")
	}
}

func (s *Summary) record(o Outcome) {
	switch o {
	case OutcomeCoded:
		s.Succeeded++
	case OutcomeSkipped:
		s.Succeeded++
		s.SkippedMatches++
	case OutcomeExtractionFailed:
		s.ExtractionFailures++
	case OutcomeMatchFailed:
		s.MatchingFailures++
	}
}

// classify maps a stage error to the stage it came from. Errors that are
// neither stage type are attributed to fallback.
func classify(err error, fallback Stage) Stage {
	var extErr *extract.Error
	var matchErr *icd.Error
	switch {
	case errors.As(err, &extErr):
		return StageExtraction
	case errors.As(err, &matchErr):
		return StageMatching
	default:
		return fallback
	}
}
