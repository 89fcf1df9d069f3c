// Package app holds process-wide state for a batch run.
package app

import (
	"time"

	"github.com/rs/zerolog"

	"transcription-icd-coder/internal/config"
	"transcription-icd-coder/internal/observability/logging"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
}

// New initializes logging from cfg and constructs an Application.
func New(cfg *config.Config) *Application {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a := &Application{
		Cfg: cfg,
		Logger: logging.Logger().With().
			Str("service", cfg.Service.Name).
			Str("component", "application").
			Logger(),
	}

	a.Logger.Debug().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", cfg.Observability.LogFormat).
		Msg("Logger setup completed")
	return a
}

// Start records the startup time and logs the effective configuration.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("input", a.Cfg.Input.Path).
		Str("output", a.Cfg.Output.Path).
		Str("llmProvider", a.Cfg.LLM.Provider).
		Str("llmModel", a.Cfg.LLM.Model).
		Bool("kafkaEnabled", a.Cfg.Kafka.Enabled).
		Msg("Transcription coder starting")

	return nil
}

// Shutdown logs process exit with the total run time.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("Transcription coder shutting down")
}
