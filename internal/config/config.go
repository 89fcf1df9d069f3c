// Package config loads runtime configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported completion providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	Input         InputConfig
	Output        OutputConfig
	LLM           LLMConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds service identity configuration.
type ServiceConfig struct {
	Name string
}

// InputConfig holds the transcription table location.
type InputConfig struct {
	Path  string
	Limit int // 0 means all records
}

// OutputConfig holds the result table location and format.
type OutputConfig struct {
	Path   string
	Format string // auto, csv, parquet
}

// LLMConfig holds completion service configuration.
type LLMConfig struct {
	Provider     string
	Model        string
	BaseURL      string
	Timeout      time.Duration
	Temperature  float64
	OpenAIAPIKey string
	GeminiAPIKey string
}

// KafkaConfig holds row event publishing configuration.
type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	TopicCoded  string
	TopicFailed string
	Principal   string
}

// ObservabilityConfig holds logging and metrics configuration.
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	MetricsAddr    string // empty disables the metrics server
	PushgatewayURL string // empty disables the push at batch end
}

const (
	defaultServiceName = "transcription-icd-coder"
	defaultTimeout     = 60 * time.Second
)

var defaultModels = map[string]string{
	ProviderOpenAI: "gpt-4o-mini",
	ProviderGemini: "gemini-2.0-flash",
	ProviderMock:   "mock",
}

// Load reads configuration from environment variables, falling back to a
// .env file in the working directory and then to defaults. Values that fail
// to parse use the default.
func Load() *Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("SERVICE_NAME", defaultServiceName)
	v.SetDefault("INPUT_PATH", "data/transcriptions.csv")
	v.SetDefault("OUTPUT_PATH", "data/coded_transcriptions.csv")
	v.SetDefault("OUTPUT_FORMAT", "auto")
	v.SetDefault("LLM_PROVIDER", ProviderOpenAI)
	v.SetDefault("KAFKA_TOPIC_CODED", "transcription.coded")
	v.SetDefault("KAFKA_TOPIC_FAILED", "transcription.failed")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	serviceName := v.GetString("SERVICE_NAME")
	provider := strings.ToLower(strings.TrimSpace(v.GetString("LLM_PROVIDER")))

	model := v.GetString("LLM_MODEL")
	if model == "" {
		model = defaultModels[provider]
	}

	kafkaPrincipal := v.GetString("KAFKA_PRINCIPAL")
	if kafkaPrincipal == "" {
		kafkaPrincipal = serviceName
	}

	return &Config{
		Service: ServiceConfig{
			Name: serviceName,
		},
		Input: InputConfig{
			Path:  v.GetString("INPUT_PATH"),
			Limit: intOr(v, "INPUT_LIMIT", 0),
		},
		Output: OutputConfig{
			Path:   v.GetString("OUTPUT_PATH"),
			Format: strings.ToLower(v.GetString("OUTPUT_FORMAT")),
		},
		LLM: LLMConfig{
			Provider:     provider,
			Model:        model,
			BaseURL:      v.GetString("LLM_BASE_URL"),
			Timeout:      durationOr(v, "LLM_REQUEST_TIMEOUT", defaultTimeout),
			Temperature:  floatOr(v, "LLM_TEMPERATURE", 0),
			OpenAIAPIKey: v.GetString("OPENAI_API_KEY"),
			GeminiAPIKey: v.GetString("GEMINI_API_KEY"),
		},
		Kafka: KafkaConfig{
			Enabled:     boolOr(v, "KAFKA_ENABLED", false),
			Brokers:     splitList(v.GetString("KAFKA_BROKERS")),
			TopicCoded:  v.GetString("KAFKA_TOPIC_CODED"),
			TopicFailed: v.GetString("KAFKA_TOPIC_FAILED"),
			Principal:   kafkaPrincipal,
		},
		Observability: ObservabilityConfig{
			LogLevel:       v.GetString("LOG_LEVEL"),
			LogFormat:      v.GetString("LOG_FORMAT"),
			MetricsAddr:    v.GetString("METRICS_ADDR"),
			PushgatewayURL: v.GetString("PUSHGATEWAY_URL"),
		},
	}
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}

// Validate reports configuration that would make the run fail at startup.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for provider openai"))
		}
	case ProviderGemini:
		if c.LLM.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for provider gemini"))
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q (want openai, gemini or mock)", c.LLM.Provider))
	}

	switch c.Output.Format {
	case "", "auto", "csv", "parquet":
	default:
		errs = append(errs, fmt.Errorf("unknown OUTPUT_FORMAT %q (want auto, csv or parquet)", c.Output.Format))
	}

	if c.Input.Path == "" {
		errs = append(errs, errors.New("INPUT_PATH is required"))
	}
	if c.Output.Path == "" {
		errs = append(errs, errors.New("OUTPUT_PATH is required"))
	}
	if c.Input.Limit < 0 {
		errs = append(errs, fmt.Errorf("limit must not be negative, got %d", c.Input.Limit))
	}

	return errors.Join(errs...)
}

func intOr(v *viper.Viper, key string, def int) int {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		if i, err := strconv.Atoi(s); err == nil {
			return i
		}
	}
	return def
}

func floatOr(v *viper.Viper, key string, def float64) float64 {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return def
}

func boolOr(v *viper.Viper, key string, def bool) bool {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return def
}

func durationOr(v *viper.Viper, key string, def time.Duration) time.Duration {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
