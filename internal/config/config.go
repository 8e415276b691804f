package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

type Config struct {
	APIPort  string
	LogLevel string

	APIKey            string
	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxInFlight    int
	APIQueueWait      time.Duration

	PostgresDSN string

	NATSURL     string
	NATSSubject string

	VoyageAPIKey       string
	VoyageURL          string
	VoyageModel        string
	VoyageDimension    int
	EmbedTimeout       time.Duration
	VectorBackend      string
	PineconeAPIKey     string
	PineconeControlURL string
	PineconeIndexName  string
	PineconeIndexHost  string
	QdrantURL          string
	QdrantAPIKey       string
	VectorNamespace    string
	VectorTimeout      time.Duration

	GeminiAPIKey      string
	GenerationBaseURL string
	GenerationTimeout time.Duration
	Temperature       float64

	RAG        RAG
	Prompt     Prompt
	Messages   domain.UserMessages
	Models     []string
	ModelID    string
	Resilience Resilience

	CorpusPath   string
	ChunkSize    int
	ChunkOverlap int

	WorkerMetricsPort string

	overlayErr error
}

// RAG holds the retrieval and context defaults.
type RAG struct {
	DefaultResultCount int
	MaxResultCount     int
	ScoreFloor         float64
	MaxContextChars    int
}

// Prompt holds the pieces the system prompt is rendered from.
type Prompt struct {
	ContextDescription string `yaml:"context_description"`
	NotFoundMessage    string `yaml:"not_found_message"`
}

type Resilience struct {
	RetryMaxAttempts    int
	BreakerEnabled      bool
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

func Load() Config {
	cfg := Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		APIKey:            mustEnv("API_KEY", ""),
		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 10),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 20),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 32),
		APIQueueWait:      mustEnvDuration("API_QUEUE_WAIT", 250*time.Millisecond),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "nhsrag.transcripts"),

		VoyageAPIKey:       mustEnv("VOYAGE_API_KEY", ""),
		VoyageURL:          mustEnv("VOYAGE_URL", "https://api.voyageai.com/v1"),
		VoyageModel:        mustEnv("VOYAGE_MODEL", "voyage-context-3"),
		VoyageDimension:    mustEnvInt("VOYAGE_OUTPUT_DIMENSION", 2048),
		EmbedTimeout:       mustEnvDuration("EMBED_TIMEOUT", 30*time.Second),
		VectorBackend:      strings.ToLower(mustEnv("VECTOR_BACKEND", "pinecone")),
		PineconeAPIKey:     mustEnv("PINECONE_API_KEY", ""),
		PineconeControlURL: mustEnv("PINECONE_CONTROL_URL", "https://api.pinecone.io"),
		PineconeIndexName:  mustEnv("PINECONE_INDEX", "nhs-conditions"),
		PineconeIndexHost:  mustEnv("PINECONE_INDEX_HOST", ""),
		QdrantURL:          mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:       mustEnv("QDRANT_API_KEY", ""),
		VectorNamespace:    mustEnv("VECTOR_NAMESPACE", "nhs_guidelines_voyage_3_large"),
		VectorTimeout:      mustEnvDuration("VECTOR_TIMEOUT", 30*time.Second),

		GeminiAPIKey:      mustEnv("GEMINI_API_KEY", ""),
		GenerationBaseURL: mustEnv("GENERATION_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
		GenerationTimeout: mustEnvDuration("GENERATION_TIMEOUT", 120*time.Second),
		Temperature:       mustEnvFloat("GENERATION_TEMPERATURE", 0),

		RAG: RAG{
			DefaultResultCount: mustEnvInt("RAG_TOP_K", 5),
			MaxResultCount:     mustEnvInt("RAG_MAX_TOP_K", 25),
			ScoreFloor:         mustEnvFloat("RAG_SCORE_FLOOR", 0),
			MaxContextChars:    mustEnvInt("RAG_MAX_CONTEXT_CHARS", 24000),
		},
		Prompt:   defaultPrompt(),
		Messages: defaultMessages(),
		Models:   splitList(mustEnv("GENERATION_MODELS", strings.Join(defaultModels, ","))),
		ModelID:  mustEnv("GENERATION_DEFAULT_MODEL", defaultModels[0]),
		Resilience: Resilience{
			RetryMaxAttempts:    mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 1),
			BreakerEnabled:      mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
			BreakerMinRequests:  uint32(mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", 10)),
			BreakerFailureRatio: mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.5),
			BreakerOpenTimeout:  mustEnvDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},

		CorpusPath:   mustEnv("CORPUS_PATH", "./data/corpus"),
		ChunkSize:    mustEnvInt("CHUNK_SIZE", 1500),
		ChunkOverlap: mustEnvInt("CHUNK_OVERLAP", 150),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}

	if path := mustEnv("RAG_CONFIG_FILE", ""); path != "" {
		if err := applyOverlayFile(&cfg, path); err != nil {
			// reported by Validate
			cfg.overlayErr = err
		}
	}
	return cfg.normalize()
}

func (c Config) normalize() Config {
	if c.RAG.DefaultResultCount <= 0 {
		c.RAG.DefaultResultCount = 5
	}
	if c.RAG.MaxResultCount < c.RAG.DefaultResultCount {
		c.RAG.MaxResultCount = c.RAG.DefaultResultCount
	}
	if c.RAG.MaxContextChars <= 0 {
		c.RAG.MaxContextChars = 24000
	}
	if len(c.Models) == 0 {
		c.Models = slices.Clone(defaultModels)
	}
	if strings.TrimSpace(c.ModelID) == "" {
		c.ModelID = c.Models[0]
	}
	return c
}

// Validate reports problems that must stop the process before it serves.
func (c Config) Validate() error {
	var errs []error
	if c.overlayErr != nil {
		errs = append(errs, domain.WrapError(domain.ErrConfiguration, "load config overlay", c.overlayErr))
	}
	if !c.ModelSupported(c.ModelID) {
		errs = append(errs, domain.NewError(domain.ErrConfiguration, "config", fmt.Sprintf("default model %q is not in the model catalog", c.ModelID)))
	}
	switch c.VectorBackend {
	case "pinecone", "qdrant":
	default:
		errs = append(errs, domain.NewError(domain.ErrConfiguration, "config", fmt.Sprintf("unsupported vector backend %q", c.VectorBackend)))
	}
	return errors.Join(errs...)
}

// ValidateCredentials reports every missing provider credential.
func (c Config) ValidateCredentials() error {
	var missing []string
	if c.VoyageAPIKey == "" {
		missing = append(missing, "VOYAGE_API_KEY")
	}
	if c.VectorBackend == "pinecone" && c.PineconeAPIKey == "" {
		missing = append(missing, "PINECONE_API_KEY")
	}
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if len(missing) == 0 {
		return nil
	}
	return domain.NewError(domain.ErrConfiguration, "credentials", "missing "+strings.Join(missing, ", "))
}

func (c Config) ModelSupported(id string) bool {
	return c.Catalog().supports(id)
}

func (c Config) ResolveModel(id string) (string, error) {
	return c.Catalog().ResolveModel(id)
}

// Limits returns the retrieval bounds used by the answer pipeline.
func (c Config) Limits() domain.RetrievalLimits {
	return domain.RetrievalLimits{
		DefaultResultCount: c.RAG.DefaultResultCount,
		MaxResultCount:     c.RAG.MaxResultCount,
		ScoreFloor:         c.RAG.ScoreFloor,
		MaxContextChars:    c.RAG.MaxContextChars,
	}
}

func (c Config) PromptSettings() domain.PromptSettings {
	return domain.PromptSettings{
		ContextDescription: c.Prompt.ContextDescription,
		NotFoundMessage:    c.Prompt.NotFoundMessage,
	}
}

// Catalog returns the model catalog view of the configuration.
func (c Config) Catalog() ModelCatalog {
	return ModelCatalog{models: slices.Clone(c.Models), defaultModel: c.ModelID}
}

// ModelCatalog is the immutable list of generation models a caller may pick.
type ModelCatalog struct {
	models       []string
	defaultModel string
}

func (m ModelCatalog) Models() []string {
	return slices.Clone(m.models)
}

func (m ModelCatalog) DefaultModel() string {
	return m.defaultModel
}

// ResolveModel returns the default model for an empty id and rejects ids
// outside the catalog.
func (m ModelCatalog) ResolveModel(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return m.defaultModel, nil
	}
	if !m.supports(id) {
		return "", domain.NewError(
			domain.ErrConfiguration,
			"resolve model",
			fmt.Sprintf("unsupported model %q (supported: %s)", id, strings.Join(m.models, ", ")),
		)
	}
	return id, nil
}

func (m ModelCatalog) supports(id string) bool {
	return slices.Contains(m.models, strings.TrimSpace(id))
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
