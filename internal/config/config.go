// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.triage/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Models: generation, reformulation and classification model selection
//   - Retrieval: search depth, candidate pool size, diversity trade-off
//   - Confidence: tunable weights for the heuristic trust score
//   - Storage: PostgreSQL connection (see storage.go)
//
// Security: the database password is never logged. Validation is fail-fast
// with sentinel errors checked via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mvarela/triage/internal/confidence"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates a temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidSearchK indicates the retrieval result cap is out of range.
	ErrInvalidSearchK = errors.New("invalid search_k")

	// ErrInvalidFetchK indicates the candidate pool size is out of range.
	ErrInvalidFetchK = errors.New("invalid fetch_k")

	// ErrInvalidLambda indicates the diversity trade-off is outside [0,1].
	ErrInvalidLambda = errors.New("invalid diversity_lambda")

	// ErrInvalidThreshold indicates a threshold is outside [0,1].
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrInvalidConfidenceWeight indicates a confidence weight is out of
	// range.
	ErrInvalidConfidenceWeight = errors.New("invalid confidence weight")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// Output is truncated to EmbeddingDimension via OutputDimensionality;
	// the pgvector column in db/migrations must match.
	DefaultEmbedderModel = "gemini-embedding-001"

	// EmbeddingDimension is the vector width stored in the fragments table.
	EmbeddingDimension int32 = 768

	// DefaultSearchK is the final number of fragments a retrieval returns.
	DefaultSearchK = 5

	// DefaultFetchK is the candidate pool fetched before diversity re-ranking.
	DefaultFetchK = 20

	// DefaultDiversityLambda balances relevance (1.0) against diversity (0.0).
	DefaultDiversityLambda = 0.5

	// DefaultSimilarityThreshold cuts off the plain-similarity branch in
	// hybrid mode.
	DefaultSimilarityThreshold = 0.7

	// DefaultAutoThreshold is the confidence above which a malformed
	// classification falls back to automatic resolution.
	DefaultAutoThreshold = 0.6
)

// RetrievalConfig groups the knobs of the retrieval strategy.
type RetrievalConfig struct {
	SearchK             int     `mapstructure:"search_k" json:"search_k"`
	FetchK              int     `mapstructure:"fetch_k" json:"fetch_k"`
	DiversityLambda     float64 `mapstructure:"diversity_lambda" json:"diversity_lambda"`
	HybridSearch        bool    `mapstructure:"hybrid_search" json:"hybrid_search"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
}

// ModelsConfig selects the models for each external call.
// Reformulation always runs at temperature 0 so identical queries produce
// identical variants; only the final answer temperature is configurable.
type ModelsConfig struct {
	Generation            string  `mapstructure:"generation" json:"generation"`
	Reformulation         string  `mapstructure:"reformulation" json:"reformulation"`
	Classification        string  `mapstructure:"classification" json:"classification"`
	GenerationTemperature float32 `mapstructure:"generation_temperature" json:"generation_temperature"`
	Embedder              string  `mapstructure:"embedder" json:"embedder"`
}

// Config stores application configuration.
// SECURITY: the PostgreSQL password is masked in MarshalJSON.
type Config struct {
	Models    ModelsConfig    `mapstructure:"models" json:"models"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" json:"retrieval"`

	// AutoThreshold is the deterministic classification fallback boundary.
	AutoThreshold float64 `mapstructure:"auto_threshold" json:"auto_threshold"`

	// NegativePhrases short-circuit the confidence score when the generated
	// answer admits it has no information.
	NegativePhrases []string `mapstructure:"negative_phrases" json:"negative_phrases"`

	// Confidence holds the tunable weights of the composite trust score.
	Confidence confidence.Weights `mapstructure:"confidence" json:"confidence"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Documents directory for bulk ingestion.
	DocumentsDir string `mapstructure:"documents_dir" json:"documents_dir"`

	// Tracing configuration (OTLP over HTTP; empty endpoint disables tracing).
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".triage")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// DefaultNegativePhrases are matched case-insensitively against generated
// answers; a hit pins confidence to the negative-phrase floor.
func DefaultNegativePhrases() []string {
	return []string{
		"i don't know",
		"i do not know",
		"no information",
		"not mentioned",
		"cannot find",
		"no relevant",
	}
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Model defaults
	v.SetDefault("models.generation", "gemini-2.5-flash")
	v.SetDefault("models.reformulation", "gemini-2.5-flash-lite")
	v.SetDefault("models.classification", "gemini-2.5-flash-lite")
	v.SetDefault("models.generation_temperature", 0.0)
	v.SetDefault("models.embedder", DefaultEmbedderModel)

	// Retrieval defaults
	v.SetDefault("retrieval.search_k", DefaultSearchK)
	v.SetDefault("retrieval.fetch_k", DefaultFetchK)
	v.SetDefault("retrieval.diversity_lambda", DefaultDiversityLambda)
	v.SetDefault("retrieval.hybrid_search", true)
	v.SetDefault("retrieval.similarity_threshold", DefaultSimilarityThreshold)

	// Routing defaults
	v.SetDefault("auto_threshold", DefaultAutoThreshold)
	v.SetDefault("negative_phrases", DefaultNegativePhrases())

	// Confidence weights; a config file overrides fields individually.
	w := confidence.DefaultWeights()
	v.SetDefault("confidence.base", w.Base)
	v.SetDefault("confidence.similarity", w.Similarity)
	v.SetDefault("confidence.fragment_count", w.FragmentCount)
	v.SetDefault("confidence.length_bonus", w.LengthBonus)
	v.SetDefault("confidence.length_penalty", w.LengthPenalty)
	v.SetDefault("confidence.overlap", w.Overlap)
	v.SetDefault("confidence.empty_answer_floor", w.EmptyAnswerFloor)
	v.SetDefault("confidence.negative_phrase", w.NegativePhrase)
	v.SetDefault("confidence.count_saturation", w.CountSaturation)
	v.SetDefault("confidence.short_answer_words", w.ShortAnswerWords)
	v.SetDefault("confidence.long_answer_words", w.LongAnswerWords)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "triage")
	v.SetDefault("postgres_password", "triage_dev_password")
	v.SetDefault("postgres_db_name", "triage")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Ingestion defaults
	v.SetDefault("documents_dir", "documents")

	// Tracing defaults (disabled unless an endpoint is configured)
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("service_name", "triage")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("otlp_endpoint", "TRIAGE_OTLP_ENDPOINT")
	mustBind("documents_dir", "TRIAGE_DOCUMENTS_DIR")
	mustBind("postgres_password", "TRIAGE_POSTGRES_PASSWORD")
}

// MarshalJSON masks sensitive fields when the configuration is serialized,
// for example by debug logging.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // Avoid recursion
	masked := alias(*c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "***"
	}
	return json.Marshal(masked)
}
