package config

import "fmt"

// Valid PostgreSQL SSL modes accepted by pgx.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks the configuration for invalid values.
// It is called by Load immediately after unmarshalling (fail-fast).
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Models.Generation == "" {
		return fmt.Errorf("%w: models.generation must not be empty", ErrInvalidModelName)
	}
	if c.Models.Reformulation == "" {
		return fmt.Errorf("%w: models.reformulation must not be empty", ErrInvalidModelName)
	}
	if c.Models.Classification == "" {
		return fmt.Errorf("%w: models.classification must not be empty", ErrInvalidModelName)
	}
	if c.Models.Embedder == "" {
		return fmt.Errorf("%w: models.embedder must not be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Models.GenerationTemperature < 0.0 || c.Models.GenerationTemperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f",
			ErrInvalidTemperature, c.Models.GenerationTemperature)
	}

	if c.Retrieval.SearchK < 1 || c.Retrieval.SearchK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d",
			ErrInvalidSearchK, c.Retrieval.SearchK)
	}
	if c.Retrieval.FetchK < c.Retrieval.SearchK {
		return fmt.Errorf("%w: must be >= search_k (%d), got %d",
			ErrInvalidFetchK, c.Retrieval.SearchK, c.Retrieval.FetchK)
	}
	if c.Retrieval.DiversityLambda < 0.0 || c.Retrieval.DiversityLambda > 1.0 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f",
			ErrInvalidLambda, c.Retrieval.DiversityLambda)
	}
	if c.Retrieval.SimilarityThreshold < 0.0 || c.Retrieval.SimilarityThreshold > 1.0 {
		return fmt.Errorf("%w: similarity_threshold must be between 0.0 and 1.0, got %.2f",
			ErrInvalidThreshold, c.Retrieval.SimilarityThreshold)
	}

	if c.AutoThreshold < 0.0 || c.AutoThreshold > 1.0 {
		return fmt.Errorf("%w: auto_threshold must be between 0.0 and 1.0, got %.2f",
			ErrInvalidThreshold, c.AutoThreshold)
	}

	// Confidence weights: the floors are scores themselves and must stay
	// inside [0,1]; the saturation knobs must be positive.
	if c.Confidence.EmptyAnswerFloor < 0.0 || c.Confidence.EmptyAnswerFloor > 1.0 {
		return fmt.Errorf("%w: confidence.empty_answer_floor must be between 0.0 and 1.0, got %.2f",
			ErrInvalidConfidenceWeight, c.Confidence.EmptyAnswerFloor)
	}
	if c.Confidence.NegativePhrase < 0.0 || c.Confidence.NegativePhrase > 1.0 {
		return fmt.Errorf("%w: confidence.negative_phrase must be between 0.0 and 1.0, got %.2f",
			ErrInvalidConfidenceWeight, c.Confidence.NegativePhrase)
	}
	if c.Confidence.Base < 0.0 || c.Confidence.Base > 1.0 {
		return fmt.Errorf("%w: confidence.base must be between 0.0 and 1.0, got %.2f",
			ErrInvalidConfidenceWeight, c.Confidence.Base)
	}
	if c.Confidence.CountSaturation < 1 {
		return fmt.Errorf("%w: confidence.count_saturation must be >= 1, got %d",
			ErrInvalidConfidenceWeight, c.Confidence.CountSaturation)
	}
	if c.Confidence.ShortAnswerWords < 0 || c.Confidence.LongAnswerWords < c.Confidence.ShortAnswerWords {
		return fmt.Errorf("%w: confidence answer-length bounds must satisfy 0 <= short <= long, got %d/%d",
			ErrInvalidConfidenceWeight, c.Confidence.ShortAnswerWords, c.Confidence.LongAnswerWords)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: got %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}
