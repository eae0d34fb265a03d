package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Fragment is the indexed unit of source text with provenance metadata.
// Fragments are immutable once ingested; identity is derived from content
// so re-ingesting the same material is a no-op.
type Fragment struct {
	ID        string            // Content-derived identifier (see HashID)
	Content   string            // Fragment text
	Source    string            // Origin document, e.g. a file name
	Page      int32             // Optional page locator (0 = unknown)
	Metadata  map[string]string // Additional provenance metadata
	CreatedAt time.Time
}

// ScoredFragment pairs a fragment with its raw cosine distance to the
// query. Lower distance means more similar.
type ScoredFragment struct {
	Fragment Fragment
	Distance float64
}

// HashID computes the stable content-derived identifier for a fragment.
// The hash covers content plus serialized metadata so the same text from
// two different sources indexes as two fragments.
//
// json.Marshal sorts map keys, which keeps the serialization deterministic.
func HashID(content string, metadata map[string]string) string {
	h := sha256.New()
	h.Write([]byte(content))
	if len(metadata) > 0 {
		// Marshalling a map[string]string cannot fail.
		serialized, _ := json.Marshal(metadata)
		h.Write(serialized)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Mode selects the retrieval behavior of Store.Search.
type Mode int

const (
	// ModeMMR re-ranks a candidate pool with maximal marginal relevance,
	// balancing relevance against redundancy among results.
	ModeMMR Mode = iota

	// ModeSimilarity returns plain nearest neighbors.
	ModeSimilarity
)

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	topK    int
	fetchK  int
	mode    Mode
	lambda  float64
	timeout time.Duration
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithMode selects the retrieval mode. Default is ModeMMR.
func WithMode(m Mode) SearchOption {
	return func(c *searchConfig) {
		c.mode = m
	}
}

// WithFetchK sets the candidate pool size fetched before MMR re-ranking.
// Ignored in ModeSimilarity. Default is 20.
func WithFetchK(k int) SearchOption {
	return func(c *searchConfig) {
		c.fetchK = k
	}
}

// WithLambda sets the MMR relevance/diversity trade-off in [0,1]:
// 1.0 is pure relevance, 0.0 is pure diversity. Default is 0.5.
func WithLambda(l float64) SearchOption {
	return func(c *searchConfig) {
		c.lambda = l
	}
}

// buildSearchConfig applies search options and returns the final
// configuration.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		fetchK:  20,
		mode:    ModeMMR,
		lambda:  0.5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.fetchK < cfg.topK {
		cfg.fetchK = cfg.topK
	}
	return cfg
}
