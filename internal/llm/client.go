// Package llm wraps the Genkit generation API behind the three calls this
// service needs: answer generation, query reformulation, and routing
// classification. All calls share one rate limiter and retry policy.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/mvarela/triage/internal/config"
	"github.com/mvarela/triage/internal/log"
)

const (
	// Provider limits for the Gemini API free tier leave headroom at
	// 10 req/s sustained with bursts of 30.
	requestsPerSecond = 10
	burstSize         = 30

	// reformulationCount is the number of query variants multi-query
	// retrieval expects.
	reformulationCount = 3
)

// generateFunc is the seam between the client and genkit.Generate,
// swapped out in tests.
type generateFunc func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)

// Client issues model calls on behalf of the retrieval and resolution
// layers.
type Client struct {
	models   config.ModelsConfig
	limiter  *rate.Limiter
	retry    RetryConfig
	logger   log.Logger
	generate generateFunc
}

// New builds a client bound to an initialized Genkit instance.
func New(g *genkit.Genkit, models config.ModelsConfig, logger log.Logger) *Client {
	return &Client{
		models:  models,
		limiter: rate.NewLimiter(requestsPerSecond, burstSize),
		retry:   DefaultRetryConfig(),
		logger:  logger,
		generate: func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
			return genkit.Generate(ctx, g, opts...)
		},
	}
}

// Generate produces an answer to question grounded in docContext using the
// generation model at the configured temperature.
func (c *Client) Generate(ctx context.Context, question, docContext string) (string, error) {
	prompt := fmt.Sprintf(answerPrompt, docContext, question)
	return c.call(ctx, prompt, c.models.Generation, float32(c.models.GenerationTemperature))
}

// Reformulate returns exactly three alternative phrasings of query,
// generated at temperature zero so repeated calls stay stable.
func (c *Client) Reformulate(ctx context.Context, query string) ([]string, error) {
	prompt := fmt.Sprintf(reformulatePrompt, query)
	text, err := c.call(ctx, prompt, c.models.Reformulation, 0)
	if err != nil {
		return nil, err
	}

	variants := parseReformulations(text)
	if len(variants) < reformulationCount {
		return nil, fmt.Errorf("%w: got %d variants, want %d",
			ErrMalformedReformulation, len(variants), reformulationCount)
	}
	return variants[:reformulationCount], nil
}

// Classify asks the classification model for a routing decision. The raw
// reply is returned for the caller to substring-match; temperature is kept
// near zero for stable routing.
func (c *Client) Classify(ctx context.Context, question, docContext string, confidence float64) (string, error) {
	prompt := fmt.Sprintf(classifyPrompt, question, docContext, confidence)
	return c.call(ctx, prompt, c.models.Classification, 0.1)
}

func (c *Client) call(ctx context.Context, prompt, modelName string, temperature float32) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithPrompt(prompt),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(temperature),
		}),
	}
	if modelName != "" {
		opts = append(opts, ai.WithModelName(modelName))
	}

	resp, err := c.generateWithRetry(ctx, opts)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// parseReformulations extracts non-empty lines, tolerating the numbering
// and bullets models add despite being told not to.
func parseReformulations(text string) []string {
	var variants []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.)-*• ")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		variants = append(variants, line)
	}
	return variants
}
