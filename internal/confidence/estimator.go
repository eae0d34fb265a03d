// Package confidence scores generated answers against the evidence that
// produced them. The score is a pure heuristic over the query, the answer
// text, and the retrieved fragments with their cosine distances; it makes
// no external calls, so identical inputs always yield the identical score.
// The resolution machine routes on this value, and routing is irreversible,
// so determinism here is a hard requirement.
package confidence

import (
	"strings"

	"github.com/mvarela/triage/internal/evidence"
)

// Weights holds every tunable constant in the composite score. The exact
// values are configuration, not load-bearing precision; DefaultWeights is
// tuned so that strong retrieval with a substantive grounded answer lands
// comfortably above the automatic-resolution threshold.
type Weights struct {
	// Base is the starting score once all hard rules have passed.
	Base float64 `mapstructure:"base" json:"base"`
	// Similarity scales the mean 1/(1+distance) of the scored fragments.
	// Retrieval quality is the strongest signal, so this carries the most
	// weight.
	Similarity float64 `mapstructure:"similarity" json:"similarity"`
	// FragmentCount scales a bonus that saturates at CountSaturation
	// fragments.
	FragmentCount float64 `mapstructure:"fragment_count" json:"fragment_count"`
	// LengthBonus is added for answers of at least LongAnswerWords words;
	// LengthPenalty is subtracted for answers under ShortAnswerWords.
	LengthBonus   float64 `mapstructure:"length_bonus" json:"length_bonus"`
	LengthPenalty float64 `mapstructure:"length_penalty" json:"length_penalty"`
	// Overlap scales the fraction of non-stopword query terms that
	// literally reappear in the answer.
	Overlap float64 `mapstructure:"overlap" json:"overlap"`

	// EmptyAnswerFloor is returned when fragments exist but the answer is
	// blank, and when every fragment is blank after trimming.
	EmptyAnswerFloor float64 `mapstructure:"empty_answer_floor" json:"empty_answer_floor"`
	// NegativePhrase is returned when the answer contains a configured
	// refusal phrase, overriding all other signals.
	NegativePhrase float64 `mapstructure:"negative_phrase" json:"negative_phrase"`

	CountSaturation  int `mapstructure:"count_saturation" json:"count_saturation"`
	ShortAnswerWords int `mapstructure:"short_answer_words" json:"short_answer_words"`
	LongAnswerWords  int `mapstructure:"long_answer_words" json:"long_answer_words"`
}

// DefaultWeights returns the stock tuning.
func DefaultWeights() Weights {
	return Weights{
		Base:             0.45,
		Similarity:       0.35,
		FragmentCount:    0.10,
		LengthBonus:      0.05,
		LengthPenalty:    0.10,
		Overlap:          0.10,
		EmptyAnswerFloor: 0.15,
		NegativePhrase:   0.20,
		CountSaturation:  5,
		ShortAnswerWords: 10,
		LongAnswerWords:  30,
	}
}

// Estimator computes trust scores for generated answers.
type Estimator struct {
	weights         Weights
	negativePhrases []string
}

// NewEstimator builds an estimator. Negative phrases are matched as
// case-insensitive substrings of the answer.
func NewEstimator(weights Weights, negativePhrases []string) *Estimator {
	lowered := make([]string, 0, len(negativePhrases))
	for _, p := range negativePhrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return &Estimator{weights: weights, negativePhrases: lowered}
}

// Score returns a trust score in [0,1] for answer given the query and the
// evidence behind it. Hard rules are checked in order, first match wins:
// no fragments → 0; fragments but no usable content or no answer → floor;
// refusal phrase in the answer → fixed negative value. Otherwise a weighted
// composite of retrieval similarity, fragment count, answer length and
// lexical grounding, clamped to [0,1].
func (e *Estimator) Score(query, answer string, fragments []evidence.Fragment, scored []evidence.ScoredFragment) float64 {
	if len(fragments) == 0 {
		return 0.0
	}
	if !hasUsefulContent(fragments) {
		return e.weights.EmptyAnswerFloor
	}
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return e.weights.EmptyAnswerFloor
	}
	if e.containsNegativePhrase(trimmed) {
		return e.weights.NegativePhrase
	}

	score := e.weights.Base
	score += e.weights.Similarity * meanSimilarity(scored)
	score += e.weights.FragmentCount * e.countSignal(len(fragments))
	score += e.lengthAdjustment(trimmed)
	score += e.weights.Overlap * lexicalOverlap(query, trimmed)

	return clamp01(score)
}

func (e *Estimator) containsNegativePhrase(answer string) bool {
	lowered := strings.ToLower(answer)
	for _, p := range e.negativePhrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// countSignal grows linearly with fragment count and saturates at
// CountSaturation.
func (e *Estimator) countSignal(n int) float64 {
	sat := e.weights.CountSaturation
	if sat <= 0 {
		sat = 1
	}
	if n >= sat {
		return 1.0
	}
	return float64(n) / float64(sat)
}

func (e *Estimator) lengthAdjustment(answer string) float64 {
	words := len(strings.Fields(answer))
	switch {
	case words < e.weights.ShortAnswerWords:
		return -e.weights.LengthPenalty
	case words >= e.weights.LongAnswerWords:
		return e.weights.LengthBonus
	default:
		return 0
	}
}

// meanSimilarity converts cosine distances to similarities via 1/(1+d) and
// averages them. Without any scored fragments there is no retrieval-quality
// evidence either way, so a neutral 0.5 keeps the composite centered.
func meanSimilarity(scored []evidence.ScoredFragment) float64 {
	if len(scored) == 0 {
		return 0.5
	}
	var sum float64
	for _, s := range scored {
		d := s.Distance
		if d < 0 {
			d = 0
		}
		sum += 1.0 / (1.0 + d)
	}
	return sum / float64(len(scored))
}

// lexicalOverlap returns the fraction of non-stopword query terms that
// literally reappear in the answer. A query with no content terms
// contributes nothing.
func lexicalOverlap(query, answer string) float64 {
	queryTerms := contentTerms(query)
	if len(queryTerms) == 0 {
		return 0
	}
	answerSet := termSet(answer)
	matched := 0
	for _, t := range queryTerms {
		if answerSet[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

func hasUsefulContent(fragments []evidence.Fragment) bool {
	for _, f := range fragments {
		if strings.TrimSpace(f.Content) != "" {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
