// Package retrieval implements the multi-query retrieval strategy: the
// user's query plus three model-generated reformulations fan out against
// the evidence store, results are deduplicated, and in hybrid mode the
// union is fused with a plain similarity branch under fixed weights.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mvarela/triage/internal/config"
	"github.com/mvarela/triage/internal/evidence"
	"github.com/mvarela/triage/internal/log"
)

// Fusion weights between the multi-query branch and the plain similarity
// branch in hybrid mode.
const (
	multiQueryWeight = 0.7
	similarityWeight = 0.3
)

// Searcher is the slice of the evidence store this package needs.
type Searcher interface {
	Search(ctx context.Context, text string, opts ...evidence.SearchOption) ([]evidence.Fragment, error)
	ScoredSearch(ctx context.Context, text string, k int) ([]evidence.ScoredFragment, error)
}

// Reformulator produces alternative phrasings of a query.
type Reformulator interface {
	Reformulate(ctx context.Context, query string) ([]string, error)
}

// Strategy retrieves evidence fragments for a query.
type Strategy struct {
	store        Searcher
	reformulator Reformulator
	cfg          config.RetrievalConfig
	logger       log.Logger
}

// New builds a retrieval strategy.
func New(store Searcher, reformulator Reformulator, cfg config.RetrievalConfig, logger log.Logger) *Strategy {
	return &Strategy{
		store:        store,
		reformulator: reformulator,
		cfg:          cfg,
		logger:       logger,
	}
}

// Retrieve returns up to SearchK fragments relevant to query. Zero hits is
// not an error: an empty slice with a nil error means "no evidence". Store
// failures propagate to the caller.
func (s *Strategy) Retrieve(ctx context.Context, query string) ([]evidence.Fragment, error) {
	queries, err := s.expandQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	union, err := s.searchAll(ctx, queries)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("multi-query union assembled",
		"queries", len(queries), "fragments", len(union))

	if s.cfg.HybridSearch {
		return s.fuseWithSimilarity(ctx, query, union)
	}

	if len(union) > s.cfg.SearchK {
		union = union[:s.cfg.SearchK]
	}
	return union, nil
}

// expandQuery returns the original query followed by its reformulations.
// A reformulation failure fails the whole retrieval: generation errors
// propagate to the caller instead of silently narrowing the search.
func (s *Strategy) expandQuery(ctx context.Context, query string) ([]string, error) {
	variants, err := s.reformulator.Reformulate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reformulating query: %w", err)
	}
	return append([]string{query}, variants...), nil
}

// searchAll runs one MMR search per query concurrently and merges the
// results in query order, deduplicating by fragment id with first-seen
// precedence. Iterating queries in their fixed sequence keeps the merged
// order deterministic regardless of goroutine scheduling.
func (s *Strategy) searchAll(ctx context.Context, queries []string) ([]evidence.Fragment, error) {
	results := make([][]evidence.Fragment, len(queries))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, q := range queries {
		eg.Go(func() error {
			fragments, err := s.store.Search(egCtx, q,
				evidence.WithMode(evidence.ModeMMR),
				evidence.WithTopK(s.cfg.SearchK),
				evidence.WithFetchK(s.cfg.FetchK),
				evidence.WithLambda(s.cfg.DiversityLambda),
			)
			if err != nil {
				return fmt.Errorf("search %q: %w", q, err)
			}
			results[i] = fragments
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	union := []evidence.Fragment{}
	for _, fragments := range results {
		for _, f := range fragments {
			if seen[f.ID] {
				continue
			}
			seen[f.ID] = true
			union = append(union, f)
		}
	}
	return union, nil
}

// fuseWithSimilarity blends the multi-query union with a plain similarity
// branch using weighted reciprocal-rank fusion. The similarity branch is
// cut off below the configured similarity threshold.
func (s *Strategy) fuseWithSimilarity(ctx context.Context, query string, union []evidence.Fragment) ([]evidence.Fragment, error) {
	scored, err := s.store.ScoredSearch(ctx, query, s.cfg.FetchK)
	if err != nil {
		return nil, fmt.Errorf("similarity branch: %w", err)
	}

	var similar []evidence.Fragment
	for _, sf := range scored {
		if similarity(sf.Distance) < s.cfg.SimilarityThreshold {
			continue
		}
		similar = append(similar, sf.Fragment)
	}

	fused := fuseRanked(
		rankedBranch{fragments: union, weight: multiQueryWeight},
		rankedBranch{fragments: similar, weight: similarityWeight},
	)
	if len(fused) > s.cfg.SearchK {
		fused = fused[:s.cfg.SearchK]
	}
	return fused, nil
}

type rankedBranch struct {
	fragments []evidence.Fragment
	weight    float64
}

// fuseRanked merges branches by weighted reciprocal rank: each fragment
// scores sum(weight/(rank+1)) across the branches it appears in. Ties
// break by first appearance across branches in argument order, keeping the
// fusion deterministic.
func fuseRanked(branches ...rankedBranch) []evidence.Fragment {
	type entry struct {
		fragment evidence.Fragment
		score    float64
		order    int
	}

	entries := make(map[string]*entry)
	order := 0
	for _, b := range branches {
		for rank, f := range b.fragments {
			e, ok := entries[f.ID]
			if !ok {
				e = &entry{fragment: f, order: order}
				entries[f.ID] = e
				order++
			}
			e.score += b.weight / float64(rank+1)
		}
	}

	sorted := make([]*entry, 0, len(entries))
	for _, e := range entries {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].score != sorted[j].score {
			return sorted[i].score > sorted[j].score
		}
		return sorted[i].order < sorted[j].order
	})

	fused := make([]evidence.Fragment, len(sorted))
	for i, e := range sorted {
		fused[i] = e.fragment
	}
	return fused
}

// similarity converts a cosine distance to the similarity scale the
// threshold is expressed in.
func similarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1.0 / (1.0 + distance)
}
