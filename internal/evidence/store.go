// Package evidence implements the persistent nearest-neighbor index over
// document fragments backed by PostgreSQL + pgvector.
//
// Fragments are addressed by a content-derived identifier, which makes
// ingestion idempotent: re-indexing overlapping material never creates
// duplicates. Search supports a diversity-aware mode (maximal marginal
// relevance over a candidate pool) and plain similarity.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// InsertFragmentParams carries one fragment row for insertion.
type InsertFragmentParams struct {
	ID        string
	Content   string
	Source    string
	Page      int32
	Metadata  []byte
	Embedding *pgvector.Vector
	CreatedAt time.Time
}

// NearestFragmentsParams parameterizes a vector search.
type NearestFragmentsParams struct {
	QueryEmbedding *pgvector.Vector
	ResultLimit    int32
}

// FragmentRow is a raw search result row including the stored embedding,
// which the MMR re-ranker needs.
type FragmentRow struct {
	ID        string
	Content   string
	Source    string
	Page      int32
	Metadata  []byte
	Embedding pgvector.Vector
	Distance  float64
	CreatedAt time.Time
}

// Querier defines the database operations Store depends on.
// The interface is defined by the consumer, not the provider (like
// io.Reader or http.RoundTripper), so tests can substitute a mock and the
// production implementation stays swappable.
type Querier interface {
	// InsertFragment inserts a fragment row, skipping silently when the
	// id already exists. Reports whether a row was actually inserted.
	InsertFragment(ctx context.Context, arg InsertFragmentParams) (bool, error)

	// ExistingFragmentIDs returns the subset of ids already stored.
	ExistingFragmentIDs(ctx context.Context, ids []string) ([]string, error)

	// NearestFragments returns the rows closest to the query embedding,
	// ordered by ascending cosine distance.
	NearestFragments(ctx context.Context, arg NearestFragmentsParams) ([]FragmentRow, error)

	// CountFragments returns the total number of indexed fragments.
	CountFragments(ctx context.Context) (int64, error)
}

// Store manages fragments with vector search capabilities.
// It handles embedding generation and similarity search; it is safe for
// concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	dim      int32
	logger   *slog.Logger
}

// New creates a new Store.
//
// dim is the embedding width stored in the fragments table; the embedder
// output is truncated to it via OutputDimensionality.
// A nil logger falls back to slog.Default().
func New(querier Querier, embedder ai.Embedder, dim int32, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		queries:  querier,
		embedder: embedder,
		dim:      dim,
		logger:   logger,
	}
}

// Upsert indexes the given fragments, computing content-derived ids for
// any fragment that lacks one. Fragments whose id already exists in the
// store are skipped before their embedding is computed, so re-indexing an
// unchanged corpus costs no embedder calls. Returns the count actually
// inserted.
func (s *Store) Upsert(ctx context.Context, fragments []Fragment) (int, error) {
	ids := make([]string, len(fragments))
	for i, frag := range fragments {
		id := frag.ID
		if id == "" {
			id = HashID(frag.Content, frag.Metadata)
		}
		ids[i] = id
	}

	existing, err := s.queries.ExistingFragmentIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("checking existing fragments: %w: %w", ErrStoreUnavailable, err)
	}
	present := make(map[string]bool, len(existing))
	for _, id := range existing {
		present[id] = true
	}

	inserted := 0
	for i, frag := range fragments {
		id := ids[i]
		if present[id] {
			continue
		}
		// Marks in-batch duplicates too, so identical chunks in one
		// call are embedded once.
		present[id] = true

		embedding, err := s.embed(ctx, frag.Content)
		if err != nil {
			return inserted, fmt.Errorf("embedding fragment %q: %w", id, err)
		}

		metadataJSON, err := json.Marshal(frag.Metadata)
		if err != nil {
			return inserted, fmt.Errorf("marshalling metadata for %q: %w", id, err)
		}

		createdAt := frag.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		ok, err := s.queries.InsertFragment(ctx, InsertFragmentParams{
			ID:        id,
			Content:   frag.Content,
			Source:    frag.Source,
			Page:      frag.Page,
			Metadata:  metadataJSON,
			Embedding: embedding,
			CreatedAt: createdAt,
		})
		if err != nil {
			return inserted, fmt.Errorf("inserting fragment %q: %w: %w", id, ErrStoreUnavailable, err)
		}
		if ok {
			inserted++
		}
	}

	s.logger.Debug("fragments upserted",
		"total", len(fragments),
		"inserted", inserted,
		"skipped", len(fragments)-inserted)
	return inserted, nil
}

// Search performs a vector search for the query text.
//
// In ModeMMR (the default) a pool of fetchK candidates is fetched and
// re-ranked with maximal marginal relevance before the topK results are
// returned. In ModeSimilarity the topK nearest neighbors are returned
// directly. Zero results is a legitimate outcome, not an error.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Fragment, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	queryEmbedding, err := s.embed(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	limit := cfg.topK
	if cfg.mode == ModeMMR {
		limit = cfg.fetchK
	}

	rows, err := s.queries.NearestFragments(queryCtx, NearestFragmentsParams{
		QueryEmbedding: queryEmbedding,
		ResultLimit:    int32(min(limit, 1000)), // #nosec G115 -- bounded above
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("searching fragments: %w: %w", ErrStoreUnavailable, err)
	}

	if cfg.mode == ModeMMR && len(rows) > cfg.topK {
		candidates := make([][]float32, len(rows))
		for i, row := range rows {
			candidates[i] = row.Embedding.Slice()
		}
		picked := maximalMarginalRelevance(queryEmbedding.Slice(), candidates, cfg.lambda, cfg.topK)
		reranked := make([]FragmentRow, 0, len(picked))
		for _, idx := range picked {
			reranked = append(reranked, rows[idx])
		}
		rows = reranked
	} else if len(rows) > cfg.topK {
		rows = rows[:cfg.topK]
	}

	fragments := make([]Fragment, 0, len(rows))
	for _, row := range rows {
		fragments = append(fragments, s.rowToFragment(row))
	}
	return fragments, nil
}

// ScoredSearch returns the k nearest fragments with their raw cosine
// distances, used by the confidence estimator.
func (s *Store) ScoredSearch(ctx context.Context, query string, k int) ([]ScoredFragment, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	queryEmbedding, err := s.embed(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.queries.NearestFragments(queryCtx, NearestFragmentsParams{
		QueryEmbedding: queryEmbedding,
		ResultLimit:    int32(min(k, 1000)), // #nosec G115 -- bounded above
	})
	if err != nil {
		return nil, fmt.Errorf("scored search: %w: %w", ErrStoreUnavailable, err)
	}

	scored := make([]ScoredFragment, 0, len(rows))
	for _, row := range rows {
		scored = append(scored, ScoredFragment{
			Fragment: s.rowToFragment(row),
			Distance: row.Distance,
		})
	}
	return scored, nil
}

// Count returns the total number of indexed fragments.
func (s *Store) Count(ctx context.Context) (int, error) {
	count, err := s.queries.CountFragments(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting fragments: %w: %w", ErrStoreUnavailable, err)
	}
	return int(count), nil
}

// embed generates the embedding vector for text, truncated to the
// configured dimension.
func (s *Store) embed(ctx context.Context, text string) (*pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &s.dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	v := pgvector.NewVector(resp.Embeddings[0].Embedding)
	return &v, nil
}

// rowToFragment converts a database row to the business model.
func (s *Store) rowToFragment(row FragmentRow) Fragment {
	var metadata map[string]string
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse fragment metadata", "fragment_id", row.ID, "error", err)
			metadata = nil
		}
	}

	return Fragment{
		ID:        row.ID,
		Content:   row.Content,
		Source:    row.Source,
		Page:      row.Page,
		Metadata:  metadata,
		CreatedAt: row.CreatedAt,
	}
}
