//go:build integration
// +build integration

package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvarela/triage/internal/log"
	"github.com/mvarela/triage/internal/testutil"
)

// vec768 builds a deterministic unit-ish test vector whose direction is
// controlled by the seed, so distinct seeds land at distinct distances.
func vec768(seed float32) []float32 {
	v := make([]float32, 768)
	v[0] = 1
	v[1] = seed
	return v
}

func TestStore_UpsertAndSearch_Integration(t *testing.T) {
	ctx := context.Background()
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	embedder := &mockEmbedder{fixed: vec768(0)}
	store := New(NewPGQuerier(db.Pool), embedder, 768, log.NewNop())

	fragments := []Fragment{
		{Content: "Refunds are processed within 30 days.", Source: "billing.pdf", Page: 2},
		{Content: "Passwords can be reset from the login page.", Source: "access.pdf", Page: 1},
	}

	inserted, err := store.Upsert(ctx, fragments)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Re-ingestion must be a no-op.
	inserted, err = store.Upsert(ctx, fragments)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted, "second upsert should skip existing ids")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := store.Search(ctx, "refund policy", WithMode(ModeSimilarity), WithTopK(2))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotEmpty(t, results[0].Content)
	assert.NotEmpty(t, results[0].Source)
}

func TestStore_ScoredSearch_Integration(t *testing.T) {
	ctx := context.Background()
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	embedder := &mockEmbedder{fixed: vec768(0)}
	store := New(NewPGQuerier(db.Pool), embedder, 768, log.NewNop())

	_, err := store.Upsert(ctx, []Fragment{
		{Content: "Invoices are emailed on the first of each month.", Source: "billing.pdf"},
	})
	require.NoError(t, err)

	scored, err := store.ScoredSearch(ctx, "when do invoices arrive", 5)
	require.NoError(t, err)
	require.Len(t, scored, 1)

	// The embedder returns the same vector for query and fragment, so the
	// cosine distance must be ~0.
	assert.InDelta(t, 0.0, scored[0].Distance, 1e-6)
}
