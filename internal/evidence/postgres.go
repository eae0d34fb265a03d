package evidence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGQuerier implements Querier against PostgreSQL + pgvector.
// All statements are parameterized; cosine distance uses the <=> operator
// over the ivfflat/hnsw index created by the migrations.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier creates a Querier backed by the given connection pool.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

const insertFragmentSQL = `
INSERT INTO fragments (id, content, source, page, metadata, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING
`

// InsertFragment inserts one fragment row. The ON CONFLICT DO NOTHING
// clause makes concurrent inserts of the same content-derived id safe:
// exactly one writer wins and everyone reports success.
func (q *PGQuerier) InsertFragment(ctx context.Context, arg InsertFragmentParams) (bool, error) {
	tag, err := q.pool.Exec(ctx, insertFragmentSQL,
		arg.ID, arg.Content, arg.Source, arg.Page, arg.Metadata, arg.Embedding, arg.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert fragment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const existingFragmentIDsSQL = `
SELECT id FROM fragments WHERE id = ANY($1)
`

// ExistingFragmentIDs returns the subset of ids already present in the
// store.
func (q *PGQuerier) ExistingFragmentIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.pool.Query(ctx, existingFragmentIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("existing fragment ids: %w", err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning fragment id: %w", err)
		}
		existing = append(existing, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fragment ids: %w", err)
	}
	return existing, nil
}

const nearestFragmentsSQL = `
SELECT id, content, source, page, metadata, embedding,
       embedding <=> $1 AS distance, created_at
FROM fragments
ORDER BY embedding <=> $1
LIMIT $2
`

// NearestFragments returns rows ordered by ascending cosine distance to
// the query embedding.
func (q *PGQuerier) NearestFragments(ctx context.Context, arg NearestFragmentsParams) ([]FragmentRow, error) {
	rows, err := q.pool.Query(ctx, nearestFragmentsSQL, arg.QueryEmbedding, arg.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("nearest fragments: %w", err)
	}
	defer rows.Close()

	var results []FragmentRow
	for rows.Next() {
		var row FragmentRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Source, &row.Page,
			&row.Metadata, &row.Embedding, &row.Distance, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning fragment row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fragment rows: %w", err)
	}
	return results, nil
}

// CountFragments returns the total number of indexed fragments.
func (q *PGQuerier) CountFragments(ctx context.Context) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx, `SELECT count(*) FROM fragments`).Scan(&count)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("count fragments: %w", err)
	}
	return count, nil
}
