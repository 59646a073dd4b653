package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Querier is the data access surface the retrieval index depends on.
type Querier interface {
	// InsertChunk stores a chunk with its embedding.
	InsertChunk(ctx context.Context, chunk Chunk, embedding pgvector.Vector) (Chunk, error)

	// SearchForOwner returns the chunks nearest to the query embedding,
	// restricted to (owner = ownerID) OR (owner IS NULL), best first.
	SearchForOwner(ctx context.Context, ownerID uuid.UUID, embedding pgvector.Vector, limit int) ([]Result, error)
}

// Store implements Querier against PostgreSQL with pgvector.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a chunk store backed by the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) InsertChunk(ctx context.Context, chunk Chunk, embedding pgvector.Vector) (Chunk, error) {
	const query = `
		INSERT INTO document_chunks (owner_id, source, position, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, owner_id, source, position, content, created_at`

	var out Chunk
	err := s.pool.QueryRow(ctx, query,
		chunk.OwnerID, chunk.Source, chunk.Position, chunk.Content, embedding).
		Scan(&out.ID, &out.OwnerID, &out.Source, &out.Position, &out.Content, &out.CreatedAt)
	if err != nil {
		return Chunk{}, fmt.Errorf("inserting chunk: %w", err)
	}
	return out, nil
}

func (s *Store) SearchForOwner(ctx context.Context, ownerID uuid.UUID, embedding pgvector.Vector, limit int) ([]Result, error) {
	// The owner filter is applied in the query itself, not post-hoc, so a
	// foreign chunk can never survive into the result set.
	const query = `
		SELECT id, owner_id, source, position, content, created_at,
		       1 - (embedding <=> $2) AS similarity
		FROM document_chunks
		WHERE owner_id = $1 OR owner_id IS NULL
		ORDER BY embedding <=> $2
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, ownerID, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.OwnerID, &r.Chunk.Source,
			&r.Chunk.Position, &r.Chunk.Content, &r.Chunk.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return results, nil
}
