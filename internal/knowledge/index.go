package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/coverline/coverline/internal/log"
)

// DefaultTopK is the number of passages a search returns.
const DefaultTopK = 10

// searchTimeout bounds embedding generation plus the vector query.
const searchTimeout = 10 * time.Second

// Index is the retrieval surface over the chunk store. It owns embedding
// generation; callers deal only in text.
//
// Index is safe for concurrent use by multiple goroutines.
type Index struct {
	queries  Querier
	embedder ai.Embedder
	logger   log.Logger
}

// NewIndex creates a retrieval index. A nil logger is replaced with a
// no-op logger.
func NewIndex(queries Querier, embedder ai.Embedder, logger log.Logger) *Index {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Index{queries: queries, embedder: embedder, logger: logger}
}

// Add embeds the chunk's content and stores it. A nil OwnerID files the
// chunk under the shared corpus.
func (ix *Index) Add(ctx context.Context, chunk Chunk) (Chunk, error) {
	if chunk.Content == "" {
		return Chunk{}, errors.New("chunk content must not be empty")
	}

	embedding, err := ix.embed(ctx, chunk.Content)
	if err != nil {
		return Chunk{}, err
	}

	stored, err := ix.queries.InsertChunk(ctx, chunk, embedding)
	if err != nil {
		return Chunk{}, err
	}

	ix.logger.Debug("indexed chunk",
		"source", stored.Source,
		"position", stored.Position,
		"shared", stored.OwnerID == nil)
	return stored, nil
}

// SearchForUser returns the topK passages most similar to query that the
// given user may see: their own chunks plus the shared corpus. Zero
// matches is an empty result, not an error. topK <= 0 uses DefaultTopK.
func (ix *Index) SearchForUser(ctx context.Context, userID uuid.UUID, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := ix.embed(queryCtx, query)
	if err != nil {
		return nil, err
	}

	results, err := ix.queries.SearchForOwner(queryCtx, userID, embedding, topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search timeout: %w", err)
		}
		return nil, err
	}
	return results, nil
}

func (ix *Index) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := ix.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("embedder returned no embedding")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}
