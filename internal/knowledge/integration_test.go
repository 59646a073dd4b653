package knowledge_test

import (
	"context"
	"testing"

	"github.com/coverline/coverline/internal/knowledge"
	"github.com/coverline/coverline/internal/testutil"
)

// TestIndexOwnerScopingAgainstPostgres verifies against a real pgvector
// schema that a user's search sees their own chunks plus the shared
// corpus and never another user's documents.
func TestIndexOwnerScopingAgainstPostgres(t *testing.T) {
	t.Parallel()

	pool := testutil.StartPostgres(t)
	ctx := context.Background()

	embedder := testutil.NewMockEmbedder(knowledge.VectorDimension)
	index := knowledge.NewIndex(knowledge.NewStore(pool), embedder, nil)

	aliceID := testutil.CreateUser(t, pool, "alice@example.com", "alice")
	maryID := testutil.CreateUser(t, pool, "mary@example.com", "mary")

	// Identical vectors make every chunk equally similar to the query, so
	// visibility alone decides the result set.
	flat := make([]float32, knowledge.VectorDimension)
	flat[0] = 1
	for _, content := range []string{
		"alice's dental rider terms",
		"mary's motor claim form",
		"shared underwriting guidelines",
		"what does my policy cover",
	} {
		embedder.SetVector(content, flat)
	}

	for _, c := range []knowledge.Chunk{
		{OwnerID: &aliceID, Source: "alice.pdf", Position: 0, Content: "alice's dental rider terms"},
		{OwnerID: &maryID, Source: "mary.pdf", Position: 0, Content: "mary's motor claim form"},
		{OwnerID: nil, Source: "guidelines.pdf", Position: 0, Content: "shared underwriting guidelines"},
	} {
		if _, err := index.Add(ctx, c); err != nil {
			t.Fatalf("Add(%s): %v", c.Source, err)
		}
	}

	results, err := index.SearchForUser(ctx, aliceID, "what does my policy cover", 10)
	if err != nil {
		t.Fatalf("SearchForUser: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("alice sees %d chunks, want her own + shared = 2", len(results))
	}
	for _, r := range results {
		if r.Chunk.Content == "mary's motor claim form" {
			t.Fatal("alice's search surfaced mary's document")
		}
	}
}

// TestIndexRanksBySimilarityAgainstPostgres pins cosine ordering: an
// exactly matching vector must rank above an orthogonal one.
func TestIndexRanksBySimilarityAgainstPostgres(t *testing.T) {
	t.Parallel()

	pool := testutil.StartPostgres(t)
	ctx := context.Background()

	embedder := testutil.NewMockEmbedder(knowledge.VectorDimension)
	index := knowledge.NewIndex(knowledge.NewStore(pool), embedder, nil)

	userID := testutil.CreateUser(t, pool, "user@example.com", "user")

	exact := make([]float32, knowledge.VectorDimension)
	exact[0] = 1
	orthogonal := make([]float32, knowledge.VectorDimension)
	orthogonal[1] = 1

	embedder.SetVector("renewal grace period is 30 days", exact)
	embedder.SetVector("office holiday calendar", orthogonal)
	embedder.SetVector("how long is the grace period", exact)

	for _, content := range []string{"office holiday calendar", "renewal grace period is 30 days"} {
		if _, err := index.Add(ctx, knowledge.Chunk{OwnerID: &userID, Source: "doc.pdf", Content: content}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	results, err := index.SearchForUser(ctx, userID, "how long is the grace period", 2)
	if err != nil {
		t.Fatalf("SearchForUser: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Chunk.Content != "renewal grace period is 30 days" {
		t.Errorf("best match = %q, want the matching vector first", results[0].Chunk.Content)
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Errorf("similarities not descending: %f then %f", results[0].Similarity, results[1].Similarity)
	}
}
