// Package knowledge stores embedded document chunks and answers
// owner-scoped similarity queries over them. Chunks belong to one user or
// to the shared corpus (nil owner); a search for user U only ever sees
// U's chunks and shared chunks.
package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding width the document_chunks schema is
// declared with. Embedders producing wider vectors must be configured to
// truncate to this size.
const VectorDimension = 768

// Chunk is one embedded text fragment from an ingested document.
type Chunk struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   *uuid.UUID `json:"ownerId,omitempty"` // nil = shared corpus
	Source    string     `json:"source"`
	Position  int        `json:"position"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Result is a chunk with its cosine similarity to the query; higher is
// closer.
type Result struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
}
