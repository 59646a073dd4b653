package api

import (
	"context"
	"net/http"

	"github.com/coverline/coverline/internal/auth"
	"github.com/coverline/coverline/internal/knowledge"
	"github.com/coverline/coverline/internal/log"
)

// DocumentIndex ingests pre-extracted text chunks into the retrieval
// index.
type DocumentIndex interface {
	Add(ctx context.Context, chunk knowledge.Chunk) (knowledge.Chunk, error)
}

type knowledgeHandler struct {
	index  DocumentIndex
	logger log.Logger
}

type ingestRequest struct {
	Source string `json:"source"`
	// Shared marks the document visible to every user. Only admins may
	// set it; everyone else ingests into their own partition.
	Shared bool          `json:"shared"`
	Chunks []ingestChunk `json:"chunks"`
}

type ingestChunk struct {
	Position int    `json:"position"`
	Content  string `json:"content"`
}

type ingestResponse struct {
	Source   string `json:"source"`
	Ingested int    `json:"ingested"`
}

func (h *knowledgeHandler) ingest(w http.ResponseWriter, r *http.Request) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	var req ingestRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.Source == "" || len(req.Chunks) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "validation_failed", "source and at least one chunk are required")
		return
	}
	if req.Shared && p.Role != "admin" {
		writeError(w, h.logger, http.StatusForbidden, "forbidden", "only admins may ingest shared documents")
		return
	}

	ownerID := &p.UserID
	if req.Shared {
		ownerID = nil
	}

	for _, c := range req.Chunks {
		chunk := knowledge.Chunk{
			OwnerID:  ownerID,
			Source:   req.Source,
			Position: c.Position,
			Content:  c.Content,
		}
		if _, err := h.index.Add(r.Context(), chunk); err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
	}

	h.logger.Info("document ingested",
		"source", req.Source,
		"chunks", len(req.Chunks),
		"shared", req.Shared,
		"user_id", p.UserID)
	writeJSON(w, h.logger, http.StatusCreated, ingestResponse{
		Source:   req.Source,
		Ingested: len(req.Chunks),
	})
}
