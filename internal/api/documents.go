package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/log"
)

// Ingestor is the document lifecycle surface. *ingest.Indexer implements it.
type Ingestor interface {
	Index(ctx context.Context, doc *knowledge.Document, content string) error
	Approve(ctx context.Context, documentID string) error
	Rebuild(ctx context.Context) error
}

// createDocumentRequest is the POST /api/v1/documents body.
type createDocumentRequest struct {
	Title     string `json:"title"`
	Source    string `json:"source"`
	Category  string `json:"category,omitempty"`
	TechLevel int    `json:"tech_level,omitempty"`
	Content   string `json:"content"`
}

type documentHandler struct {
	ingestor Ingestor
	logger   log.Logger
}

// create handles POST /api/v1/documents. New documents start unapproved
// and invisible to search until approved.
func (h *documentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title must not be empty", h.logger)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "content must not be empty", h.logger)
		return
	}
	if req.Category != "" && !knowledge.ValidCategory(req.Category) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown category", h.logger)
		return
	}
	if req.TechLevel != 0 && (req.TechLevel < knowledge.MinTechLevel || req.TechLevel > knowledge.MaxTechLevel) {
		writeError(w, http.StatusBadRequest, "invalid_request", "tech_level must be between 1 and 10", h.logger)
		return
	}

	doc := &knowledge.Document{
		Title:     req.Title,
		Source:    req.Source,
		Category:  req.Category,
		TechLevel: req.TechLevel,
	}
	if err := h.ingestor.Index(r.Context(), doc, req.Content); err != nil {
		h.logger.Error("indexing document", "error", err)
		writeError(w, http.StatusInternalServerError, "index_failed", "failed to index document", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"document": doc}, h.logger)
}

// approve handles POST /api/v1/documents/{id}/approve. Approval triggers a
// full rebuild of the serving indexes over the new approved set.
func (h *documentHandler) approve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid document ID", h.logger)
		return
	}

	if err := h.ingestor.Approve(r.Context(), id); err != nil {
		h.logger.Error("approving document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "approve_failed", "failed to approve document", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved", "document_id": id}, h.logger)
}

// rebuild handles POST /api/v1/rebuild, forcing a full recompute of corpus
// statistics and indexes.
func (h *documentHandler) rebuild(w http.ResponseWriter, r *http.Request) {
	if err := h.ingestor.Rebuild(r.Context()); err != nil {
		h.logger.Error("rebuilding corpus", "error", err)
		writeError(w, http.StatusInternalServerError, "rebuild_failed", "failed to rebuild corpus", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"}, h.logger)
}
