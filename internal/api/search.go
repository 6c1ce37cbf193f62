package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lorekeep/lorekeep/internal/answer"
	"github.com/lorekeep/lorekeep/internal/fusion"
	"github.com/lorekeep/lorekeep/internal/knowledge"
	"github.com/lorekeep/lorekeep/internal/log"
	"github.com/lorekeep/lorekeep/internal/retrieval"
)

// maxRequestBody caps request bodies at 1 MB.
const maxRequestBody = 1 << 20

// Searcher runs the retrieval pipeline. *retrieval.Pipeline implements it.
type Searcher interface {
	Search(ctx context.Context, req retrieval.Request) (*retrieval.Response, error)
}

// Answerer writes a cited answer over retrieval output.
// *answer.Generator implements it.
type Answerer interface {
	Generate(ctx context.Context, question string, results []retrieval.Result) (answer.Answer, error)
}

// weightsDTO is the optional per-request fusion weight override.
type weightsDTO struct {
	Vector  float64 `json:"vector"`
	Keyword float64 `json:"keyword"`
}

// searchRequest is the POST /api/v1/search body.
type searchRequest struct {
	Query        string      `json:"query"`
	Mode         string      `json:"mode,omitempty"`
	Limit        int         `json:"limit,omitempty"`
	Category     string      `json:"category,omitempty"`
	MinTechLevel int         `json:"min_tech_level,omitempty"`
	MaxTechLevel int         `json:"max_tech_level,omitempty"`
	Expand       bool        `json:"expand,omitempty"`
	Weights      *weightsDTO `json:"weights,omitempty"`
}

type searchHandler struct {
	searcher Searcher
	answerer Answerer
	logger   log.Logger
}

// toRetrievalRequest validates the DTO and converts it. The error string is
// safe to return to clients.
func (sr *searchRequest) toRetrievalRequest() (retrieval.Request, string) {
	if sr.Mode != "" && !retrieval.Mode(sr.Mode).Valid() {
		return retrieval.Request{}, "mode must be one of: hybrid, vector, keyword"
	}
	if sr.Category != "" && !knowledge.ValidCategory(sr.Category) {
		return retrieval.Request{}, "unknown category"
	}
	if sr.Limit < 0 || sr.Limit > 100 {
		return retrieval.Request{}, "limit must be between 0 and 100"
	}

	req := retrieval.Request{
		Query: sr.Query,
		Mode:  retrieval.Mode(sr.Mode),
		Limit: sr.Limit,
		Filters: knowledge.Filters{
			Category:     sr.Category,
			MinTechLevel: sr.MinTechLevel,
			MaxTechLevel: sr.MaxTechLevel,
			ApprovedOnly: true,
		},
		Expand: sr.Expand,
	}
	if sr.Weights != nil {
		if sr.Weights.Vector <= 0 || sr.Weights.Keyword <= 0 {
			return retrieval.Request{}, "weights must be positive"
		}
		req.Weights = &fusion.Weights{Vector: sr.Weights.Vector, Keyword: sr.Weights.Keyword}
	}
	return req, ""
}

// search handles POST /api/v1/search.
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	var sr searchRequest
	if !decodeBody(w, r, &sr, h.logger) {
		return
	}

	req, msg := sr.toRetrievalRequest()
	if msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg, h.logger)
		return
	}

	resp, err := h.searcher.Search(r.Context(), req)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

// askRequest is the POST /api/v1/ask body. Retrieval fields mirror
// searchRequest; the question is both retrieved against and answered.
type askRequest struct {
	Question     string `json:"question"`
	Limit        int    `json:"limit,omitempty"`
	Category     string `json:"category,omitempty"`
	MinTechLevel int    `json:"min_tech_level,omitempty"`
	MaxTechLevel int    `json:"max_tech_level,omitempty"`
}

// askResponse pairs the generated answer with the sources it drew from.
type askResponse struct {
	Answer   answer.Answer      `json:"answer"`
	Results  []retrieval.Result `json:"results"`
	Degraded []string           `json:"degraded,omitempty"`
}

// ask handles POST /api/v1/ask: retrieve, then generate a cited answer.
func (h *searchHandler) ask(w http.ResponseWriter, r *http.Request) {
	if h.answerer == nil {
		writeError(w, http.StatusNotImplemented, "ask_disabled", "answer generation is not configured", h.logger)
		return
	}

	var ar askRequest
	if !decodeBody(w, r, &ar, h.logger) {
		return
	}

	sr := searchRequest{
		Query:        ar.Question,
		Limit:        ar.Limit,
		Category:     ar.Category,
		MinTechLevel: ar.MinTechLevel,
		MaxTechLevel: ar.MaxTechLevel,
	}
	req, msg := sr.toRetrievalRequest()
	if msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg, h.logger)
		return
	}

	resp, err := h.searcher.Search(r.Context(), req)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}

	ans, err := h.answerer.Generate(r.Context(), ar.Question, resp.Results)
	if err != nil {
		if errors.Is(err, answer.ErrNoContext) {
			writeError(w, http.StatusNotFound, "no_results", "no relevant content found", h.logger)
			return
		}
		h.logger.Error("generating answer", "error", err)
		writeError(w, http.StatusBadGateway, "generation_failed", "answer generation failed", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:   ans,
		Results:  resp.Results,
		Degraded: resp.Degraded,
	}, h.logger)
}

// writeSearchError maps pipeline errors onto the API's error vocabulary.
// An empty result set is a typed outcome, not a server fault.
func (h *searchHandler) writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, retrieval.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "empty_query", "query must not be empty", h.logger)
	case errors.Is(err, retrieval.ErrNoResults):
		writeError(w, http.StatusNotFound, "no_results", "no results matched the query", h.logger)
	case errors.Is(err, retrieval.ErrSearchFailed):
		h.logger.Error("all search methods failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "search_unavailable", "search is temporarily unavailable", h.logger)
	default:
		h.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search_failed", "search failed", h.logger)
	}
}

// decodeBody decodes a JSON request body into dst, writing the error
// response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, logger log.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", logger)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", logger)
		return false
	}
	return true
}
