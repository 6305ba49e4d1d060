package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/prompt-general/answerhub/internal/answer"
	"github.com/prompt-general/answerhub/internal/health"
	"github.com/prompt-general/answerhub/internal/knowledge"
	"github.com/prompt-general/answerhub/internal/matcher"
	"github.com/prompt-general/answerhub/internal/pipeline"
	"github.com/prompt-general/answerhub/internal/provider"
	"github.com/prompt-general/answerhub/pkg/models"
)

// Question handlers

func (g *Gateway) handleAskQuestion(w http.ResponseWriter, r *http.Request) {
	var req models.QuestionRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}

	resp, err := g.answerer.Answer(r.Context(), req.Collection, req.Question)
	if err != nil {
		g.writeAnswerError(w, err)
		return
	}

	writeSuccessResponse(w, resp, nil)
}

// writeAnswerError maps answering failures onto distinguishable API
// errors. A store outage is deliberately not reported as "no local
// match"; conflating them would hide incidents from operators.
func (g *Gateway) writeAnswerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, matcher.ErrInvalidInput):
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", "Question text must not be empty", "")
	case errors.Is(err, answer.ErrFallbackUnavailable):
		writeErrorResponse(w, http.StatusBadGateway, "FALLBACK_UNAVAILABLE", "Fallback answer service is unavailable", err.Error())
	case provider.IsProviderError(err):
		writeErrorResponse(w, http.StatusBadGateway, "EMBEDDING_UNAVAILABLE", "Embedding provider is unavailable", err.Error())
	case knowledge.IsStoreError(err):
		writeErrorResponse(w, http.StatusInternalServerError, "STORE_ERROR", "Knowledge store is unavailable", err.Error())
	default:
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to answer question", err.Error())
	}
}

// Entry handlers

func (g *Gateway) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEntryRequest
	if err := parseRequestBody(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	req.Answer = strings.TrimSpace(req.Answer)
	if req.Question == "" || req.Answer == "" {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", "Question and answer must not be empty", "")
		return
	}

	entry := &models.Entry{
		Collection: req.Collection,
		Question:   req.Question,
		Answer:     req.Answer,
	}
	if err := g.entries.CreateEntry(r.Context(), entry); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to create entry", err.Error())
		return
	}

	// Kick off maintenance so the new entry gets embedded; an already
	// running job for the collection will pick it up or the next run will.
	if _, err := g.maintenance.Run(entry.Collection); err != nil && !errors.Is(err, pipeline.ErrJobAlreadyRunning) {
		writeErrorResponse(w, http.StatusInternalServerError, "MAINTENANCE_ERROR", "Entry created but embedding could not be scheduled", err.Error())
		return
	}

	writeSuccessResponse(w, entry, nil)
}

func (g *Gateway) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	entry, err := g.entries.GetEntry(r.Context(), id)
	if errors.Is(err, knowledge.ErrEntryNotFound) {
		writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Entry not found", "")
		return
	}
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to get entry", err.Error())
		return
	}

	writeSuccessResponse(w, entry, nil)
}

func (g *Gateway) handleListEntries(w http.ResponseWriter, r *http.Request) {
	filter := models.EntryFilter{
		Collection: r.URL.Query().Get("collection"),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			filter.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			filter.Offset = o
		}
	}

	entries, err := g.entries.ListEntries(r.Context(), filter)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list entries", err.Error())
		return
	}

	meta := &APIMeta{
		Total:  len(entries),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	if filter.Limit > 0 && len(entries) == filter.Limit {
		meta.HasMore = true
	}

	writeSuccessResponse(w, entries, meta)
}

// Maintenance handlers

func (g *Gateway) handleStartMaintenance(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	job, err := g.maintenance.Run(collection)
	if errors.Is(err, pipeline.ErrJobAlreadyRunning) {
		// Coalesced onto the active job; hand back its handle.
		writeSuccessResponse(w, job, nil)
		return
	}
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "MAINTENANCE_ERROR", "Failed to start embedding maintenance", err.Error())
		return
	}

	writeSuccessResponse(w, job, nil)
}

func (g *Gateway) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := g.maintenance.JobStatus(id)
	if errors.Is(err, pipeline.ErrJobNotFound) {
		writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Job not found", "")
		return
	}
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get job status", err.Error())
		return
	}

	writeSuccessResponse(w, job, nil)
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := g.entries.CollectionStats(r.Context())
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to get embedding stats", err.Error())
		return
	}

	writeSuccessResponse(w, stats, nil)
}

func (g *Gateway) handleRateLimits(w http.ResponseWriter, r *http.Request) {
	if g.limiter == nil {
		writeErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "Rate limiting is not configured", "")
		return
	}
	writeSuccessResponse(w, g.limiter.Status(), nil)
}

// Health and metrics handlers

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	results := g.checker.Check(ctx)
	overall := g.checker.Overall(results)

	status := http.StatusOK
	if overall == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, status, APIResponse{
		Success: overall != health.StatusUnhealthy,
		Data: map[string]interface{}{
			"status":    overall,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    results,
		},
	})
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	g.metrics.mu.RLock()
	byPath := make(map[string]int64, len(g.metrics.RequestsByPath))
	for k, v := range g.metrics.RequestsByPath {
		byPath[k] = v
	}
	byMethod := make(map[string]int64, len(g.metrics.RequestsByMethod))
	for k, v := range g.metrics.RequestsByMethod {
		byMethod[k] = v
	}
	byStatus := make(map[int]int64, len(g.metrics.RequestsByStatus))
	for k, v := range g.metrics.RequestsByStatus {
		byStatus[k] = v
	}
	snapshot := map[string]interface{}{
		"requests_total":     g.metrics.RequestsTotal,
		"requests_failed":    g.metrics.RequestsFailed,
		"requests_by_path":   byPath,
		"requests_by_method": byMethod,
		"requests_by_status": byStatus,
		"last_request":       g.metrics.LastRequest,
	}
	g.metrics.mu.RUnlock()

	writeSuccessResponse(w, snapshot, nil)
}
