package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"analystbot/models"
)

// ResearchHandler exposes the research retriever directly: one search call,
// normalized sources back. Unlike the chat pipeline there is no degradation
// here; a retrieval failure is the whole answer.
func (c *Controller) ResearchHandler(w http.ResponseWriter, r *http.Request) {
	if c.crawler == nil {
		writeError(w, http.StatusServiceUnavailable, "Research service not configured")
		return
	}

	var req models.ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query cannot be empty")
		return
	}

	sources, err := c.crawler.Retrieve(r.Context(), req.Query, req.MaxResults)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Research retrieval failed")
		return
	}
	if sources == nil {
		sources = []models.Source{}
	}

	writeJSON(w, http.StatusOK, models.ResearchResponse{
		BaseResponse: models.BaseResponse{
			Status:    models.StatusSuccess,
			Timestamp: time.Now(),
		},
		Query:   req.Query,
		Sources: sources,
		Count:   len(sources),
	})
}
