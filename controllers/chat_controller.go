package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"analystbot/models"
)

// ChatHandler processes chat requests through the analyst pipeline
func (c *Controller) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	resp, err := c.analyst.Process(r.Context(), req)
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var valErr *models.ValidationError
	if errors.As(err, &valErr) {
		writeError(w, http.StatusBadRequest, valErr.Error())
		return
	}

	var genErr *models.GenerationError
	if errors.As(err, &genErr) {
		// The body still carries the apologetic response and anything that
		// was retrieved before generation failed
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	writeError(w, http.StatusInternalServerError, "Unable to process request")
}
