package controllers

import (
	"net/http"
)

// IndexHandler returns API information at the root path
func (c *Controller) IndexHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Defense Analyst Chatbot API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"/chat":     "POST - Submit a research prompt for analysis",
			"/research": "POST - Run a standalone source search",
			"/health":   "GET - Detailed service status",
			"/healthz":  "GET - Liveness probe",
		},
	})
}

// HealthzHandler is the liveness probe for container orchestration
func (c *Controller) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthHandler reports detailed service status
func (c *Controller) HealthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"api_keys": map[string]string{
			"openai":    configuredLabel(c.cfg.OpenAI.APIKey),
			"firecrawl": configuredLabel(c.cfg.Crawler.APIKey),
		},
		"analyst": c.analyst.GetStatus(),
	}

	if c.library != nil {
		health["library"] = c.library.GetStatus()
	}
	if c.discord != nil {
		health["discord"] = c.discord.GetStatus()
	}

	writeJSON(w, http.StatusOK, health)
}

func configuredLabel(key string) string {
	if key == "" {
		return "not configured"
	}
	return "configured"
}
