package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"analystbot/config"
	"analystbot/logger"
	"analystbot/models"
	"analystbot/services"
)

// Controller wires the HTTP surface to the analyst pipeline
type Controller struct {
	cfg     config.Config
	analyst *services.Analyst
	crawler *services.CrawlerService
	library *services.LibraryService
	discord *services.DiscordService
}

// NewController builds the full service graph from configuration
func NewController(cfg config.Config) *Controller {
	classifier := services.NewKeywordClassifier(cfg.Keywords)
	crawler := services.NewCrawlerService(cfg.Crawler)
	generator := services.NewGeneratorService(cfg.OpenAI)
	store := services.NewConversationStore()

	analyst := services.NewAnalyst(cfg, classifier, crawler, generator, store)

	var library *services.LibraryService
	if cfg.Library.Enabled {
		library = services.NewLibraryService(cfg.Library)
		if err := library.Initialize(); err != nil {
			logger.Warn("library unavailable, continuing without local fallback", "error", err)
			library = nil
		} else {
			analyst.SetLibrary(library)
		}
	}

	return &Controller{
		cfg:     cfg,
		analyst: analyst,
		crawler: crawler,
		library: library,
		discord: services.NewDiscordService(analyst, cfg.Discord),
	}
}

// NewControllerWithAnalyst wires the HTTP surface over a prebuilt analyst.
// Used by tests to swap in stubbed collaborators.
func NewControllerWithAnalyst(cfg config.Config, analyst *services.Analyst) *Controller {
	return &Controller{cfg: cfg, analyst: analyst}
}

// StartServices starts the optional background frontends
func (c *Controller) StartServices(enableDiscord bool) error {
	if c.discord == nil {
		return nil
	}
	if enableDiscord && c.discord.IsEnabled() {
		if err := c.discord.Start(); err != nil {
			logger.Error("failed to start Discord frontend", "error", err)
			return err
		}
	} else if enableDiscord {
		logger.Warn("Discord frontend requested but not configured (missing DISCORD_BOT_TOKEN)")
	}
	return nil
}

// StopServices stops background frontends and the library watcher
func (c *Controller) StopServices() error {
	if c.library != nil {
		if err := c.library.Close(); err != nil {
			logger.Warn("failed to close library", "error", err)
		}
	}
	if c.discord != nil {
		return c.discord.Stop()
	}
	return nil
}

// writeJSON serializes a response body with the given status code
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// writeError serializes an error body in the shared envelope
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, models.BaseResponse{
		Status:    models.StatusError,
		Error:     message,
		Timestamp: time.Now(),
	})
}
