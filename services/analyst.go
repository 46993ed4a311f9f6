package services

import (
	"context"
	"strings"
	"time"

	"analystbot/config"
	"analystbot/logger"
	"analystbot/models"
)

// Fixed user-facing messages. Upstream failure detail is logged, never shown.
const (
	RefusalMessage = "Sorry, I can only assist with defense or government-related research questions."
	ApologyMessage = "I'm sorry, I wasn't able to generate a response to that request. Please try again in a few moments."
)

// Researcher retrieves external research material for a prompt
type Researcher interface {
	Retrieve(ctx context.Context, query string, maxResults int) ([]models.Source, error)
	DeepResearch(ctx context.Context, query string) (*models.ResearchData, error)
}

// Generator produces an answer from an assembled model prompt
type Generator interface {
	Generate(ctx context.Context, messages []models.PromptMessage) (string, error)
}

// LibraryRetriever serves sources from the local briefing library
type LibraryRetriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]models.Source, error)
}

// Analyst sequences one chat request through the pipeline: validate, gate,
// retrieve, assemble, generate, record.
type Analyst struct {
	classifier   Classifier
	researcher   Researcher
	generator    Generator
	assembler    *PromptAssembler
	store        *ConversationStore
	library      LibraryRetriever
	maxSources   int
	deepResearch bool
	startTime    time.Time
}

// NewAnalyst creates the orchestrator over its collaborators
func NewAnalyst(cfg config.Config, classifier Classifier, researcher Researcher, generator Generator, store *ConversationStore) *Analyst {
	return &Analyst{
		classifier:   classifier,
		researcher:   researcher,
		generator:    generator,
		assembler:    NewPromptAssembler(cfg.Chat),
		store:        store,
		maxSources:   cfg.Crawler.MaxResults,
		deepResearch: cfg.Crawler.DeepResearch,
		startTime:    time.Now(),
	}
}

// SetLibrary attaches the optional local briefing library used as a fallback
// when web retrieval fails or comes back empty.
func (a *Analyst) SetLibrary(library LibraryRetriever) {
	a.library = library
}

// Store exposes the conversation store for other frontends
func (a *Analyst) Store() *ConversationStore {
	return a.store
}

// Process handles one chat request end to end. Retrieval failures degrade to
// an answer without sources; generation failures return an apologetic
// response plus a GenerationError, and commit nothing to the store. A
// cancelled request also commits nothing.
func (a *Analyst) Process(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return models.ChatResponse{}, &models.ValidationError{Field: "prompt", Reason: "prompt cannot be empty"}
	}

	id, history := a.store.GetOrCreate(req.ConversationID)
	now := time.Now()

	decision := a.classifier.Classify(prompt)
	if decision.Verdict == OutOfDomain && len(history) > 0 {
		// Permissive boundary: inside an ongoing conversation an unmatched
		// prompt is treated as a follow-up, not a new topic.
		decision = Decision{Verdict: InDomain, Signal: "conversation_continuity"}
	}

	if decision.Verdict == OutOfDomain {
		logger.Info("prompt rejected as out of domain", "conversation_id", id)
		a.store.AppendExchange(id,
			models.Turn{Content: prompt, Timestamp: now},
			models.Turn{Content: RefusalMessage, Timestamp: time.Now()},
		)
		return models.ChatResponse{
			Response:       RefusalMessage,
			ConversationID: id,
			Sources:        []models.Source{},
		}, nil
	}

	var (
		sources  []models.Source
		research *models.ResearchData
	)

	if req.IncludeResearchData {
		sources, research = a.retrieve(ctx, prompt)
	}

	if ctx.Err() != nil {
		return models.ChatResponse{}, ctx.Err()
	}

	messages := a.assembler.Assemble(history, prompt, research, sources)

	text, err := a.generator.Generate(ctx, messages)
	if err != nil {
		logger.Error("answer generation failed", "conversation_id", id, "error", err)
		return models.ChatResponse{
			Response:       ApologyMessage,
			ConversationID: id,
			ResearchData:   research,
			Sources:        normalizeSources(sources),
		}, err
	}

	a.store.AppendExchange(id,
		models.Turn{Content: prompt, Timestamp: now},
		models.Turn{Content: text, Timestamp: time.Now()},
	)

	logger.Info("chat request completed",
		"conversation_id", id,
		"signal", decision.Signal,
		"sources", len(sources),
		"research", research != nil,
	)

	return models.ChatResponse{
		Response:       text,
		ConversationID: id,
		ResearchData:   research,
		Sources:        normalizeSources(sources),
	}, nil
}

// retrieve gathers web sources and, when enabled, deep-research data. Every
// failure here degrades instead of failing the request: answer quality drops,
// availability does not.
func (a *Analyst) retrieve(ctx context.Context, prompt string) ([]models.Source, *models.ResearchData) {
	sources, err := a.researcher.Retrieve(ctx, prompt, a.maxSources)
	if err != nil {
		logger.Warn("research retrieval failed, continuing without sources", "error", err)
		sources = nil
	}

	if len(sources) == 0 && a.library != nil {
		local, lerr := a.library.Retrieve(ctx, prompt, a.maxSources)
		if lerr != nil {
			logger.Warn("library fallback failed", "error", lerr)
		} else if len(local) > 0 {
			logger.Debug("using local library sources", "count", len(local))
			sources = local
		}
	}

	var research *models.ResearchData
	if a.deepResearch {
		research, err = a.researcher.DeepResearch(ctx, prompt)
		if err != nil {
			logger.Warn("deep research failed, continuing without research data", "error", err)
			research = nil
		}
	}

	return sources, research
}

// GetStatus returns the current status of the analyst pipeline
func (a *Analyst) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"status":        "active",
		"uptime":        time.Since(a.startTime).String(),
		"conversations": a.store.Count(),
		"max_sources":   a.maxSources,
		"deep_research": a.deepResearch,
		"library":       a.library != nil,
	}

	if g, ok := a.generator.(*GeneratorService); ok {
		status["generator"] = g.GetStatus()
	}
	if c, ok := a.researcher.(*CrawlerService); ok {
		status["crawler"] = c.GetStatus()
	}

	return status
}

func normalizeSources(sources []models.Source) []models.Source {
	if sources == nil {
		return []models.Source{}
	}
	return sources
}
