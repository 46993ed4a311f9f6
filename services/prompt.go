package services

import (
	"fmt"
	"strings"

	"analystbot/config"
	"analystbot/models"
)

// analystPersona fixes the assistant's scope. It always leads the assembled
// prompt.
const analystPersona = "You are a specialized defense analyst chatbot designed to provide detailed and insightful responses " +
	"to defense-related research queries. Your responses should be detailed, accurate, and showcase " +
	"deep understanding of defense topics, programs, and technologies. " +
	"Do not include any personal opinions, and DO NOT answer any questions that are not related to defense and government."

// PromptAssembler merges conversation history, retrieved research, and the
// current prompt into a bounded model prompt.
type PromptAssembler struct {
	maxHistoryTurns int
	maxPromptChars  int
}

// NewPromptAssembler creates an assembler with the configured budgets
func NewPromptAssembler(cfg config.ChatConfig) *PromptAssembler {
	return &PromptAssembler{
		maxHistoryTurns: cfg.MaxHistoryTurns,
		maxPromptChars:  cfg.MaxPromptChars,
	}
}

// Assemble builds the model prompt in fixed order: persona, trailing history
// window, research context, current prompt. The total size never exceeds the
// character budget; oldest history is dropped first, the current prompt and
// cited sources are never cut.
func (a *PromptAssembler) Assemble(history []models.Turn, prompt string, research *models.ResearchData, sources []models.Source) []models.PromptMessage {
	researchBlock := buildResearchBlock(research, sources)

	// Budget left for history after the fixed parts are accounted for
	budget := a.maxPromptChars - len(analystPersona) - len(researchBlock) - len(prompt)

	window := history
	if a.maxHistoryTurns > 0 && len(window) > a.maxHistoryTurns {
		window = window[len(window)-a.maxHistoryTurns:]
	}

	// Walk newest to oldest so the most recent turns survive truncation
	start := len(window)
	for start > 0 {
		next := len(window[start-1].Content)
		if budget-next < 0 {
			break
		}
		budget -= next
		start--
	}
	window = window[start:]

	messages := make([]models.PromptMessage, 0, len(window)+3)
	messages = append(messages, models.PromptMessage{Role: models.RoleSystem, Content: analystPersona})

	for _, turn := range window {
		messages = append(messages, models.PromptMessage{Role: turn.Role, Content: turn.Content})
	}

	if researchBlock != "" {
		messages = append(messages, models.PromptMessage{Role: models.RoleSystem, Content: researchBlock})
	}

	messages = append(messages, models.PromptMessage{Role: models.RoleUser, Content: prompt})

	return messages
}

// buildResearchBlock serializes retrieved material into one system message
// instructing the model to cite sources by title.
func buildResearchBlock(research *models.ResearchData, sources []models.Source) string {
	if research == nil && len(sources) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("I've gathered the following research information to help with this query:\n")

	if research != nil {
		summary := research.Summary
		if summary == "" {
			summary = "No summary available"
		}
		fmt.Fprintf(&b, "\nSummary: %s\n", summary)

		if len(research.KeyFindings) > 0 {
			b.WriteString("\nKey Findings:\n")
			for _, finding := range research.KeyFindings {
				fmt.Fprintf(&b, "- %s\n", finding)
			}
		}
	}

	if len(sources) > 0 {
		b.WriteString("\nRelevant Sources:\n")
		for _, src := range sources {
			title := src.Title
			if title == "" {
				title = "Unknown"
			}
			fmt.Fprintf(&b, "- %s", title)
			if src.URL != "" {
				fmt.Fprintf(&b, ": %s", src.URL)
			}
			if src.Snippet != "" {
				fmt.Fprintf(&b, " - %s", src.Snippet)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nPlease incorporate this information into your response when relevant. " +
		"Reference sources by their title when you use them.")

	return b.String()
}
