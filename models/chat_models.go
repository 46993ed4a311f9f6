package models

import "time"

// Turn roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatRequest represents an incoming chat request
type ChatRequest struct {
	Prompt              string `json:"prompt"`
	ConversationID      string `json:"conversation_id,omitempty"`
	IncludeResearchData bool   `json:"include_research_data"`
}

// Turn represents a single message within a conversation
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatResponse represents the response from the analyst
type ChatResponse struct {
	Response       string        `json:"response"`
	ConversationID string        `json:"conversation_id"`
	ResearchData   *ResearchData `json:"research_data,omitempty"`
	Sources        []Source      `json:"sources"`
}

// PromptMessage is one entry of an assembled model prompt
type PromptMessage struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}
