package models

// LibraryDocument represents a briefing chunk stored in the local library
type LibraryDocument struct {
	ID      string            `json:"id"`
	Content string            `json:"content"`
	Source  string            `json:"source"`
	Score   float64           `json:"score,omitempty"` // Similarity score
	Meta    map[string]string `json:"meta,omitempty"`
}
