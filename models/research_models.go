package models

// Source represents a normalized unit of retrieved evidence
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// ResearchData represents the output of a deep research run
type ResearchData struct {
	Summary     string   `json:"summary"`
	KeyFindings []string `json:"key_findings"`
	Sources     []Source `json:"sources"`
}

// ResearchRequest represents a request to the research endpoint
type ResearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// ResearchResponse represents the research endpoint response
type ResearchResponse struct {
	BaseResponse
	Query   string   `json:"query"`
	Sources []Source `json:"sources"`
	Count   int      `json:"count"`
}
