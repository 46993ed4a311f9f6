package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"analystbot/config"
	"analystbot/logger"
	"analystbot/models"
)

// firecrawlSearchResponse represents the API response from Firecrawl search
type firecrawlSearchResponse struct {
	Results []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Content     string `json:"content"`
	} `json:"results"`
}

// firecrawlJobResponse represents the responses of the deep-research job API
type firecrawlJobResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Data    struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		FinalAnalysis string `json:"finalAnalysis"`
		Sources       []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"sources"`
	} `json:"data"`
}

// CrawlerService retrieves defense research material from the Firecrawl API
type CrawlerService struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	maxResults   int
	depth        int
	timeLimit    int
	maxURLs      int
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewCrawlerService creates a new crawler service instance
func NewCrawlerService(cfg config.CrawlerConfig) *CrawlerService {
	return &CrawlerService{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxResults:   cfg.MaxResults,
		depth:        cfg.DeepResearchDepth,
		timeLimit:    cfg.DeepResearchLimit,
		maxURLs:      cfg.DeepResearchURLs,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
	}
}

// IsEnabled checks if the crawler is properly configured
func (c *CrawlerService) IsEnabled() bool {
	return c.apiKey != ""
}

// Retrieve performs one search call and normalizes the results into sources.
// Results keep the service's relevance ranking; entries with neither a title
// nor usable content are dropped. Any failure is returned as a RetrievalError
// for the caller to absorb.
func (c *CrawlerService) Retrieve(ctx context.Context, query string, maxResults int) ([]models.Source, error) {
	if !c.IsEnabled() {
		return nil, &models.RetrievalError{Stage: "search", Err: fmt.Errorf("crawler not enabled - missing FIRECRAWL_API_KEY")}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &models.RetrievalError{Stage: "search", Err: fmt.Errorf("search query cannot be empty")}
	}

	// Keep the source count small so latency and prompt size stay bounded
	if maxResults <= 0 || maxResults > c.maxResults {
		maxResults = c.maxResults
	}

	body, err := json.Marshal(map[string]any{
		"query": query,
		"limit": maxResults,
	})
	if err != nil {
		return nil, &models.RetrievalError{Stage: "search", Err: fmt.Errorf("failed to marshal search request: %w", err)}
	}

	data, err := c.post(ctx, "/search", body)
	if err != nil {
		return nil, &models.RetrievalError{Stage: "search", Err: err}
	}

	var searchResp firecrawlSearchResponse
	if err := json.Unmarshal(data, &searchResp); err != nil {
		return nil, &models.RetrievalError{Stage: "search", Err: fmt.Errorf("failed to parse search response: %w", err)}
	}

	sources := make([]models.Source, 0, len(searchResp.Results))
	for _, r := range searchResp.Results {
		snippet := r.Description
		if snippet == "" {
			snippet = summarizeSnippet(r.Content, 300)
		}
		if r.Title == "" && snippet == "" {
			continue
		}
		sources = append(sources, models.Source{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: snippet,
		})
		if len(sources) == maxResults {
			break
		}
	}

	return sources, nil
}

// DeepResearch starts a deep-research job and polls it to completion. It is
// the slow path behind the response's research_data field and is only used
// when enabled in configuration.
func (c *CrawlerService) DeepResearch(ctx context.Context, query string) (*models.ResearchData, error) {
	if !c.IsEnabled() {
		return nil, &models.RetrievalError{Stage: "start", Err: fmt.Errorf("crawler not enabled - missing FIRECRAWL_API_KEY")}
	}

	body, err := json.Marshal(map[string]any{
		"query":     query,
		"maxDepth":  c.depth,
		"timeLimit": c.timeLimit,
		"maxUrls":   c.maxURLs,
	})
	if err != nil {
		return nil, &models.RetrievalError{Stage: "start", Err: fmt.Errorf("failed to marshal research request: %w", err)}
	}

	data, err := c.post(ctx, "/deep-research", body)
	if err != nil {
		return nil, &models.RetrievalError{Stage: "start", Err: err}
	}

	var started firecrawlJobResponse
	if err := json.Unmarshal(data, &started); err != nil {
		return nil, &models.RetrievalError{Stage: "start", Err: fmt.Errorf("failed to parse job response: %w", err)}
	}
	if !started.Success {
		return nil, &models.RetrievalError{Stage: "start", Err: fmt.Errorf("research service reported failure on job start")}
	}

	jobID := started.ID
	if jobID == "" {
		jobID = started.JobID
	}
	if jobID == "" {
		jobID = started.Data.ID
	}
	if jobID == "" {
		return nil, &models.RetrievalError{Stage: "start", Err: fmt.Errorf("no job id returned by research service")}
	}

	logger.Debug("deep research job started", "job_id", jobID, "query", query)
	return c.pollJob(ctx, jobID)
}

// pollJob polls the deep-research job until it completes, fails, or the poll
// budget runs out.
func (c *CrawlerService) pollJob(ctx context.Context, jobID string) (*models.ResearchData, error) {
	deadline := time.Now().Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		data, err := c.get(ctx, "/deep-research/"+jobID)
		if err != nil {
			return nil, &models.RetrievalError{Stage: "poll", Err: err}
		}

		var polled firecrawlJobResponse
		if err := json.Unmarshal(data, &polled); err != nil {
			return nil, &models.RetrievalError{Stage: "poll", Err: fmt.Errorf("failed to parse poll response: %w", err)}
		}
		if !polled.Success {
			return nil, &models.RetrievalError{Stage: "poll", Err: fmt.Errorf("research service reported failure while polling job %s", jobID)}
		}

		status := polled.Data.Status
		if status == "" {
			status = polled.Status
		}

		switch status {
		case "completed":
			research := &models.ResearchData{
				Summary:     polled.Data.FinalAnalysis,
				KeyFindings: extractKeyFindings(polled.Data.FinalAnalysis),
			}
			for _, s := range polled.Data.Sources {
				if s.Title == "" && s.Description == "" {
					continue
				}
				research.Sources = append(research.Sources, models.Source{
					Title:   s.Title,
					URL:     s.URL,
					Snippet: s.Description,
				})
			}
			return research, nil
		case "failed":
			return nil, &models.RetrievalError{Stage: "poll", Err: fmt.Errorf("research job %s failed", jobID)}
		}

		select {
		case <-ctx.Done():
			return nil, &models.RetrievalError{Stage: "poll", Err: ctx.Err()}
		case <-ticker.C:
		}
	}

	return nil, &models.RetrievalError{Stage: "poll", Err: fmt.Errorf("polling timed out for job %s", jobID)}
}

func (c *CrawlerService) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *CrawlerService) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *CrawlerService) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("research request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read research response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("research API error %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// extractKeyFindings pulls bulleted or numbered lines out of an analysis. If
// the text has no structured points, the first few sentences stand in.
func extractKeyFindings(analysis string) []string {
	var findings []string
	for _, line := range strings.Split(analysis, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			findings = append(findings, strings.TrimSpace(line[2:]))
			continue
		}
		if len(line) > 2 && unicode.IsDigit(rune(line[0])) && line[1] == '.' && line[2] == ' ' {
			findings = append(findings, strings.TrimSpace(line[2:]))
		}
	}

	if len(findings) == 0 && analysis != "" {
		for _, sentence := range strings.Split(analysis, ".") {
			if sentence = strings.TrimSpace(sentence); sentence != "" {
				findings = append(findings, sentence)
			}
			if len(findings) == 3 {
				break
			}
		}
	}

	return findings
}

// summarizeSnippet trims page content down to a short snippet
func summarizeSnippet(content string, maxLen int) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= maxLen {
		return content
	}
	cut := content[:maxLen]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

// GetStatus returns the status of the crawler service
func (c *CrawlerService) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"base_url":    c.baseURL,
		"max_results": c.maxResults,
		"timeout":     c.httpClient.Timeout.String(),
	}

	if c.IsEnabled() {
		status["status"] = "enabled"
		if len(c.apiKey) > 8 {
			status["api_key"] = c.apiKey[:4] + "..." + c.apiKey[len(c.apiKey)-4:]
		} else {
			status["api_key"] = "***"
		}
	} else {
		status["status"] = "disabled"
		status["error"] = "FIRECRAWL_API_KEY not set"
	}

	return status
}
