package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"analystbot/config"
	"analystbot/models"
	"analystbot/services"
)

type fakeResearcher struct {
	sources []models.Source
}

func (f fakeResearcher) Retrieve(ctx context.Context, query string, maxResults int) ([]models.Source, error) {
	return f.sources, nil
}

func (f fakeResearcher) DeepResearch(ctx context.Context, query string) (*models.ResearchData, error) {
	return nil, nil
}

type fakeGenerator struct {
	answer string
	err    error
}

func (f fakeGenerator) Generate(ctx context.Context, messages []models.PromptMessage) (string, error) {
	return f.answer, f.err
}

func newTestController(researcher services.Researcher, generator services.Generator) *Controller {
	cfg := config.Default()
	analyst := services.NewAnalyst(cfg, services.NewKeywordClassifier(nil), researcher, generator, services.NewConversationStore())
	return NewControllerWithAnalyst(cfg, analyst)
}

func postChat(t *testing.T, ctrl *Controller, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ctrl.ChatHandler(w, req)
	return w
}

func TestChatHandlerSuccess(t *testing.T) {
	ctrl := newTestController(
		fakeResearcher{sources: []models.Source{{Title: "Report", URL: "https://r.example", Snippet: "detail"}}},
		fakeGenerator{answer: "an analyst answer"},
	)

	w := postChat(t, ctrl, `{"prompt":"What is the DoD hypersonics budget?","include_research_data":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}

	var resp models.ChatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Response != "an analyst answer" {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.ConversationID == "" {
		t.Error("conversation_id missing from response")
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Title != "Report" {
		t.Errorf("sources = %+v", resp.Sources)
	}
}

func TestChatHandlerBadJSON(t *testing.T) {
	ctrl := newTestController(fakeResearcher{}, fakeGenerator{answer: "unused"})

	w := postChat(t, ctrl, `{"prompt": `)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp models.BaseResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if resp.Status != models.StatusError || resp.Error != "Invalid JSON format" {
		t.Errorf("error body = %+v", resp)
	}
}

func TestChatHandlerEmptyPrompt(t *testing.T) {
	ctrl := newTestController(fakeResearcher{}, fakeGenerator{answer: "unused"})

	w := postChat(t, ctrl, `{"prompt":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestChatHandlerRejection(t *testing.T) {
	ctrl := newTestController(fakeResearcher{}, fakeGenerator{answer: "unused"})

	w := postChat(t, ctrl, `{"prompt":"Where is the best ice cream in Boston?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (rejection is a normal reply)", w.Code)
	}

	var resp models.ChatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Response != services.RefusalMessage {
		t.Errorf("response = %q, want refusal", resp.Response)
	}
	if resp.Sources == nil || len(resp.Sources) != 0 {
		t.Errorf("sources = %v, want empty list", resp.Sources)
	}
}

func TestChatHandlerGenerationFailure(t *testing.T) {
	ctrl := newTestController(
		fakeResearcher{sources: []models.Source{{Title: "Report"}}},
		fakeGenerator{err: &models.GenerationError{StatusCode: 503, Err: errors.New("unavailable")}},
	)

	w := postChat(t, ctrl, `{"prompt":"What is the DoD hypersonics budget?","include_research_data":true}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}

	var resp models.ChatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Response != services.ApologyMessage {
		t.Errorf("response = %q, want apology", resp.Response)
	}
	if len(resp.Sources) != 1 {
		t.Errorf("retrieved sources should survive the failure, got %+v", resp.Sources)
	}
}

func TestChatHandlerUnexpectedError(t *testing.T) {
	ctrl := newTestController(fakeResearcher{}, fakeGenerator{err: errors.New("boom")})

	w := postChat(t, ctrl, `{"prompt":"What is the DoD hypersonics budget?"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}
