package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"analystbot/config"
	"analystbot/models"
)

// stubResearcher counts calls and serves canned sources or a failure
type stubResearcher struct {
	mu            sync.Mutex
	sources       []models.Source
	research      *models.ResearchData
	err           error
	retrieveCalls int
	deepCalls     int
}

func (s *stubResearcher) Retrieve(ctx context.Context, query string, maxResults int) ([]models.Source, error) {
	s.mu.Lock()
	s.retrieveCalls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.sources, nil
}

func (s *stubResearcher) DeepResearch(ctx context.Context, query string) (*models.ResearchData, error) {
	s.mu.Lock()
	s.deepCalls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.research, nil
}

// stubGenerator echoes a fixed answer or fails every time
type stubGenerator struct {
	mu       sync.Mutex
	answer   string
	err      error
	calls    int
	lastSeen []models.PromptMessage
}

func (s *stubGenerator) Generate(ctx context.Context, messages []models.PromptMessage) (string, error) {
	s.mu.Lock()
	s.calls++
	s.lastSeen = messages
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func newTestAnalyst(researcher Researcher, generator Generator) (*Analyst, *ConversationStore) {
	store := NewConversationStore()
	analyst := NewAnalyst(config.Default(), NewKeywordClassifier(nil), researcher, generator, store)
	return analyst, store
}

const inDomainPrompt = "What is the DoD budget for hypersonic missile programs?"

func TestProcessCompletesWithConversationID(t *testing.T) {
	researcher := &stubResearcher{}
	generator := &stubGenerator{answer: "a grounded answer"}
	analyst, store := newTestAnalyst(researcher, generator)

	resp, err := analyst.Process(context.Background(), models.ChatRequest{Prompt: inDomainPrompt})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if resp.ConversationID == "" {
		t.Error("conversation_id must always be populated")
	}
	if resp.Response != "a grounded answer" {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.Sources == nil {
		t.Error("sources must be a list, not null")
	}

	history := store.History(resp.ConversationID)
	if len(history) != 2 {
		t.Fatalf("expected 2 recorded turns, got %d", len(history))
	}
	if history[0].Role != models.RoleUser || history[0].Content != inDomainPrompt {
		t.Errorf("first turn = %+v", history[0])
	}
	if history[1].Role != models.RoleAssistant || history[1].Content != "a grounded answer" {
		t.Errorf("second turn = %+v", history[1])
	}
}

func TestProcessEmptyPromptIsValidationError(t *testing.T) {
	researcher := &stubResearcher{}
	generator := &stubGenerator{answer: "unused"}
	analyst, store := newTestAnalyst(researcher, generator)

	for _, prompt := range []string{"", "   ", "\n\t"} {
		_, err := analyst.Process(context.Background(), models.ChatRequest{Prompt: prompt, IncludeResearchData: true})
		var valErr *models.ValidationError
		if !errors.As(err, &valErr) {
			t.Errorf("prompt %q: error = %v, want ValidationError", prompt, err)
		}
	}

	if researcher.retrieveCalls != 0 || generator.calls != 0 {
		t.Error("validation failure must not reach upstream services")
	}
	if store.Count() != 0 {
		t.Error("validation failure must not mutate the store")
	}
}

func TestProcessRejectsOutOfDomain(t *testing.T) {
	researcher := &stubResearcher{sources: []models.Source{{Title: "unused"}}}
	generator := &stubGenerator{answer: "unused"}
	analyst, store := newTestAnalyst(researcher, generator)

	resp, err := analyst.Process(context.Background(), models.ChatRequest{
		Prompt:              "Where is the best ice cream in Boston?",
		IncludeResearchData: true,
	})
	if err != nil {
		t.Fatalf("rejection is not an error: %v", err)
	}

	if resp.Response != RefusalMessage {
		t.Errorf("response = %q, want fixed refusal", resp.Response)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("rejected prompt must carry no sources, got %d", len(resp.Sources))
	}
	if researcher.retrieveCalls != 0 || researcher.deepCalls != 0 {
		t.Error("no retrieval call may be issued for a rejected prompt")
	}
	if generator.calls != 0 {
		t.Error("no generation call may be issued for a rejected prompt")
	}

	// The turn pair is still recorded for continuity
	history := store.History(resp.ConversationID)
	if len(history) != 2 || history[1].Content != RefusalMessage {
		t.Errorf("refusal exchange not recorded: %+v", history)
	}
}

func TestProcessTreatsFollowUpAsInDomain(t *testing.T) {
	researcher := &stubResearcher{}
	generator := &stubGenerator{answer: "follow-up answer"}
	analyst, _ := newTestAnalyst(researcher, generator)

	first, err := analyst.Process(context.Background(), models.ChatRequest{Prompt: inDomainPrompt})
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}

	// No domain keyword, but it continues an established conversation
	resp, err := analyst.Process(context.Background(), models.ChatRequest{
		Prompt:         "And how has that changed since last year?",
		ConversationID: first.ConversationID,
	})
	if err != nil {
		t.Fatalf("follow-up failed: %v", err)
	}
	if resp.Response == RefusalMessage {
		t.Error("follow-up in an ongoing conversation must not be refused")
	}
}

func TestProcessMintsDistinctConversations(t *testing.T) {
	analyst, _ := newTestAnalyst(&stubResearcher{}, &stubGenerator{answer: "ok"})

	r1, _ := analyst.Process(context.Background(), models.ChatRequest{Prompt: inDomainPrompt})
	r2, _ := analyst.Process(context.Background(), models.ChatRequest{Prompt: inDomainPrompt})

	if r1.ConversationID == r2.ConversationID {
		t.Error("requests without an id must get distinct conversations")
	}
}

func TestProcessAccumulatesHistory(t *testing.T) {
	analyst, store := newTestAnalyst(&stubResearcher{}, &stubGenerator{answer: "ok"})

	first, _ := analyst.Process(context.Background(), models.ChatRequest{Prompt: inDomainPrompt})
	for i := 2; i <= 4; i++ {
		resp, err := analyst.Process(context.Background(), models.ChatRequest{
			Prompt:         inDomainPrompt,
			ConversationID: first.ConversationID,
		})
		if err != nil {
			t.Fatalf("round %d failed: %v", i, err)
		}
		if resp.ConversationID != first.ConversationID {
			t.Fatalf("conversation id changed: %q -> %q", first.ConversationID, resp.ConversationID)
		}
		if got := len(store.History(first.ConversationID)); got != i*2 {
			t.Errorf("after %d round trips history = %d turns, want %d", i, got, i*2)
		}
	}
}

func TestProcessSourceRoundTrip(t *testing.T) {
	stubbed := []models.Source{
		{Title: "Report A", URL: "https://a.example/r", Snippet: "alpha"},
		{Title: "Report B", URL: "https://b.example/r", Snippet: "bravo"},
		{Title: "Report C", Snippet: "charlie"},
	}
	researcher := &stubResearcher{sources: stubbed}
	generator := &stubGenerator{answer: "cited answer"}
	analyst, _ := newTestAnalyst(researcher, generator)

	resp, err := analyst.Process(context.Background(), models.ChatRequest{
		Prompt:              inDomainPrompt,
		IncludeResearchData: true,
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !reflect.DeepEqual(resp.Sources, stubbed) {
		t.Errorf("sources = %+v, want verbatim %+v", resp.Sources, stubbed)
	}
	if researcher.retrieveCalls != 1 {
		t.Errorf("retrieve calls = %d, want 1", researcher.retrieveCalls)
	}

	// Retrieved material must reach the assembled prompt
	var sawSources bool
	for _, m := range generator.lastSeen {
		if strings.Contains(m.Content, "Report A") {
			sawSources = true
		}
	}
	if !sawSources {
		t.Error("sources missing from assembled prompt")
	}
}

func TestProcessSkipsRetrievalWhenNotRequested(t *testing.T) {
	researcher := &stubResearcher{sources: []models.Source{{Title: "unused"}}}
	analyst, _ := newTestAnalyst(researcher, &stubGenerator{answer: "ok"})

	resp, err := analyst.Process(context.Background(), models.ChatRequest{Prompt: inDomainPrompt})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if researcher.retrieveCalls != 0 {
		t.Error("retrieval must be skipped when include_research_data is false")
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources = %+v, want empty", resp.Sources)
	}
}

func TestProcessDegradesOnRetrievalFailure(t *testing.T) {
	researcher := &stubResearcher{err: &models.RetrievalError{Stage: "search", Err: errors.New("timeout")}}
	generator := &stubGenerator{answer: "answer without sources"}
	analyst, store := newTestAnalyst(researcher, generator)

	resp, err := analyst.Process(context.Background(), models.ChatRequest{
		Prompt:              inDomainPrompt,
		IncludeResearchData: true,
	})
	if err != nil {
		t.Fatalf("retrieval failure must never fail the request: %v", err)
	}
	if resp.Response != "answer without sources" {
		t.Errorf("response = %q", resp.Response)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources = %+v, want empty after degradation", resp.Sources)
	}
	if len(store.History(resp.ConversationID)) != 2 {
		t.Error("degraded request must still record its exchange")
	}
}

func TestProcessGenerationFailure(t *testing.T) {
	researcher := &stubResearcher{sources: []models.Source{{Title: "Report A"}}}
	generator := &stubGenerator{err: &models.GenerationError{StatusCode: 503, Err: errors.New("unavailable")}}
	analyst, store := newTestAnalyst(researcher, generator)

	first, _ := analyst.Process(context.Background(), models.ChatRequest{Prompt: inDomainPrompt})
	if first.Response != ApologyMessage {
		t.Errorf("response = %q, want fixed apology", first.Response)
	}

	resp, err := analyst.Process(context.Background(), models.ChatRequest{
		Prompt:              inDomainPrompt,
		ConversationID:      first.ConversationID,
		IncludeResearchData: true,
	})

	var genErr *models.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %v, want GenerationError", err)
	}
	if resp.Response != ApologyMessage {
		t.Errorf("response = %q, want fixed apology", resp.Response)
	}
	if resp.ConversationID != first.ConversationID {
		t.Error("conversation id must survive a failed generation")
	}
	if len(resp.Sources) != 1 {
		t.Errorf("retrieved sources should still be attached, got %d", len(resp.Sources))
	}
	if got := len(store.History(first.ConversationID)); got != 0 {
		t.Errorf("failed generation must not mutate the store, history = %d turns", got)
	}
}

func TestProcessCancelledRequestCommitsNothing(t *testing.T) {
	generator := &stubGenerator{answer: "unused"}
	analyst, store := newTestAnalyst(&stubResearcher{}, generator)

	id, _ := store.GetOrCreate("")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := analyst.Process(ctx, models.ChatRequest{
		Prompt:              inDomainPrompt,
		ConversationID:      id,
		IncludeResearchData: true,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if generator.calls != 0 {
		t.Error("cancelled request must not reach the generator")
	}
	if got := len(store.History(id)); got != 0 {
		t.Errorf("cancelled request committed %d turns", got)
	}
}

func TestProcessLibraryFallback(t *testing.T) {
	researcher := &stubResearcher{err: &models.RetrievalError{Stage: "search", Err: errors.New("down")}}
	generator := &stubGenerator{answer: "locally grounded"}
	analyst, _ := newTestAnalyst(researcher, generator)

	local := []models.Source{{Title: "briefing.md", Snippet: "local note"}}
	analyst.SetLibrary(stubLibrary{sources: local})

	resp, err := analyst.Process(context.Background(), models.ChatRequest{
		Prompt:              inDomainPrompt,
		IncludeResearchData: true,
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !reflect.DeepEqual(resp.Sources, local) {
		t.Errorf("sources = %+v, want library fallback %+v", resp.Sources, local)
	}
}

type stubLibrary struct {
	sources []models.Source
}

func (s stubLibrary) Retrieve(ctx context.Context, query string, limit int) ([]models.Source, error) {
	return s.sources, nil
}

func TestProcessConcurrentSameConversation(t *testing.T) {
	analyst, store := newTestAnalyst(&stubResearcher{}, &stubGenerator{answer: "ok"})

	first, err := analyst.Process(context.Background(), models.ChatRequest{Prompt: inDomainPrompt})
	if err != nil {
		t.Fatalf("seed request failed: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, perr := analyst.Process(context.Background(), models.ChatRequest{
				Prompt:         fmt.Sprintf("%s (round %d)", inDomainPrompt, i),
				ConversationID: first.ConversationID,
			})
			if perr != nil {
				t.Errorf("concurrent request %d failed: %v", i, perr)
			}
		}(i)
	}
	wg.Wait()

	history := store.History(first.ConversationID)
	if len(history) != (workers+1)*2 {
		t.Fatalf("history = %d turns, want %d (no lost or duplicated exchanges)", len(history), (workers+1)*2)
	}
	for i := 0; i < len(history); i += 2 {
		if history[i].Role != models.RoleUser || history[i+1].Role != models.RoleAssistant {
			t.Fatalf("exchange at %d lost alternation", i)
		}
	}
}
