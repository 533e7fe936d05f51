package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-haven/backend/internal/service/analyzer"
	"github.com/zhouzirui/z-haven/backend/internal/service/history"
	"github.com/zhouzirui/z-haven/backend/internal/service/pipeline"
	"github.com/zhouzirui/z-haven/backend/internal/service/responder"
	"github.com/zhouzirui/z-haven/backend/internal/service/retrieval"
	"github.com/zhouzirui/z-haven/backend/internal/service/safety"
)

func newTestRouter() (chi.Router, *history.Store) {
	hist := history.NewStore()
	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Analyzer:  analyzer.NewHeuristicAnalyzer(analyzer.Config{HighThreshold: 0.75, ModerateThreshold: 0.40, VoiceBlendWeight: 0.7}),
		Retriever: retrieval.NewCatalogRetriever(3),
		Responder: responder.NewTemplateResponder(),
		Advisor:   safety.NewAdvisor(safety.Config{RiskConfidenceThreshold: 0.75, EmotionConfidenceThreshold: 0.75}),
		History:   hist,
	})

	r := chi.NewRouter()
	New(orchestrator).RegisterRoutes(r)
	return r, hist
}

func postChat(t *testing.T, router chi.Router, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleChatSuccess(t *testing.T) {
	router, hist := newTestRouter()

	rec := postChat(t, router, `{"user_id":"u1","message":"I'm feeling sad today","modalities":["text"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	for _, key := range []string{"reply", "emotions", "risk_level", "safety_actions", "retrieved_context", "metadata", "safety", "coaching"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("response is missing key %q", key)
		}
	}
	if got := decoded["risk_level"]; got == "high" {
		t.Fatalf("sad message must not classify high, got %v", got)
	}
	if turns := hist.Recent(context.Background(), "u1", 5); len(turns) != 1 {
		t.Fatalf("expected one recorded turn, got %d", len(turns))
	}
}

func TestHandleChatCrisisEscalates(t *testing.T) {
	router, _ := newTestRouter()

	rec := postChat(t, router, `{"user_id":"u1","message":"I want to end it all"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var decoded struct {
		RiskLevel string `json:"risk_level"`
		Safety    struct {
			EscalationContacts []string `json:"escalation_contacts"`
		} `json:"safety"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if decoded.RiskLevel != "high" {
		t.Fatalf("expected high risk, got %s", decoded.RiskLevel)
	}
	if len(decoded.Safety.EscalationContacts) == 0 {
		t.Fatal("high risk response must carry escalation contacts")
	}
}

func TestHandleChatEmptyMessageRejected(t *testing.T) {
	router, _ := newTestRouter()

	rec := postChat(t, router, `{"user_id":"u1","message":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleChatInvalidBodyRejected(t *testing.T) {
	router, _ := newTestRouter()

	rec := postChat(t, router, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleChatTraceAbsentByDefault(t *testing.T) {
	router, _ := newTestRouter()

	rec := postChat(t, router, `{"user_id":"u1","message":"I'm feeling sad today"}`)
	if strings.Contains(rec.Body.String(), "detector_trace") {
		t.Fatal("detector_trace must not appear when trace exposure is off")
	}
}
