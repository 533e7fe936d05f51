package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
)

func testConfig() Config {
	return Config{HighThreshold: 0.75, ModerateThreshold: 0.40, VoiceBlendWeight: 0.7}
}

func TestHeuristicCrisisForcesHigh(t *testing.T) {
	a := NewHeuristicAnalyzer(testConfig())

	_, risk := a.Analyze(context.Background(), "I want to end it all", nil)
	if risk.Level != chat.RiskHigh {
		t.Fatalf("expected high risk, got %s", risk.Level)
	}
	if len(risk.TriggeringSignals) == 0 {
		t.Fatal("expected triggering signal for crisis hit")
	}
}

func TestHeuristicSadMessageModerate(t *testing.T) {
	a := NewHeuristicAnalyzer(testConfig())

	signal, risk := a.Analyze(context.Background(), "I'm feeling sad today", nil)
	if risk.Level != chat.RiskModerate && risk.Level != chat.RiskLow {
		t.Fatalf("expected low or moderate risk, got %s", risk.Level)
	}
	if signal.Top().Label != "sadness" {
		t.Fatalf("expected sadness on top, got %s", signal.Top().Label)
	}
	if signal.Source != chat.SourceHeuristic {
		t.Fatalf("expected heuristic source, got %s", signal.Source)
	}
}

func TestHeuristicNeutralMessage(t *testing.T) {
	a := NewHeuristicAnalyzer(testConfig())

	signal, risk := a.Analyze(context.Background(), "The weather report mentioned rain", nil)
	if risk.Level != chat.RiskLow {
		t.Fatalf("expected low risk, got %s", risk.Level)
	}
	if signal.Top().Label != "neutral" {
		t.Fatalf("expected neutral label, got %s", signal.Top().Label)
	}
}

func TestHeuristicConfidenceBounds(t *testing.T) {
	a := NewHeuristicAnalyzer(testConfig())

	signal, risk := a.Analyze(context.Background(), "sad scared angry ashamed crying panicking furious!!!", []string{"sadness"})
	if risk.Confidence < 0 || risk.Confidence > 1 {
		t.Fatalf("risk confidence out of range: %f", risk.Confidence)
	}
	for _, label := range signal.Labels {
		if label.Confidence < 0 || label.Confidence > 1 {
			t.Fatalf("label confidence out of range: %+v", label)
		}
	}
}

func TestVoiceCueBlendingRaisesLabel(t *testing.T) {
	cfg := testConfig()
	a := NewHeuristicAnalyzer(cfg)

	without, _ := a.Analyze(context.Background(), "Nothing much happened today", nil)
	with, _ := a.Analyze(context.Background(), "Nothing much happened today", []string{"sadness"})

	if without.ConfidenceMap()["sadness"] >= with.ConfidenceMap()["sadness"] {
		t.Fatalf("expected voice cue to raise sadness: %v vs %v",
			without.ConfidenceMap(), with.ConfidenceMap())
	}
}

func TestHeuristicIdempotent(t *testing.T) {
	a := NewHeuristicAnalyzer(testConfig())

	_, first := a.Analyze(context.Background(), "I feel anxious and alone", nil)
	_, second := a.Analyze(context.Background(), "I feel anxious and alone", nil)

	if first.Level != second.Level || first.Confidence != second.Confidence {
		t.Fatalf("risk assessment not deterministic: %+v vs %+v", first, second)
	}
}

func newStubLLMAnalyzer(invoke func(ctx context.Context, input map[string]any) (*schema.Message, error), degrade func(string)) *LLMAnalyzer {
	return &LLMAnalyzer{
		invoke:   invoke,
		cfg:      testConfig(),
		timeout:  time.Second,
		fallback: NewHeuristicAnalyzer(testConfig()),
		degrade:  degrade,
	}
}

func TestLLMAnalyzerParsesScores(t *testing.T) {
	a := newStubLLMAnalyzer(func(_ context.Context, _ map[string]any) (*schema.Message, error) {
		return schema.AssistantMessage(`{"scores": {"sadness": 0.82, "fear": 0.4, "joy": 0.05}}`, nil), nil
	}, nil)

	signal, risk := a.Analyze(context.Background(), "everything is heavy lately", nil)
	if signal.Source != chat.SourceML {
		t.Fatalf("expected ml source, got %s", signal.Source)
	}
	if signal.Top().Label != "sadness" {
		t.Fatalf("expected sadness on top, got %s", signal.Top().Label)
	}
	// 0.82 + 0.4 聚合后超过高阈值。
	if risk.Level != chat.RiskHigh {
		t.Fatalf("expected high risk from aggregated negatives, got %s", risk.Level)
	}
}

func TestLLMAnalyzerFallsBackOnError(t *testing.T) {
	degraded := ""
	a := newStubLLMAnalyzer(func(_ context.Context, _ map[string]any) (*schema.Message, error) {
		return nil, errors.New("rate limited")
	}, func(reason string) { degraded = reason })

	signal, risk := a.Analyze(context.Background(), "I'm feeling sad today", nil)
	if signal.Source != chat.SourceHeuristic {
		t.Fatalf("expected heuristic fallback, got %s", signal.Source)
	}
	if risk.Level == "" {
		t.Fatal("fallback must still assess risk")
	}
	if degraded == "" {
		t.Fatal("expected degradation to be recorded")
	}
}

func TestLLMAnalyzerCrisisFloorSurvivesMLPath(t *testing.T) {
	// 模型给出全零分也不能绕过危机词表。
	a := newStubLLMAnalyzer(func(_ context.Context, _ map[string]any) (*schema.Message, error) {
		return schema.AssistantMessage(`{"scores": {"neutral": 0.9, "joy": 0.1}}`, nil), nil
	}, nil)

	_, risk := a.Analyze(context.Background(), "I keep thinking about suicide", nil)
	if risk.Level != chat.RiskHigh {
		t.Fatalf("crisis phrase must force high risk on the ML path, got %s", risk.Level)
	}
}

func TestLLMAnalyzerCrisisSurvivesMLFailure(t *testing.T) {
	a := newStubLLMAnalyzer(func(_ context.Context, _ map[string]any) (*schema.Message, error) {
		return nil, errors.New("backend exploded mid-call")
	}, nil)

	_, risk := a.Analyze(context.Background(), "I want to end it all", nil)
	if risk.Level != chat.RiskHigh {
		t.Fatalf("crisis phrase must force high risk even when ML throws, got %s", risk.Level)
	}
}

func TestLLMAnalyzerRejectsGarbageOutput(t *testing.T) {
	a := newStubLLMAnalyzer(func(_ context.Context, _ map[string]any) (*schema.Message, error) {
		return schema.AssistantMessage("certainly! here is my analysis", nil), nil
	}, nil)

	signal, _ := a.Analyze(context.Background(), "hello there", nil)
	if signal.Source != chat.SourceHeuristic {
		t.Fatalf("malformed output should fall back, got source %s", signal.Source)
	}
}
