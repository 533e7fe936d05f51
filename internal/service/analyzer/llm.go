package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-haven/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
)

const classifierSystemPrompt = "You are a multi-label emotion classifier for a mental-health support service. " +
	"Read the user message and return ONLY a JSON object of the form " +
	`{"scores": {"anger": 0.0, "disgust": 0.0, "fear": 0.0, "joy": 0.0, "neutral": 0.0, "sadness": 0.0, "surprise": 0.0}} ` +
	"where each value is a confidence between 0 and 1. Scores are independent and need not sum to 1. No extra text."

const classifierUserPrompt = "User message:\n{message}"

// LLMAnalyzer classifies emotions with a chat-model chain and falls back to
// the heuristic path for any single turn whose backend call fails.
type LLMAnalyzer struct {
	// 链实例被所有请求共享，Invoke 串行化以保证并发安全。
	mu      sync.Mutex
	invoke  func(ctx context.Context, input map[string]any) (*schema.Message, error)
	cfg     Config
	timeout time.Duration

	fallback *HeuristicAnalyzer
	degrade  func(reason string)
}

// NewLLMAnalyzer compiles the classifier chain over the shared chat model.
// degrade is invoked once per turn that had to fall back mid-call; pass nil
// when no degradation recording is wanted.
func NewLLMAnalyzer(ctx context.Context, chatModel model.ChatModel, cfg Config, timeout time.Duration, degrade func(reason string)) (*LLMAnalyzer, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile emotion classifier chain: %w", err)
	}

	return &LLMAnalyzer{
		invoke: func(ctx context.Context, input map[string]any) (*schema.Message, error) {
			return runnable.Invoke(ctx, input)
		},
		cfg:      cfg,
		timeout:  timeout,
		fallback: NewHeuristicAnalyzer(cfg),
		degrade:  degrade,
	}, nil
}

// Analyze runs the classifier with a bounded call and applies the shared
// risk policy on top. A failing or malformed backend response never reaches
// the caller: the heuristic path is re-executed for that turn instead.
func (a *LLMAnalyzer) Analyze(ctx context.Context, text string, voiceCues []string) (chat.EmotionSignal, chat.RiskAssessment) {
	scores, err := a.classify(ctx, text)
	if err != nil {
		log.Printf("[analyzer] classifier failed, using heuristic path: %v", err)
		a.recordDegradation(err.Error())
		return a.fallback.Analyze(ctx, text, voiceCues)
	}

	mergeVoiceCues(scores, voiceCues, a.cfg.VoiceBlendWeight)

	signal := buildSignal(scores, chat.SourceML, voiceCues)
	risk := assessRisk(text, scores, a.cfg)
	return signal, risk
}

func (a *LLMAnalyzer) classify(ctx context.Context, text string) (map[emotion.Label]float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.mu.Lock()
	msg, err := a.invoke(callCtx, map[string]any{"message": strings.TrimSpace(text)})
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("classifier invoke: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("classifier returned empty content")
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("classifier output parse: %w", err)
	}

	scores := make(map[emotion.Label]float64, len(payload.Scores))
	for raw, confidence := range payload.Scores {
		label, ok := emotion.KnownLabel(raw)
		if !ok {
			continue
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		scores[label] = confidence
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("classifier returned no known labels")
	}
	return scores, nil
}

func (a *LLMAnalyzer) recordDegradation(reason string) {
	if a.degrade != nil {
		a.degrade(reason)
	}
}

type classifierPayload struct {
	Scores map[string]float64 `json:"scores"`
}

// parseClassifierOutput 解析大模型返回的 JSON，容忍包裹在多余文本中的对象。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}
