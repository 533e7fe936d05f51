package responder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/service/history"
)

// systemInstruction 采用 NURSE 框架（Name, Understand, Respect, Support,
// Explore）约束生成语气。
const systemInstruction = "You are a compassionate mental health support companion following the " +
	"NURSE framework (Name emotion, Understand, Respect, Support, Explore). " +
	"Provide short, empathetic responses, encourage coping strategies, and " +
	"remind the user to seek professional help when appropriate."

const userPromptTemplate = "Relevant context:\n{context}\n\n" +
	"Detected emotional cues: {emotions}\n" +
	"Assessed risk level: {risk_level}\n\n" +
	"User message:\n{query}\n\n" +
	"Compose a supportive reply addressing the emotions, respecting the risk level, and offering next-step suggestions."

const historyLimit = 10

// Options bounds the generative call; values come from config.AIConfig.
type Options struct {
	Timeout       time.Duration
	RetryBackoff  time.Duration
	MaxReplyChars int
}

// HistoryProvider supplies recent turns for prompt context.
type HistoryProvider interface {
	Recent(ctx context.Context, userID string, n int) []history.Turn
}

// LLMResponder generates replies through a prompt chain over the shared chat
// model. Every failure mode lands on the template fallback: the caller always
// receives a non-empty reply.
type LLMResponder struct {
	invoke   func(ctx context.Context, input map[string]any) (*schema.Message, error)
	histSvc  HistoryProvider
	opts     Options
	fallback *TemplateResponder
	degrade  func(reason string)
}

// NewLLMResponder compiles the generation chain. Compilation doubles as the
// startup probe for the responder capability.
func NewLLMResponder(ctx context.Context, chatModel model.ChatModel, histSvc HistoryProvider, opts Options, degrade func(reason string)) (*LLMResponder, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemInstruction),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage(userPromptTemplate),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile responder chain: %w", err)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}

	return &LLMResponder{
		invoke: func(ctx context.Context, input map[string]any) (*schema.Message, error) {
			return runnable.Invoke(ctx, input)
		},
		histSvc:  histSvc,
		opts:     opts,
		fallback: NewTemplateResponder(),
		degrade:  degrade,
	}, nil
}

// Generate calls the backend once, retrying a single time with a bounded
// backoff for transient failures. Cancelled requests are never retried.
func (r *LLMResponder) Generate(ctx context.Context, turn chat.ConversationTurn, signal chat.EmotionSignal, risk chat.RiskAssessment, snippets []chat.Snippet) string {
	input := r.buildChainInput(ctx, turn, signal, risk, snippets)

	reply, err := r.callOnce(ctx, input)
	if err != nil && retryable(ctx, err) {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(r.opts.RetryBackoff):
			reply, err = r.callOnce(ctx, input)
		}
	}
	if err != nil {
		log.Printf("[responder] generation failed, using template reply: %v", err)
		if r.degrade != nil {
			r.degrade(err.Error())
		}
		return r.fallback.Generate(ctx, turn, signal, risk, snippets)
	}

	return r.bound(reply)
}

func (r *LLMResponder) callOnce(ctx context.Context, input map[string]any) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	msg, err := r.invoke(callCtx, input)
	if err != nil {
		return "", fmt.Errorf("responder invoke: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("responder returned empty content")
	}
	return strings.TrimSpace(msg.Content), nil
}

func (r *LLMResponder) buildChainInput(ctx context.Context, turn chat.ConversationTurn, signal chat.EmotionSignal, risk chat.RiskAssessment, snippets []chat.Snippet) map[string]any {
	contextSection := "No personalized history retrieved."
	if len(snippets) > 0 {
		contextSection = strings.Join(chat.SnippetTexts(snippets), "\n")
	}

	emotionSummary := "neutral"
	if names := signal.LabelNames(); len(names) > 0 {
		emotionSummary = strings.Join(names, ", ")
	}

	return map[string]any{
		"history":    r.buildHistoryMessages(ctx, turn.UserID),
		"context":    contextSection,
		"emotions":   emotionSummary,
		"risk_level": string(risk.Level),
		"query":      turn.Message,
	}
}

// buildHistoryMessages 将最近的轮次重放为 user/assistant 消息对，时间正序。
func (r *LLMResponder) buildHistoryMessages(ctx context.Context, userID string) []*schema.Message {
	if r.histSvc == nil {
		return nil
	}

	turns := r.histSvc.Recent(ctx, userID, historyLimit)
	if len(turns) == 0 {
		return nil
	}

	// Recent is newest-first; replay oldest-first for the model.
	messages := make([]*schema.Message, 0, len(turns)*2)
	for i := len(turns) - 1; i >= 0; i-- {
		messages = append(messages, schema.UserMessage(turns[i].Message))
		messages = append(messages, schema.AssistantMessage(turns[i].Reply, nil))
	}
	return messages
}

func (r *LLMResponder) bound(reply string) string {
	if r.opts.MaxReplyChars <= 0 {
		return reply
	}
	runes := []rune(reply)
	if len(runes) <= r.opts.MaxReplyChars {
		return reply
	}
	return string(runes[:r.opts.MaxReplyChars])
}

// retryable 仅对瞬态后端错误放行一次重试，取消与超时不重试。
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// 调用级超时直接走模板回退，不做重试。
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
