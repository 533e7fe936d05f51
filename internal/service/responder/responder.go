// Package responder produces the supportive reply text. The real path drives
// a chat-model chain with a therapeutic-framework instruction; the fallback
// selects templates by top emotion and risk level. Neither path ever returns
// an empty reply.
package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
)

// Responder 是回复生成能力的统一接口。
type Responder interface {
	Generate(ctx context.Context, turn chat.ConversationTurn, signal chat.EmotionSignal, risk chat.RiskAssessment, snippets []chat.Snippet) string
}

// fallbackReply is the last-resort supportive message, kept aligned with the
// crisis-safe phrasing the safety advisor expects to wrap.
const fallbackReply = "I'm having trouble accessing my support tools right now, but I'm still here with you. " +
	"Let's take a calming breath together and focus on one supportive step you can take next. " +
	"If you're in immediate danger, please reach out to emergency services or someone you trust."

// 模板按风险等级分层，占位符只插入情绪名，不回显任何检索内容。
var templatesByRisk = map[chat.RiskLevel]map[string]string{
	chat.RiskLow: {
		"joy":     "It sounds like there's some %s in what you're sharing, and that's worth holding onto. What's been going well for you?",
		"neutral": "Thank you for checking in. I'm here whenever you want to talk through whatever is on your mind.",
		"default": "I hear that you're feeling %s. Would you like to tell me a bit more about what's behind that?",
	},
	chat.RiskModerate: {
		"sadness": "It sounds heavy to be carrying this %s. Those feelings are real and they matter. A small step, like writing down what weighs most, can make it a little easier to look at together.",
		"fear":    "Feeling %s can be exhausting. Let's slow things down: try one slow breath in for four counts and out for four. I'm right here with you.",
		"anger":   "That %s makes sense given what you're describing. Before anything else, it can help to give the feeling some room, maybe a short walk or a few deep breaths.",
		"default": "I hear how much %s is in what you're sharing. You don't have to sort it out alone; we can take it one piece at a time.",
	},
	chat.RiskHigh: {
		"default": "I'm really glad you told me this. What you're feeling sounds overwhelming, and you deserve support right now, not later. Please stay with me for a moment while we look at what help is closest to you.",
	},
}

// TemplateResponder is the dependency-free fallback generator.
type TemplateResponder struct{}

// NewTemplateResponder 创建模板回复生成器。
func NewTemplateResponder() *TemplateResponder {
	return &TemplateResponder{}
}

// Generate picks a template by risk level and top emotion. The only
// interpolated value is the emotion name itself.
func (r *TemplateResponder) Generate(_ context.Context, _ chat.ConversationTurn, signal chat.EmotionSignal, risk chat.RiskAssessment, _ []chat.Snippet) string {
	byEmotion, ok := templatesByRisk[risk.Level]
	if !ok {
		return fallbackReply
	}

	top := signal.Top().Label
	template, ok := byEmotion[top]
	if !ok {
		template = byEmotion["default"]
	}
	if template == "" {
		return fallbackReply
	}

	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, top)
	}
	return template
}
