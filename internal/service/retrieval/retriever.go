// Package retrieval supplies ranked context snippets for the prompt. The
// real path embeds the message and queries an in-process nearest-neighbor
// index; the fallback serves a static emotion-tagged coping catalog. An empty
// result is valid, never an error.
package retrieval

import (
	"context"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
)

// MaxSnippets bounds the retrieved context length for any retriever.
const MaxSnippets = 5

// Retriever 是上下文检索能力的统一接口。检索失败由实现内部降级消化，
// 调用方永远拿到一个合法（可能为空）的切片。
type Retriever interface {
	Retrieve(ctx context.Context, turn chat.ConversationTurn, signal chat.EmotionSignal) []chat.Snippet
}

// catalog maps the top emotion label to curated coping and psychoeducational
// snippets. Selection is deterministic given the same top emotion, which keeps
// fallback behavior reproducible in tests.
var catalog = map[string][]string{
	"sadness": {
		"Journaling can help process emotions and gain clarity.",
		"Listening to music is a great way to relax and lift your mood.",
		"Talking to a trusted friend can provide support and perspective.",
	},
	"fear": {
		"Practice deep breathing: Inhale for 4 counts, hold for 4, exhale for 4.",
		"Mindfulness meditation can help manage stress and anxiety.",
		"Grounding exercises like naming five things you can see can interrupt spiraling worry.",
	},
	"anger": {
		"Exercise releases endorphins which can improve your mood.",
		"Stepping away for a short walk can create space before responding.",
		"Practice deep breathing: Inhale for 4 counts, hold for 4, exhale for 4.",
	},
	"disgust": {
		"Self-compassion exercises can soften harsh self-judgment.",
		"Talking to a trusted friend can provide support and perspective.",
	},
	"joy": {
		"Savoring positive moments helps them last: describe what went well in detail.",
		"Sharing good news with someone you trust can amplify it.",
	},
	"surprise": {
		"Taking a moment to breathe before reacting helps process unexpected events.",
		"Journaling can help process emotions and gain clarity.",
	},
}

// genericCatalog serves neutral or unknown top emotions.
var genericCatalog = []string{
	"Getting enough sleep is crucial for emotional well-being.",
	"Healthy eating can positively affect your mood and energy levels.",
	"Mindfulness meditation can help manage stress and anxiety.",
}

// CatalogRetriever is the dependency-free fallback: a fixed catalog keyed by
// the signal's top emotion.
type CatalogRetriever struct {
	limit int
}

// NewCatalogRetriever 创建静态目录检索器，limit 超出上限时被截断。
func NewCatalogRetriever(limit int) *CatalogRetriever {
	if limit < 1 || limit > MaxSnippets {
		limit = MaxSnippets
	}
	return &CatalogRetriever{limit: limit}
}

// Retrieve selects catalog snippets by the top emotion label.
func (r *CatalogRetriever) Retrieve(_ context.Context, _ chat.ConversationTurn, signal chat.EmotionSignal) []chat.Snippet {
	top := signal.Top().Label
	texts, ok := catalog[top]
	if !ok {
		texts = genericCatalog
	}

	snippets := make([]chat.Snippet, 0, r.limit)
	for i, text := range texts {
		if i >= r.limit {
			break
		}
		// 固定的递减相关度，仅用于保持排序语义。
		snippets = append(snippets, chat.Snippet{
			Text:       text,
			Relevance:  0.6 - 0.05*float64(i),
			Provenance: "catalog:" + top,
		})
	}
	return snippets
}
