package retrieval

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
)

// seedDocuments 是共享的基础应对策略文档，启动时嵌入一次。
var seedDocuments = []string{
	"Practice deep breathing: Inhale for 4 counts, hold for 4, exhale for 4.",
	"Journaling can help process emotions and gain clarity.",
	"Listening to music is a great way to relax and lift your mood.",
	"Exercise releases endorphins which can improve your mood.",
	"Talking to a trusted friend can provide support and perspective.",
	"Mindfulness meditation can help manage stress and anxiety.",
	"Getting enough sleep is crucial for emotional well-being.",
	"Healthy eating can positively affect your mood and energy levels.",
}

// Options 控制向量检索行为；取值来自 config.RetrievalConfig。
type Options struct {
	TopK           int
	RelevanceFloor float64
	Timeout        time.Duration
}

type document struct {
	userID     string
	text       string
	provenance string
	vector     []float64
}

// VectorRetriever embeds the message and ranks stored documents by cosine
// similarity. Shared seed documents serve every user; per-user memory is
// appended after each turn and scoped to that user on query.
//
// The embedder handle is shared across requests; index mutation is guarded by
// the retriever's own lock since the slice is not safe for concurrent use.
type VectorRetriever struct {
	embedder embedding.Embedder
	opts     Options

	mu   sync.RWMutex
	docs []document

	fallback *CatalogRetriever
	degrade  func(reason string)
}

// NewVectorRetriever seeds the index by embedding the base catalog. The
// embedding call doubles as the startup probe: if it fails the registry
// installs the catalog fallback instead.
func NewVectorRetriever(ctx context.Context, embedder embedding.Embedder, opts Options, degrade func(reason string)) (*VectorRetriever, error) {
	if opts.TopK < 1 || opts.TopK > MaxSnippets {
		opts.TopK = MaxSnippets
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	seedCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	vectors, err := embedder.EmbedStrings(seedCtx, seedDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to embed seed documents: %w", err)
	}
	if len(vectors) != len(seedDocuments) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d seed documents", len(vectors), len(seedDocuments))
	}

	docs := make([]document, 0, len(seedDocuments))
	for i, text := range seedDocuments {
		docs = append(docs, document{text: text, provenance: "seed", vector: vectors[i]})
	}

	return &VectorRetriever{
		embedder: embedder,
		opts:     opts,
		docs:     docs,
		fallback: NewCatalogRetriever(opts.TopK),
		degrade:  degrade,
	}, nil
}

// Retrieve runs a bounded nearest-neighbor query. On timeout or embedder
// error the static catalog answers instead, so the caller never blocks
// indefinitely and never sees a failure.
func (r *VectorRetriever) Retrieve(ctx context.Context, turn chat.ConversationTurn, signal chat.EmotionSignal) []chat.Snippet {
	queryCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	vectors, err := r.embedder.EmbedStrings(queryCtx, []string{turn.Message})
	if err != nil || len(vectors) == 0 {
		reason := "embedder returned no vectors"
		if err != nil {
			reason = err.Error()
		}
		log.Printf("[retrieval] query embedding failed, serving catalog: %s", reason)
		if r.degrade != nil {
			r.degrade(reason)
		}
		return r.fallback.Retrieve(ctx, turn, signal)
	}

	return r.rank(vectors[0], turn.UserID)
}

func (r *VectorRetriever) rank(query []float64, userID string) []chat.Snippet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		doc   document
		score float64
	}

	candidates := make([]scored, 0, len(r.docs))
	for _, doc := range r.docs {
		if doc.userID != "" && doc.userID != userID {
			continue
		}
		score := cosine(query, doc.vector)
		if score < r.opts.RelevanceFloor {
			continue
		}
		candidates = append(candidates, scored{doc: doc, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	limit := r.opts.TopK
	if limit > len(candidates) {
		limit = len(candidates)
	}

	snippets := make([]chat.Snippet, 0, limit)
	for _, c := range candidates[:limit] {
		snippets = append(snippets, chat.Snippet{
			Text:       c.doc.text,
			Relevance:  math.Round(c.score*1000) / 1000,
			Provenance: c.doc.provenance,
		})
	}
	return snippets
}

// Remember appends a per-user memory document so later turns can retrieve it.
// Failures are logged and swallowed: memory enrichment is best-effort and
// must never fail the turn that produced it.
func (r *VectorRetriever) Remember(ctx context.Context, userID, text string) {
	if userID == "" || text == "" {
		return
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	vectors, err := r.embedder.EmbedStrings(embedCtx, []string{text})
	if err != nil || len(vectors) == 0 {
		log.Printf("[retrieval] failed to embed memory for user=%s: %v", userID, err)
		return
	}

	r.mu.Lock()
	r.docs = append(r.docs, document{
		userID:     userID,
		text:       text,
		provenance: "history:" + userID,
		vector:     vectors[0],
	})
	r.mu.Unlock()
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
