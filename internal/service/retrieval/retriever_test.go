package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
)

// fakeEmbedder 用字母频率作为向量，相同文本余弦相似度为1。
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		vec := make([]float64, 26)
		for _, r := range text {
			if r >= 'a' && r <= 'z' {
				vec[r-'a']++
			}
			if r >= 'A' && r <= 'Z' {
				vec[r-'A']++
			}
		}
		out = append(out, vec)
	}
	return out, nil
}

func sadSignal() chat.EmotionSignal {
	return chat.EmotionSignal{
		Labels: []chat.ScoredLabel{{Label: "sadness", Confidence: 0.6}},
		Source: chat.SourceHeuristic,
	}
}

func turnFor(userID, message string) chat.ConversationTurn {
	return chat.ConversationTurn{UserID: userID, Message: message, Modalities: []string{"text"}, Timestamp: time.Now().UTC()}
}

func TestCatalogRetrieverDeterministic(t *testing.T) {
	r := NewCatalogRetriever(3)
	ctx := context.Background()

	first := r.Retrieve(ctx, turnFor("u1", "I feel down"), sadSignal())
	second := r.Retrieve(ctx, turnFor("u1", "I feel down"), sadSignal())

	if len(first) == 0 {
		t.Fatal("expected catalog snippets for sadness")
	}
	if len(first) != len(second) {
		t.Fatalf("catalog retrieval not deterministic: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text {
			t.Fatalf("catalog ordering changed between calls")
		}
	}
}

func TestCatalogRetrieverUnknownEmotionServesGeneric(t *testing.T) {
	r := NewCatalogRetriever(5)
	signal := chat.EmotionSignal{Labels: []chat.ScoredLabel{{Label: "neutral", Confidence: 0.5}}}

	snippets := r.Retrieve(context.Background(), turnFor("u1", "hello"), signal)
	if len(snippets) == 0 {
		t.Fatal("generic catalog should still produce snippets")
	}
	if len(snippets) > MaxSnippets {
		t.Fatalf("snippet count over bound: %d", len(snippets))
	}
}

func TestVectorRetrieverRanksSeededDocuments(t *testing.T) {
	r, err := NewVectorRetriever(context.Background(), &fakeEmbedder{}, Options{TopK: 3, RelevanceFloor: 0.3, Timeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("NewVectorRetriever err: %v", err)
	}

	snippets := r.Retrieve(context.Background(), turnFor("u1", "Journaling can help process emotions and gain clarity."), sadSignal())
	if len(snippets) == 0 {
		t.Fatal("expected ranked snippets")
	}
	if snippets[0].Text != "Journaling can help process emotions and gain clarity." {
		t.Fatalf("expected exact match to rank first, got %q", snippets[0].Text)
	}
	if len(snippets) > 3 {
		t.Fatalf("top-k not enforced: %d", len(snippets))
	}
	for _, s := range snippets {
		if s.Relevance < 0 || s.Relevance > 1 {
			t.Fatalf("relevance out of range: %+v", s)
		}
	}
}

func TestVectorRetrieverFallsBackOnEmbedderError(t *testing.T) {
	embedder := &fakeEmbedder{}
	degraded := ""
	r, err := NewVectorRetriever(context.Background(), embedder, Options{TopK: 3, RelevanceFloor: 0.3, Timeout: time.Second},
		func(reason string) { degraded = reason })
	if err != nil {
		t.Fatalf("NewVectorRetriever err: %v", err)
	}

	embedder.err = errors.New("embedding backend down")
	snippets := r.Retrieve(context.Background(), turnFor("u1", "I feel sad"), sadSignal())
	if len(snippets) == 0 {
		t.Fatal("fallback catalog should answer when the embedder fails")
	}
	if degraded == "" {
		t.Fatal("expected runtime degradation to be recorded")
	}
}

func TestVectorRetrieverProbeFailure(t *testing.T) {
	_, err := NewVectorRetriever(context.Background(), &fakeEmbedder{err: errors.New("no credentials")}, Options{}, nil)
	if err == nil {
		t.Fatal("expected seed embedding failure to surface as probe error")
	}
}

func TestVectorRetrieverUserScopedMemory(t *testing.T) {
	r, err := NewVectorRetriever(context.Background(), &fakeEmbedder{}, Options{TopK: 5, RelevanceFloor: 0.2, Timeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("NewVectorRetriever err: %v", err)
	}

	r.Remember(context.Background(), "alice", "User said: my cat Potato always cheers me up")

	aliceHits := r.Retrieve(context.Background(), turnFor("alice", "my cat Potato always cheers me up"), sadSignal())
	found := false
	for _, s := range aliceHits {
		if s.Provenance == "history:alice" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alice's memory in results: %+v", aliceHits)
	}

	bobHits := r.Retrieve(context.Background(), turnFor("bob", "my cat Potato always cheers me up"), sadSignal())
	for _, s := range bobHits {
		if s.Provenance == "history:alice" {
			t.Fatal("another user's memory leaked into results")
		}
	}
}
