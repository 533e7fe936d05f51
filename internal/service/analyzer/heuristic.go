package analyzer

import (
	"context"

	"github.com/zhouzirui/z-haven/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
)

// HeuristicAnalyzer 是无外部依赖的词表回退实现，始终确定性成功。
type HeuristicAnalyzer struct {
	cfg Config
}

// NewHeuristicAnalyzer returns the lexicon-backed fallback analyzer.
func NewHeuristicAnalyzer(cfg Config) *HeuristicAnalyzer {
	return &HeuristicAnalyzer{cfg: cfg}
}

// Analyze scores the text against the keyword lexicon, blends any voice cues,
// and applies the shared risk policy.
func (a *HeuristicAnalyzer) Analyze(_ context.Context, text string, voiceCues []string) (chat.EmotionSignal, chat.RiskAssessment) {
	scores := emotion.Scan(text)
	mergeVoiceCues(scores, voiceCues, a.cfg.VoiceBlendWeight)

	signal := buildSignal(scores, chat.SourceHeuristic, voiceCues)
	risk := assessRisk(text, scores, a.cfg)
	return signal, risk
}
