// Package analyzer produces the per-turn emotion signal and risk assessment.
// Two sibling implementations serve the capability: an LLM-backed classifier
// and a keyword heuristic. The crisis-lexicon scan is applied by the shared
// risk policy on both paths, so a crisis phrase forces high risk no matter
// which backend produced the emotion scores.
package analyzer

import (
	"context"
	"math"
	"sort"

	"github.com/zhouzirui/z-haven/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
)

// labelFloor 低于该置信度的标签不进入情绪列表（追踪中仍保留完整得分）。
const labelFloor = 0.3

// voiceCueConfidence is the assumed confidence of a voice-derived cue before
// blending with the text-derived score.
const voiceCueConfidence = 0.6

// Config carries the risk thresholds and the text/voice blend weight.
// Values come from configuration, not constants; see config.SafetyConfig.
type Config struct {
	HighThreshold     float64
	ModerateThreshold float64
	VoiceBlendWeight  float64
}

// Analyzer 是情绪风险分析能力的统一接口。
type Analyzer interface {
	Analyze(ctx context.Context, text string, voiceCues []string) (chat.EmotionSignal, chat.RiskAssessment)
}

// mergeVoiceCues blends voice-derived cues into the text-derived scores,
// text-dominant by default (weight w on the text side).
func mergeVoiceCues(scores map[emotion.Label]float64, cues []string, w float64) {
	for _, cue := range cues {
		label, ok := emotion.KnownLabel(cue)
		if !ok {
			continue
		}
		blended := w*scores[label] + (1-w)*voiceCueConfidence
		if blended > 1 {
			blended = 1
		}
		scores[label] = blended
	}
}

// buildSignal orders the scored labels into an EmotionSignal. Labels under
// the display floor are dropped from the list but kept in the trace.
func buildSignal(scores map[emotion.Label]float64, source chat.SignalSource, cues []string) chat.EmotionSignal {
	labels := make([]chat.ScoredLabel, 0, len(scores))
	for _, label := range emotion.Sorted(scores) {
		if scores[label] < labelFloor {
			continue
		}
		labels = append(labels, chat.ScoredLabel{Label: string(label), Confidence: round3(scores[label])})
	}
	if len(labels) == 0 {
		labels = append(labels, chat.ScoredLabel{Label: string(emotion.Neutral), Confidence: 0.5})
	}

	trace := &chat.DetectorTrace{
		ModelScores: make(map[string]float64, len(scores)),
		VoiceCues:   append([]string(nil), cues...),
		Source:      source,
	}
	for label, confidence := range scores {
		trace.ModelScores[string(label)] = round3(confidence)
	}
	if trace.VoiceCues == nil {
		trace.VoiceCues = []string{}
	}

	return chat.EmotionSignal{Labels: labels, Source: source, Trace: trace}
}

// assessRisk applies the decision policy shared by both analyzer paths.
// The crisis check runs first and takes precedence over every other signal;
// it is the safety floor and is never skipped.
func assessRisk(text string, scores map[emotion.Label]float64, cfg Config) chat.RiskAssessment {
	if phrase, ok := emotion.CrisisHit(text); ok {
		return chat.RiskAssessment{
			Level:             chat.RiskHigh,
			Confidence:        0.95,
			TriggeringSignals: []string{"crisis_lexicon:" + phrase},
		}
	}

	aggregate := emotion.AggregateNegative(scores)
	top := 0.0
	for _, confidence := range scores {
		if confidence > top {
			top = confidence
		}
	}
	base := math.Max(aggregate, top)

	negatives := make([]string, 0, len(scores))
	for label := range scores {
		if emotion.Negative[label] {
			negatives = append(negatives, string(label))
		}
	}
	sort.Strings(negatives)

	switch {
	case aggregate >= cfg.HighThreshold:
		return chat.RiskAssessment{
			Level:             chat.RiskHigh,
			Confidence:        round3(math.Max(aggregate, 0.8)),
			TriggeringSignals: negatives,
		}
	case aggregate >= cfg.ModerateThreshold:
		return chat.RiskAssessment{
			Level:             chat.RiskModerate,
			Confidence:        round3(base * 0.8),
			TriggeringSignals: negatives,
		}
	default:
		return chat.RiskAssessment{
			Level:             chat.RiskLow,
			Confidence:        round3(base * 0.6),
			TriggeringSignals: []string{},
		}
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
