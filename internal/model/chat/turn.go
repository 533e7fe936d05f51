package chat

import "time"

// RiskLevel is the closed set of risk classifications a turn can receive.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// SignalSource 标记情绪信号来自ML模型还是启发式规则。
type SignalSource string

const (
	SourceML        SignalSource = "ml"
	SourceHeuristic SignalSource = "heuristic"
)

// ConversationTurn is the immutable request-scoped view of one user message.
// Message holds the text actually analyzed; for audio turns this is the
// transcript once voice processing has run.
type ConversationTurn struct {
	UserID     string
	Message    string
	Modalities []string
	Timestamp  time.Time
}

// HasModality reports whether the turn carries the given modality.
func (t ConversationTurn) HasModality(name string) bool {
	for _, m := range t.Modalities {
		if m == name {
			return true
		}
	}
	return false
}

// ScoredLabel pairs an emotion name with its confidence in [0,1].
type ScoredLabel struct {
	Label      string
	Confidence float64
}

// DetectorTrace carries diagnostic detail about how the signal was produced.
// It is surfaced to operators only when trace exposure is switched on.
type DetectorTrace struct {
	ModelScores map[string]float64 `json:"model_scores"`
	VoiceCues   []string           `json:"voice_cues"`
	Source      SignalSource       `json:"source"`
}

// EmotionSignal is produced exactly once per turn by the analyzer.
// Labels are ordered by descending confidence; confidences are multi-label
// and need not sum to 1.
type EmotionSignal struct {
	Labels []ScoredLabel
	Source SignalSource
	Trace  *DetectorTrace
}

// Top returns the highest-confidence label, or "neutral" for an empty signal.
func (s EmotionSignal) Top() ScoredLabel {
	if len(s.Labels) == 0 {
		return ScoredLabel{Label: "neutral", Confidence: 0}
	}
	return s.Labels[0]
}

// LabelNames 按置信度顺序返回情绪标签名。
func (s EmotionSignal) LabelNames() []string {
	names := make([]string, 0, len(s.Labels))
	for _, l := range s.Labels {
		names = append(names, l.Label)
	}
	return names
}

// ConfidenceMap returns label→confidence as a map for serialization.
func (s EmotionSignal) ConfidenceMap() map[string]float64 {
	out := make(map[string]float64, len(s.Labels))
	for _, l := range s.Labels {
		out[l.Label] = l.Confidence
	}
	return out
}

// RiskAssessment is derived deterministically from the emotion signal plus
// the crisis-lexicon scan.
type RiskAssessment struct {
	Level             RiskLevel
	Confidence        float64
	TriggeringSignals []string
}

// Snippet is one retrieved context fragment with its relevance in [0,1].
type Snippet struct {
	Text       string
	Relevance  float64
	Provenance string
}

// SnippetTexts flattens snippets to their bare text for the response payload.
func SnippetTexts(snippets []Snippet) []string {
	texts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		texts = append(texts, s.Text)
	}
	return texts
}

// SafetyDecision is the advisor's verdict for a single turn.
// Invariant: Level == high implies EscalationContacts is non-empty and
// ActionsApplied contains an escalation action.
type SafetyDecision struct {
	Disclaimer         string
	Guidance           []string
	EscalationContacts []string
	ActionsApplied     []string
}
