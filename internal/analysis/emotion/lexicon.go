package emotion

import (
	"sort"
	"strings"
)

// Label 表示分析器可以产出的情绪标签。
type Label string

const (
	Anger    Label = "anger"
	Disgust  Label = "disgust"
	Fear     Label = "fear"
	Joy      Label = "joy"
	Neutral  Label = "neutral"
	Sadness  Label = "sadness"
	Surprise Label = "surprise"
)

// Negative marks the labels that count toward the aggregated risk score.
var Negative = map[Label]bool{
	Anger:   true,
	Disgust: true,
	Fear:    true,
	Sadness: true,
}

// neutralConfidence is assigned when no bucket matches at all.
const neutralConfidence = 0.5

var keywordBuckets = map[Label][]string{
	Joy: {
		"happy", "glad", "joy", "grateful", "thankful", "excited", "proud",
		"great day", "feeling good", "better now", "hopeful", "relieved",
		"love", "amazing", "wonderful", "开心", "高兴", "太好了",
	},
	Sadness: {
		"sad", "unhappy", "depressed", "down", "cry", "crying", "lonely",
		"alone", "empty", "hopeless", "worthless", "miserable", "grief",
		"heartbroken", "numb", "exhausted", "tired of", "难过", "伤心", "低落",
	},
	Anger: {
		"angry", "furious", "mad", "rage", "pissed", "annoyed", "frustrated",
		"fed up", "hate", "unfair", "resent", "愤怒", "生气", "气死",
	},
	Fear: {
		"afraid", "scared", "anxious", "anxiety", "panic", "terrified",
		"worried", "worry", "nervous", "dread", "overwhelmed", "on edge",
		"can't breathe", "害怕", "焦虑", "恐慌",
	},
	Disgust: {
		"disgusted", "gross", "sick of", "ashamed", "shame", "repulsed",
		"hate myself", "恶心", "厌恶",
	},
	Surprise: {
		"surprised", "shocked", "can't believe", "unexpected", "suddenly",
		"out of nowhere", "震惊", "没想到",
	},
}

// crisisPhrases 是强制触发高风险的危机词表。
// Matching is verbatim substring over the lowercased message; this list is
// the safety floor and is scanned on every path, ML-backed or not.
var crisisPhrases = []string{
	"suicide",
	"suicidal",
	"self-harm",
	"self harm",
	"kill myself",
	"end my life",
	"end it all",
	"ending it all",
	"want to die",
	"wish i was dead",
	"better off dead",
	"harm myself",
	"hurt myself",
	"can't go on",
	"cant go on",
	"no reason to live",
	"不想活", "自杀", "结束生命",
}

// Scan returns per-label confidence from keyword match weight.
// The result is deterministic for a given input: a single hit lands at the
// base weight, each additional hit within the same bucket adds a step, and
// everything is capped below 1. A text with no hits scores neutral only.
func Scan(text string) map[Label]float64 {
	normalized := strings.ToLower(strings.TrimSpace(text))
	scores := make(map[Label]float64)
	if normalized == "" {
		scores[Neutral] = neutralConfidence
		return scores
	}

	const (
		baseWeight = 0.45
		stepWeight = 0.15
		capWeight  = 0.90
	)

	for label, keywords := range keywordBuckets {
		hits := 0
		for _, word := range keywords {
			if word == "" {
				continue
			}
			if strings.Contains(normalized, word) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := baseWeight + stepWeight*float64(hits-1)
		if confidence > capWeight {
			confidence = capWeight
		}
		scores[label] = confidence
	}

	// 感叹号提升惊讶/喜悦权重，沿用标点启发式。
	if exclamations := strings.Count(text, "!"); exclamations > 1 {
		boost := scores[Surprise] + 0.05*float64(exclamations)
		if boost > capWeight {
			boost = capWeight
		}
		scores[Surprise] = boost
	}

	if len(scores) == 0 {
		scores[Neutral] = neutralConfidence
	}
	return scores
}

// CrisisHit reports whether the text contains a crisis phrase verbatim,
// returning the first phrase matched in lexicon order.
func CrisisHit(text string) (string, bool) {
	normalized := strings.ToLower(text)
	for _, phrase := range crisisPhrases {
		if strings.Contains(normalized, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// Sorted returns the scored labels ordered by descending confidence, ties
// broken alphabetically so output ordering is reproducible.
func Sorted(scores map[Label]float64) []Label {
	labels := make([]Label, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if scores[labels[i]] == scores[labels[j]] {
			return labels[i] < labels[j]
		}
		return scores[labels[i]] > scores[labels[j]]
	})
	return labels
}

// AggregateNegative sums negative-label confidence, capped at 1.
func AggregateNegative(scores map[Label]float64) float64 {
	total := 0.0
	for label, confidence := range scores {
		if Negative[label] {
			total += confidence
		}
	}
	if total > 1 {
		total = 1
	}
	return total
}

// KnownLabel 判断给定字符串是否为合法情绪标签。
func KnownLabel(raw string) (Label, bool) {
	switch Label(strings.ToLower(strings.TrimSpace(raw))) {
	case Anger:
		return Anger, true
	case Disgust:
		return Disgust, true
	case Fear:
		return Fear, true
	case Joy:
		return Joy, true
	case Neutral:
		return Neutral, true
	case Sadness:
		return Sadness, true
	case Surprise:
		return Surprise, true
	default:
		return "", false
	}
}
