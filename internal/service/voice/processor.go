package voice

import (
	"context"
	"strings"
)

// Processor turns a base64 audio payload into a transcript plus coarse
// voice emotion cues. A transcript of "" means the caller should keep
// the text it already has.
type Processor interface {
	Process(ctx context.Context, audioB64 string) (transcript string, cues []string, err error)
}

// cueKeywords maps transcript keywords to a voice emotion cue. 先到先得，
// 命中一组即返回。
var cueKeywords = []struct {
	cue   string
	words []string
}{
	{cue: "anger", words: []string{"angry", "mad", "furious"}},
	{cue: "sadness", words: []string{"sad", "cry", "crying", "tears"}},
	{cue: "fear", words: []string{"scared", "afraid", "terrified"}},
	{cue: "joy", words: []string{"happy", "excited", "glad"}},
}

// DetectCues extracts emotion cues from a transcript using keyword
// matching. Returns ["neutral"] for a non-empty transcript with no
// keyword hits, and nil for an empty transcript.
func DetectCues(transcript string) []string {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return nil
	}
	lower := strings.ToLower(trimmed)
	for _, group := range cueKeywords {
		for _, word := range group.words {
			if strings.Contains(lower, word) {
				return []string{group.cue}
			}
		}
	}
	return []string{"neutral"}
}

// PassthroughProcessor is the fallback when no ASR backend is
// configured. It leaves the message text untouched and contributes no
// cues, so the analysis runs on text alone.
type PassthroughProcessor struct{}

func NewPassthroughProcessor() *PassthroughProcessor {
	return &PassthroughProcessor{}
}

func (p *PassthroughProcessor) Process(context.Context, string) (string, []string, error) {
	return "", nil, nil
}
