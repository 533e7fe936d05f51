package pipeline

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/service/analyzer"
	"github.com/zhouzirui/z-haven/backend/internal/service/history"
	"github.com/zhouzirui/z-haven/backend/internal/service/responder"
	"github.com/zhouzirui/z-haven/backend/internal/service/retrieval"
	"github.com/zhouzirui/z-haven/backend/internal/service/safety"
	"github.com/zhouzirui/z-haven/backend/internal/service/voice"
)

// ErrEmptyMessage rejects a request before any component runs.
var ErrEmptyMessage = errors.New("pipeline: message must not be empty")

// DefaultUserID is assumed when the request does not identify the user.
const DefaultUserID = "anonymous"

// Memory receives per-user context after each completed turn. The vector
// retriever implements it; the catalog fallback does not, in which case
// the orchestrator runs without one.
type Memory interface {
	Remember(ctx context.Context, userID, text string)
}

// Orchestrator sequences one chat turn end to end:
// voice → analyzer → retriever → responder → safety → assembly.
//
// 除了入参校验错误和安全升级不变量错误，组件故障一律在组件内部降级，
// 不会穿透到这里。
type Orchestrator struct {
	analyzer    analyzer.Analyzer
	retriever   retrieval.Retriever
	responder   responder.Responder
	advisor     *safety.Advisor
	voice       voice.Processor
	hist        *history.Store
	memory      Memory
	exposeTrace bool
}

// Options carries the orchestrator collaborators. Memory may be nil.
type Options struct {
	Analyzer    analyzer.Analyzer
	Retriever   retrieval.Retriever
	Responder   responder.Responder
	Advisor     *safety.Advisor
	Voice       voice.Processor
	History     *history.Store
	Memory      Memory
	ExposeTrace bool
}

func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{
		analyzer:    opts.Analyzer,
		retriever:   opts.Retriever,
		responder:   opts.Responder,
		advisor:     opts.Advisor,
		voice:       opts.Voice,
		hist:        opts.History,
		memory:      opts.Memory,
		exposeTrace: opts.ExposeTrace,
	}
}

// Run executes one turn and returns the fully populated response.
// The only errors it returns are ErrEmptyMessage and
// safety.ErrEscalationInvariant.
func (o *Orchestrator) Run(ctx context.Context, req chat.ChatRequest) (*chat.ChatResponse, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = DefaultUserID
	}

	modalities := req.Modalities
	if len(modalities) == 0 {
		modalities = []string{"text"}
	}

	text, cues := o.resolveAudio(ctx, req, text, modalities)

	turn := chat.ConversationTurn{
		UserID:     userID,
		Message:    text,
		Modalities: modalities,
		Timestamp:  time.Now().UTC(),
	}

	signal, risk := o.analyzer.Analyze(ctx, text, cues)
	snippets := o.retriever.Retrieve(ctx, turn, signal)
	reply := o.responder.Generate(ctx, turn, signal, risk, snippets)

	decision, reply, err := o.advisor.Advise(risk, signal, reply)
	if err != nil {
		log.Printf("[pipeline] safety invariant violated for user %s: %v", userID, err)
		return nil, err
	}

	resp := o.assemble(reply, signal, risk, decision, snippets)

	o.record(ctx, userID, text, reply, signal)

	return resp, nil
}

// resolveAudio runs voice processing when the turn carries audio.
// 语音失败只记录降级日志，退回请求中已有的文本继续分析。
func (o *Orchestrator) resolveAudio(ctx context.Context, req chat.ChatRequest, text string, modalities []string) (string, []string) {
	hasAudio := false
	for _, m := range modalities {
		if m == "audio" {
			hasAudio = true
			break
		}
	}
	if !hasAudio || req.AudioBase64 == "" || o.voice == nil {
		return text, nil
	}

	transcript, cues, err := o.voice.Process(ctx, req.AudioBase64)
	if err != nil {
		log.Printf("[pipeline] voice processing failed, keeping text input: %v", err)
		return text, nil
	}
	if transcript != "" {
		text = transcript
	}
	return text, cues
}

func (o *Orchestrator) assemble(reply string, signal chat.EmotionSignal, risk chat.RiskAssessment, decision chat.SafetyDecision, snippets []chat.Snippet) *chat.ChatResponse {
	resp := &chat.ChatResponse{
		Reply:            reply,
		Emotions:         signal.LabelNames(),
		RiskLevel:        risk.Level,
		SafetyActions:    decision.ActionsApplied,
		RetrievedContext: chat.SnippetTexts(snippets),
		Metadata: chat.Metadata{
			EmotionConfidence: signal.ConfidenceMap(),
			RiskConfidence:    risk.Confidence,
		},
		Safety: chat.SafetyBlock{
			Disclaimer:         decision.Disclaimer,
			Guidance:           decision.Guidance,
			EscalationContacts: decision.EscalationContacts,
		},
		Coaching: append([]string{}, decision.Guidance...),
	}

	if o.exposeTrace && signal.Trace != nil {
		resp.Metadata.DetectorTrace = signal.Trace
	}

	return resp
}

// record persists the turn to history and to the per-user retrieval
// memory. Both are best effort and run after the response is assembled.
func (o *Orchestrator) record(ctx context.Context, userID, message, reply string, signal chat.EmotionSignal) {
	if o.hist != nil {
		o.hist.Append(ctx, history.Turn{
			UserID:   userID,
			Message:  message,
			Reply:    reply,
			Emotions: signal.LabelNames(),
		})
	}
	if o.memory != nil {
		o.memory.Remember(ctx, userID, "User said: "+message)
		o.memory.Remember(ctx, userID, "Assistant replied: "+reply)
	}
}
