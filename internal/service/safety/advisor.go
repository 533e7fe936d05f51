package safety

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
)

// ErrEscalationInvariant 表示高风险评估却没有生成升级联系人。
// This must never happen in practice; callers surface it as a server
// error rather than returning an unsafe response.
var ErrEscalationInvariant = errors.New("safety: high risk assessment produced no escalation contacts")

// Action names applied by the advisor. These are part of the response
// schema (safety_actions) and are stable identifiers.
const (
	ActionAppendDisclaimer     = "append_disclaimer"
	ActionEscalate             = "escalate"
	ActionEscalateConfidence   = "escalate_confidence_based"
	ActionReinforceSupport     = "reinforce_emotion_support"
	ActionSuggestImmediateHelp = "suggest_immediate_help"
	ActionListCrisisHotline    = "list_crisis_hotline"
	ActionIncludeDetectorTrace = "include_detector_trace"
)

const (
	standardDisclaimer = "I'm not a medical professional, but I can help you find resources."
	crisisDisclaimer   = "I'm not a medical professional. If you are thinking about harming yourself, " +
		"please treat this as an emergency and reach out for help right now."

	crisisAcknowledgment = "It sounds like you are carrying something very heavy right now, and I want you to know that your safety matters. "
)

// escalationContacts is the curated hotline list attached to every
// high-risk decision. It is copied per call so callers cannot mutate it.
var escalationContacts = []string{
	"Find a helpline in your region: https://findahelpline.com/",
	"988 Suicide & Crisis Lifeline (US): call or text 988",
}

// Config carries the advisor thresholds and the trace exposure flag.
type Config struct {
	RiskConfidenceThreshold    float64
	EmotionConfidenceThreshold float64
	ExposeDetectorTrace        bool
}

// Advisor applies the post-generation safety policy. It is a pure state
// machine over the risk level: it never calls a backend and never fails
// for any reason other than the escalation invariant.
type Advisor struct {
	cfg Config
}

func NewAdvisor(cfg Config) *Advisor {
	return &Advisor{cfg: cfg}
}

// Advise evaluates the assessed risk and returns the safety decision plus
// the (possibly prefixed) reply text.
//
// 状态机按风险等级分档：low 直接放行，moderate 附加免责声明与引导，
// high 追加危机联系人并在回复前加一句确认语。
// The returned error is non-nil only when the escalation invariant is
// violated, in which case the decision must not be served.
func (a *Advisor) Advise(risk chat.RiskAssessment, signal chat.EmotionSignal, reply string) (chat.SafetyDecision, string, error) {
	decision := chat.SafetyDecision{
		Guidance:           []string{},
		EscalationContacts: []string{},
		ActionsApplied:     []string{},
	}

	switch risk.Level {
	case chat.RiskHigh:
		decision.Disclaimer = crisisDisclaimer
		decision.Guidance = append(decision.Guidance,
			"If you are in immediate danger, contact local emergency services right away.",
			"Try to stay with someone you trust, or move to a place where you are not alone.",
			"You deserve support. Please connect with a trained counselor as soon as possible.",
		)
		decision.EscalationContacts = append(decision.EscalationContacts, escalationContacts...)
		decision.ActionsApplied = append(decision.ActionsApplied,
			ActionAppendDisclaimer,
			ActionEscalate,
			ActionSuggestImmediateHelp,
			ActionListCrisisHotline,
		)
		reply = crisisAcknowledgment + reply

	case chat.RiskModerate:
		decision.Disclaimer = standardDisclaimer
		decision.Guidance = append(decision.Guidance,
			"If you feel overwhelmed, consider reaching out to a trusted person or a professional for additional support.",
			"Consider practicing a grounding exercise (deep breathing, journaling) and then check in with someone you trust.",
		)
		decision.ActionsApplied = append(decision.ActionsApplied, ActionAppendDisclaimer)

	default:
		// 低风险不附加免责声明，仅给一条可选的日常建议。
		decision.Guidance = append(decision.Guidance,
			"Small routines like a short walk or a few minutes of slow breathing can help you keep your footing.",
		)
		return decision, reply, nil
	}

	a.applyConfidenceActions(&decision, risk, signal)

	if risk.Level == chat.RiskHigh && len(decision.EscalationContacts) == 0 {
		return chat.SafetyDecision{}, "", ErrEscalationInvariant
	}
	return decision, reply, nil
}

// applyConfidenceActions layers the confidence-driven actions on top of
// the moderate and high tiers.
func (a *Advisor) applyConfidenceActions(decision *chat.SafetyDecision, risk chat.RiskAssessment, signal chat.EmotionSignal) {
	if risk.Confidence >= a.cfg.RiskConfidenceThreshold {
		decision.ActionsApplied = append(decision.ActionsApplied, ActionEscalateConfidence)
		decision.Guidance = append(decision.Guidance,
			"Because we detected strong signs of distress, consider reaching out to a crisis support resource or trusted contact immediately.",
		)
	}

	if strong := strongEmotions(signal, a.cfg.EmotionConfidenceThreshold); len(strong) > 0 {
		decision.ActionsApplied = append(decision.ActionsApplied, ActionReinforceSupport)
		decision.Guidance = append(decision.Guidance, fmt.Sprintf(
			"We're here with you while you navigate feelings of %s. Try naming what you need right now and reach for grounding tools that have helped before.",
			strings.Join(strong, ", "),
		))
	}

	if a.cfg.ExposeDetectorTrace {
		decision.ActionsApplied = append(decision.ActionsApplied, ActionIncludeDetectorTrace)
	}
}

// strongEmotions returns the sorted labels whose confidence meets the
// threshold.
func strongEmotions(signal chat.EmotionSignal, threshold float64) []string {
	var out []string
	for _, label := range signal.Labels {
		if label.Confidence >= threshold {
			out = append(out, label.Label)
		}
	}
	sort.Strings(out)
	return out
}
