package chat

// ChatRequest is the inbound payload accepted by the chat endpoint.
// FaceImageB64 is accepted for forward compatibility but not consumed yet.
type ChatRequest struct {
	UserID       string   `json:"user_id"`
	Message      string   `json:"message"`
	Modalities   []string `json:"modalities"`
	AudioBase64  string   `json:"audio_base64,omitempty"`
	FaceImageB64 string   `json:"face_image_b64,omitempty"`
}

// Metadata 为运维侧提供置信度与可选的检测器追踪信息。
// DetectorTrace stays a pointer so the key disappears entirely from the
// serialized payload when trace exposure is off.
type Metadata struct {
	EmotionConfidence map[string]float64 `json:"emotion_confidence"`
	RiskConfidence    float64            `json:"risk_confidence"`
	DetectorTrace     *DetectorTrace     `json:"detector_trace,omitempty"`
}

// SafetyBlock is the safety section of the response payload.
type SafetyBlock struct {
	Disclaimer         string   `json:"disclaimer"`
	Guidance           []string `json:"guidance"`
	EscalationContacts []string `json:"escalation_contacts"`
}

// ChatResponse is the externally visible aggregate built once per turn.
// The schema is stable: every key is always present for well-formed requests,
// whichever backends were active.
type ChatResponse struct {
	Reply            string      `json:"reply"`
	Emotions         []string    `json:"emotions"`
	RiskLevel        RiskLevel   `json:"risk_level"`
	SafetyActions    []string    `json:"safety_actions"`
	RetrievedContext []string    `json:"retrieved_context"`
	Metadata         Metadata    `json:"metadata"`
	Safety           SafetyBlock `json:"safety"`
	Coaching         []string    `json:"coaching"`
}
