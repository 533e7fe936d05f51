package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	embark "github.com/cloudwego/eino-ext/components/embedding/ark"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Speech    SpeechConfig
	Safety    SafetyConfig
	Retrieval RetrievalConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	safety, err := loadSafetyConfig()
	if err != nil {
		return nil, err
	}

	retrieval, err := loadRetrievalConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Speech: speech, Safety: safety, Retrieval: retrieval}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	EmbeddingModel string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	Timeout        time.Duration
	RetryBackoff   time.Duration
	MaxReplyChars  int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// EmbeddingEnabled reports whether the embedding backend can be constructed.
func (c AIConfig) EmbeddingEnabled() bool {
	return c.EmbeddingModel != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or AK/SK")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// NewEmbedder 创建检索路径所需的向量化实例。
func (c AIConfig) NewEmbedder(ctx context.Context) (embedding.Embedder, error) {
	if !c.EmbeddingEnabled() {
		return nil, fmt.Errorf("ark embedding credentials or model missing: provide ARK_EMBEDDING_MODEL plus API key or AK/SK")
	}

	return embark.NewEmbedder(ctx, &embark.EmbeddingConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.EmbeddingModel,
	})
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeoutSeconds := 20
	if override, err := parseOptionalIntEnv("AI_TIMEOUT_SECONDS"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	maxReply := 1400
	if override, err := parseOptionalIntEnv("AI_MAX_REPLY_CHARS"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		maxReply = *override
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("ARK_MODEL")),
		EmbeddingModel: strings.TrimSpace(os.Getenv("ARK_EMBEDDING_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
		RetryBackoff:   500 * time.Millisecond,
		MaxReplyChars:  maxReply,
	}, nil
}

// SpeechConfig 描述语音转写服务相关配置。
type SpeechConfig struct {
	AppID       string
	AccessToken string
	BaseURL     string
	ASRModel    string
	ASRLanguage string
	Timeout     time.Duration
	Enabled     bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeoutSeconds := 30
	if override, err := parseOptionalIntEnv("SPEECH_TIMEOUT"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))
	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))

	return SpeechConfig{
		AppID:       appID,
		AccessToken: accessToken,
		BaseURL:     getEnvOrDefault("SPEECH_BASE_URL", "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"),
		ASRModel:    getEnvOrDefault("SPEECH_ASR_MODEL", "bigmodel"),
		ASRLanguage: getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
		Timeout:     time.Duration(timeoutSeconds) * time.Second,
		Enabled:     appID != "" && accessToken != "",
	}, nil
}

// SafetyConfig 集中管理风险阈值与追踪开关。
// The thresholds are deliberately configuration rather than constants so
// deployments can tune the decision policy without code changes.
type SafetyConfig struct {
	RiskHighThreshold          float64
	RiskModerateThreshold      float64
	RiskConfidenceThreshold    float64
	EmotionConfidenceThreshold float64
	VoiceBlendWeight           float64
	ExposeDetectorTrace        bool
}

func loadSafetyConfig() (SafetyConfig, error) {
	high, err := parseFloatEnvDefault("SAFETY_RISK_HIGH_THRESHOLD", 0.75)
	if err != nil {
		return SafetyConfig{}, err
	}

	moderate, err := parseFloatEnvDefault("SAFETY_RISK_MODERATE_THRESHOLD", 0.40)
	if err != nil {
		return SafetyConfig{}, err
	}

	riskConfidence, err := parseFloatEnvDefault("SAFETY_RISK_THRESHOLD", 0.75)
	if err != nil {
		return SafetyConfig{}, err
	}

	emotionConfidence, err := parseFloatEnvDefault("SAFETY_EMOTION_THRESHOLD", 0.75)
	if err != nil {
		return SafetyConfig{}, err
	}

	// 默认文本主导：0.7 文本 / 0.3 语音。
	blend, err := parseFloatEnvDefault("VOICE_BLEND_WEIGHT", 0.7)
	if err != nil {
		return SafetyConfig{}, err
	}
	if blend < 0 || blend > 1 {
		return SafetyConfig{}, fmt.Errorf("VOICE_BLEND_WEIGHT must be within [0,1], got %f", blend)
	}

	trace, err := parseBoolEnv("EXPOSE_DETECTOR_TRACE", false)
	if err != nil {
		return SafetyConfig{}, err
	}

	return SafetyConfig{
		RiskHighThreshold:          high,
		RiskModerateThreshold:      moderate,
		RiskConfidenceThreshold:    riskConfidence,
		EmotionConfidenceThreshold: emotionConfidence,
		VoiceBlendWeight:           blend,
		ExposeDetectorTrace:        trace,
	}, nil
}

// RetrievalConfig 描述上下文检索行为。
type RetrievalConfig struct {
	TopK           int
	RelevanceFloor float64
	Timeout        time.Duration
}

func loadRetrievalConfig() (RetrievalConfig, error) {
	topK := 3
	if override, err := parseOptionalIntEnv("RETRIEVAL_TOP_K"); err != nil {
		return RetrievalConfig{}, err
	} else if override != nil {
		topK = *override
	}
	if topK < 1 {
		topK = 1
	}
	if topK > 5 {
		topK = 5
	}

	floor, err := parseFloatEnvDefault("RETRIEVAL_RELEVANCE_FLOOR", 0.35)
	if err != nil {
		return RetrievalConfig{}, err
	}

	timeoutSeconds := 5
	if override, err := parseOptionalIntEnv("RETRIEVAL_TIMEOUT_SECONDS"); err != nil {
		return RetrievalConfig{}, err
	} else if override != nil && *override > 0 {
		timeoutSeconds = *override
	}

	return RetrievalConfig{
		TopK:           topK,
		RelevanceFloor: floor,
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseFloatEnvDefault(key string, defaultValue float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
