package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Options configures the WebSocket ASR client.
type Options struct {
	AppID       string
	AccessToken string
	BaseURL     string
	Model       string
	Language    string
	Timeout     time.Duration
}

// asrConfigFrame 是建立会话后发送的首帧，描述音频格式与识别参数。
type asrConfigFrame struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
	Format   string `json:"format"`
	Rate     int    `json:"rate"`
	Channel  int    `json:"channel"`
}

type asrControlFrame struct {
	Event string `json:"event"`
}

type asrServerFrame struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Final   bool   `json:"final,omitempty"`
}

// audioChunkSize 对应 16kHz 16bit 单声道约 200ms 的音频。
const audioChunkSize = 6400

// ASRProcessor transcribes audio over a WebSocket ASR endpoint and
// derives voice emotion cues from the transcript. Transcription
// failures are returned to the caller, which falls back to the text
// already in the turn.
type ASRProcessor struct {
	opts   Options
	dialer *websocket.Dialer
}

func NewASRProcessor(opts Options) *ASRProcessor {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &ASRProcessor{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.Timeout,
		},
	}
}

// Process decodes the payload, streams it to the ASR endpoint, and
// returns the final transcript with keyword cues.
func (p *ASRProcessor) Process(ctx context.Context, audioB64 string) (string, []string, error) {
	audio, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 audio payload: %w", err)
	}
	if len(audio) == 0 {
		return "", nil, fmt.Errorf("empty audio payload")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	transcript, err := p.transcribe(ctx, audio)
	if err != nil {
		return "", nil, err
	}
	return transcript, DetectCues(transcript), nil
}

func (p *ASRProcessor) transcribe(ctx context.Context, audio []byte) (string, error) {
	header := http.Header{}
	header.Set("X-Api-App-Key", p.opts.AppID)
	header.Set("X-Api-Access-Key", p.opts.AccessToken)
	header.Set("X-Api-Connect-Id", uuid.NewString())

	conn, resp, err := p.dialer.DialContext(ctx, p.opts.BaseURL, header)
	if err != nil {
		return "", fmt.Errorf("failed to connect to ASR endpoint: %w", err)
	}
	defer conn.Close()

	if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
		log.Printf("[voice] ASR connected with logid: %s", logid)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	cfg := asrConfigFrame{
		Model:    p.opts.Model,
		Language: p.opts.Language,
		Format:   "wav",
		Rate:     16000,
		Channel:  1,
	}
	cfgData, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ASR config: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, cfgData); err != nil {
		return "", fmt.Errorf("failed to send ASR config: %w", err)
	}

	// 分包发送音频，最后补一个 finish 控制帧。
	for i := 0; i < len(audio); i += audioChunkSize {
		end := i + audioChunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[i:end]); err != nil {
			return "", fmt.Errorf("failed to send audio chunk: %w", err)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
	}
	finish, _ := json.Marshal(asrControlFrame{Event: "finish"})
	if err := conn.WriteMessage(websocket.TextMessage, finish); err != nil {
		return "", fmt.Errorf("failed to send finish frame: %w", err)
	}

	var finalText string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("failed to read ASR response: %w", err)
		}

		var frame asrServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("[voice] failed to unmarshal ASR frame: %v", err)
			continue
		}
		if frame.Code != 0 {
			return "", fmt.Errorf("ASR API error %d: %s", frame.Code, frame.Message)
		}
		if frame.Text != "" {
			finalText = frame.Text
		}
		if frame.Final {
			return strings.TrimSpace(finalText), nil
		}
	}
}
