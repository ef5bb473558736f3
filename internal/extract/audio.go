package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

type WhisperConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Whisper transcribes audio through an OpenAI-compatible
// /audio/transcriptions endpoint.
type Whisper struct {
	cfg        WhisperConfig
	httpClient *http.Client
}

func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Whisper{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

func (w *Whisper) Extract(ctx context.Context, src Source) Result {
	md := Metadata{"type": string(KindAudio), "language": "unknown", "duration": 0.0}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	name := filepath.Base(src.Filename)
	if name == "." || name == "" {
		name = "audio.wav"
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return failed(md, err)
	}
	if _, err := part.Write(src.Data); err != nil {
		return failed(md, err)
	}
	_ = mw.WriteField("model", w.cfg.Model)
	_ = mw.WriteField("response_format", "verbose_json")
	if err := mw.Close(); err != nil {
		return failed(md, err)
	}

	endpoint := strings.TrimRight(w.cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return failed(md, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return failed(md, fmt.Errorf("transcription http error: %w", err))
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(md, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed(md, fmt.Errorf("transcription status %d: %s", resp.StatusCode, truncate(string(raw), 512)))
	}

	var out struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return failed(md, fmt.Errorf("decode transcription: %w", err))
	}
	if out.Language != "" {
		md["language"] = out.Language
	}
	md["duration"] = math.Round(out.Duration*100) / 100
	return Result{Text: strings.TrimSpace(out.Text), Success: true, Metadata: md}
}
