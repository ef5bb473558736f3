package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"intentflow/internal/logger"
)

type OpenAIConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// OpenAI talks to any OpenAI-compatible chat/completions endpoint (OpenAI, Groq, vLLM).
type OpenAI struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	log        logger.Logger
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm status %d: %s", e.Code, e.Body)
}

func NewOpenAI(cfg OpenAIConfig, log logger.Logger) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OpenAI{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

func (o *OpenAI) Name() string  { return "openai" }
func (o *OpenAI) Model() string { return o.cfg.Model }

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	body := map[string]any{
		"model":       o.cfg.Model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if req.JSON {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(o.cfg.BaseURL, "/") + "/chat/completions"
	retries := o.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	backoff := retry.WithMaxRetries(uint64(retries), retry.NewExponential(o.cfg.RetryBackoff))

	var raw []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		raw, callErr = o.post(ctx, endpoint, body)
		if callErr != nil {
			if retryable(callErr) {
				o.log.Warn("llm.http.retry", "req_id", rid, "error", callErr)
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		o.log.Error("llm.http.error",
			"req_id", rid, "model", o.cfg.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode completion: %v: %w", err, ErrMalformedOutput)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion: %w", ErrMalformedOutput)
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)

	o.log.Debug("llm.http.response",
		"req_id", rid, "model", o.cfg.Model, "content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func (o *OpenAI) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{Code: resp.StatusCode, Body: truncateBody(data)}
	}
	return data, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	// transport-level failures (connection refused, reset) are worth another try
	return true
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}
