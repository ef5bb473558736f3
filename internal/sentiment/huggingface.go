package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type HuggingFaceConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// HuggingFace calls a hosted text-classification pipeline
// (distilbert SST-2 by default).
type HuggingFace struct {
	cfg        HuggingFaceConfig
	httpClient *http.Client
}

func NewHuggingFace(cfg HuggingFaceConfig) *HuggingFace {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HuggingFace{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

func (h *HuggingFace) Name() string { return "huggingface:" + h.cfg.Model }

func (h *HuggingFace) Predict(ctx context.Context, text string) (Prediction, error) {
	payload, err := json.Marshal(map[string]any{"inputs": text})
	if err != nil {
		return Prediction{}, err
	}
	endpoint := strings.TrimRight(h.cfg.URL, "/")
	if h.cfg.Model != "" {
		endpoint += "/" + h.cfg.Model
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("sentiment http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prediction{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Prediction{}, fmt.Errorf("sentiment status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return decodeScores(body)
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// decodeScores accepts both the flat and the nested list shapes the
// inference API returns and picks the top-scoring label.
func decodeScores(body []byte) (Prediction, error) {
	var nested [][]labelScore
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
		return best(nested[0])
	}
	var flat []labelScore
	if err := json.Unmarshal(body, &flat); err != nil {
		return Prediction{}, fmt.Errorf("decode sentiment response: %w", err)
	}
	return best(flat)
}

func best(scores []labelScore) (Prediction, error) {
	if len(scores) == 0 {
		return Prediction{}, fmt.Errorf("empty sentiment response")
	}
	top := scores[0]
	for _, s := range scores[1:] {
		if s.Score > top.Score {
			top = s
		}
	}
	label := strings.ToUpper(top.Label)
	switch label {
	case "LABEL_1":
		label = Positive
	case "LABEL_0":
		label = Negative
	}
	return Prediction{Label: label, Score: top.Score}, nil
}
