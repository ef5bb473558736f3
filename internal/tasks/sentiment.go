package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"intentflow/internal/intent"
	"intentflow/internal/llm"
	"intentflow/internal/sentiment"
)

const sentimentInputLimit = 500

type SentimentHandler struct {
	model sentiment.Model
}

func (h *SentimentHandler) Run(ctx context.Context, content string, _ string) (Result, error) {
	s := h.analyze(ctx, content)
	return Result{
		ResultType: string(intent.SentimentAnalysis),
		Sentiment:  &s,
		Success:    s.Success,
	}, nil
}

func (h *SentimentHandler) analyze(ctx context.Context, content string) Sentiment {
	preview := llm.Truncate(content, sentimentInputLimit)
	if strings.TrimSpace(preview) == "" {
		return Sentiment{
			Label:         sentiment.Neutral,
			Justification: "No text provided for analysis",
			Error:         "Empty text",
		}
	}

	p, err := h.model.Predict(ctx, preview)
	if errors.Is(err, sentiment.ErrUnavailable) {
		return Sentiment{
			Label:         sentiment.Unknown,
			Justification: "Sentiment analysis model not loaded",
			Error:         "Model initialization failed",
		}
	}
	if err != nil {
		return Sentiment{
			Label:         sentiment.Unknown,
			Justification: fmt.Sprintf("Error during analysis: %v", err),
			Error:         err.Error(),
		}
	}

	confidence := math.Round(p.Score*1000) / 1000
	switch strings.ToUpper(p.Label) {
	case sentiment.Positive:
		return Sentiment{
			Label:         sentiment.Positive,
			Confidence:    confidence,
			Justification: fmt.Sprintf("The text expresses positive sentiment with %.1f%% confidence, indicating favorable tone and constructive content.", confidence*100),
			Success:       true,
		}
	case sentiment.Negative:
		return Sentiment{
			Label:         sentiment.Negative,
			Confidence:    confidence,
			Justification: fmt.Sprintf("The text expresses negative sentiment with %.1f%% confidence, indicating critical or unfavorable tone.", confidence*100),
			Success:       true,
		}
	default:
		return Sentiment{
			Label:         sentiment.Unknown,
			Justification: fmt.Sprintf("Error during analysis: unexpected label %q", p.Label),
			Error:         "unexpected label " + p.Label,
		}
	}
}
