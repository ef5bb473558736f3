package sentiment

import (
	"context"
	"errors"
)

const (
	Positive = "POSITIVE"
	Negative = "NEGATIVE"
	Neutral  = "NEUTRAL"
	Unknown  = "UNKNOWN"
)

var ErrUnavailable = errors.New("sentiment model unavailable")

// Prediction is a binary classifier output: Label is POSITIVE or NEGATIVE
// and Score the model's probability for it.
type Prediction struct {
	Label string
	Score float64
}

type Model interface {
	Predict(ctx context.Context, text string) (Prediction, error)
	Name() string
}

type Disabled struct{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) Predict(context.Context, string) (Prediction, error) {
	return Prediction{}, ErrUnavailable
}
