package llm

import (
	"context"
	"fmt"
)

// Disabled stands in for a provider that was never configured.
type Disabled struct {
	Reason string
}

func (d Disabled) Name() string  { return "disabled" }
func (d Disabled) Model() string { return "" }

func (d Disabled) Complete(_ context.Context, _ Request) (string, error) {
	if d.Reason == "" {
		return "", ErrUnavailable
	}
	return "", fmt.Errorf("%s: %w", d.Reason, ErrUnavailable)
}
