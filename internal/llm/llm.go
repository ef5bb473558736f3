package llm

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable marks a provider that is not configured or cannot be reached.
	ErrUnavailable = errors.New("llm provider unavailable")
	// ErrMalformedOutput marks a completion that is not the JSON shape that was asked for.
	ErrMalformedOutput = errors.New("llm output malformed")
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSON asks the provider for a single JSON object.
	JSON bool
}

type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
	Model() string
}

func System(content string) Message { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message   { return Message{Role: RoleUser, Content: content} }

// Truncate returns at most limit runes of text.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
