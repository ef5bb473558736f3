package intent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Intent is the closed set of labels the dispatcher knows how to route.
type Intent string

const (
	TextExtraction    Intent = "text_extraction"
	YouTubeTranscript Intent = "youtube_transcript"
	Summarization     Intent = "summarization"
	SentimentAnalysis Intent = "sentiment_analysis"
	CodeExplanation   Intent = "code_explanation"
	QA                Intent = "qa"
	Unknown           Intent = "unknown"
)

var All = []Intent{
	TextExtraction,
	YouTubeTranscript,
	Summarization,
	SentimentAnalysis,
	CodeExplanation,
	QA,
	Unknown,
}

// Parse maps a raw oracle label onto the closed set. Anything else is Unknown.
func Parse(raw string) Intent {
	label := Intent(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range All {
		if label == known {
			return known
		}
	}
	return Unknown
}

func (i Intent) String() string { return string(i) }

const (
	// PrefixLimit is how much extracted content the oracle gets to see.
	PrefixLimit = 800

	DefaultQuestion   = "I couldn't determine what you'd like me to do. Could you please specify? For example: 'summarize this', 'analyze sentiment', 'explain this code', or ask a specific question."
	FallbackReasoning = "Classification service unavailable - requesting user clarification"
	noReasoning       = "No reasoning provided"
)

// Result is one classification. Intent holds the raw label the oracle
// returned, which may fall outside the closed set.
type Result struct {
	Intent                string  `json:"intent"`
	Confidence            float64 `json:"confidence"`
	NeedsClarification    bool    `json:"needs_clarification"`
	ClarificationQuestion string  `json:"clarification_question,omitempty"`
	Reasoning             string  `json:"reasoning"`
	Success               bool    `json:"success"`
}

type Oracle interface {
	Classify(ctx context.Context, text string, utterance string) (Result, error)
}

// Fallback is the fixed record used whenever the oracle cannot answer.
func Fallback() Result {
	return Result{
		Intent:                string(Unknown),
		Confidence:            0,
		NeedsClarification:    true,
		ClarificationQuestion: DefaultQuestion,
		Reasoning:             FallbackReasoning,
		Success:               false,
	}
}

var errNoOracle = errors.New("no classification oracle configured")

// Resolve runs the oracle and never fails: the returned Result is always
// usable, and a non-nil error reports why the fallback record was used.
func Resolve(ctx context.Context, oracle Oracle, text string, utterance string) (res Result, err error) {
	if oracle == nil {
		return Fallback(), errNoOracle
	}
	defer func() {
		if r := recover(); r != nil {
			res = Fallback()
			err = panicError{value: r}
		}
	}()
	out, err := oracle.Classify(ctx, text, utterance)
	if err != nil {
		return Fallback(), err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Fallback(), ctxErr
	}
	return Normalize(out), nil
}

// Normalize clamps confidence and fills the fields a successful
// classification must carry.
func Normalize(r Result) Result {
	r.Intent = strings.TrimSpace(r.Intent)
	if r.Intent == "" {
		r.Intent = string(Unknown)
	}
	switch {
	case math.IsNaN(r.Confidence) || r.Confidence < 0:
		r.Confidence = 0
	case r.Confidence > 1:
		r.Confidence = 1
	}
	r.ClarificationQuestion = strings.TrimSpace(r.ClarificationQuestion)
	if r.NeedsClarification && r.ClarificationQuestion == "" {
		r.ClarificationQuestion = DefaultQuestion
	}
	if strings.TrimSpace(r.Reasoning) == "" {
		r.Reasoning = noReasoning
	}
	r.Success = true
	return r
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("oracle panicked: %v", p.value)
}
