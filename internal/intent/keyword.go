package intent

import (
	"context"
	"strings"
)

// KeywordOracle classifies with plain keyword rules. It backs dev mode when
// no hosted model is configured.
type KeywordOracle struct{}

func NewKeywordOracle() *KeywordOracle {
	return &KeywordOracle{}
}

func (k *KeywordOracle) Classify(_ context.Context, text string, utterance string) (Result, error) {
	query := strings.ToLower(strings.TrimSpace(utterance))
	content := strings.ToLower(text)

	match := func(i Intent, confidence float64, reason string) (Result, error) {
		return Result{
			Intent:     string(i),
			Confidence: confidence,
			Reasoning:  reason,
			Success:    true,
		}, nil
	}

	switch {
	case containsAny(query, "summar", "key points", "tl;dr", "tldr"):
		return match(Summarization, 0.8, "query asks for a summary")
	case containsAny(query, "sentiment", "positive or negative", "tone", "feel"):
		return match(SentimentAnalysis, 0.8, "query asks about sentiment")
	case containsAny(query, "explain", "what does this code", "complexity", "bug") && looksLikeCode(content):
		return match(CodeExplanation, 0.75, "query asks to explain code")
	case containsAny(query, "transcript") && strings.Contains(content, "youtube"):
		return match(YouTubeTranscript, 0.7, "query asks for a video transcript")
	case containsAny(query, "extract", "ocr", "read the text", "what does it say"):
		return match(TextExtraction, 0.7, "query asks for the raw text")
	case strings.HasSuffix(query, "?") || containsAny(query, "what ", "why ", "how ", "who ", "when "):
		return match(QA, 0.6, "query is a question")
	}

	return Result{
		Intent:                string(Unknown),
		Confidence:            0.3,
		NeedsClarification:    true,
		ClarificationQuestion: DefaultQuestion,
		Reasoning:             "no instruction matched a known task",
		Success:               true,
	}, nil
}

func containsAny(s string, needles ...string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func looksLikeCode(s string) bool {
	return containsAny(s, "def ", "func ", "function ", "class ", "import ", "return ", "=>", "#include", "{", ";")
}
