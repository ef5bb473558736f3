package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"intentflow/internal/intent"
	"intentflow/internal/llm"
)

const (
	summaryInputLimit = 4000
	oneLineWordLimit  = 20
)

var summaryOutput = llm.MustCompileSchema("summary", `{
  "type": "object",
  "required": ["one_line", "bullets", "five_sentences"],
  "properties": {
    "one_line": {"type": "string"},
    "bullets": {"type": "array", "items": {"type": "string"}, "minItems": 3},
    "five_sentences": {"type": "string"}
  }
}`)

type Summarizer struct {
	provider llm.Provider
}

func (s *Summarizer) Run(ctx context.Context, content string, _ string) (Result, error) {
	summary := s.summarize(ctx, content)
	return Result{
		ResultType: string(intent.Summarization),
		Summary:    &summary,
		Success:    summary.Success,
	}, nil
}

func (s *Summarizer) summarize(ctx context.Context, content string) Summary {
	prompt := fmt.Sprintf(`Summarize the following text in THREE distinct formats:

1. ONE-LINE: Create a single sentence summary (max %d words)
2. BULLETS: Create exactly 3 bullet points capturing key information
3. PARAGRAPH: Create a 5-sentence detailed summary

Text to summarize:
%s

Respond ONLY with valid JSON in this exact format:
{
  "one_line": "your one sentence summary here",
  "bullets": ["first bullet point", "second bullet point", "third bullet point"],
  "five_sentences": "First sentence. Second sentence. Third sentence. Fourth sentence. Fifth sentence."
}`, oneLineWordLimit, llm.Truncate(content, summaryInputLimit))

	raw, err := s.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.System("You are a helpful summarization assistant. Always respond with VALID JSON only, matching the requested schema."),
			llm.User(prompt),
		},
		Temperature: 0.3,
		MaxTokens:   500,
		JSON:        true,
	})
	if err != nil {
		return degradedSummary(err)
	}
	var out Summary
	if err := summaryOutput.Decode(raw, &out); err != nil {
		return degradedSummary(err)
	}
	out.OneLine = limitWords(strings.TrimSpace(out.OneLine), oneLineWordLimit)
	out.Bullets = out.Bullets[:3]
	out.FiveSentences = strings.TrimSpace(out.FiveSentences)
	out.Success = true
	return out
}

func degradedSummary(err error) Summary {
	if errors.Is(err, llm.ErrMalformedOutput) {
		return Summary{
			OneLine:       "Error generating summary",
			Bullets:       []string{"An error occurred", "Check logs for details", "The model returned an unexpected format"},
			FiveSentences: fmt.Sprintf("Failed to generate summary due to: %v. Please try again.", err),
			Success:       false,
			Error:         err.Error(),
		}
	}
	return Summary{
		OneLine:       "Unable to generate structured summary",
		Bullets:       []string{"Summary generation failed", "Please try again", "Check the language model provider"},
		FiveSentences: "The summarization service encountered an error. This could be due to the LLM provider being unavailable. Please check your API key and network connection, then try again.",
		Success:       false,
		Error:         err.Error(),
	}
}

func limitWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}
