package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"intentflow/internal/intent"
	"intentflow/internal/llm"
)

const unknownComplexity = "O(?)"

var codeOutput = llm.MustCompileSchema("code_analysis", `{
  "type": "object",
  "required": ["explanation", "language"],
  "properties": {
    "explanation": {"type": "string"},
    "language": {"type": "string"},
    "bugs": {"type": ["array", "null"], "items": {"type": "string"}},
    "time_complexity": {"type": ["string", "null"]},
    "space_complexity": {"type": ["string", "null"]}
  }
}`)

type CodeExplainer struct {
	provider llm.Provider
}

func (c *CodeExplainer) Run(ctx context.Context, content string, _ string) (Result, error) {
	analysis := c.explain(ctx, content)
	return Result{
		ResultType: string(intent.CodeExplanation),
		Analysis:   &analysis,
		Success:    analysis.Success,
	}, nil
}

func (c *CodeExplainer) explain(ctx context.Context, code string) CodeAnalysis {
	prompt := "Analyze the following code snippet:\n\n```\n" + code + "\n```\n\n" +
		`Provide a detailed analysis with:
1. What the code does (in plain English, 2-3 sentences)
2. Programming language detected
3. Any bugs, issues, or potential problems (list them, or empty array if none)
4. Time complexity (Big O notation)
5. Space complexity (Big O notation)

Respond ONLY with valid JSON in this exact format:
{
  "explanation": "Plain English explanation of what the code does",
  "language": "detected programming language",
  "bugs": ["bug or issue 1", "bug or issue 2"],
  "time_complexity": "O(n) or O(1) etc.",
  "space_complexity": "O(n) or O(1) etc."
}`

	raw, err := c.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.System("You are an expert code analysis engine. Always return STRICT JSON matching the requested schema."),
			llm.User(prompt),
		},
		Temperature: 0.2,
		MaxTokens:   600,
		JSON:        true,
	})
	if err != nil {
		return failedAnalysis(err)
	}
	var out CodeAnalysis
	if err := codeOutput.Decode(raw, &out); err != nil {
		return failedAnalysis(err)
	}
	if out.Bugs == nil {
		out.Bugs = []string{}
	}
	if strings.TrimSpace(out.Language) == "" {
		out.Language = "unknown"
	}
	if strings.TrimSpace(out.TimeComplexity) == "" {
		out.TimeComplexity = unknownComplexity
	}
	if strings.TrimSpace(out.SpaceComplexity) == "" {
		out.SpaceComplexity = unknownComplexity
	}
	out.Success = true
	return out
}

func failedAnalysis(err error) CodeAnalysis {
	out := CodeAnalysis{
		Language:        "unknown",
		TimeComplexity:  unknownComplexity,
		SpaceComplexity: unknownComplexity,
		Error:           err.Error(),
	}
	if errors.Is(err, llm.ErrMalformedOutput) {
		out.Explanation = "Failed to parse code analysis response"
		out.Bugs = []string{"JSON parsing error occurred"}
		return out
	}
	out.Explanation = fmt.Sprintf("Error analyzing code: %v", err)
	out.Bugs = []string{"Analysis failed - ensure LLM provider is reachable"}
	return out
}
