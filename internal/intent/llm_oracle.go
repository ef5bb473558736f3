package intent

import (
	"context"
	"fmt"
	"strings"

	"intentflow/internal/llm"
)

const classifySchema = `{
  "type": "object",
  "required": ["intent"],
  "properties": {
    "intent": {"type": "string"},
    "confidence": {"type": "number"},
    "needs_clarification": {"type": "boolean"},
    "clarification_question": {"type": ["string", "null"]},
    "reasoning": {"type": ["string", "null"]}
  }
}`

var classifyOutput = llm.MustCompileSchema("classification", classifySchema)

const classifySystem = "You are a precise intent classification engine for a multimodal assistant. Always respond with strict JSON that matches the required schema."

// LLMOracle asks a hosted chat model to classify the request.
type LLMOracle struct {
	provider llm.Provider
}

func NewLLMOracle(provider llm.Provider) *LLMOracle {
	return &LLMOracle{provider: provider}
}

func (o *LLMOracle) Classify(ctx context.Context, text string, utterance string) (Result, error) {
	content, err := o.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.System(classifySystem),
			llm.User(buildClassifyPrompt(text, utterance)),
		},
		Temperature: 0.1,
		MaxTokens:   400,
		JSON:        true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}

	var out struct {
		Intent                string  `json:"intent"`
		Confidence            float64 `json:"confidence"`
		NeedsClarification    bool    `json:"needs_clarification"`
		ClarificationQuestion *string `json:"clarification_question"`
		Reasoning             *string `json:"reasoning"`
	}
	if err := classifyOutput.Decode(content, &out); err != nil {
		return Result{}, err
	}
	res := Result{
		Intent:             out.Intent,
		Confidence:         out.Confidence,
		NeedsClarification: out.NeedsClarification,
		Success:            true,
	}
	if out.ClarificationQuestion != nil {
		res.ClarificationQuestion = *out.ClarificationQuestion
	}
	if out.Reasoning != nil {
		res.Reasoning = *out.Reasoning
	}
	return res, nil
}

func buildClassifyPrompt(text string, utterance string) string {
	query := strings.TrimSpace(utterance)
	if query == "" {
		query = "None provided"
	}
	labels := make([]string, 0, len(All))
	for _, i := range All {
		labels = append(labels, "- "+string(i)+": "+describe(i))
	}

	var b strings.Builder
	b.WriteString("You are an intent classifier for a multimodal AI assistant. Analyze the content and determine the user's goal.\n\n")
	fmt.Fprintf(&b, "Extracted Content (first %d chars):\n%s\n\n", PrefixLimit, llm.Truncate(text, PrefixLimit))
	fmt.Fprintf(&b, "User Query: %s\n\n", query)
	b.WriteString("Determine:\n")
	b.WriteString("1. What task does the user want? (Choose ONE from the valid intents below)\n")
	b.WriteString("2. Is there enough information to proceed? (true/false)\n")
	b.WriteString("3. If clarification is needed, what specific question should be asked?\n\n")
	b.WriteString("Valid Intents:\n")
	b.WriteString(strings.Join(labels, "\n"))
	b.WriteString("\n\nRules:\n")
	b.WriteString("- \"summarize\", \"summary\" or \"give me key points\" means summarization\n")
	b.WriteString("- \"what is the sentiment\" or \"is this positive/negative\" means sentiment_analysis\n")
	b.WriteString("- code in the content plus \"explain\" means code_explanation\n")
	b.WriteString("- a question about the content means qa\n")
	b.WriteString("- no clear intent and no explicit instruction means needs_clarification = true\n\n")
	b.WriteString(`Respond ONLY with valid JSON:
{
  "intent": "one of the valid intents above",
  "confidence": 0.0 to 1.0,
  "needs_clarification": true or false,
  "clarification_question": "specific question to ask, or null",
  "reasoning": "brief explanation of why you chose this intent"
}`)
	return b.String()
}

func describe(i Intent) string {
	switch i {
	case TextExtraction:
		return "User wants to extract/see the text from an image/PDF"
	case YouTubeTranscript:
		return "User wants a YouTube video transcript"
	case Summarization:
		return "User wants a summary of the content"
	case SentimentAnalysis:
		return "User wants to know the sentiment/emotion"
	case CodeExplanation:
		return "User wants code explained or analyzed"
	case QA:
		return "User is asking a question or wants conversational help"
	default:
		return "Cannot determine intent"
	}
}
