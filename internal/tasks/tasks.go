package tasks

import (
	"context"
)

// Result is what a handler produced for one dispatch. TaskType is always
// the label that was requested, ResultType the handler that actually ran.
type Result struct {
	TaskType   string `json:"task_type"`
	ResultType string `json:"result_type,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`

	ExtractedText  string `json:"extracted_text,omitempty"`
	CharacterCount int    `json:"character_count,omitempty"`
	WordCount      int    `json:"word_count,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	Note           string `json:"note,omitempty"`
	ContentPreview string `json:"content_preview,omitempty"`

	Summary   *Summary      `json:"summary,omitempty"`
	Sentiment *Sentiment    `json:"sentiment,omitempty"`
	Analysis  *CodeAnalysis `json:"analysis,omitempty"`
	Response  *Answer       `json:"response,omitempty"`
}

type Summary struct {
	OneLine       string   `json:"one_line"`
	Bullets       []string `json:"bullets"`
	FiveSentences string   `json:"five_sentences"`
	Success       bool     `json:"success"`
	Error         string   `json:"error,omitempty"`
}

type Sentiment struct {
	Label         string  `json:"label"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification"`
	Success       bool    `json:"success"`
	Error         string  `json:"error,omitempty"`
}

type CodeAnalysis struct {
	Explanation     string   `json:"explanation"`
	Language        string   `json:"language"`
	Bugs            []string `json:"bugs"`
	TimeComplexity  string   `json:"time_complexity"`
	SpaceComplexity string   `json:"space_complexity"`
	Success         bool     `json:"success"`
	Error           string   `json:"error,omitempty"`
}

type Answer struct {
	Answer     string `json:"answer"`
	HasContext bool   `json:"has_context"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

type Handler interface {
	Run(ctx context.Context, content string, utterance string) (Result, error)
}

type HandlerFunc func(ctx context.Context, content string, utterance string) (Result, error)

func (f HandlerFunc) Run(ctx context.Context, content string, utterance string) (Result, error) {
	return f(ctx, content, utterance)
}
