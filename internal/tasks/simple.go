package tasks

import (
	"context"
	"strings"
	"unicode/utf8"

	"intentflow/internal/intent"
)

const (
	unknownPreviewLimit = 200
	unknownMessage      = "I'm not sure what you'd like me to do. Please provide more specific instructions."
	youtubeNote         = "YouTube transcript has been extracted"
)

func textExtraction(_ context.Context, content string, _ string) (Result, error) {
	return Result{
		ResultType:     string(intent.TextExtraction),
		ExtractedText:  content,
		CharacterCount: utf8.RuneCountInString(content),
		WordCount:      len(strings.Fields(content)),
		Success:        true,
	}, nil
}

func youtubeTranscript(_ context.Context, content string, _ string) (Result, error) {
	return Result{
		ResultType: string(intent.YouTubeTranscript),
		Transcript: content,
		Note:       youtubeNote,
		Success:    true,
	}, nil
}

func unknownTask(_ context.Context, content string, _ string) (Result, error) {
	return Result{
		ResultType:     string(intent.Unknown),
		Message:        unknownMessage,
		ContentPreview: Preview(content, unknownPreviewLimit),
		Success:        false,
	}, nil
}

// Preview cuts text to limit characters and marks the cut with "...".
func Preview(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}
