package extract

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindImage   Kind = "image"
	KindPDF     Kind = "pdf"
	KindAudio   Kind = "audio"
	KindYouTube Kind = "youtube"
	KindText    Kind = "text"
)

var (
	ErrUnsupportedKind = errors.New("unsupported input kind")
	ErrUnavailable     = errors.New("extractor unavailable")
)

// Metadata is the open extraction record echoed back to callers and kept
// with the session. Keys depend on the kind: type, method, confidence,
// pages, language, duration, title.
type Metadata map[string]any

// Source is one piece of user input. Files set Data and Filename, YouTube
// sets URL, plain text sets Text.
type Source struct {
	Filename string
	Data     []byte
	URL      string
	Text     string
}

// Result is the outcome of one extraction. Text is unusable unless Success.
type Result struct {
	Text     string   `json:"text"`
	Success  bool     `json:"success"`
	Metadata Metadata `json:"metadata"`
	Error    string   `json:"error,omitempty"`
}

type Extractor interface {
	Extract(ctx context.Context, src Source) Result
}

func failed(md Metadata, err error) Result {
	return Result{Success: false, Metadata: md, Error: err.Error()}
}

// Unavailable stands in for a backend that is not configured.
type Unavailable struct {
	Kind   Kind
	Reason string
}

func (u Unavailable) Extract(context.Context, Source) Result {
	err := ErrUnavailable
	if u.Reason != "" {
		err = fmt.Errorf("%s: %w", u.Reason, ErrUnavailable)
	}
	return failed(Metadata{"type": string(u.Kind)}, err)
}

// Text passes plain text through untouched.
type Text struct{}

func (Text) Extract(_ context.Context, src Source) Result {
	return Result{Text: src.Text, Success: true, Metadata: Metadata{"type": string(KindText)}}
}
