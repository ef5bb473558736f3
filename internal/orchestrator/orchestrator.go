package orchestrator

import (
	"context"
	"time"

	"intentflow/internal/extract"
	"intentflow/internal/intent"
	"intentflow/internal/logger"
	"intentflow/internal/observability"
	"intentflow/internal/session"
	"intentflow/internal/store"
	"intentflow/internal/tasks"
)

type Status string

const (
	StatusError              Status = "error"
	StatusNeedsClarification Status = "needs_clarification"
	StatusSuccess            Status = "success"
)

const (
	// MinContentLength is the shortest trimmed extraction worth classifying.
	MinContentLength = 5

	clarifyPreviewLimit = 500
	successPreviewLimit = 1000
)

// Dispatcher runs the task for a resolved intent label. It never fails.
type Dispatcher interface {
	Execute(ctx context.Context, label string, content string, utterance string) tasks.Result
}

// Auditor persists one line per finished request.
type Auditor interface {
	RecordRequest(ctx context.Context, r store.RequestRecord) error
}

type IntentSummary struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Response is the envelope returned for both process and clarify calls.
type Response struct {
	Status             Status           `json:"status"`
	RequestID          string           `json:"request_id"`
	SessionID          string           `json:"session_id,omitempty"`
	Message            string           `json:"message,omitempty"`
	Error              ErrorKind        `json:"error,omitempty"`
	ExtractedContent   string           `json:"extracted_content,omitempty"`
	ExtractionMetadata extract.Metadata `json:"extraction_metadata,omitempty"`
	Question           string           `json:"question,omitempty"`
	Reasoning          string           `json:"reasoning,omitempty"`
	Round              int              `json:"round,omitempty"`
	Intent             *IntentSummary   `json:"intent,omitempty"`
	Result             *tasks.Result    `json:"result,omitempty"`
	Logs               []string         `json:"logs"`
}

type Upload struct {
	Filename string
	Data     []byte
}

type SubmitRequest struct {
	Text      string
	File      *Upload
	SessionID string
}

type ClarifyRequest struct {
	Clarification string
	SessionID     string
}

type Options struct {
	Extractors      extract.Set
	Oracle          intent.Oracle
	Tasks           Dispatcher
	Sessions        session.Store
	Observer        *observability.OutcomeObserver
	Audit           Auditor
	Logger          logger.Logger
	ExtractTimeout  time.Duration
	ClassifyTimeout time.Duration
	// MaxRounds caps clarification questions per request. 0 means unbounded.
	MaxRounds int
}

// Orchestrator drives a request through extraction, classification, the
// clarification decision and dispatch.
type Orchestrator struct {
	extractors      extract.Set
	oracle          intent.Oracle
	tasks           Dispatcher
	sessions        session.Store
	observer        *observability.OutcomeObserver
	audit           Auditor
	log             logger.Logger
	extractTimeout  time.Duration
	classifyTimeout time.Duration
	maxRounds       int
	now             func() time.Time
}

func New(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewMemory(0, 30*time.Minute)
	}
	dispatcher := opts.Tasks
	if dispatcher == nil {
		dispatcher = tasks.NewRegistry(tasks.Options{Logger: log})
	}
	return &Orchestrator{
		extractors:      opts.Extractors,
		oracle:          opts.Oracle,
		tasks:           dispatcher,
		sessions:        sessions,
		observer:        opts.Observer,
		audit:           opts.Audit,
		log:             log,
		extractTimeout:  opts.ExtractTimeout,
		classifyTimeout: opts.ClassifyTimeout,
		maxRounds:       opts.MaxRounds,
		now:             time.Now,
	}
}
