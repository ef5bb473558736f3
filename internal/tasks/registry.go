package tasks

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"intentflow/internal/intent"
	"intentflow/internal/llm"
	"intentflow/internal/logger"
	"intentflow/internal/sentiment"
)

type Options struct {
	LLM       llm.Provider
	Sentiment sentiment.Model
	Timeout   time.Duration
	Logger    logger.Logger
}

// Registry routes an intent label to its handler. Labels outside the
// table go to the unknown handler.
type Registry struct {
	handlers map[intent.Intent]Handler
	timeout  time.Duration
	log      logger.Logger
}

// NewRegistry returns a registry with every built-in handler wired.
func NewRegistry(opts Options) *Registry {
	provider := opts.LLM
	if provider == nil {
		provider = llm.Disabled{Reason: "no language model configured"}
	}
	model := opts.Sentiment
	if model == nil {
		model = sentiment.Disabled{}
	}
	r := NewEmptyRegistry(opts.Timeout, opts.Logger)
	r.Register(intent.TextExtraction, HandlerFunc(textExtraction))
	r.Register(intent.YouTubeTranscript, HandlerFunc(youtubeTranscript))
	r.Register(intent.Summarization, &Summarizer{provider: provider})
	r.Register(intent.SentimentAnalysis, &SentimentHandler{model: model})
	r.Register(intent.CodeExplanation, &CodeExplainer{provider: provider})
	r.Register(intent.QA, &QAHandler{provider: provider})
	return r
}

// NewEmptyRegistry has only the unknown handler.
func NewEmptyRegistry(timeout time.Duration, log logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	r := &Registry{
		handlers: make(map[intent.Intent]Handler),
		timeout:  timeout,
		log:      log,
	}
	r.Register(intent.Unknown, HandlerFunc(unknownTask))
	return r
}

func (r *Registry) Register(i intent.Intent, h Handler) {
	r.handlers[i] = h
}

func (r *Registry) handler(label string) Handler {
	if h, ok := r.handlers[intent.Parse(label)]; ok {
		return h
	}
	return r.handlers[intent.Unknown]
}

// Execute never fails: handler errors, panics and timeouts come back as a
// Result with Success=false.
func (r *Registry) Execute(ctx context.Context, label string, content string, utterance string) Result {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	h := r.handler(label)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.log.Error("tasks.handler.panic", "task", label, "panic", p, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("handler panic: %v", p)}
			}
		}()
		res, err := h.Run(ctx, content, utterance)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}

	if out.err != nil {
		r.log.Warn("tasks.execute.failed", "task", label, "error", out.err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return failure(label, out.err)
	}
	res := out.res
	res.TaskType = label
	r.log.Info("tasks.execute.done", "task", label, "result_type", res.ResultType,
		"success", res.Success, "elapsed_ms", time.Since(start).Milliseconds())
	return res
}

func failure(label string, err error) Result {
	return Result{
		TaskType: label,
		Success:  false,
		Error:    err.Error(),
		Message:  fmt.Sprintf("Failed to execute %s task", label),
	}
}
