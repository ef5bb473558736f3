package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"intentflow/internal/intent"
	"intentflow/internal/logger"
	"intentflow/internal/store"
	"intentflow/internal/tasks"
)

const auditTimeout = 2 * time.Second

// run is the per-request bookkeeping: id, step log, and what the audit
// trail needs once the request ends.
type run struct {
	id        string
	operation string
	sessionID string
	start     time.Time
	log       logger.Logger
	steps     []string

	inputType string
	intent    *intent.Result
	fallback  bool
	task      *tasks.Result
}

func (o *Orchestrator) begin(operation string, sessionID string) *run {
	id := uuid.NewString()
	return &run{
		id:        id,
		operation: operation,
		sessionID: sessionID,
		start:     time.Now(),
		log:       o.log.With("request_id", id, "session_id", sessionID, "op", operation),
	}
}

func (r *run) step(format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	r.steps = append(r.steps, msg)
}

func (r *run) fail(err *Error) (Response, error) {
	return Response{
		Status:    StatusError,
		RequestID: r.id,
		SessionID: r.sessionID,
		Message:   err.Message,
		Error:     err.Kind,
		Logs:      r.steps,
	}, err
}

// finish recovers a panic into an internal error, then records the outcome.
func (o *Orchestrator) finish(ctx context.Context, r *run, resp *Response, err *error) {
	if p := recover(); p != nil {
		r.log.Error("orchestrator.panic", "panic", p, "stack", string(debug.Stack()))
		r.step("✗ Error: %v", p)
		*resp, *err = r.fail(newError(KindInternal, "Internal error while processing the request", fmt.Errorf("panic: %v", p)))
	}
	if resp.Logs == nil {
		resp.Logs = []string{}
	}

	elapsed := time.Since(r.start)
	o.observer.RecordStatus(string(resp.Status))
	r.log.Info("orchestrator.done",
		"status", resp.Status,
		"error_kind", resp.Error,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	if o.audit == nil {
		return
	}
	rec := store.RequestRecord{
		RequestID: r.id,
		SessionID: r.sessionID,
		Operation: r.operation,
		InputType: r.inputType,
		Status:    string(resp.Status),
		ErrorKind: string(resp.Error),
		Fallback:  r.fallback,
		ElapsedMS: elapsed.Milliseconds(),
	}
	if r.intent != nil {
		rec.Intent = r.intent.Intent
		rec.Confidence = r.intent.Confidence
	}
	if r.task != nil {
		ok := r.task.Success
		rec.TaskSuccess = &ok
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if auditErr := o.audit.RecordRequest(auditCtx, rec); auditErr != nil {
		r.log.Warn("orchestrator.audit.failed", "error", auditErr)
	}
}

func (o *Orchestrator) classify(ctx context.Context, r *run, content string, utterance string) intent.Result {
	if o.classifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.classifyTimeout)
		defer cancel()
	}
	start := time.Now()
	res, err := intent.Resolve(ctx, o.oracle, content, utterance)
	r.intent = &res
	r.fallback = err != nil
	o.observer.RecordClassification(res.Intent, r.fallback)

	if err != nil {
		r.log.Warn("orchestrator.classify.fallback", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		r.step("⚠ Intent classification failed, requesting clarification")
		return res
	}
	r.log.Info("orchestrator.classify.ok",
		"intent", res.Intent,
		"confidence", res.Confidence,
		"needs_clarification", res.NeedsClarification,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	r.step("✓ Intent identified: %s (confidence: %.2f)", res.Intent, res.Confidence)
	return res
}

func (o *Orchestrator) dispatch(ctx context.Context, r *run, label string, content string, utterance string) tasks.Result {
	r.step("Executing task: %s...", label)
	res := o.tasks.Execute(ctx, label, content, utterance)
	r.task = &res
	o.observer.RecordTask(res.TaskType, res.Success)
	if res.Success {
		r.step("✓ Task completed successfully")
	} else {
		r.step("⚠ Task completed with warnings")
	}
	return res
}
