package orchestrator

import (
	"context"
	"errors"
	"strings"

	"intentflow/internal/session"
)

// Clarify answers an outstanding clarification question. The stored context
// is taken atomically, so of two concurrent calls for one session exactly
// one proceeds.
func (o *Orchestrator) Clarify(ctx context.Context, req ClarifyRequest) (resp Response, err error) {
	r := o.begin("clarify", session.ID(req.SessionID))
	defer o.finish(ctx, r, &resp, &err)

	r.inputType = "clarification"
	r.step("Processing your clarification...")
	if strings.TrimSpace(req.Clarification) == "" {
		r.step("✗ No clarification provided")
		return r.fail(newError(KindNoInput, "Clarification text is required", nil))
	}

	sc, err := o.sessions.Take(ctx, r.sessionID)
	if err != nil {
		r.step("✗ Session context not found")
		if errors.Is(err, session.ErrNotFound) {
			return r.fail(newError(KindSessionNotFound, "Session expired or invalid. Please resubmit your input.", err))
		}
		r.log.Error("orchestrator.session.take_failed", "error", err)
		return r.fail(newError(KindInternal, "Could not load session context", err))
	}

	r.step("Re-analyzing intent with your clarification...")
	res := o.classify(ctx, r, sc.ExtractedContent, req.Clarification)
	if res.NeedsClarification {
		r.step("ℹ Still need more clarification")
		if o.maxRounds > 0 && sc.Rounds >= o.maxRounds {
			r.log.Warn("orchestrator.clarify.round_cap", "rounds", sc.Rounds, "max_rounds", o.maxRounds)
			return r.fail(newError(KindTooManyRounds, "Too many clarification rounds. Please resubmit your input.", nil))
		}
		return o.ask(ctx, r, sc.ExtractedContent, sc.ExtractionMetadata, res, sc.Rounds+1)
	}

	r.step("✓ Intent clarified: %s", res.Intent)
	return o.respond(ctx, r, sc.ExtractedContent, sc.ExtractionMetadata, res, req.Clarification)
}
