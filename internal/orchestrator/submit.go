package orchestrator

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"intentflow/internal/extract"
	"intentflow/internal/intent"
	"intentflow/internal/session"
	"intentflow/internal/tasks"
)

// Submit runs a fresh request. The Response is always populated; err is a
// *Error when Status is StatusError.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (resp Response, err error) {
	r := o.begin("process", session.ID(req.SessionID))
	defer o.finish(ctx, r, &resp, &err)

	r.log.Info("orchestrator.process.start", "has_text", req.Text != "", "has_file", req.File != nil)
	r.step("Processing your request...")

	content, md, ferr := o.extract(ctx, r, req)
	if ferr != nil {
		return r.fail(ferr)
	}
	if utf8.RuneCountInString(strings.TrimSpace(content)) < MinContentLength {
		r.step("⚠ Warning: Very little content extracted")
		return r.fail(newError(KindEmptyContent, "Could not extract meaningful content from input", nil))
	}

	r.step("Analyzing your intent...")
	res := o.classify(ctx, r, content, req.Text)
	if res.NeedsClarification {
		r.step("ℹ Clarification needed from user")
		return o.ask(ctx, r, content, md, res, 1)
	}
	return o.respond(ctx, r, content, md, res, req.Text)
}

// ask stores the session context and returns the clarification question.
// Nothing is returned to the caller until the context is persisted.
func (o *Orchestrator) ask(ctx context.Context, r *run, content string, md extract.Metadata, res intent.Result, round int) (Response, error) {
	sc := session.Context{
		ExtractedContent:   content,
		ExtractionMetadata: md,
		Rounds:             round,
		CreatedAt:          o.now().UTC(),
	}
	if err := o.sessions.Put(ctx, r.sessionID, sc); err != nil {
		r.log.Error("orchestrator.session.put_failed", "error", err)
		r.step("✗ Could not save session context")
		return r.fail(newError(KindInternal, "Could not save session context", err))
	}
	return Response{
		Status:             StatusNeedsClarification,
		RequestID:          r.id,
		SessionID:          r.sessionID,
		ExtractedContent:   tasks.Preview(content, clarifyPreviewLimit),
		ExtractionMetadata: md,
		Question:           res.ClarificationQuestion,
		Reasoning:          res.Reasoning,
		Round:              round,
		Logs:               r.steps,
	}, nil
}

func (o *Orchestrator) respond(ctx context.Context, r *run, content string, md extract.Metadata, res intent.Result, utterance string) (Response, error) {
	result := o.dispatch(ctx, r, res.Intent, content, utterance)
	return Response{
		Status:             StatusSuccess,
		RequestID:          r.id,
		SessionID:          r.sessionID,
		ExtractedContent:   tasks.Preview(content, successPreviewLimit),
		ExtractionMetadata: md,
		Intent: &IntentSummary{
			Type:       res.Intent,
			Confidence: res.Confidence,
			Reasoning:  res.Reasoning,
		},
		Result: &result,
		Logs:   r.steps,
	}, nil
}

func (o *Orchestrator) extract(ctx context.Context, r *run, req SubmitRequest) (string, extract.Metadata, *Error) {
	switch {
	case req.File != nil:
		return o.extractFile(ctx, r, req.File)
	case req.Text != "":
		return o.extractText(ctx, r, req.Text)
	default:
		r.step("✗ No input provided")
		return "", nil, newError(KindNoInput, "No input provided (text or file required)", nil)
	}
}

var extractionFailures = map[extract.Kind]string{
	extract.KindImage: "Image extraction failed",
	extract.KindPDF:   "PDF extraction failed",
	extract.KindAudio: "Audio transcription failed",
	extract.KindText:  "Text extraction failed",
}

func (o *Orchestrator) extractFile(ctx context.Context, r *run, up *Upload) (string, extract.Metadata, *Error) {
	r.step("Received file: %s", up.Filename)
	kind, src, err := o.extractors.Source(up.Filename, up.Data)
	if err != nil {
		name := strings.ToLower(up.Filename)
		r.step("✗ Unsupported file type: %s", name)
		if !errors.Is(err, extract.ErrUnsupportedKind) {
			r.log.Warn("orchestrator.extract.detect_failed", "error", err)
		}
		return "", nil, newError(KindUnsupportedFile, "Unsupported file type: "+name, err)
	}
	r.inputType = string(kind)

	switch kind {
	case extract.KindImage:
		r.step("Extracting text from image using OCR...")
	case extract.KindPDF:
		r.step("Extracting text from PDF...")
	case extract.KindAudio:
		r.step("Transcribing audio using Whisper...")
	default:
		r.step("Processing text input...")
	}

	res := o.runExtractor(ctx, r, kind, src)
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "Unknown error"
		}
		message := extractionFailures[kind]
		r.step("✗ %s: %s", message, reason)
		return "", nil, newError(KindExtractionFailed, message, errors.New(reason))
	}

	md := res.Metadata
	switch kind {
	case extract.KindImage:
		r.step("✓ OCR completed (confidence: %v%%)", md["confidence"])
	case extract.KindPDF:
		r.step("✓ PDF extraction completed (%v pages, method: %v)", md["pages"], md["method"])
	case extract.KindAudio:
		r.step("✓ Audio transcribed (%vs, language: %v)", md["duration"], md["language"])
	}
	return res.Text, md, nil
}

// extractText resolves a YouTube link to its transcript and otherwise passes
// the text through. A failed transcript falls back to the raw text.
func (o *Orchestrator) extractText(ctx context.Context, r *run, text string) (string, extract.Metadata, *Error) {
	if extract.IsYouTubeURL(text) {
		r.step("Detected YouTube URL, fetching transcript...")
		url := extract.NormalizeYouTubeURL(text)
		res := o.runExtractor(ctx, r, extract.KindYouTube, extract.Source{URL: url, Text: text})
		if res.Success {
			r.inputType = string(extract.KindYouTube)
			r.step("✓ YouTube transcript fetched: %v", res.Metadata["title"])
			return res.Text, res.Metadata, nil
		}
		reason := res.Error
		if reason == "" {
			reason = "Unknown error"
		}
		r.step("ℹ YouTube transcript unavailable: %s", reason)
		r.inputType = string(extract.KindText)
		return text, extract.Metadata{"type": string(extract.KindText)}, nil
	}

	r.inputType = string(extract.KindText)
	r.step("Processing text input...")
	res := o.runExtractor(ctx, r, extract.KindText, extract.Source{Text: text})
	if !res.Success {
		return "", nil, newError(KindExtractionFailed, extractionFailures[extract.KindText], errors.New(res.Error))
	}
	return res.Text, res.Metadata, nil
}

func (o *Orchestrator) runExtractor(ctx context.Context, r *run, kind extract.Kind, src extract.Source) extract.Result {
	if o.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.extractTimeout)
		defer cancel()
	}
	res := o.extractors.For(kind).Extract(ctx, src)
	if res.Metadata == nil {
		res.Metadata = extract.Metadata{"type": string(kind)}
	}
	if !res.Success {
		r.log.Warn("orchestrator.extract.failed", "kind", kind, "error", res.Error)
	} else {
		r.log.Debug("orchestrator.extract.ok", "kind", kind, "chars", utf8.RuneCountInString(res.Text))
	}
	return res
}
