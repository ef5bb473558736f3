package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"intentflow/internal/extract"
	"intentflow/internal/intent"
	"intentflow/internal/observability"
	"intentflow/internal/sentiment"
	"intentflow/internal/session"
	"intentflow/internal/store"
	"intentflow/internal/tasks"
)

type oracleFunc func(ctx context.Context, text string, utterance string) (intent.Result, error)

func (f oracleFunc) Classify(ctx context.Context, text string, utterance string) (intent.Result, error) {
	return f(ctx, text, utterance)
}

func labelOracle(label string) oracleFunc {
	return func(context.Context, string, string) (intent.Result, error) {
		return intent.Result{Intent: label, Confidence: 0.9, Reasoning: "test", Success: true}, nil
	}
}

func clarifyOracle() oracleFunc {
	return func(context.Context, string, string) (intent.Result, error) {
		return intent.Result{
			Intent:                "unknown",
			Confidence:            0.2,
			NeedsClarification:    true,
			ClarificationQuestion: "What should I do with this?",
			Reasoning:             "ambiguous",
			Success:               true,
		}, nil
	}
}

type fakeExtractor struct {
	mu     sync.Mutex
	result extract.Result
	seen   []extract.Source
}

func (f *fakeExtractor) Extract(_ context.Context, src extract.Source) extract.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, src)
	return f.result
}

type recordingAuditor struct {
	mu      sync.Mutex
	records []store.RequestRecord
}

func (a *recordingAuditor) RecordRequest(_ context.Context, r store.RequestRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, r)
	return nil
}

func (a *recordingAuditor) last(t *testing.T) store.RequestRecord {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.records) == 0 {
		t.Fatalf("expected an audit record")
	}
	return a.records[len(a.records)-1]
}

type brokenStore struct {
	session.Store
}

func (brokenStore) Put(context.Context, string, session.Context) error {
	return errors.New("store offline")
}

type panicDispatcher struct{}

func (panicDispatcher) Execute(context.Context, string, string, string) tasks.Result {
	panic("dispatcher exploded")
}

func newOrchestrator(oracle intent.Oracle, mutate func(*Options)) *Orchestrator {
	opts := Options{
		Oracle:   oracle,
		Tasks:    tasks.NewRegistry(tasks.Options{Sentiment: sentiment.NewLexicon(), Timeout: time.Second}),
		Sessions: session.NewMemory(16, time.Minute),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func hasStep(logs []string, want string) bool {
	for _, l := range logs {
		if strings.HasPrefix(l, want) {
			return true
		}
	}
	return false
}

func TestSubmitSentimentLabelIsClosed(t *testing.T) {
	o := newOrchestrator(labelOracle("sentiment_analysis"), nil)
	resp, err := o.Submit(context.Background(), SubmitRequest{Text: "I absolutely love this wonderful product, it is great"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Status != StatusSuccess {
		t.Fatalf("expected success, got %s", resp.Status)
	}
	if resp.Result == nil || resp.Result.TaskType != "sentiment_analysis" {
		t.Fatalf("expected sentiment task result, got %+v", resp.Result)
	}
	if resp.Result.Sentiment == nil {
		t.Fatalf("expected sentiment payload")
	}
	switch resp.Result.Sentiment.Label {
	case sentiment.Positive, sentiment.Negative, sentiment.Neutral, sentiment.Unknown:
	default:
		t.Fatalf("sentiment label outside closed set: %q", resp.Result.Sentiment.Label)
	}
	if resp.Intent == nil || resp.Intent.Type != "sentiment_analysis" || resp.Intent.Confidence != 0.9 {
		t.Fatalf("unexpected intent summary %+v", resp.Intent)
	}
	if resp.RequestID == "" {
		t.Fatalf("expected request id")
	}
	if !hasStep(resp.Logs, "✓ Task completed successfully") {
		t.Fatalf("expected completion step, got %v", resp.Logs)
	}
}

func TestClarifyUnknownSession(t *testing.T) {
	o := newOrchestrator(labelOracle("qa"), nil)
	resp, err := o.Clarify(context.Background(), ClarifyRequest{Clarification: "summarize it", SessionID: "missing"})
	if KindOf(err) != KindSessionNotFound {
		t.Fatalf("expected session_not_found, got %v", err)
	}
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected wrapped session.ErrNotFound")
	}
	if resp.Status != StatusError || resp.Error != KindSessionNotFound {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Message != "Session expired or invalid. Please resubmit your input." {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if !hasStep(resp.Logs, "✗ Session context not found") {
		t.Fatalf("expected session step, got %v", resp.Logs)
	}
}

func TestOracleFailureAsksCannedQuestion(t *testing.T) {
	failing := oracleFunc(func(context.Context, string, string) (intent.Result, error) {
		return intent.Result{}, errors.New("dial tcp: connection refused")
	})
	sessions := session.NewMemory(16, time.Minute)
	o := newOrchestrator(failing, func(opts *Options) { opts.Sessions = sessions })

	resp, err := o.Submit(context.Background(), SubmitRequest{Text: "some ambiguous words", SessionID: "s1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Status != StatusNeedsClarification {
		t.Fatalf("expected needs_clarification, got %s", resp.Status)
	}
	if resp.Question != intent.DefaultQuestion || resp.Reasoning != intent.FallbackReasoning {
		t.Fatalf("expected canned fallback, got %q / %q", resp.Question, resp.Reasoning)
	}
	if !hasStep(resp.Logs, "⚠ Intent classification failed") {
		t.Fatalf("expected fallback step, got %v", resp.Logs)
	}
	if _, err := sessions.Get(context.Background(), "s1"); err != nil {
		t.Fatalf("expected stored session context: %v", err)
	}
}

func TestFallbackInvariant(t *testing.T) {
	cases := map[string]intent.Oracle{
		"nil": nil,
		"panic": oracleFunc(func(context.Context, string, string) (intent.Result, error) {
			panic("boom")
		}),
		"timeout": oracleFunc(func(ctx context.Context, _ string, _ string) (intent.Result, error) {
			<-ctx.Done()
			return intent.Result{}, ctx.Err()
		}),
	}
	for name, oracle := range cases {
		observer := observability.NewOutcomeObserver(nil)
		o := newOrchestrator(oracle, func(opts *Options) {
			opts.Observer = observer
			opts.ClassifyTimeout = 20 * time.Millisecond
		})
		resp, err := o.Submit(context.Background(), SubmitRequest{Text: "please handle this text"})
		if err != nil {
			t.Fatalf("%s: submit: %v", name, err)
		}
		if resp.Status != StatusNeedsClarification || resp.Question != intent.DefaultQuestion {
			t.Fatalf("%s: expected fallback clarification, got %+v", name, resp)
		}
		if got := observer.Snapshot().Fallbacks; got != 1 {
			t.Fatalf("%s: expected one fallback counted, got %d", name, got)
		}
	}
}

func TestYouTubeShortLinkIsNormalized(t *testing.T) {
	yt := &fakeExtractor{result: extract.Result{
		Text:     "YouTube Video: Demo\n\nhello world transcript",
		Success:  true,
		Metadata: extract.Metadata{"type": "youtube", "title": "Demo", "duration": 42.0},
	}}
	o := newOrchestrator(labelOracle("youtube_transcript"), func(opts *Options) {
		opts.Extractors = extract.Set{YouTube: yt}
	})
	resp, err := o.Submit(context.Background(), SubmitRequest{Text: "transcript please https://youtu.be/dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(yt.seen) != 1 || yt.seen[0].URL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("expected normalized url, got %+v", yt.seen)
	}
	if resp.ExtractionMetadata["type"] != "youtube" {
		t.Fatalf("expected youtube metadata, got %v", resp.ExtractionMetadata)
	}
	if !hasStep(resp.Logs, "✓ YouTube transcript fetched: Demo") {
		t.Fatalf("expected fetch step, got %v", resp.Logs)
	}
}

func TestYouTubeFailureFallsBackToText(t *testing.T) {
	yt := &fakeExtractor{result: extract.Result{Success: false, Error: "No subtitles/captions available"}}
	var seenText string
	oracle := oracleFunc(func(_ context.Context, text string, _ string) (intent.Result, error) {
		seenText = text
		return intent.Result{Intent: "qa", Confidence: 0.7, Success: true}, nil
	})
	o := newOrchestrator(oracle, func(opts *Options) {
		opts.Extractors = extract.Set{YouTube: yt}
	})
	input := "what is this about? youtube.com/watch?v=abc123"
	resp, err := o.Submit(context.Background(), SubmitRequest{Text: input})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if seenText != input {
		t.Fatalf("expected raw text to be classified, got %q", seenText)
	}
	if !reflect.DeepEqual(resp.ExtractionMetadata, extract.Metadata{"type": "text"}) {
		t.Fatalf("expected text metadata, got %v", resp.ExtractionMetadata)
	}
	if !hasStep(resp.Logs, "ℹ YouTube transcript unavailable: No subtitles/captions available") {
		t.Fatalf("expected fallback step, got %v", resp.Logs)
	}
}

func TestMinimumContentBoundary(t *testing.T) {
	calls := 0
	oracle := oracleFunc(func(context.Context, string, string) (intent.Result, error) {
		calls++
		return intent.Result{Intent: "text_extraction", Confidence: 0.8, Success: true}, nil
	})
	o := newOrchestrator(oracle, nil)

	for _, text := range []string{"abcd", "   abcd   ", "   "} {
		resp, err := o.Submit(context.Background(), SubmitRequest{Text: text})
		if KindOf(err) != KindEmptyContent {
			t.Fatalf("%q: expected empty_content, got %v", text, err)
		}
		if resp.Message != "Could not extract meaningful content from input" {
			t.Fatalf("%q: unexpected message %q", text, resp.Message)
		}
	}
	if calls != 0 {
		t.Fatalf("oracle must not run for short content, ran %d times", calls)
	}

	resp, err := o.Submit(context.Background(), SubmitRequest{Text: "abcde"})
	if err != nil || resp.Status != StatusSuccess {
		t.Fatalf("expected five characters to pass, got %v %+v", err, resp)
	}
	if calls != 1 {
		t.Fatalf("expected one classification, got %d", calls)
	}
}

func TestSubmitInputErrors(t *testing.T) {
	image := &fakeExtractor{result: extract.Result{Success: false, Error: "tesseract not found"}}
	o := newOrchestrator(labelOracle("qa"), func(opts *Options) {
		opts.Extractors = extract.Set{Image: image}
	})
	ctx := context.Background()

	_, err := o.Submit(ctx, SubmitRequest{})
	if KindOf(err) != KindNoInput {
		t.Fatalf("expected no_input, got %v", err)
	}

	resp, err := o.Submit(ctx, SubmitRequest{File: &Upload{Filename: "Blob.BIN", Data: []byte{0, 1, 2, 3}}})
	if KindOf(err) != KindUnsupportedFile || resp.Message != "Unsupported file type: blob.bin" {
		t.Fatalf("expected unsupported_file, got %v %q", err, resp.Message)
	}

	resp, err = o.Submit(ctx, SubmitRequest{File: &Upload{Filename: "scan.png", Data: []byte("png")}})
	if KindOf(err) != KindExtractionFailed || resp.Message != "Image extraction failed" {
		t.Fatalf("expected extraction_failed, got %v %q", err, resp.Message)
	}
	if !hasStep(resp.Logs, "Extracting text from image using OCR...") {
		t.Fatalf("expected ocr step, got %v", resp.Logs)
	}

	resp, err = o.Submit(ctx, SubmitRequest{File: &Upload{Filename: "talk.mp3", Data: []byte("ID3")}})
	if KindOf(err) != KindExtractionFailed || resp.Message != "Audio transcription failed" {
		t.Fatalf("expected unavailable audio to fail extraction, got %v %q", err, resp.Message)
	}
}

func TestClarifyPreservesExtractionMetadata(t *testing.T) {
	md := extract.Metadata{"type": "image", "method": "tesseract_ocr", "confidence": 87.5}
	image := &fakeExtractor{result: extract.Result{
		Text:     "Invoice total due 42 dollars by Friday",
		Success:  true,
		Metadata: md,
	}}
	oracle := oracleFunc(func(_ context.Context, _ string, utterance string) (intent.Result, error) {
		if utterance == "summarize it" {
			return intent.Result{Intent: "summarization", Confidence: 0.85, Success: true}, nil
		}
		return clarifyOracle()(context.Background(), "", "")
	})
	o := newOrchestrator(oracle, func(opts *Options) {
		opts.Extractors = extract.Set{Image: image}
	})
	ctx := context.Background()

	first, err := o.Submit(ctx, SubmitRequest{File: &Upload{Filename: "invoice.png", Data: []byte("png")}, SessionID: "s-meta"})
	if err != nil || first.Status != StatusNeedsClarification {
		t.Fatalf("expected clarification, got %v %+v", err, first)
	}
	if first.Round != 1 || first.SessionID != "s-meta" {
		t.Fatalf("unexpected round/session %d %q", first.Round, first.SessionID)
	}
	if !hasStep(first.Logs, "✓ OCR completed (confidence: 87.5%)") {
		t.Fatalf("expected ocr step, got %v", first.Logs)
	}

	second, err := o.Clarify(ctx, ClarifyRequest{Clarification: "summarize it", SessionID: "s-meta"})
	if err != nil {
		t.Fatalf("clarify: %v", err)
	}
	if second.Status != StatusSuccess {
		t.Fatalf("expected success, got %s", second.Status)
	}
	if !reflect.DeepEqual(second.ExtractionMetadata, md) {
		t.Fatalf("metadata changed across clarify: %v vs %v", second.ExtractionMetadata, md)
	}
	if second.Result == nil || second.Result.TaskType != "summarization" {
		t.Fatalf("expected summarization result, got %+v", second.Result)
	}
	if !hasStep(second.Logs, "✓ Intent clarified: summarization") {
		t.Fatalf("expected clarified step, got %v", second.Logs)
	}

	if _, err := o.Clarify(ctx, ClarifyRequest{Clarification: "summarize it", SessionID: "s-meta"}); KindOf(err) != KindSessionNotFound {
		t.Fatalf("expected consumed session, got %v", err)
	}
}

func TestClarifyRoundCap(t *testing.T) {
	o := newOrchestrator(clarifyOracle(), func(opts *Options) { opts.MaxRounds = 2 })
	ctx := context.Background()

	resp, err := o.Submit(ctx, SubmitRequest{Text: "hmm, this text", SessionID: "cap"})
	if err != nil || resp.Round != 1 {
		t.Fatalf("expected round 1, got %v %+v", err, resp)
	}
	resp, err = o.Clarify(ctx, ClarifyRequest{Clarification: "not sure", SessionID: "cap"})
	if err != nil || resp.Status != StatusNeedsClarification || resp.Round != 2 {
		t.Fatalf("expected round 2, got %v %+v", err, resp)
	}
	_, err = o.Clarify(ctx, ClarifyRequest{Clarification: "still not sure", SessionID: "cap"})
	if KindOf(err) != KindTooManyRounds {
		t.Fatalf("expected too_many_rounds, got %v", err)
	}
}

func TestClarifyUnboundedRounds(t *testing.T) {
	o := newOrchestrator(clarifyOracle(), nil)
	ctx := context.Background()
	if _, err := o.Submit(ctx, SubmitRequest{Text: "hmm, this text"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	for round := 2; round <= 6; round++ {
		resp, err := o.Clarify(ctx, ClarifyRequest{Clarification: "dunno"})
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		if resp.Round != round || resp.SessionID != session.DefaultID {
			t.Fatalf("expected round %d on default session, got %d %q", round, resp.Round, resp.SessionID)
		}
	}
}

func TestConcurrentClarifyHasOneWinner(t *testing.T) {
	oracle := oracleFunc(func(_ context.Context, _ string, utterance string) (intent.Result, error) {
		if utterance == "" {
			return clarifyOracle()(context.Background(), "", "")
		}
		return intent.Result{Intent: "qa", Confidence: 0.9, Success: true}, nil
	})
	o := newOrchestrator(oracle, nil)
	ctx := context.Background()
	if _, err := o.Submit(ctx, SubmitRequest{File: &Upload{Filename: "notes.txt", Data: []byte("meeting notes for the week")}, SessionID: "race"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	kinds := make(chan ErrorKind, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Clarify(ctx, ClarifyRequest{Clarification: "what is this?", SessionID: "race"})
			kinds <- KindOf(err)
		}()
	}
	wg.Wait()
	close(kinds)

	winners, misses := 0, 0
	for k := range kinds {
		switch k {
		case "":
			winners++
		case KindSessionNotFound:
			misses++
		default:
			t.Fatalf("unexpected error kind %q", k)
		}
	}
	if winners != 1 || misses != workers-1 {
		t.Fatalf("expected exactly one winner, got %d winners %d misses", winners, misses)
	}
}

func TestPanicBecomesInternalError(t *testing.T) {
	audit := &recordingAuditor{}
	o := newOrchestrator(labelOracle("qa"), func(opts *Options) {
		opts.Tasks = panicDispatcher{}
		opts.Audit = audit
	})
	resp, err := o.Submit(context.Background(), SubmitRequest{Text: "what does this mean?"})
	if KindOf(err) != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if resp.Status != StatusError {
		t.Fatalf("expected error status, got %s", resp.Status)
	}
	if !hasStep(resp.Logs, "Executing task: qa...") || !hasStep(resp.Logs, "✗ Error: dispatcher exploded") {
		t.Fatalf("expected step log to survive the panic, got %v", resp.Logs)
	}
	rec := audit.last(t)
	if rec.Status != "error" || rec.ErrorKind != "internal" {
		t.Fatalf("unexpected audit record %+v", rec)
	}
}

func TestClarificationRequiresPersistedSession(t *testing.T) {
	o := newOrchestrator(clarifyOracle(), func(opts *Options) {
		opts.Sessions = brokenStore{Store: session.NewMemory(4, time.Minute)}
	})
	resp, err := o.Submit(context.Background(), SubmitRequest{Text: "hmm, this text"})
	if KindOf(err) != KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if resp.Status == StatusNeedsClarification {
		t.Fatalf("must not ask without a stored context")
	}
}

func TestClarifyRequiresText(t *testing.T) {
	o := newOrchestrator(labelOracle("qa"), nil)
	_, err := o.Clarify(context.Background(), ClarifyRequest{Clarification: "  "})
	if KindOf(err) != KindNoInput {
		t.Fatalf("expected no_input, got %v", err)
	}
}

func TestSuccessPreviewAndAudit(t *testing.T) {
	audit := &recordingAuditor{}
	o := newOrchestrator(labelOracle("text_extraction"), func(opts *Options) { opts.Audit = audit })
	long := strings.Repeat("a", 1500)
	resp, err := o.Submit(context.Background(), SubmitRequest{Text: long, SessionID: "audit"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.ExtractedContent != strings.Repeat("a", 1000)+"..." {
		t.Fatalf("expected 1000 character preview, got %d chars", len(resp.ExtractedContent))
	}
	if resp.Result.ExtractedText != long {
		t.Fatalf("expected full text in task result")
	}

	rec := audit.last(t)
	if rec.Operation != "process" || rec.InputType != "text" || rec.SessionID != "audit" {
		t.Fatalf("unexpected audit record %+v", rec)
	}
	if rec.Intent != "text_extraction" || rec.TaskSuccess == nil || !*rec.TaskSuccess {
		t.Fatalf("expected task outcome in audit record %+v", rec)
	}
	if rec.RequestID != resp.RequestID {
		t.Fatalf("audit request id mismatch")
	}
}

func TestUnknownLabelDispatchesUnknownHandler(t *testing.T) {
	o := newOrchestrator(labelOracle("translate_to_klingon"), nil)
	resp, err := o.Submit(context.Background(), SubmitRequest{Text: "hello there friend"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Result.TaskType != "translate_to_klingon" || resp.Result.Success {
		t.Fatalf("expected unknown handler under requested label, got %+v", resp.Result)
	}
}
