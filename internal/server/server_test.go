package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"intentflow/internal/config"
	"intentflow/internal/intent"
	"intentflow/internal/mcp"
	"intentflow/internal/observability"
	"intentflow/internal/orchestrator"
	"intentflow/internal/session"
	"intentflow/internal/store"
	"intentflow/internal/tasks"
)

type staticRecent []store.RequestRecord

func (s staticRecent) ListRecent(context.Context, int) ([]store.RequestRecord, error) {
	return s, nil
}

type failingProcessor struct{}

func (failingProcessor) Submit(context.Context, orchestrator.SubmitRequest) (orchestrator.Response, error) {
	err := &orchestrator.Error{Kind: orchestrator.KindInternal, Message: "boom"}
	return orchestrator.Response{Status: orchestrator.StatusError, Error: err.Kind, Message: err.Message, Logs: []string{}}, err
}

func (failingProcessor) Clarify(context.Context, orchestrator.ClarifyRequest) (orchestrator.Response, error) {
	return orchestrator.Response{Status: orchestrator.StatusSuccess, Logs: []string{}}, nil
}

func newHandler(t *testing.T, mutate func(*Options)) (http.Handler, *observability.OutcomeObserver) {
	t.Helper()
	cfg := config.Default()
	cfg.HTTP.MaxUploadBytes = 1 << 10
	observer := observability.NewOutcomeObserver(nil)
	sessions := session.NewMemory(8, time.Minute)
	orch := orchestrator.New(orchestrator.Options{
		Oracle:   intent.NewKeywordOracle(),
		Tasks:    tasks.NewRegistry(tasks.Options{Timeout: time.Second}),
		Sessions: sessions,
		Observer: observer,
	})
	opts := Options{
		Config:    cfg,
		Processor: orch,
		MCP:       mcp.NewServer(cfg, orch, sessions, nil),
		Observer:  observer,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts).Handler(), observer
}

func postForm(t *testing.T, h http.Handler, path string, values url.Values) (*httptest.ResponseRecorder, orchestrator.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, decode(t, rec)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) orchestrator.Response {
	t.Helper()
	var resp orchestrator.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func TestRootHealthAndReady(t *testing.T) {
	h, _ := newHandler(t, func(o *Options) {
		o.Checks = map[string]Check{"redis": func(context.Context) error { return nil }}
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/process (POST)") {
		t.Fatalf("unexpected descriptor %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestReadyFailsWhenCheckFails(t *testing.T) {
	h, _ := newHandler(t, func(o *Options) {
		o.Checks = map[string]Check{
			"postgres": func(context.Context) error { return errors.New("connection refused") },
			"redis":    func(context.Context) error { return nil },
		}
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "postgres") {
		t.Fatalf("expected postgres failure, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestProcessStatusCodes(t *testing.T) {
	h, _ := newHandler(t, nil)

	rec, resp := postForm(t, h, "/process", url.Values{"text": {"please summarize this short note about lunch"}})
	if rec.Code != http.StatusOK || resp.Status != orchestrator.StatusSuccess {
		t.Fatalf("expected success, got %d %+v", rec.Code, resp)
	}
	if resp.Intent == nil || resp.Intent.Type != "summarization" {
		t.Fatalf("expected summarization intent, got %+v", resp.Intent)
	}

	rec, resp = postForm(t, h, "/process", url.Values{})
	if rec.Code != http.StatusBadRequest || resp.Error != orchestrator.KindNoInput {
		t.Fatalf("expected 400 no_input, got %d %+v", rec.Code, resp)
	}

	rec, resp = postForm(t, h, "/process", url.Values{"text": {"hey"}})
	if rec.Code != http.StatusOK || resp.Status != orchestrator.StatusError || resp.Error != orchestrator.KindEmptyContent {
		t.Fatalf("expected 200 empty_content, got %d %+v", rec.Code, resp)
	}
}

func TestProcessMultipartUpload(t *testing.T) {
	h, _ := newHandler(t, nil)
	body, contentType := multipartUpload(t, map[string]string{"text": "extract the text", "session_id": "up"}, "notes.txt", []byte("line one\nline two"))
	req := httptest.NewRequest(http.MethodPost, "/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	resp := decode(t, rec)
	if rec.Code != http.StatusOK || resp.Status != orchestrator.StatusSuccess {
		t.Fatalf("expected success, got %d %+v", rec.Code, resp)
	}
	if resp.ExtractionMetadata["type"] != "text" || resp.Result.TaskType != "text_extraction" {
		t.Fatalf("unexpected upload handling %+v", resp)
	}
	if resp.Logs[1] != "Received file: notes.txt" {
		t.Fatalf("expected file step, got %v", resp.Logs)
	}

	body, contentType = multipartUpload(t, nil, "malware.exe", []byte{0x4d, 0x5a, 0x90, 0x00})
	req = httptest.NewRequest(http.MethodPost, "/process", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if resp := decode(t, rec); rec.Code != http.StatusBadRequest || resp.Error != orchestrator.KindUnsupportedFile {
		t.Fatalf("expected unsupported_file, got %d %+v", rec.Code, resp)
	}
}

func TestProcessRejectsOversizedUpload(t *testing.T) {
	h, _ := newHandler(t, nil)
	body, contentType := multipartUpload(t, nil, "big.txt", bytes.Repeat([]byte("a"), 4<<10))
	req := httptest.NewRequest(http.MethodPost, "/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestClarifyOverHTTP(t *testing.T) {
	h, _ := newHandler(t, nil)

	rec, resp := postForm(t, h, "/clarify", url.Values{"clarification": {"summarize"}, "session_id": {"ghost"}})
	if rec.Code != http.StatusBadRequest || resp.Error != orchestrator.KindSessionNotFound {
		t.Fatalf("expected 400 session_not_found, got %d %+v", rec.Code, resp)
	}

	rec, resp = postForm(t, h, "/process", url.Values{"text": {"Shipment arrives on Monday morning."}, "session_id": {"web"}})
	if rec.Code != http.StatusOK || resp.Status != orchestrator.StatusNeedsClarification {
		t.Fatalf("expected clarification, got %d %+v", rec.Code, resp)
	}
	if resp.Question == "" || resp.SessionID != "web" {
		t.Fatalf("expected question for session web, got %+v", resp)
	}

	rec, resp = postForm(t, h, "/clarify", url.Values{"clarification": {"what is the sentiment?"}, "session_id": {"web"}})
	if rec.Code != http.StatusOK || resp.Status != orchestrator.StatusSuccess {
		t.Fatalf("expected success, got %d %+v", rec.Code, resp)
	}
	if resp.Result == nil || resp.Result.TaskType != "sentiment_analysis" {
		t.Fatalf("expected sentiment task, got %+v", resp.Result)
	}
}

func TestInternalErrorIs500(t *testing.T) {
	h, _ := newHandler(t, func(o *Options) { o.Processor = failingProcessor{} })
	rec, resp := postForm(t, h, "/process", url.Values{"text": {"anything at all"}})
	if rec.Code != http.StatusInternalServerError || resp.Error != orchestrator.KindInternal {
		t.Fatalf("expected 500 internal, got %d %+v", rec.Code, resp)
	}
}

func TestDebugPage(t *testing.T) {
	rows := staticRecent{{
		RequestID: "r-1",
		SessionID: "<script>",
		Operation: "process",
		Status:    "success",
		Intent:    "qa",
		ElapsedMS: 12,
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}}
	h, _ := newHandler(t, func(o *Options) { o.Recent = rows })
	postForm(t, h, "/process", url.Values{"text": {"how does photosynthesis work?"}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug", nil))
	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected debug page, got %d", rec.Code)
	}
	if !strings.Contains(body, "<li>success: 1</li>") || !strings.Contains(body, "<li>qa: 1</li>") {
		t.Fatalf("expected outcome counters, got %s", body)
	}
	if strings.Contains(body, "<script>") || !strings.Contains(body, "&lt;script&gt;") {
		t.Fatalf("expected escaped session id, got %s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newHandler(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/process", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("expected echoed origin")
	}
}

func TestMCPMounted(t *testing.T) {
	h, _ := newHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("MCP-Session-Id") == "" {
		t.Fatalf("expected mcp initialize, got %d", rec.Code)
	}
}
