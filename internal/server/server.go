package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"intentflow/internal/config"
	"intentflow/internal/logger"
	"intentflow/internal/mcp"
	"intentflow/internal/observability"
	"intentflow/internal/orchestrator"
	"intentflow/internal/store"
)

type Processor interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (orchestrator.Response, error)
	Clarify(ctx context.Context, req orchestrator.ClarifyRequest) (orchestrator.Response, error)
}

// RecentRequests lists the newest audit rows for the debug page.
type RecentRequests interface {
	ListRecent(ctx context.Context, limit int) ([]store.RequestRecord, error)
}

// Check is one readiness probe, such as a redis or postgres ping.
type Check func(ctx context.Context) error

type Options struct {
	Config    config.Config
	Processor Processor
	MCP       *mcp.Server
	Observer  *observability.OutcomeObserver
	Recent    RecentRequests
	Checks    map[string]Check
	Logger    logger.Logger
}

type Server struct {
	cfg       config.Config
	processor Processor
	mcp       *mcp.Server
	observer  *observability.OutcomeObserver
	recent    RecentRequests
	checks    map[string]Check
	log       logger.Logger
}

const (
	multipartMemory = 8 << 20
	debugRows       = 20
	readyTimeout    = 3 * time.Second
)

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		cfg:       opts.Config,
		processor: opts.Processor,
		mcp:       opts.MCP,
		observer:  opts.Observer,
		recent:    opts.Recent,
		checks:    opts.Checks,
		log:       log,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /debug", s.handleDebug)
	mux.HandleFunc("POST /process", s.handleProcess)
	mux.HandleFunc("POST /clarify", s.handleClarify)
	if s.mcp != nil {
		mux.HandleFunc("/mcp", s.mcp.HandleHTTP)
	}
	return s.recoverer(s.cors(s.accessLog(mux)))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "intentflow API",
		"status":  "running",
		"endpoints": map[string]string{
			"process": "/process (POST)",
			"clarify": "/clarify (POST)",
			"mcp":     "/mcp (POST)",
			"health":  "/healthz (GET)",
			"ready":   "/readyz (GET)",
		},
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.log.Warn("server.ready.failed", "check", name, "error", err)
			http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if limit := s.cfg.HTTP.MaxUploadBytes; limit > 0 {
		if r.ContentLength > limit {
			writeFormError(w, &http.MaxBytesError{Limit: limit})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	req, err := parseSubmit(r)
	if err != nil {
		writeFormError(w, err)
		return
	}
	resp, err := s.processor.Submit(r.Context(), req)
	writeJSON(w, httpStatus(err), resp)
}

func (s *Server) handleClarify(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeFormError(w, err)
		return
	}
	resp, err := s.processor.Clarify(r.Context(), orchestrator.ClarifyRequest{
		Clarification: r.FormValue("clarification"),
		SessionID:     r.FormValue("session_id"),
	})
	writeJSON(w, httpStatus(err), resp)
}

func parseForm(r *http.Request) error {
	if isMultipart(r) {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func parseSubmit(r *http.Request) (orchestrator.SubmitRequest, error) {
	if err := parseForm(r); err != nil {
		return orchestrator.SubmitRequest{}, err
	}
	req := orchestrator.SubmitRequest{
		Text:      r.FormValue("text"),
		SessionID: r.FormValue("session_id"),
	}
	if !isMultipart(r) {
		return req, nil
	}
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return req, err
	}
	defer file.Close()
	if header.Filename == "" && header.Size == 0 {
		return req, nil
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return req, err
	}
	req.File = &orchestrator.Upload{Filename: header.Filename, Data: data}
	return req, nil
}

// httpStatus maps a terminal error kind to a status code. empty_content is
// a normal outcome and stays 200.
func httpStatus(err error) int {
	switch orchestrator.KindOf(err) {
	case "", orchestrator.KindEmptyContent:
		return http.StatusOK
	case orchestrator.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeFormError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	kind := "bad_request"
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
		kind = "upload_too_large"
	}
	writeJSON(w, status, map[string]any{
		"status":  orchestrator.StatusError,
		"error":   kind,
		"message": err.Error(),
		"logs":    []string{},
	})
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := s.observer.Snapshot()
	var rows []store.RequestRecord
	if s.recent != nil {
		var err error
		rows, err = s.recent.ListRecent(ctx, debugRows)
		if err != nil {
			s.log.Warn("server.debug.list_failed", "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, "<html><body><h1>intentflow debug</h1>")
	_, _ = fmt.Fprintf(w, "<p>Classifier fallbacks: %d (current streak %d)</p>", snap.Fallbacks, snap.FallbackStreak)
	writeCounts(w, "Statuses", snap.Statuses)
	writeCounts(w, "Intents", snap.Intents)
	writeCounts(w, "Task failures", snap.TaskFailures)
	_, _ = fmt.Fprintf(w, "<h2>Quick actions</h2>")
	_, _ = fmt.Fprintf(w, "<ul><li><a href=\"/healthz\">Check health</a></li><li><a href=\"/readyz\">Check readiness</a></li></ul>")
	_, _ = fmt.Fprintf(w, "<h2>Recent requests</h2><ul>")
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "<li>%s %s session=%s status=%s %s intent=%s (%.2f) %dms</li>",
			row.CreatedAt.Format(time.RFC3339),
			html.EscapeString(row.Operation),
			html.EscapeString(row.SessionID),
			html.EscapeString(row.Status),
			html.EscapeString(row.ErrorKind),
			html.EscapeString(row.Intent),
			row.Confidence,
			row.ElapsedMS,
		)
	}
	_, _ = fmt.Fprintf(w, "</ul></body></html>")
}

func writeCounts(w io.Writer, title string, counts map[string]int64) {
	_, _ = fmt.Fprintf(w, "<h2>%s</h2><ul>", title)
	for _, key := range observability.SortedKeys(counts) {
		_, _ = fmt.Fprintf(w, "<li>%s: %d</li>", html.EscapeString(key), counts[key])
	}
	_, _ = fmt.Fprintf(w, "</ul>")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// cors allows browser front ends on any origin, matching the upload form.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, MCP-Session-Id, MCP-Protocol-Version, X-API-Key")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.log.Error("http.panic", "path", r.URL.Path, "panic", p, "stack", string(debug.Stack()))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
