package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"intentflow/internal/config"
	"intentflow/internal/logger"
	"intentflow/internal/orchestrator"
	"intentflow/internal/session"
	"intentflow/internal/tasks"
)

// Processor is the part of the orchestrator the tool surface drives.
type Processor interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (orchestrator.Response, error)
	Clarify(ctx context.Context, req orchestrator.ClarifyRequest) (orchestrator.Response, error)
}

var (
	errInvalidParams = errors.New("invalid params")
	errUnknownMethod = errors.New("unknown method")
)

type Server struct {
	Config    config.Config
	Processor Processor
	Sessions  session.Store
	log       logger.Logger
	mu        sync.Mutex
	sessions  map[string]time.Time
}

func NewServer(cfg config.Config, processor Processor, sessions session.Store, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		Config:    cfg,
		Processor: processor,
		Sessions:  sessions,
		log:       log,
		sessions:  make(map[string]time.Time),
	}
}

func (s *Server) HandleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.validateOrigin(r); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	s.log.Debug("mcp.request", "protocol_version", strings.TrimSpace(r.Header.Get("MCP-Protocol-Version")))

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sessionID := r.Header.Get("MCP-Session-Id")
	if req.Method != "initialize" {
		if !s.isSessionValid(sessionID) {
			writeError(w, req.ID, codeServerError, "missing or invalid MCP-Session-Id")
			return
		}
	}
	result, err := s.dispatch(r.Context(), req)
	if err != nil {
		s.writeDispatchError(w, req.ID, err)
		return
	}
	if req.Method == "initialize" {
		if sessionID == "" {
			sessionID = s.newSession()
		}
		w.Header().Set("MCP-Session-Id", sessionID)
	}
	w.Header().Set("MCP-Protocol-Version", s.Config.MCP.ProtocolVersion)
	w.Header().Set("Content-Type", "application/json")
	resp := Response{JSONRPC: "2.0", ID: req.ID, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": s.Config.MCP.ProtocolVersion,
			"serverInfo": map[string]any{
				"name":    "intentflowd",
				"version": "0.1.0",
			},
			"capabilities": map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
			},
		}, nil
	case "tools/list":
		return ListTools(), nil
	case "tools/call":
		return s.callTool(ctx, req)
	case "resources/list":
		return ListResources(), nil
	case "resources/read":
		return s.readResource(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownMethod, req.Method)
	}
}

func (s *Server) callTool(ctx context.Context, req Request) (any, error) {
	var params ToolCallParams
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	exec, err := s.toolExecutor(params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, callErr := exec(ctx)
	s.log.Info("mcp.tool.done",
		"tool", params.Name,
		"request_id", resp.RequestID,
		"status", resp.Status,
		"error_kind", orchestrator.KindOf(callErr),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return toolResult(resp), nil
}

func (s *Server) toolExecutor(params ToolCallParams) (func(context.Context) (orchestrator.Response, error), error) {
	if s.Processor == nil {
		return nil, errors.New("processor not configured")
	}
	switch params.Name {
	case "process_text":
		var input struct {
			Text      string `json:"text"`
			SessionID string `json:"session_id"`
		}
		if err := decodeArguments(params.Arguments, &input); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (orchestrator.Response, error) {
			return s.Processor.Submit(ctx, orchestrator.SubmitRequest{Text: input.Text, SessionID: input.SessionID})
		}, nil
	case "process_file":
		var input struct {
			Filename   string `json:"filename"`
			DataBase64 string `json:"data_base64"`
			Text       string `json:"text"`
			SessionID  string `json:"session_id"`
		}
		if err := decodeArguments(params.Arguments, &input); err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(input.DataBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: data_base64: %v", errInvalidParams, err)
		}
		return func(ctx context.Context) (orchestrator.Response, error) {
			return s.Processor.Submit(ctx, orchestrator.SubmitRequest{
				Text:      input.Text,
				File:      &orchestrator.Upload{Filename: input.Filename, Data: data},
				SessionID: input.SessionID,
			})
		}, nil
	case "clarify":
		var input struct {
			Clarification string `json:"clarification"`
			SessionID     string `json:"session_id"`
		}
		if err := decodeArguments(params.Arguments, &input); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (orchestrator.Response, error) {
			return s.Processor.Clarify(ctx, orchestrator.ClarifyRequest{Clarification: input.Clarification, SessionID: input.SessionID})
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tool: %s", errInvalidParams, params.Name)
	}
}

func toolResult(resp orchestrator.Response) ToolResult {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"status":%q}`, resp.Status))
	}
	return ToolResult{
		Content:           []ContentBlock{{Type: "text", Text: string(data)}},
		StructuredContent: resp,
		IsError:           resp.Status == orchestrator.StatusError,
	}
}

func (s *Server) readResource(ctx context.Context, req Request) (any, error) {
	var params ResourceReadParams
	if err := decodeParams(req.Params, &params); err != nil {
		return nil, err
	}
	switch {
	case params.URI == "intentflow://intents":
		return listIntents(), nil
	case strings.HasPrefix(params.URI, "intentflow://sessions/"):
		if s.Sessions == nil {
			return nil, errors.New("session store not configured")
		}
		id := strings.TrimPrefix(params.URI, "intentflow://sessions/")
		sc, err := s.Sessions.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"session_id":          session.ID(id),
			"rounds":              sc.Rounds,
			"created_at":          sc.CreatedAt,
			"extraction_metadata": sc.ExtractionMetadata,
			"extracted_content":   tasks.Preview(sc.ExtractedContent, 500),
		}, nil
	default:
		return nil, fmt.Errorf("%w: resource not found: %s", errInvalidParams, params.URI)
	}
}

func (s *Server) validateOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if s.Config.Dev.Mode {
		return nil
	}
	if origin == "" {
		if s.Config.MCP.APIKey == "" {
			return errors.New("missing origin")
		}
		if r.Header.Get("X-API-Key") != s.Config.MCP.APIKey {
			return errors.New("invalid api key")
		}
		return nil
	}
	if len(s.Config.MCP.AllowOrigins) == 0 {
		return nil
	}
	for _, allowed := range s.Config.MCP.AllowOrigins {
		if origin == allowed {
			return nil
		}
	}
	return errors.New("origin not allowed")
}

func (s *Server) writeDispatchError(w http.ResponseWriter, id any, err error) {
	switch {
	case errors.Is(err, errUnknownMethod):
		writeError(w, id, codeMethodNotFound, err.Error())
	case errors.Is(err, errInvalidParams):
		writeError(w, id, codeInvalidParams, err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeErrorWithData(w, id, codeServerError, "session_not_found", map[string]any{"retryable": false})
	default:
		writeError(w, id, codeServerError, err.Error())
	}
}

func (s *Server) newSession() string {
	sessionID := uuid.NewString()
	s.mu.Lock()
	s.sessions[sessionID] = time.Now().Add(24 * time.Hour)
	s.mu.Unlock()
	return sessionID
}

func (s *Server) isSessionValid(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	expiry, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return time.Now().Before(expiry)
}

func decodeParams(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing params", errInvalidParams)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}

func decodeArguments(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing arguments", errInvalidParams)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}

func writeError(w http.ResponseWriter, id any, code int, message string) {
	writeErrorWithData(w, id, code, message, nil)
}

func writeErrorWithData(w http.ResponseWriter, id any, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ResponseError{Code: code, Message: message, Data: data},
	}
	_ = json.NewEncoder(w).Encode(resp)
}
