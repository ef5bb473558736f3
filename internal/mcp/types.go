package mcp

import (
	"encoding/json"

	"intentflow/internal/intent"
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Result  any            `json:"result,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`
}

type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ResourceReadParams struct {
	URI string `json:"uri"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult wraps an orchestrator response. IsError marks a request that
// ended with status "error"; the JSON-RPC call itself still succeeded.
type ToolResult struct {
	Content           []ContentBlock `json:"content"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

const (
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codeServerError    = -32000
)

func ListTools() map[string]any {
	return map[string]any{
		"tools": []map[string]any{
			{
				"name":        "process_text",
				"description": "Classify what the user wants done with a piece of text (or a YouTube link) and run it",
				"inputSchema": objectSchema(map[string]any{
					"text":       stringProp("Input text or YouTube URL"),
					"session_id": stringProp("Session used if a clarification question is asked"),
				}, "text"),
			},
			{
				"name":        "process_file",
				"description": "Extract text from an image, PDF, audio or text file, then classify and run the task",
				"inputSchema": objectSchema(map[string]any{
					"filename":    stringProp("Original file name; the extension selects the extractor"),
					"data_base64": stringProp("File contents, base64 encoded"),
					"text":        stringProp("Optional instruction for the file"),
					"session_id":  stringProp("Session used if a clarification question is asked"),
				}, "filename", "data_base64"),
			},
			{
				"name":        "clarify",
				"description": "Answer an outstanding clarification question for a session",
				"inputSchema": objectSchema(map[string]any{
					"clarification": stringProp("What the user wants done"),
					"session_id":    stringProp("Session that asked the question"),
				}, "clarification"),
			},
		},
	}
}

func ListResources() map[string]any {
	return map[string]any{
		"resources": []map[string]any{
			{"uri": "intentflow://intents", "description": "Closed set of task intents"},
			{"uri": "intentflow://sessions/{id}", "description": "Pending clarification context for a session"},
		},
	}
}

func listIntents() map[string]any {
	names := make([]string, 0, len(intent.All))
	for _, i := range intent.All {
		names = append(names, string(i))
	}
	return map[string]any{"intents": names}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
