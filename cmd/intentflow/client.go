package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"intentflow/internal/config"
)

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 5 * time.Minute}}
}

func (c *client) process(text, path, sessionID string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if text != "" {
		_ = mw.WriteField("text", text)
	}
	if sessionID != "" {
		_ = mw.WriteField("session_id", sessionID)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return c.post("/process", mw.FormDataContentType(), &body)
}

func (c *client) clarify(answer, sessionID string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("clarification", answer)
	if sessionID != "" {
		_ = mw.WriteField("session_id", sessionID)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return c.post("/clarify", mw.FormDataContentType(), &body)
}

// post returns the body for every JSON reply, including 4xx and 5xx ones,
// since those still carry the step log.
func (c *client) post(path, contentType string, body io.Reader) ([]byte, error) {
	resp, err := c.http.Post(c.base+path, contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func printResponse(out io.Writer, body []byte) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		_, werr := out.Write(body)
		return werr
	}
	pretty.WriteByte('\n')
	_, err := out.Write(pretty.Bytes())
	return err
}

func mcpTest(cfg config.Config, out io.Writer) error {
	url := fmt.Sprintf("%s/mcp", localHTTPBase(cfg))
	initReq := map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": map[string]any{}}
	resp, session, err := callMCP(url, initReq, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "initialize: %s\n", resp)
	listReq := map[string]any{"jsonrpc": "2.0", "id": 2, "method": "tools/list", "params": map[string]any{}}
	resp, _, err = callMCP(url, listReq, session)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "tools/list: %s\n", resp)
	return nil
}

func callMCP(url string, payload map[string]any, session string) (string, string, error) {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set("MCP-Session-Id", session)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", session, err
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	return strings.TrimSpace(buf.String()), resp.Header.Get("MCP-Session-Id"), nil
}

func localHTTPBase(cfg config.Config) string {
	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = ":8000"
	}
	host := "127.0.0.1"
	port := ""
	if strings.HasPrefix(addr, ":") {
		port = strings.TrimPrefix(addr, ":")
	} else if strings.Contains(addr, ":") {
		parts := strings.Split(addr, ":")
		if parts[0] != "" && parts[0] != "0.0.0.0" {
			host = parts[0]
		}
		port = parts[len(parts)-1]
	} else {
		port = addr
	}
	if port == "" {
		port = "8000"
	}
	return fmt.Sprintf("http://%s:%s", host, port)
}
