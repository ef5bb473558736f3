package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// RunStdio serves newline-delimited JSON-RPC on in and out until in closes.
func RunStdio(ctx context.Context, srv *Server, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 32<<20)
	writer := bufio.NewWriter(out)
	defer writer.Flush()

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		resp := Response{JSONRPC: "2.0"}
		if err := json.Unmarshal(line, &req); err != nil {
			resp.Error = &ResponseError{Code: -32700, Message: "parse error"}
		} else {
			resp.ID = req.ID
			result, err := srv.dispatch(ctx, req)
			if err != nil {
				resp.Error = &ResponseError{Code: errorCode(err), Message: err.Error()}
			} else {
				resp.Result = result
			}
		}
		data, _ := json.Marshal(resp)
		if _, err := writer.Write(append(data, '\n')); err != nil {
			return err
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("stdio scan error: %w", err)
	}
	return nil
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, errUnknownMethod):
		return codeMethodNotFound
	case errors.Is(err, errInvalidParams):
		return codeInvalidParams
	default:
		return codeServerError
	}
}
