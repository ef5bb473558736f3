package extract

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"intentflow/internal/logger"
)

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type ExecRunner struct {
	Log logger.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if r.Log != nil {
		if err != nil {
			r.Log.Error("exec.failed",
				"cmd", name,
				"args", strings.Join(args, " "),
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err,
				"stderr", truncate(errb.String(), 8<<10),
			)
		} else {
			r.Log.Debug("exec.ok",
				"cmd", name,
				"duration_ms", time.Since(start).Milliseconds(),
				"stdout_bytes", out.Len(),
			)
		}
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
