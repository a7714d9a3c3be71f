package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ClaudeCLI shells out to the `claude` CLI in print mode for inference.
// Stateless per call; each invocation is its own subprocess.
type ClaudeCLI struct {
	timeout time.Duration
}

func NewClaudeCLI(timeoutSeconds int) *ClaudeCLI {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &ClaudeCLI{timeout: time.Duration(timeoutSeconds) * time.Second}
}

func (c *ClaudeCLI) Invoke(ctx context.Context, prompt, model string) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "claude",
		"-p", prompt,
		"--output-format", "json",
		"--model", model,
	)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Response{}, fmt.Errorf("claude -p timed out after %s", c.timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Response{}, fmt.Errorf("claude -p exited %d: %s",
				exitErr.ExitCode(), truncate(string(exitErr.Stderr), 200))
		}
		return Response{}, fmt.Errorf("claude -p: %w", err)
	}
	return parseCLIOutput(string(out)), nil
}

// parseCLIOutput handles both JSON print mode and raw text fallback.
func parseCLIOutput(raw string) Response {
	var data struct {
		Result    string `json:"result"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal([]byte(raw), &data); err == nil && data.Result != "" {
		return Response{Text: data.Result, SessionID: data.SessionID}
	}
	return Response{Text: strings.TrimSpace(raw)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
