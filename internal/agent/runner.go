package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/logger"
)

// Runner answers dialogue generation requests by spawning one `opencode run`
// subprocess per request and collecting its text events.
type Runner struct {
	binary  string
	model   string
	workDir string
	onText  func(text string)
}

// RunnerConfig holds configuration for creating a new Runner.
type RunnerConfig struct {
	Binary  string            // opencode executable; defaults to "opencode"
	Model   string            // LLM model to use (e.g., "anthropic/claude-sonnet-4-5")
	WorkDir string            // Working directory for the subprocess
	OnText  func(text string) // Optional callback for streamed text parts
}

// NewRunner creates a new Runner instance.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Binary == "" {
		cfg.Binary = "opencode"
	}
	return &Runner{
		binary:  cfg.Binary,
		model:   cfg.Model,
		workDir: cfg.WorkDir,
		onText:  cfg.OnText,
	}
}

// Generate implements dialogue.Generator. opencode has no separate system prompt,
// so the system instructions are prepended to the prompt.
func (r *Runner) Generate(ctx context.Context, req dialogue.Request) (dialogue.Response, error) {
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}
	text, err := r.run(ctx, prompt)
	if err != nil {
		return dialogue.Response{}, err
	}
	return dialogue.Response{Text: text}, nil
}

// run executes opencode, sending the prompt via stdin and parsing JSON events from stdout.
func (r *Runner) run(ctx context.Context, prompt string) (string, error) {
	args := []string{"run", "--format", "json"}
	if r.model != "" {
		args = append(args, "--model", r.model)
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = r.workDir
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	// The TUI owns the terminal; keep stderr for error reports.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("Starting %s (model=%q, prompt length %d)", r.binary, r.model, len(prompt))
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start opencode: %w", err)
	}

	go func() {
		_, _ = io.WriteString(stdin, prompt)
		stdin.Close()
	}()

	var (
		text     strings.Builder
		eventErr error
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		ev := parseEvent(line)
		switch {
		case ev.err != nil:
			if eventErr == nil {
				eventErr = ev.err
			}
		case ev.text != "":
			text.WriteString(ev.text)
			if r.onText != nil {
				r.onText(ev.text)
			}
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		logger.Error("opencode exited with error: %v %s", waitErr, msg)
		if msg != "" {
			return "", fmt.Errorf("opencode failed: %w: %s", waitErr, msg)
		}
		return "", fmt.Errorf("opencode failed: %w", waitErr)
	}
	if scanErr != nil {
		return "", fmt.Errorf("failed to read output: %w", scanErr)
	}
	if eventErr != nil {
		return "", eventErr
	}

	logger.Debug("opencode finished (%d characters)", text.Len())
	return text.String(), nil
}

// event is the part of an opencode JSON event the runner acts on.
type event struct {
	text string
	err  error
}

// parseEvent parses a JSON event line.
// Event format from opencode --format json:
//
//	{"type":"text","timestamp":...,"sessionID":"...","part":{"type":"text","text":"..."}}
//	{"type":"tool_use","timestamp":...,"sessionID":"...","part":{"type":"tool","tool":"...","state":{...}}}
//	{"type":"error","timestamp":...,"sessionID":"...","error":{"name":"...","data":{...}}}
func parseEvent(line string) event {
	var raw struct {
		Type string `json:"type"`
		Part *struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Tool string `json:"tool"`
		} `json:"part"`
		Error *struct {
			Name string `json:"name"`
			Data *struct {
				Message string `json:"message"`
			} `json:"data"`
		} `json:"error"`
	}

	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		logger.Warn("Failed to parse event JSON: %v", err)
		return event{}
	}

	switch raw.Type {
	case "text":
		if raw.Part != nil {
			return event{text: raw.Part.Text}
		}

	case "error":
		if raw.Error != nil {
			msg := raw.Error.Name
			if raw.Error.Data != nil && raw.Error.Data.Message != "" {
				msg = raw.Error.Data.Message
			}
			return event{err: fmt.Errorf("opencode: %s", msg)}
		}

	case "tool_use":
		// Personas do not need tools; ignore any the model decides to call.
		if raw.Part != nil {
			logger.Debug("Ignoring tool use: %s", raw.Part.Tool)
		}

	case "step_start", "step_finish":
		logger.Debug("Step event: %s", raw.Type)

	default:
		logger.Debug("Unknown event type: %s", raw.Type)
	}
	return event{}
}
