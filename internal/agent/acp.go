package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/logger"
)

// ACPRunner answers generation requests over the Agent Client Protocol. One
// `opencode acp` process is kept for the runner's lifetime and every request gets
// a fresh ACP session, so personas never share context.
type ACPRunner struct {
	binary  string
	model   string
	workDir string
	onText  func(text string)

	mu   sync.Mutex // one prompt at a time on the connection
	cmd  *exec.Cmd
	conn *acpConn
}

// NewACPRunner creates an ACPRunner. The subprocess starts on the first request.
func NewACPRunner(cfg RunnerConfig) *ACPRunner {
	if cfg.Binary == "" {
		cfg.Binary = "opencode"
	}
	return &ACPRunner{
		binary:  cfg.Binary,
		model:   cfg.Model,
		workDir: cfg.WorkDir,
		onText:  cfg.OnText,
	}
}

// Generate implements dialogue.Generator.
func (r *ACPRunner) Generate(ctx context.Context, req dialogue.Request) (dialogue.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureStarted(ctx); err != nil {
		return dialogue.Response{}, err
	}

	// Reads block on the pipe; killing the process is the only way to interrupt them.
	stop := context.AfterFunc(ctx, killer(r.cmd))
	defer stop()

	text, err := r.prompt(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			r.reset()
			return dialogue.Response{}, ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			r.reset()
		}
		return dialogue.Response{}, err
	}
	return dialogue.Response{Text: text}, nil
}

func (r *ACPRunner) prompt(ctx context.Context, req dialogue.Request) (string, error) {
	sessionID, err := r.conn.newSession(ctx, r.workDir)
	if err != nil {
		return "", err
	}
	if r.model != "" {
		if err := r.conn.setModel(ctx, sessionID, r.model); err != nil {
			return "", err
		}
	}

	text := req.Prompt
	if req.System != "" {
		text = req.System + "\n\n" + req.Prompt
	}

	var out strings.Builder
	stopReason, err := r.conn.prompt(ctx, sessionID, text, func(chunk string) {
		out.WriteString(chunk)
		if r.onText != nil {
			r.onText(chunk)
		}
	})
	if err != nil {
		return "", err
	}
	switch stopReason {
	case "end_turn", "max_tokens":
	default:
		return "", fmt.Errorf("opencode stopped: %s", stopReason)
	}
	return out.String(), nil
}

// ensureStarted launches `opencode acp` and performs the initialize handshake.
func (r *ACPRunner) ensureStarted(ctx context.Context) error {
	if r.conn != nil {
		return nil
	}

	cmd := exec.Command(r.binary, "acp")
	cmd.Dir = r.workDir
	cmd.Env = os.Environ()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	logger.Debug("Starting %s acp (model=%q)", r.binary, r.model)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start opencode: %w", err)
	}
	r.cmd = cmd
	r.conn = newACPConn(stdin, stdout)

	stop := context.AfterFunc(ctx, killer(cmd))
	defer stop()
	if err := r.conn.initialize(ctx); err != nil {
		r.reset()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func killer(cmd *exec.Cmd) func() {
	return func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

// reset tears down the subprocess so the next request starts a new one.
func (r *ACPRunner) reset() {
	if r.conn != nil {
		_ = r.conn.close()
	}
	if r.cmd != nil {
		killer(r.cmd)()
		_ = r.cmd.Wait()
	}
	r.cmd = nil
	r.conn = nil
}

// Close stops the subprocess. Closing stdin lets opencode exit on its own.
func (r *ACPRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	_ = r.conn.close()

	cmd := r.cmd
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			logger.Debug("opencode acp exited: %v", err)
		}
	case <-time.After(2 * time.Second):
		logger.Warn("opencode acp did not exit after 2s, killing it")
		killer(cmd)()
		<-done
	}
	r.cmd = nil
	r.conn = nil
	return nil
}

// acpConn wraps stdin/stdout pipes for bidirectional JSON-RPC 2.0 communication.
type acpConn struct {
	stdin   io.WriteCloser
	reader  *bufio.Reader
	encoder *json.Encoder
	reqID   atomic.Int32
}

func newACPConn(stdin io.WriteCloser, stdout io.Reader) *acpConn {
	return &acpConn{
		stdin:   stdin,
		reader:  bufio.NewReader(stdout),
		encoder: json.NewEncoder(stdin),
	}
}

// sendRequest sends a JSON-RPC 2.0 request and returns the assigned request ID.
func (c *acpConn) sendRequest(method string, params any) (int, error) {
	id := int(c.reqID.Add(1))
	logger.Debug("ACP request [%d]: %s", id, method)
	if err := c.encoder.Encode(jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}
	return id, nil
}

// readMessage reads one JSON-RPC message. io.EOF is returned unwrapped.
func (c *acpConn) readMessage() (*jsonRPCResponse, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	var resp jsonRPCResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		logger.Warn("Failed to parse ACP message: %v | raw: %s", err, line)
		return nil, fmt.Errorf("failed to parse JSON-RPC message: %w", err)
	}
	return &resp, nil
}

func (c *acpConn) close() error {
	return c.stdin.Close()
}

// call sends a request and waits for its response. Notifications that arrive in
// between go to onNotify when set.
func (c *acpConn) call(ctx context.Context, method string, params any, onNotify func(*jsonRPCResponse)) (json.RawMessage, error) {
	reqID, err := c.sendRequest(method, params)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.readMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%s: agent closed the connection: %w", method, err)
			}
			return nil, fmt.Errorf("failed to read %s response: %w", method, err)
		}

		if resp.ID == nil {
			if onNotify != nil {
				onNotify(resp)
			}
			continue
		}
		if *resp.ID != reqID {
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%s failed: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
		}
		return resp.Result, nil
	}
}

// initialize sends the initialize request and validates the agent response.
func (c *acpConn) initialize(ctx context.Context) error {
	result, err := c.call(ctx, "initialize", initializeParams{ProtocolVersion: 1}, nil)
	if err != nil {
		return err
	}

	var init initializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		return fmt.Errorf("failed to parse initialize result: %w", err)
	}
	if init.AgentInfo == nil {
		return fmt.Errorf("initialize response missing agentInfo")
	}

	logger.Debug("ACP initialized: %s v%s", init.AgentInfo.Name, init.AgentInfo.Version)
	return nil
}

// newSession creates a new ACP session and returns the session ID.
func (c *acpConn) newSession(ctx context.Context, cwd string) (string, error) {
	result, err := c.call(ctx, "session/new", newSessionParams{Cwd: cwd, McpServers: []any{}}, nil)
	if err != nil {
		return "", err
	}

	var sess newSessionResult
	if err := json.Unmarshal(result, &sess); err != nil {
		return "", fmt.Errorf("failed to parse session/new result: %w", err)
	}
	if sess.SessionID == "" {
		return "", fmt.Errorf("session/new response missing sessionId")
	}
	return sess.SessionID, nil
}

// setModel sets the model for the given session.
func (c *acpConn) setModel(ctx context.Context, sessionID, modelID string) error {
	_, err := c.call(ctx, "session/set_model", setModelParams{SessionID: sessionID, ModelID: modelID}, nil)
	return err
}

// prompt sends a prompt to the session, streaming message chunks to onText, and
// returns the stop reason.
func (c *acpConn) prompt(ctx context.Context, sessionID, text string, onText func(string)) (string, error) {
	params := promptParams{
		SessionID: sessionID,
		Prompt:    []contentBlock{{Type: "text", Text: text}},
	}

	result, err := c.call(ctx, "session/prompt", params, func(n *jsonRPCResponse) {
		if n.Method != "session/update" {
			return
		}
		var update sessionUpdateParams
		if err := json.Unmarshal(n.Params, &update); err != nil {
			logger.Warn("Failed to parse session/update params: %v", err)
			return
		}
		var chunk messageChunk
		if err := json.Unmarshal(update.Update, &chunk); err != nil {
			logger.Warn("Failed to parse session update: %v", err)
			return
		}
		switch chunk.SessionUpdate {
		case "agent_message_chunk":
			if onText != nil {
				onText(chunk.Content.Text)
			}
		case "tool_call", "tool_call_update":
			// Personas do not need tools; ignore any the model decides to call.
			logger.Debug("Ignoring ACP %s", chunk.SessionUpdate)
		}
	})
	if err != nil {
		return "", err
	}

	var res promptResult
	if err := json.Unmarshal(result, &res); err != nil || res.StopReason == "" {
		return "end_turn", nil
	}
	return res.StopReason, nil
}

// JSON-RPC 2.0 message envelope
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int            `json:"id,omitempty"`     // nil for notifications
	Method  string          `json:"method,omitempty"` // set for notifications
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type initializeParams struct {
	ProtocolVersion int `json:"protocolVersion"`
}

type initializeResult struct {
	AgentInfo *struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"agentInfo,omitempty"`
}

type newSessionParams struct {
	Cwd        string `json:"cwd"`
	McpServers []any  `json:"mcpServers"`
}

type newSessionResult struct {
	SessionID string `json:"sessionId"`
}

type setModelParams struct {
	SessionID string `json:"sessionId"`
	ModelID   string `json:"modelId"`
}

type promptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []contentBlock `json:"prompt"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type promptResult struct {
	StopReason string `json:"stopReason"`
}

type sessionUpdateParams struct {
	SessionID string          `json:"sessionId"`
	Update    json.RawMessage `json:"update"`
}

// messageChunk is discriminated by SessionUpdate.
type messageChunk struct {
	SessionUpdate string `json:"sessionUpdate"`
	Content       struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}
