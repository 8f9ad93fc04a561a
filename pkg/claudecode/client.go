package claudecode

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotConnected indicates an operation on a client with no live process.
	ErrNotConnected = errors.New("claude client not connected")

	// ErrConnectFailed indicates the CLI process could not be started or did
	// not complete its handshake.
	ErrConnectFailed = errors.New("claude CLI connect failed")
)

// maxLineSize bounds one NDJSON line from the CLI. Tool results can carry
// whole files, so the default 64 KiB scanner limit is far too small.
const maxLineSize = 1024 * 1024

// disconnectGrace is how long Disconnect waits for the process to exit after
// stdin closes before killing it.
const disconnectGrace = 5 * time.Second

// Client owns one Claude Code CLI subprocess. All stdout lines are normalized
// into StreamEvent values and delivered on the Events channel in emission
// order. Stdin writes (queries, interrupts, permission responses) are safe
// from any goroutine.
type Client struct {
	opts Options
	log  *slog.Logger

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdinMu sync.Mutex

	events chan StreamEvent
	initCh chan struct{} // closed once the system init line arrives
	done   chan struct{} // closed when the read loop exits

	mu        sync.Mutex
	sessionID string

	waitOnce sync.Once
	waitErr  error
}

// NewClient creates an unconnected client for the given options.
func NewClient(opts Options) *Client {
	return &Client{
		opts:   opts,
		log:    slog.With("component", "claudecode", "work_dir", opts.WorkDir),
		events: make(chan StreamEvent, 64),
		initCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Connect starts the subprocess and waits for the CLI's init handshake.
// On failure the process is reaped and ErrConnectFailed is returned.
func (c *Client) Connect(ctx context.Context) error {
	cmd := exec.Command(c.opts.binary(), c.opts.args()...)
	cmd.Dir = c.opts.WorkDir
	cmd.Env = c.opts.env()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrConnectFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrConnectFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: stderr pipe: %v", ErrConnectFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	c.cmd = cmd
	c.stdin = stdin

	go c.readLoop(stdout)
	go c.stderrLoop(stderr)

	select {
	case <-c.initCh:
		return nil
	case <-c.done:
		err := c.wait()
		return fmt.Errorf("%w: process exited before init: %v", ErrConnectFailed, err)
	case <-ctx.Done():
		_ = c.cmd.Process.Kill()
		return fmt.Errorf("%w: %v", ErrConnectFailed, ctx.Err())
	}
}

// Events returns the normalized event stream. The channel is closed when the
// subprocess's stdout reaches EOF.
func (c *Client) Events() <-chan StreamEvent {
	return c.events
}

// SessionID returns the most recently observed session id, if any.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Query sends one user message built from the given content blocks.
func (c *Client) Query(blocks []ContentBlock) error {
	return c.writeJSON(stdinUserMessage{
		Type:      "user",
		SessionID: c.SessionID(),
		Message:   stdinMessageInner{Role: "user", Content: blocks},
	})
}

// Interrupt asks the CLI to abort the in-flight turn. Safe to call from any
// goroutine while a query is streaming.
func (c *Client) Interrupt() error {
	return c.writeJSON(stdinControlRequest{
		Type:      "control_request",
		RequestID: "req_" + uuid.NewString(),
		Request:   controlRequestBody{Subtype: "interrupt"},
	})
}

// Disconnect closes stdin and waits briefly for the process to exit, killing
// it if it does not. Always best-effort; safe to call more than once.
func (c *Client) Disconnect() error {
	c.stdinMu.Lock()
	if c.stdin != nil {
		_ = c.stdin.Close()
		c.stdin = nil
	}
	c.stdinMu.Unlock()

	if c.cmd == nil {
		return nil
	}

	select {
	case <-c.done:
	case <-time.After(disconnectGrace):
		c.log.Warn("Claude CLI did not exit after stdin close, killing")
		_ = c.cmd.Process.Kill()
		<-c.done
	}
	return c.wait()
}

func (c *Client) wait() error {
	c.waitOnce.Do(func() {
		c.waitErr = c.cmd.Wait()
	})
	return c.waitErr
}

func (c *Client) writeJSON(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stdin message: %w", err)
	}

	c.stdinMu.Lock()
	defer c.stdinMu.Unlock()
	if c.stdin == nil {
		return ErrNotConnected
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write stdin message: %w", err)
	}
	return nil
}

// readLoop consumes stdout NDJSON lines until EOF. Unparseable lines are
// dropped with a warning. Control requests are answered without entering the
// event stream; everything else is normalized and forwarded.
func (c *Client) readLoop(stdout io.Reader) {
	defer close(c.done)
	defer close(c.events)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, maxLineSize), maxLineSize)

	initSeen := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg CLIMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			c.log.Warn("Dropping unparseable CLI line", "error", err)
			continue
		}

		switch msg.Type {
		case "system":
			if msg.SessionID != "" {
				c.setSessionID(msg.SessionID)
			}
			if msg.Subtype == "init" && !initSeen {
				initSeen = true
				close(c.initCh)
			}
		case "control_request":
			go c.handleControlRequest(&msg)
		case "control_response":
			// Acks for our own interrupt requests; nothing to do.
		default:
			evt := ExtractEvent(&msg)
			if evt.Kind == EventResult && evt.SessionID != "" {
				c.setSessionID(evt.SessionID)
			}
			c.events <- evt
		}
	}

	if err := scanner.Err(); err != nil {
		c.log.Warn("CLI stdout read ended with error", "error", err)
	}
}

func (c *Client) stderrLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, maxLineSize), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if c.opts.OnStderr != nil {
			c.opts.OnStderr(line)
		} else {
			c.log.Debug("claude stderr", "line", line)
		}
	}
}

// handleControlRequest answers a can_use_tool prompt via the configured
// permission callback. Runs on its own goroutine so a slow callback cannot
// stall the read loop.
func (c *Client) handleControlRequest(msg *CLIMessage) {
	var req controlRequestBody
	if err := json.Unmarshal(msg.Request, &req); err != nil {
		c.log.Warn("Dropping unparseable control request", "request_id", msg.RequestID, "error", err)
		return
	}

	if req.Subtype != "can_use_tool" {
		c.respondControl(msg.RequestID, nil, fmt.Sprintf("unsupported control request: %s", req.Subtype))
		return
	}

	decision := Allow()
	if c.opts.CanUseTool != nil {
		input := map[string]any{}
		if len(req.Input) > 0 {
			_ = json.Unmarshal(req.Input, &input)
		}
		decision = c.opts.CanUseTool(req.ToolName, input)
	}

	if decision.Behavior == "deny" {
		c.log.Info("Tool call denied", "tool", req.ToolName, "reason", decision.Message)
	}
	c.respondControl(msg.RequestID, &decision, "")
}

func (c *Client) respondControl(requestID string, decision *PermissionDecision, errMsg string) {
	outer := controlResponseOuter{Subtype: "success", RequestID: requestID, Response: decision}
	if errMsg != "" {
		outer.Subtype = "error"
		outer.Error = errMsg
	}
	if err := c.writeJSON(stdinControlResponse{Type: "control_response", Response: outer}); err != nil {
		c.log.Warn("Failed to send control response", "request_id", requestID, "error", err)
	}
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}
