// Package client implements the per-user agent session runtime: the
// UserClient actor that owns one backend connection, and the Manager that
// registers actors, resolves resumable sessions, and persists session state.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teleclaude/teleclaude/pkg/claudecode"
)

var (
	// ErrNotRunning indicates a submit on a stopped or never-started client.
	ErrNotRunning = errors.New("user client is not running")

	// ErrStreamClosed indicates the backend stream ended before a result.
	ErrStreamClosed = errors.New("backend stream closed before result")
)

// stopTimeout bounds how long Stop waits for the worker to drain and exit.
const stopTimeout = 10 * time.Second

// mailboxDepth is the submission queue capacity. Submissions block when it
// fills, which preserves FIFO order without growing without bound.
const mailboxDepth = 64

// Backend is the connection-oriented agent surface the actor owns. All
// operations except Interrupt are called only from the actor's worker
// goroutine.
type Backend interface {
	Connect(ctx context.Context) error
	Query(blocks []claudecode.ContentBlock) error
	Events() <-chan claudecode.StreamEvent
	Interrupt() error
	Disconnect() error
	SessionID() string
}

// BackendFactory builds a backend from options. Production wires
// claudecode.NewClient; tests substitute fakes.
type BackendFactory func(opts claudecode.Options) Backend

// QueryResult is the terminal outcome of one submission.
type QueryResult struct {
	ResponseText string
	SessionID    string
	Cost         float64
	NumTurns     int
	DurationMS   int64
	IsError      bool
}

// StreamFunc receives stream events during a query, in emission order.
type StreamFunc func(evt claudecode.StreamEvent)

// workItem is one mailbox element. A nil *workItem is the stop sentinel.
type workItem struct {
	blocks   []claudecode.ContentBlock
	onStream StreamFunc
	outcome  chan submitOutcome
}

type submitOutcome struct {
	result *QueryResult
	err    error
}

// UserClient owns the backend connection for one user. One worker goroutine
// processes submissions strictly in FIFO order; external goroutines interact
// only through Submit, Interrupt, and Stop.
type UserClient struct {
	userID      int64
	directory   string
	idleTimeout time.Duration
	opts        claudecode.Options
	factory     BackendFactory
	onExit      func(userID int64)
	log         *slog.Logger

	backend Backend
	mailbox chan *workItem
	done    chan struct{}

	stopOnce sync.Once

	mu        sync.Mutex
	connected bool
	querying  bool
	sessionID string
	model     string
	betas     []string
}

// NewUserClient creates an unstarted actor. onExit is invoked exactly once,
// just before the worker goroutine terminates.
func NewUserClient(userID int64, directory string, opts claudecode.Options,
	idleTimeout time.Duration, factory BackendFactory, onExit func(userID int64)) *UserClient {
	return &UserClient{
		userID:      userID,
		directory:   directory,
		idleTimeout: idleTimeout,
		opts:        opts,
		factory:     factory,
		onExit:      onExit,
		log:         slog.With("component", "user_client", "user_id", userID),
		mailbox:     make(chan *workItem, mailboxDepth),
		done:        make(chan struct{}),
		sessionID:   opts.ResumeSessionID,
		model:       opts.Model,
		betas:       opts.Betas,
	}
}

// Start spawns the worker and blocks until the backend connection is
// established. A connect failure leaves the actor stopped and is returned.
func (c *UserClient) Start(ctx context.Context) error {
	connectErr := make(chan error, 1)
	go c.run(ctx, connectErr)

	select {
	case err := <-connectErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues one query and blocks until its future resolves. Futures
// resolve in submission order; at most one submission is in flight.
func (c *UserClient) Submit(blocks []claudecode.ContentBlock, onStream StreamFunc) (*QueryResult, error) {
	if !c.IsConnected() {
		return nil, ErrNotRunning
	}

	item := &workItem{blocks: blocks, onStream: onStream, outcome: make(chan submitOutcome, 1)}
	select {
	case c.mailbox <- item:
	case <-c.done:
		return nil, ErrNotRunning
	}

	select {
	case out := <-item.outcome:
		return out.result, out.err
	case <-c.done:
		// Worker terminated with this item still pending.
		select {
		case out := <-item.outcome:
			return out.result, out.err
		default:
			return nil, ErrNotRunning
		}
	}
}

// Interrupt forwards to the backend when a query is in flight; otherwise it
// is a no-op. Safe from any goroutine.
func (c *UserClient) Interrupt() error {
	if !c.IsQuerying() {
		return nil
	}
	return c.backend.Interrupt()
}

// Stop enqueues the stop sentinel and waits for the worker to exit, with a
// bounded timeout. On timeout the backend is disconnected out from under the
// worker, which unblocks it.
func (c *UserClient) Stop() error {
	c.stopOnce.Do(func() {
		select {
		case c.mailbox <- nil:
		case <-c.done:
		}
	})

	select {
	case <-c.done:
		return nil
	case <-time.After(stopTimeout):
		c.log.Warn("Worker did not stop in time, forcing disconnect")
		if c.backend != nil {
			_ = c.backend.Disconnect()
		}
		<-c.done
		return nil
	}
}

// IsConnected reports whether the worker is running with a live backend.
func (c *UserClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// IsQuerying reports whether a submission is being processed.
func (c *UserClient) IsQuerying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.querying
}

// SessionID returns the current session id, possibly empty for a fresh
// session that has not yet produced a result.
func (c *UserClient) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetSessionID updates the in-memory session id.
func (c *UserClient) SetSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// Directory returns the working directory the actor is bound to.
func (c *UserClient) Directory() string {
	return c.directory
}

// Model returns the current model name.
func (c *UserClient) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Betas returns the current beta flags.
func (c *UserClient) Betas() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.betas
}

// SetModel updates the in-memory model and beta flags. Takes effect on the
// next connection; the running process keeps its model.
func (c *UserClient) SetModel(model string, betas []string) {
	c.mu.Lock()
	c.model = model
	c.betas = betas
	c.mu.Unlock()
}

// run is the worker goroutine: connect, then serve the mailbox until the
// stop sentinel, the idle timeout, or a fatal backend error.
func (c *UserClient) run(ctx context.Context, connectErr chan<- error) {
	defer close(c.done)
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.querying = false
		c.mu.Unlock()
		if c.backend != nil {
			_ = c.backend.Disconnect()
		}
		if c.onExit != nil {
			c.onExit(c.userID)
		}
	}()

	c.backend = c.factory(c.opts)
	if err := c.backend.Connect(ctx); err != nil {
		c.log.Error("Backend connect failed", "error", err)
		connectErr <- err
		return
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	connectErr <- nil
	c.log.Info("Backend connected", "directory", c.directory, "resume", c.opts.ResumeSessionID != "")

	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case item := <-c.mailbox:
			if item == nil {
				c.log.Info("Stop sentinel received, shutting down")
				return
			}
			fatal := c.process(item)
			if fatal {
				c.log.Error("Fatal backend error, terminating actor")
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.idleTimeout)
		case <-idle.C:
			c.log.Info("Idle timeout reached, shutting down", "timeout", c.idleTimeout)
			return
		}
	}
}

// process runs one query to completion. The returned flag is true when the
// backend is no longer usable and the actor must terminate.
func (c *UserClient) process(item *workItem) (fatal bool) {
	c.mu.Lock()
	c.querying = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.querying = false
		c.mu.Unlock()
	}()

	started := time.Now()
	if err := c.backend.Query(item.blocks); err != nil {
		item.outcome <- submitOutcome{err: fmt.Errorf("query failed: %w", err)}
		return true
	}

	var responseText string
	numTurns := 0
	for evt := range c.backend.Events() {
		switch evt.Kind {
		case claudecode.EventResult:
			if evt.SessionID != "" {
				c.SetSessionID(evt.SessionID)
			}
			text := evt.Text
			if text == "" {
				text = responseText
			}
			duration := evt.DurationMS
			if duration == 0 {
				duration = time.Since(started).Milliseconds()
			}
			turns := evt.NumTurns
			if turns == 0 {
				turns = numTurns
			}
			item.outcome <- submitOutcome{result: &QueryResult{
				ResponseText: text,
				SessionID:    evt.SessionID,
				Cost:         evt.Cost,
				NumTurns:     turns,
				DurationMS:   duration,
				IsError:      evt.IsError,
			}}
			return false
		case claudecode.EventToolUse:
			if !evt.Partial {
				numTurns++
			}
			c.emit(item, evt)
		case claudecode.EventText:
			if !evt.Partial {
				responseText += evt.Text
			}
			c.emit(item, evt)
		case claudecode.EventThinking, claudecode.EventToolResult:
			c.emit(item, evt)
		case claudecode.EventUser, claudecode.EventUnknown:
			// Ignored.
		}
	}

	// Stream ended without a result: the process died mid-query.
	item.outcome <- submitOutcome{err: ErrStreamClosed}
	return true
}

func (c *UserClient) emit(item *workItem, evt claudecode.StreamEvent) {
	if item.onStream != nil {
		item.onStream(evt)
	}
}
