package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Session is one agent's Chromium session: a child process plus a single
// CDP WebSocket connection, multiplexed by request id.
type Session struct {
	AgentID    string
	LastActive time.Time

	conn    *websocket.Conn
	proc    *exec.Cmd
	cfg     LaunchConfig
	nextID  uint64
	pending sync.Map // uint64 -> chan cdpResponse

	// mu serializes command dispatch on this session: commands from one
	// agent run one at a time, though CDP itself would allow concurrency.
	mu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

type cdpRequest struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type cdpResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *cdpErrorObject `json:"error,omitempty"`
}

type cdpErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// newSession wraps an already-dialed CDP WebSocket connection and starts its
// reader goroutine. The caller owns proc and is responsible for killing it
// when the session closes.
func newSession(agentID string, conn *websocket.Conn, proc *exec.Cmd, cfg LaunchConfig) *Session {
	s := &Session{
		AgentID:    agentID,
		LastActive: time.Now(),
		conn:       conn,
		proc:       proc,
		cfg:        cfg,
		nextID:     1,
		closed:     make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// readLoop routes every incoming frame with an "id" to the one-shot channel
// registered by Send. Frames without an id are CDP events; they are
// discarded, reserved for future CDP-level interception.
func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.drainPending(fmt.Errorf("browser: connection closed: %w", err))
			return
		}

		var resp cdpResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.ID == 0 {
			continue // event frame, no id
		}

		if ch, ok := s.pending.LoadAndDelete(resp.ID); ok {
			ch.(chan cdpResponse) <- resp
		}
	}
}

func (s *Session) drainPending(err error) {
	s.pending.Range(func(key, value any) bool {
		s.pending.Delete(key)
		value.(chan cdpResponse) <- cdpResponse{Error: &cdpErrorObject{Message: err.Error()}}
		return true
	})
}

// Send issues a CDP command and blocks for its response, bounded by
// ctx and the session's CommandTimeout. Commands are serialized per
// session by s.mu.
func (s *Session) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := atomic.AddUint64(&s.nextID, 1)
	ch := make(chan cdpResponse, 1)
	s.pending.Store(id, ch)

	req := cdpRequest{ID: id, Method: method, Params: params}
	if err := s.conn.WriteJSON(req); err != nil {
		s.pending.Delete(id)
		return nil, fmt.Errorf("browser: write command: %w", err)
	}

	timeout := s.cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		s.LastActive = time.Now()
		if resp.Error != nil {
			return nil, &CDPError{Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-timer.C:
		s.pending.Delete(id)
		return nil, ErrCommandTimeout
	case <-ctx.Done():
		s.pending.Delete(id)
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrSessionNotFound
	}
}

// Enable turns on the Page and Runtime domains. CDP connect errors here are
// best-effort: the session still proceeds if either call fails.
func (s *Session) Enable(ctx context.Context) {
	_, _ = s.Send(ctx, "Page.enable", nil)
	_, _ = s.Send(ctx, "Runtime.enable", nil)
}

// Close kills the child Chromium process and closes the WebSocket. It is
// safe to call multiple times.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
		if s.proc != nil && s.proc.Process != nil {
			_ = s.proc.Process.Kill()
			_ = s.proc.Wait()
		}
	})
	return err
}
