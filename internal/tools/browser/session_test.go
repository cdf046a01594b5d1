package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeCDPServer answers Runtime.evaluate/Page.navigate-shaped requests with
// a canned response, exercising the id-multiplexed reader goroutine without
// needing a real Chromium process.
func fakeCDPServer(t *testing.T, handle func(req cdpRequest) cdpResponse) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var req cdpRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := handle(req)
			resp.ID = req.ID
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
}

func dialTestSession(t *testing.T, srv *httptest.Server) *Session {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	u, err := url.Parse(wsURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	cfg := DefaultLaunchConfig()
	cfg.CommandTimeout = 2 * time.Second
	return newSession("test-agent", conn, nil, cfg)
}

func TestSession_SendRoutesResponseByID(t *testing.T) {
	srv := fakeCDPServer(t, func(req cdpRequest) cdpResponse {
		result, _ := json.Marshal(map[string]string{"echo": req.Method})
		return cdpResponse{Result: result}
	})
	defer srv.Close()

	s := dialTestSession(t, srv)
	defer s.conn.Close()

	raw, err := s.Send(context.Background(), "Page.enable", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["echo"] != "Page.enable" {
		t.Fatalf("echo = %q, want Page.enable", out["echo"])
	}
}

func TestSession_SendPropagatesCDPError(t *testing.T) {
	srv := fakeCDPServer(t, func(req cdpRequest) cdpResponse {
		return cdpResponse{Error: &cdpErrorObject{Message: "no such node"}}
	})
	defer srv.Close()

	s := dialTestSession(t, srv)
	defer s.conn.Close()

	_, err := s.Send(context.Background(), "DOM.resolveNode", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	cdpErr, ok := err.(*CDPError)
	if !ok {
		t.Fatalf("err type = %T, want *CDPError", err)
	}
	if cdpErr.Message != "no such node" {
		t.Fatalf("message = %q", cdpErr.Message)
	}
}

func TestSession_SendTimesOut(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	srv := fakeCDPServer(t, func(req cdpRequest) cdpResponse {
		<-block
		return cdpResponse{}
	})
	defer srv.Close()

	s := dialTestSession(t, srv)
	defer s.conn.Close()
	s.cfg.CommandTimeout = 50 * time.Millisecond

	_, err := s.Send(context.Background(), "Page.enable", nil)
	if err != ErrCommandTimeout {
		t.Fatalf("err = %v, want ErrCommandTimeout", err)
	}
}

func TestSession_EvaluateUnwrapsValue(t *testing.T) {
	srv := fakeCDPServer(t, func(req cdpRequest) cdpResponse {
		result, _ := json.Marshal(map[string]any{
			"result": map[string]any{"value": "complete"},
		})
		return cdpResponse{Result: result}
	})
	defer srv.Close()

	s := dialTestSession(t, srv)
	defer s.conn.Close()

	raw, err := s.evaluate(context.Background(), "document.readyState")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if value != "complete" {
		t.Fatalf("value = %q, want complete", value)
	}
}

func TestSession_EvaluatePropagatesException(t *testing.T) {
	srv := fakeCDPServer(t, func(req cdpRequest) cdpResponse {
		result, _ := json.Marshal(map[string]any{
			"exceptionDetails": map[string]any{"text": "ReferenceError: x is not defined"},
		})
		return cdpResponse{Result: result}
	})
	defer srv.Close()

	s := dialTestSession(t, srv)
	defer s.conn.Close()

	_, err := s.evaluate(context.Background(), "x.y")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "ReferenceError") {
		t.Fatalf("err = %v, want ReferenceError", err)
	}
}
