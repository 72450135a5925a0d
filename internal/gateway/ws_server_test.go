package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cratos-ai/orchestrator/internal/auth"
	"github.com/cratos-ai/orchestrator/internal/eventbus"
)

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWSServerDispatchesPingWithoutAuth(t *testing.T) {
	d := NewDispatcher(&fakeProcessor{}, nil, nil, nil)
	ws := NewWSServer(d, eventbus.New(), nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(ws.ServeHTTP))
	defer srv.Close()

	conn := dialWS(t, srv, "")
	if err := conn.WriteJSON(Request{ID: "1", Method: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp Response
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
}

func TestWSServerRejectsMissingTokenWhenAuthConfigured(t *testing.T) {
	d := NewDispatcher(&fakeProcessor{}, nil, nil, nil)
	authSvc := auth.NewService("test-secret", time.Hour)
	ws := NewWSServer(d, eventbus.New(), authSvc, nil)
	srv := httptest.NewServer(http.HandlerFunc(ws.ServeHTTP))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWSServerAcceptsValidToken(t *testing.T) {
	d := NewDispatcher(&fakeProcessor{}, nil, nil, nil)
	authSvc := auth.NewService("test-secret", time.Hour)
	ws := NewWSServer(d, eventbus.New(), authSvc, nil)
	srv := httptest.NewServer(http.HandlerFunc(ws.ServeHTTP))
	defer srv.Close()

	token, err := authSvc.Issue("user-1", []string{"execution:write"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	conn := dialWS(t, srv, token)

	req := Request{ID: "2", Method: "chat.send", Params: rawParams(t, map[string]any{
		"channel_type": "gateway", "channel_id": "c1", "text": "hi",
	})}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp Response
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var out map[string]any
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["status"] != "accepted" {
		t.Fatalf("expected accepted, got %+v", out)
	}
}
