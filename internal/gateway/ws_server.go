package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cratos-ai/orchestrator/internal/auth"
	"github.com/cratos-ai/orchestrator/internal/coretypes"
	"github.com/cratos-ai/orchestrator/internal/eventbus"
)

// WSServer binds the Dispatcher and the Event Bus to a WebSocket
// connection: one frame stream per socket, requests dispatched as they
// arrive, bus events forwarded to the same socket concurrently.
type WSServer struct {
	Dispatcher *Dispatcher
	Bus        EventSubscriber
	Auth       *auth.Service
	Log        *slog.Logger

	upgrader websocket.Upgrader
}

// NewWSServer builds a WSServer. A nil Auth accepts every connection as
// an admin caller, which is only appropriate for local/dev deployments.
func NewWSServer(d *Dispatcher, bus *eventbus.Bus, authSvc *auth.Service, log *slog.Logger) *WSServer {
	if log == nil {
		log = slog.Default()
	}
	return &WSServer{
		Dispatcher: d,
		Bus:        bus,
		Auth:       authSvc,
		Log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *WSServer) authenticate(r *http.Request) (Caller, error) {
	if s.Auth == nil {
		return Caller{UserID: "dev", Scopes: map[coretypes.Scope]bool{scopeAdmin: true}}, nil
	}
	token := bearerToken(r)
	if token == "" {
		return Caller{}, errors.New("missing bearer token")
	}
	id, err := s.Auth.Validate(token)
	if err != nil {
		return Caller{}, err
	}
	scopes := make(map[coretypes.Scope]bool, len(id.Scopes))
	for _, sc := range id.Scopes {
		scopes[coretypes.Scope(sc)] = true
	}
	return Caller{UserID: id.UserID, Scopes: scopes}, nil
}

func bearerToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); len(v) > len("Bearer ") && v[:7] == "Bearer " {
		return v[7:]
	}
	return r.URL.Query().Get("token")
}

// ServeHTTP upgrades the connection, authenticates it, and runs the
// frame read loop until the client disconnects or ctx is cancelled.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	sessionKey := r.URL.Query().Get("session_key")
	go ForwardEvents(ctx, s.Bus, sessionKey, func(ev Event) {
		if err := writeJSON(ev); err != nil {
			cancel()
		}
	})

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.Log.Debug("websocket read closed", "error", err)
			}
			return
		}
		go func(req Request) {
			resp := s.Dispatcher.Dispatch(ctx, req, caller)
			if err := writeJSON(resp); err != nil {
				s.Log.Warn("websocket write failed", "error", err)
			}
		}(req)
	}
}
