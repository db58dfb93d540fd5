package clientws

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"videochat/agent/internal/auth"
	"videochat/agent/internal/store"
	"videochat/agent/internal/types"
)

// Message is one JSON frame between the agent and a page.
type Message struct {
	Type      string         `json:"type"`
	TsMs      int64          `json:"ts_ms"`
	SessionID string         `json:"session_id"`
	Seq       int64          `json:"seq"`
	CommandID string         `json:"command_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Str and Bool read optional payload fields.
func (m Message) Str(key string) string {
	if v, ok := m.Payload[key].(string); ok {
		return v
	}
	return ""
}

func (m Message) Bool(key string) (bool, bool) {
	v, ok := m.Payload[key].(bool)
	return v, ok
}

// Handler receives everything a page sends.
type Handler interface {
	OnConnect(sessionID string)
	OnMessage(sessionID string, msg Message)
	OnAudio(sessionID string, pcm []byte)
	OnDisconnect(sessionID string)
}

type Server struct {
	Store   *store.Store
	Reg     *Registry
	Signer  *auth.Signer
	Handler Handler
	log     zerolog.Logger
}

func NewServer(st *store.Store, reg *Registry, signer *auth.Signer, h Handler, logger zerolog.Logger) *Server {
	return &Server{Store: st, Reg: reg, Signer: signer, Handler: h, log: logger.With().Str("component", "clientws").Logger()}
}

func (s *Server) HandleClientWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	sess := s.Store.GetSession(sessionID)
	if sess == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if sess.Status == types.StatusClosed {
		http.Error(w, "session ended", http.StatusGone)
		return
	}
	// browsers cannot set headers on a WebSocket, so ?token= is accepted too
	token := q.Get("token")
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		token = strings.TrimPrefix(authz, "Bearer ")
	}
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if _, err := s.Signer.Verify(token, sessionID); err != nil {
		s.log.Debug().Err(err).Str("sid", sessionID).Msg("[clientws] token rejected")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("[clientws] accept failed")
		return
	}
	c.SetReadLimit(1 << 20)
	if s.Reg.Replace(sessionID, c) {
		s.Store.AppendEvent(sessionID, "client_replaced", nil)
	}
	s.Store.SetClientConnected(sessionID, true, time.Now().UTC())
	s.Store.AppendEvent(sessionID, "client_connected", nil)
	gaugeConnections.Inc()
	s.log.Info().Str("sid", sessionID).Msg("[clientws] page connected")
	s.Handler.OnConnect(sessionID)

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ == ws.MessageBinary {
			s.Handler.OnAudio(sessionID, data)
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			metricInvalid.Inc()
			s.Store.AppendEvent(sessionID, "client_msg_invalid", map[string]any{"error": err.Error()})
			continue
		}
		metricMessagesIn.WithLabelValues(msg.Type).Inc()
		s.Handler.OnMessage(sessionID, msg)
	}
	_ = c.Close(ws.StatusNormalClosure, "done")
	gaugeConnections.Dec()
	if s.Reg.RemoveIf(sessionID, c) {
		s.Store.SetClientConnected(sessionID, false, time.Now().UTC())
		s.Store.AppendEvent(sessionID, "client_disconnected", nil)
		s.log.Info().Str("sid", sessionID).Msg("[clientws] page disconnected")
		s.Handler.OnDisconnect(sessionID)
	}
}
