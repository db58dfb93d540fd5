package clientws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	ws "nhooyr.io/websocket"
)

var ErrNotConnected = errors.New("client not connected")

// Registry keeps at most one page connection per session.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*ws.Conn
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]*ws.Conn)} }

// Replace sets the connection for a session and closes the previous one if present.
func (r *Registry) Replace(sessionID string, c *ws.Conn) (prevClosed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[sessionID]; ok && old != nil {
		_ = old.Close(ws.StatusNormalClosure, "replaced")
		prevClosed = true
	}
	r.conns[sessionID] = c
	return
}

func (r *Registry) Connected(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[sessionID] != nil
}

// RemoveIf drops the session's connection only if it is still c, so a
// replaced connection shutting down does not evict its successor.
func (r *Registry) RemoveIf(sessionID string, c *ws.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[sessionID] != c {
		return false
	}
	delete(r.conns, sessionID)
	return true
}

// SendJSON writes v as one text frame to the session's page.
func (r *Registry) SendJSON(ctx context.Context, sessionID string, v any) error {
	r.mu.Lock()
	c := r.conns[sessionID]
	r.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.Write(ctx, ws.MessageText, b); err != nil {
		return err
	}
	metricMessagesOut.Inc()
	return nil
}

// CloseAll closes every connection, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.conns {
		_ = c.Close(ws.StatusGoingAway, "server shutdown")
		delete(r.conns, id)
	}
}
