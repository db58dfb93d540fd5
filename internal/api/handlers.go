package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"videochat/agent/internal/auth"
	"videochat/agent/internal/store"
	"videochat/agent/internal/types"
	"videochat/agent/internal/voice"
)

// Voice is the per-session host surface of the dispatcher.
type Voice interface {
	Start(sessionID string)
	Stop(sessionID string, disableRestart bool)
	Status(sessionID string) (voice.Status, bool)
	Detach(sessionID string)
}

type Handlers struct {
	store          *store.Store
	signer         *auth.Signer
	voice          Voice
	defaultBackend string
}

func NewHandlers(st *store.Store, signer *auth.Signer, v Voice, defaultBackend string) *Handlers {
	return &Handlers{store: st, signer: signer, voice: v, defaultBackend: defaultBackend}
}

type createRequest struct {
	Backend string `json:"backend"`
}

func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && err != io.EOF {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
	}
	backend := h.defaultBackend
	switch req.Backend {
	case "":
	case "browser", "deepgram":
		backend = req.Backend
	default:
		http.Error(w, "backend must be browser or deepgram", http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	token, exp, err := h.signer.Mint(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sess := &types.Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Status:    types.StatusCreated,
		Backend:   backend,
	}
	if err := h.store.CreateSession(sess); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	h.store.AppendEvent(id, "session_created", map[string]any{"backend": backend})

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"token":      token,
		"expires_at": exp.UTC(),
		"backend":    backend,
		"ws_path":    "/ws/client?session_id=" + url.QueryEscape(id),
	})
}

func (h *Handlers) HandleVoiceStart(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	h.store.AppendEvent(id, "voice_start_requested", nil)
	h.voice.Start(id)
	h.writeStatus(w, id)
}

// HandleVoiceStop disables automatic restart unless ?restart=true.
func (h *Handlers) HandleVoiceStop(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	disable := r.URL.Query().Get("restart") != "true"
	h.store.AppendEvent(id, "voice_stop_requested", map[string]any{"disable_restart": disable})
	h.voice.Stop(id, disable)
	h.writeStatus(w, id)
}

func (h *Handlers) HandleVoiceStatus(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	h.writeStatus(w, id)
}

func (h *Handlers) HandleEndSession(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	// closed first so frames racing the detach cannot revive the controller
	h.store.SetStatus(id, types.StatusClosed)
	h.voice.Detach(id)
	h.store.AppendEvent(id, "session_closed", nil)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetSession(id) == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"events":     h.store.ListEvents(id),
	})
}

// writeStatus reports the last published state; operations are applied
// asynchronously, so it may lag a call made just before.
func (h *Handlers) writeStatus(w http.ResponseWriter, id string) {
	st, attached := h.voice.Status(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"attached":   attached,
		"voice":      st,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
