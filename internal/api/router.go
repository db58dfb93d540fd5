package api

import (
	"context"
	"net/http"
	"strings"
)

// Readiness reports whether dependencies are usable.
type Readiness func(ctx context.Context) (ok bool, report any)

func NewRouter(h *Handlers, ready Readiness) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ok, report := ready(r.Context())
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	})

	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.HandleCreateSession(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		// /sessions/{id}/events | /end | /voice | /voice/start | /voice/stop
		path := strings.TrimSuffix(r.URL.Path, "/")
		rest := strings.TrimPrefix(path, "/sessions/")
		parts := strings.Split(rest, "/")
		if len(parts) < 2 || parts[0] == "" {
			http.NotFound(w, r)
			return
		}
		id, tail := parts[0], strings.Join(parts[1:], "/")

		method := map[string]string{
			"events":      http.MethodGet,
			"end":         http.MethodPost,
			"voice":       http.MethodGet,
			"voice/start": http.MethodPost,
			"voice/stop":  http.MethodPost,
		}
		want, ok := method[tail]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Method != want {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		switch tail {
		case "events":
			h.HandleListEvents(w, r, id)
		case "end":
			h.HandleEndSession(w, r, id)
		case "voice":
			h.HandleVoiceStatus(w, r, id)
		case "voice/start":
			h.HandleVoiceStart(w, r, id)
		case "voice/stop":
			h.HandleVoiceStop(w, r, id)
		}
	})

	return mux
}
