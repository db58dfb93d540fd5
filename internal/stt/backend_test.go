package stt

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"videochat/agent/internal/voice"
)

type chanEvents struct{ ch chan string }

func newChanEvents() *chanEvents { return &chanEvents{ch: make(chan string, 16)} }

func (e *chanEvents) Started()                       { e.ch <- "started" }
func (e *chanEvents) Result(text string, final bool) { e.ch <- fmt.Sprintf("result:%s:%v", text, final) }
func (e *chanEvents) Ended()                         { e.ch <- "ended" }
func (e *chanEvents) Failed(kind voice.ErrorKind)    { e.ch <- "failed:" + string(kind) }

func (e *chanEvents) next(t *testing.T) string {
	t.Helper()
	select {
	case ev := <-e.ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for session event")
		return ""
	}
}

func fakeDeepgram(t *testing.T, gotClose chan<- struct{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		ctx := r.Context()
		final := `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"Hello System"}]}}`
		_ = c.Write(ctx, websocket.MessageText, []byte(final))
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText && strings.Contains(string(data), "CloseStream") {
				close(gotClose)
				_ = c.Close(websocket.StatusNormalClosure, "done")
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/listen"
}

func TestBackendSessionLifecycle(t *testing.T) {
	gotClose := make(chan struct{})
	srv := fakeDeepgram(t, gotClose)
	defer srv.Close()

	b := NewBackend(DGConfig{BaseURL: wsURL(srv)}, "test-key", zerolog.Nop())
	ev := newChanEvents()
	sess, err := b.StartSession(ev)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := ev.next(t); got != "started" {
		t.Fatalf("expected started, got %s", got)
	}
	if got := ev.next(t); got != "result:Hello System:true" {
		t.Fatalf("expected final result, got %s", got)
	}
	if !b.Feed([]byte{0, 1, 2, 3}) {
		t.Fatalf("feed should be accepted while live")
	}

	sess.Stop()
	select {
	case <-gotClose:
	case <-time.After(5 * time.Second):
		t.Fatalf("provider never saw CloseStream")
	}
	if got := ev.next(t); got != "ended" {
		t.Fatalf("expected ended, got %s", got)
	}
}

func TestBackendUnauthorized(t *testing.T) {
	srv := fakeDeepgram(t, make(chan struct{}))
	defer srv.Close()

	b := NewBackend(DGConfig{BaseURL: wsURL(srv)}, "wrong-key", zerolog.Nop())
	ev := newChanEvents()
	if _, err := b.StartSession(ev); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := ev.next(t); got != "failed:permission-denied" {
		t.Fatalf("expected permission error, got %s", got)
	}
	if got := ev.next(t); got != "ended" {
		t.Fatalf("expected ended, got %s", got)
	}
}

func TestBackendWithoutKeyIsUnsupported(t *testing.T) {
	b := NewBackend(DGConfig{}, "", zerolog.Nop())
	if _, err := b.StartSession(newChanEvents()); !errors.Is(err, voice.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestFeedWithoutSessionDrops(t *testing.T) {
	b := NewBackend(DGConfig{}, "k", zerolog.Nop())
	if b.Feed([]byte{1, 2}) {
		t.Fatalf("feed with no live session should drop")
	}
}
