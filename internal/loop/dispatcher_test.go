package loop

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"videochat/agent/internal/auth"
	"videochat/agent/internal/clientws"
	"videochat/agent/internal/store"
	"videochat/agent/internal/types"
	"videochat/agent/internal/voice"
)

type fakeAssistant struct {
	reply string
	err   error
	got   chan string
}

func (f *fakeAssistant) Invoke(ctx context.Context, prompt string) (string, error) {
	f.got <- prompt
	return f.reply, f.err
}

type page struct {
	t   *testing.T
	ctx context.Context
	c   *ws.Conn
}

func (p *page) send(typ string, seq int64, payload map[string]any) {
	p.t.Helper()
	b, _ := json.Marshal(clientws.Message{Type: typ, Seq: seq, SessionID: "s1", Payload: payload})
	if err := p.c.Write(p.ctx, ws.MessageText, b); err != nil {
		p.t.Fatalf("write %s: %v", typ, err)
	}
}

// expect reads frames until one of type typ arrives.
func (p *page) expect(typ string) clientws.Message {
	p.t.Helper()
	for {
		_, data, err := p.c.Read(p.ctx)
		if err != nil {
			p.t.Fatalf("waiting for %s: %v", typ, err)
		}
		var m clientws.Message
		if err := json.Unmarshal(data, &m); err != nil {
			p.t.Fatalf("decode: %v", err)
		}
		if m.Type == typ {
			return m
		}
	}
}

// expectNone fails if a frame of type typ arrives within d.
func (p *page) expectNone(typ string, d time.Duration) {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(p.ctx, d)
	defer cancel()
	for {
		_, data, err := p.c.Read(ctx)
		if err != nil {
			return
		}
		var m clientws.Message
		if json.Unmarshal(data, &m) == nil && m.Type == typ {
			p.t.Fatalf("unexpected %s frame: %+v", typ, m)
		}
	}
}

func setup(t *testing.T, assistant Assistant) (*page, *Dispatcher, *store.Store) {
	t.Helper()
	st := store.New()
	_ = st.CreateSession(&types.Session{ID: "s1", Backend: "browser"})
	reg := clientws.NewRegistry()
	signer := auth.NewSigner("secret", time.Hour, time.Minute)
	d := New(reg, st, assistant, Options{
		Voice: voice.Config{
			WakeWords:   []string{"hello system"},
			CloseWords:  []string{"goodbye system"},
			MaxRestarts: 3,
			ResumeDelay: 50 * time.Millisecond,
		},
		Backend: "browser",
	}, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(clientws.NewServer(st, reg, signer, d, zerolog.Nop()).HandleClientWS))
	t.Cleanup(srv.Close)
	t.Cleanup(d.Close)

	tok, _, _ := signer.Mint("s1")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	c, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?session_id=s1&token="+tok, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(ws.StatusNormalClosure, "bye") })
	return &page{t: t, ctx: ctx, c: c}, d, st
}

func TestWakeDictateReply(t *testing.T) {
	assistant := &fakeAssistant{reply: "It is about Go.", got: make(chan string, 1)}
	p, d, _ := setup(t, assistant)

	p.send("hello", 0, map[string]any{"speech_supported": true})
	p.send("playback_started", 0, nil)
	start := p.expect("recognition_start")
	if start.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", start.Seq)
	}
	p.send("recognition_started", 1, nil)
	p.send("recognition_result", 1, map[string]any{"text": "Hello System", "final": true})
	if stop := p.expect("recognition_stop"); stop.Seq != 1 {
		t.Fatalf("expected stop for seq 1, got %d", stop.Seq)
	}
	p.expect("wake")
	p.send("recognition_ended", 1, nil)

	start = p.expect("recognition_start")
	if start.Seq != 2 {
		t.Fatalf("expected re-arm with seq 2, got %d", start.Seq)
	}
	p.send("recognition_result", 2, map[string]any{"text": " what is this video about ", "final": true})
	p.expect("recognition_stop")
	if m := p.expect("dictation"); m.Str("text") != "what is this video about" {
		t.Fatalf("unexpected dictation %v", m.Payload)
	}
	p.send("recognition_ended", 2, nil)

	select {
	case prompt := <-assistant.got:
		if !strings.HasSuffix(prompt, `"what is this video about"`) {
			t.Fatalf("unexpected prompt %q", prompt)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("assistant never asked")
	}
	if m := p.expect("assistant_reply"); m.Str("text") != "It is about Go." {
		t.Fatalf("unexpected reply %v", m.Payload)
	}

	// the reply releases the mic and dictation resumes
	if start := p.expect("recognition_start"); start.Seq != 3 {
		t.Fatalf("expected resume with seq 3, got %d", start.Seq)
	}
	p.expect("listening_resumed")
	waitStatus(t, d, func(st voice.Status) bool { return st.Mode == "dictation" && st.Listening })
}

func TestAssistantFailureSendsApology(t *testing.T) {
	assistant := &fakeAssistant{err: errors.New("boom"), got: make(chan string, 1)}
	p, _, st := setup(t, assistant)

	p.send("chat_message", 0, map[string]any{"text": "hi"})
	m := p.expect("assistant_reply")
	if m.Str("text") != "I'm sorry, I encountered an error. Please try again!" {
		t.Fatalf("unexpected reply %v", m.Payload)
	}
	if failed, _ := m.Bool("failed"); !failed {
		t.Fatalf("reply should be flagged as failed")
	}

	var logged bool
	for _, ev := range st.ListEvents("s1") {
		if ev.Type == "assistant_reply" && ev.Payload["error"] == "boom" {
			logged = true
		}
	}
	if !logged {
		t.Fatalf("expected failure in the event log")
	}
}

func TestUnsupportedPageIsReported(t *testing.T) {
	p, d, _ := setup(t, &fakeAssistant{got: make(chan string, 1)})
	p.send("hello", 0, map[string]any{"speech_supported": false})
	p.send("playback_started", 0, nil)
	p.expect("voice_unavailable")
	waitStatus(t, d, func(st voice.Status) bool { return st.Unavailable })
}

func TestPauseStopsWithoutRestart(t *testing.T) {
	p, d, _ := setup(t, &fakeAssistant{got: make(chan string, 1)})
	p.send("playback_started", 0, nil)
	p.expect("recognition_start")
	p.send("playback_paused", 0, nil)
	stop := p.expect("recognition_stop")
	p.send("recognition_ended", stop.Seq, nil)
	if m := p.expect("listening"); m.Payload["active"] != false {
		t.Fatalf("expected listening:false, got %v", m.Payload)
	}
	waitStatus(t, d, func(st voice.Status) bool { return !st.Listening && st.Phase == voice.PhaseIdle })
}

func TestPushToTalkWhilePausedKeepsMicOff(t *testing.T) {
	p, d, _ := setup(t, &fakeAssistant{got: make(chan string, 1)})
	p.send("playback_started", 0, nil)
	p.expect("recognition_start")
	p.send("playback_paused", 0, nil)
	stop := p.expect("recognition_stop")
	p.send("recognition_ended", stop.Seq, nil)
	waitStatus(t, d, func(st voice.Status) bool { return st.Phase == voice.PhaseIdle })

	p.send("ptt_start", 0, nil)
	p.send("ptt_end", 0, nil)
	p.expectNone("recognition_start", 300*time.Millisecond)

	st, _ := d.Status("s1")
	if st.Listening || !st.Suppressed {
		t.Fatalf("paused page must keep the mic suppressed, got %+v", st)
	}
}

func TestFramesAfterEndDoNotReviveController(t *testing.T) {
	p, d, st := setup(t, &fakeAssistant{got: make(chan string, 1)})
	p.send("playback_started", 0, nil)
	p.expect("recognition_start")

	st.SetStatus("s1", types.StatusClosed)
	d.Detach("s1")
	p.send("playback_started", 0, nil)

	deadline := time.Now().Add(2 * time.Second)
	for !hasEvent(st, "client_msg_after_end") {
		if time.Now().After(deadline) {
			t.Fatalf("frame after end was never dropped")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := d.Status("s1"); ok {
		t.Fatalf("ended session must not get a new controller")
	}
}

func hasEvent(st *store.Store, typ string) bool {
	for _, ev := range st.ListEvents("s1") {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

// waitStatus polls until the controller has published a matching status.
func waitStatus(t *testing.T, d *Dispatcher, ok func(voice.Status) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, _ := d.Status("s1")
		if ok(st) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never matched, last %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
