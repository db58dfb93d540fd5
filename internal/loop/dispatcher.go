package loop

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"videochat/agent/internal/clientws"
	"videochat/agent/internal/floor"
	"videochat/agent/internal/llm"
	"videochat/agent/internal/store"
	"videochat/agent/internal/stt"
	"videochat/agent/internal/types"
	"videochat/agent/internal/voice"
)

// Assistant answers a prompt. *llm.Client implements it.
type Assistant interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Options select how sessions recognize speech.
type Options struct {
	Voice voice.Config
	// Backend is "browser" or "deepgram"; a session record may override it.
	Backend        string
	Deepgram       stt.DGConfig
	DeepgramAPIKey string
	ReplyTimeout   time.Duration
}

// Dispatcher owns one voice controller per page and maps page messages
// and controller callbacks onto each other.
type Dispatcher struct {
	reg   *clientws.Registry
	store *store.Store
	llm   Assistant
	opts  Options
	log   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*sessState
}

type sessState struct {
	id    string
	ctrl  *voice.Controller
	relay *clientws.RelayBackend
	dg    *stt.Backend

	mu  sync.Mutex
	fsm *floor.Manager
}

func New(reg *clientws.Registry, st *store.Store, assistant Assistant, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 30 * time.Second
	}
	return &Dispatcher{
		reg:      reg,
		store:    st,
		llm:      assistant,
		opts:     opts,
		log:      logger.With().Str("component", "loop").Logger(),
		sessions: make(map[string]*sessState),
	}
}

// state returns the session's controller, creating it on first use. It
// returns nil once the session has been ended.
func (d *Dispatcher) state(sessionID string) *sessState {
	d.mu.Lock()
	defer d.mu.Unlock()
	sess := d.store.GetSession(sessionID)
	if sess != nil && sess.Status == types.StatusClosed {
		return nil
	}
	s := d.sessions[sessionID]
	if s != nil {
		return s
	}
	s = &sessState{id: sessionID, fsm: floor.New()}
	backend := d.opts.Backend
	if sess != nil && sess.Backend != "" {
		backend = sess.Backend
	}
	var vb voice.Backend
	if backend == "deepgram" {
		s.dg = stt.NewBackend(d.opts.Deepgram, d.opts.DeepgramAPIKey, d.log)
		vb = s.dg
	} else {
		s.relay = clientws.NewRelayBackend(sessionID, d.reg)
		vb = s.relay
	}
	logger := d.log.With().Str("sid", sessionID).Logger()
	s.ctrl = voice.New(vb, &host{d: d, s: s}, d.opts.Voice, logger)
	d.sessions[sessionID] = s
	return s
}

func (d *Dispatcher) lookup(sessionID string) *sessState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[sessionID]
}

// floorDecide runs f against the floor manager and applies the decision
// after releasing the lock. Controller calls may run host callbacks inline,
// and those take the same lock.
func (d *Dispatcher) floorDecide(s *sessState, f func(*floor.Manager) floor.Decision) floor.Decision {
	s.mu.Lock()
	dec := f(s.fsm)
	s.mu.Unlock()
	d.apply(s, dec)
	return dec
}

func (d *Dispatcher) apply(s *sessState, dec floor.Decision) {
	mode := voice.WakeListening
	if dec.Dictate {
		mode = voice.ActiveDictation
	}
	s.ctrl.SetMode(mode)
	s.ctrl.SetSuppressed(dec.Suppressed)
	if dec.Rearm {
		s.ctrl.Start()
	}
	d.log.Debug().Str("sid", s.id).Str("reason", dec.Reason).Bool("dictate", dec.Dictate).
		Bool("suppressed", dec.Suppressed).Bool("rearm", dec.Rearm).Msg("[loop] floor decision")
}

func (d *Dispatcher) OnConnect(sessionID string) {
	d.state(sessionID)
}

func (d *Dispatcher) OnDisconnect(sessionID string) {
	s := d.lookup(sessionID)
	if s == nil {
		return
	}
	s.ctrl.Stop(true)
	if s.relay != nil {
		s.relay.Disconnect()
	}
}

func (d *Dispatcher) OnAudio(sessionID string, pcm []byte) {
	s := d.lookup(sessionID)
	if s == nil || s.dg == nil {
		return
	}
	s.dg.Feed(pcm)
}

// OnMessage processes a page message and may send frames back to the page.
func (d *Dispatcher) OnMessage(sessionID string, msg clientws.Message) {
	s := d.state(sessionID)
	if s == nil {
		d.log.Debug().Str("sid", sessionID).Str("type", msg.Type).Msg("[loop] frame for ended session dropped")
		d.store.AppendEvent(sessionID, "client_msg_after_end", map[string]any{"type": msg.Type})
		return
	}
	if s.relay != nil && s.relay.HandleEvent(msg) {
		return
	}

	switch msg.Type {
	case "hello":
		if ok, present := msg.Bool("speech_supported"); present && s.relay != nil {
			s.relay.SetSupported(ok)
		}
		d.store.AppendEvent(sessionID, "client_hello", msg.Payload)
	case "playback_started":
		d.floorDecide(s, (*floor.Manager).OnPlaybackStarted)
		d.store.AppendEvent(sessionID, "playback_started", nil)
	case "playback_paused":
		d.floorDecide(s, (*floor.Manager).OnPlaybackPaused)
		s.ctrl.Stop(true)
		d.store.AppendEvent(sessionID, "playback_paused", nil)
	case "chat_opened":
		d.floorDecide(s, (*floor.Manager).OnChatOpened)
		d.store.AppendEvent(sessionID, "chat_opened", map[string]any{"source": "ui"})
	case "chat_closed":
		d.floorDecide(s, (*floor.Manager).OnChatClosed)
		d.store.AppendEvent(sessionID, "chat_closed", map[string]any{"source": "ui"})
	case "ptt_start":
		d.floorDecide(s, (*floor.Manager).OnPTTStart)
		d.store.AppendEvent(sessionID, "ptt_start", nil)
	case "ptt_end":
		d.floorDecide(s, (*floor.Manager).OnPTTEnd)
		d.store.AppendEvent(sessionID, "ptt_end", nil)
	case "chat_message":
		text := msg.Str("text")
		if text == "" {
			return
		}
		d.store.AppendEvent(sessionID, "chat_message", map[string]any{"text": text})
		go d.reply(s, text, false)
	default:
		d.store.AppendEvent(sessionID, "client_msg_unknown", map[string]any{"type": msg.Type})
	}
}

// reply asks the assistant and sends the answer, or the apology, to the page.
func (d *Dispatcher) reply(s *sessState, text string, dictated bool) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.ReplyTimeout)
	defer cancel()

	start := time.Now()
	answer, err := d.llm.Invoke(ctx, llm.Prompt(text))
	payload := map[string]any{"latency_ms": time.Since(start).Milliseconds()}
	if err != nil {
		d.log.Warn().Err(err).Str("sid", s.id).Msg("[loop] assistant failed")
		answer = llm.FailureReply(err)
		payload["error"] = err.Error()
	}
	payload["text"] = answer
	d.store.AppendEvent(s.id, "assistant_reply", payload)
	d.send(s.id, "assistant_reply", map[string]any{"text": answer, "failed": err != nil})

	if dictated {
		d.floorDecide(s, (*floor.Manager).OnReply)
	}
}

func (d *Dispatcher) send(sessionID, typ string, payload map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := clientws.Message{
		Type:      typ,
		TsMs:      time.Now().UnixMilli(),
		SessionID: sessionID,
		CommandID: uuid.New().String(),
		Payload:   payload,
	}
	if err := d.reg.SendJSON(ctx, sessionID, out); err != nil {
		d.log.Debug().Err(err).Str("sid", sessionID).Str("type", typ).Msg("[loop] send failed")
	}
}

// Start and Stop are the host operations exposed over REST.
func (d *Dispatcher) Start(sessionID string) {
	if s := d.state(sessionID); s != nil {
		s.ctrl.Start()
	}
}

func (d *Dispatcher) Stop(sessionID string, disableRestart bool) {
	if s := d.lookup(sessionID); s != nil {
		s.ctrl.Stop(disableRestart)
	}
}

func (d *Dispatcher) Status(sessionID string) (voice.Status, bool) {
	s := d.lookup(sessionID)
	if s == nil {
		return voice.Status{}, false
	}
	return s.ctrl.Status(), true
}

// Detach closes the session's controller and forgets it.
func (d *Dispatcher) Detach(sessionID string) {
	d.mu.Lock()
	s := d.sessions[sessionID]
	delete(d.sessions, sessionID)
	d.mu.Unlock()
	if s != nil {
		s.ctrl.Close()
	}
}

// Close detaches every session, for shutdown.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	ids := make([]string, 0, len(d.sessions))
	for id := range d.sessions {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	for _, id := range ids {
		d.Detach(id)
	}
}
