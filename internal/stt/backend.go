package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"videochat/agent/internal/voice"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second

	// closeGrace is how long Deepgram gets to flush after CloseStream.
	closeGrace = 3 * time.Second
)

// Backend runs recognition server-side: each session is one live Deepgram
// socket fed with PCM16 16kHz mono audio through Feed.
type Backend struct {
	cfg    DGConfig
	apiKey string
	log    zerolog.Logger

	mu  sync.Mutex
	cur *session
}

func NewBackend(cfg DGConfig, apiKey string, logger zerolog.Logger) *Backend {
	return &Backend{cfg: cfg, apiKey: apiKey, log: logger.With().Str("component", "deepgram").Logger()}
}

// StartSession implements voice.Backend.
func (b *Backend) StartSession(events voice.SessionEvents) (voice.Session, error) {
	if b.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not set: %w", voice.ErrUnsupported)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		b:      b,
		ctx:    ctx,
		cancel: cancel,
		events: events,
		sendQ:  make(chan []byte, 8),
		stopCh: make(chan struct{}),
	}
	b.mu.Lock()
	b.cur = s
	b.mu.Unlock()
	go s.run()
	return s, nil
}

// Feed queues audio for the live session and drops it when there is none
// or the provider is not keeping up.
func (b *Backend) Feed(pcm []byte) bool {
	b.mu.Lock()
	s := b.cur
	b.mu.Unlock()
	if s == nil {
		metricDrops.Inc()
		return false
	}
	select {
	case s.sendQ <- pcm:
		metricAudioBytes.Add(float64(len(pcm)))
		return true
	default:
		metricDrops.Inc()
		return false
	}
}

func (b *Backend) release(s *session) {
	b.mu.Lock()
	if b.cur == s {
		b.cur = nil
	}
	b.mu.Unlock()
}

type session struct {
	b      *Backend
	ctx    context.Context
	cancel context.CancelFunc
	events voice.SessionEvents

	sendQ    chan []byte
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Stop asks Deepgram to finalize and close. Ended follows once the socket
// is gone.
func (s *session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		time.AfterFunc(closeGrace, s.cancel)
	})
}

func (s *session) run() {
	defer s.b.release(s)
	defer s.cancel()
	defer s.events.Ended()

	gaugeSessions.Inc()
	defer gaugeSessions.Dec()

	log := s.b.log
	hdr := make(http.Header)
	hdr.Set("Authorization", "Token "+s.b.apiKey)

	dctx, cancel := context.WithTimeout(s.ctx, dialTimeout)
	start := time.Now()
	ws, resp, err := websocket.Dial(dctx, s.b.cfg.listenURL(), &websocket.DialOptions{HTTPHeader: hdr})
	cancel()
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		kind := dialErrorKind(resp)
		metricConnectErrors.WithLabelValues(string(kind)).Inc()
		log.Warn().Err(err).Str("kind", string(kind)).Msg("[deepgram] connect failed")
		s.events.Failed(kind)
		return
	}
	metricConnectMS.Observe(float64(time.Since(start).Milliseconds()))
	log.Debug().Int64("ms", time.Since(start).Milliseconds()).Msg("[deepgram] connected")
	defer ws.Close(websocket.StatusNormalClosure, "bye")
	s.events.Started()

	go s.pump(ws)

	var tr transcriptTracker
	for {
		_, data, err := ws.Read(s.ctx)
		if err != nil {
			if s.stopped() || s.ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			log.Warn().Err(err).Msg("[deepgram] read failed")
			s.events.Failed(voice.ErrorOther)
			return
		}
		ev, ok, err := tr.parse(data)
		if err != nil {
			log.Debug().Err(err).Msg("[deepgram] skipping frame")
			continue
		}
		if !ok {
			continue
		}
		switch ev.Type {
		case "interim":
			s.events.Result(ev.Text, false)
		case "final":
			log.Debug().Str("text", ev.Text).Msg("[deepgram] final")
			s.events.Result(ev.Text, true)
		case "error":
			log.Warn().Str("msg", ev.Text).Msg("[deepgram] provider error")
			s.events.Failed(voice.ErrorOther)
		}
	}
}

// pump writes queued audio until Stop, then sends CloseStream.
func (s *session) pump(ws *websocket.Conn) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.stopCh:
			wctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			_ = ws.Write(wctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
			cancel()
			return
		case b := <-s.sendQ:
			if len(b) == 0 {
				continue
			}
			wctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := ws.Write(wctx, websocket.MessageBinary, b)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.b.log.Debug().Err(err).Msg("[deepgram] write failed")
				}
				return
			}
		}
	}
}

func (s *session) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func dialErrorKind(resp *http.Response) voice.ErrorKind {
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return voice.ErrorPermissionDenied
	}
	return voice.ErrorOther
}
