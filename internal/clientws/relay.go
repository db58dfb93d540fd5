package clientws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"videochat/agent/internal/voice"
)

const relayWriteTimeout = 2 * time.Second

// Sender delivers frames to a page. *Registry implements it.
type Sender interface {
	SendJSON(ctx context.Context, sessionID string, v any) error
}

// RelayBackend runs recognition in the page: recognition_start and
// recognition_stop go out tagged with a seq, and the page answers with
// recognition_started|result|ended|error frames carrying the same seq.
type RelayBackend struct {
	sessionID string
	send      Sender

	mu          sync.Mutex
	seq         int64
	live        map[int64]voice.SessionEvents
	unsupported bool
}

func NewRelayBackend(sessionID string, send Sender) *RelayBackend {
	return &RelayBackend{sessionID: sessionID, send: send, live: make(map[int64]voice.SessionEvents)}
}

// SetSupported records whether the page has a speech recognizer at all.
func (b *RelayBackend) SetSupported(ok bool) {
	b.mu.Lock()
	b.unsupported = !ok
	b.mu.Unlock()
}

// StartSession implements voice.Backend.
func (b *RelayBackend) StartSession(events voice.SessionEvents) (voice.Session, error) {
	b.mu.Lock()
	if b.unsupported {
		b.mu.Unlock()
		return nil, fmt.Errorf("page reports no speech recognition: %w", voice.ErrUnsupported)
	}
	b.seq++
	seq := b.seq
	b.live[seq] = events
	b.mu.Unlock()

	if err := b.command("recognition_start", seq); err != nil {
		b.take(seq)
		return nil, fmt.Errorf("send recognition_start: %w", err)
	}
	return &relaySession{b: b, seq: seq}, nil
}

// HandleEvent routes a recognition frame to the session it belongs to. It
// reports false for frames that are not recognition events.
func (b *RelayBackend) HandleEvent(msg Message) bool {
	switch msg.Type {
	case "recognition_started", "recognition_result", "recognition_error":
		events := b.lookup(msg.Seq)
		if events == nil {
			metricRelayStale.Inc()
			return true
		}
		switch msg.Type {
		case "recognition_started":
			events.Started()
		case "recognition_result":
			final, _ := msg.Bool("final")
			events.Result(msg.Str("text"), final)
		case "recognition_error":
			events.Failed(voice.ParseErrorKind(msg.Str("error")))
		}
		return true
	case "recognition_ended":
		if events := b.take(msg.Seq); events != nil {
			events.Ended()
		} else {
			metricRelayStale.Inc()
		}
		return true
	}
	return false
}

// Disconnect ends every session the page was running; the page is gone.
func (b *RelayBackend) Disconnect() {
	b.mu.Lock()
	live := b.live
	b.live = make(map[int64]voice.SessionEvents)
	b.mu.Unlock()
	for _, events := range live {
		events.Ended()
	}
}

func (b *RelayBackend) command(typ string, seq int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), relayWriteTimeout)
	defer cancel()
	return b.send.SendJSON(ctx, b.sessionID, Message{
		Type:      typ,
		TsMs:      time.Now().UnixMilli(),
		SessionID: b.sessionID,
		Seq:       seq,
	})
}

func (b *RelayBackend) lookup(seq int64) voice.SessionEvents {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live[seq]
}

func (b *RelayBackend) take(seq int64) voice.SessionEvents {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.live[seq]
	delete(b.live, seq)
	return events
}

type relaySession struct {
	b   *RelayBackend
	seq int64
}

// Stop asks the page to stop. If the page cannot be reached the session is
// ended here.
func (s *relaySession) Stop() {
	if err := s.b.command("recognition_stop", s.seq); err != nil {
		if events := s.b.take(s.seq); events != nil {
			events.Ended()
		}
	}
}
