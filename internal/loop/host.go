package loop

import (
	"videochat/agent/internal/floor"
)

// host turns controller callbacks into page frames and event-log entries.
// It runs on the controller's queue.
type host struct {
	d *Dispatcher
	s *sessState
}

func (h *host) ListeningChanged(active bool) {
	h.d.send(h.s.id, "listening", map[string]any{"active": active})
	h.d.store.AppendEvent(h.s.id, "voice_listening", map[string]any{"active": active})
}

func (h *host) WakeTriggered() {
	h.d.send(h.s.id, "wake", nil)
	h.d.store.AppendEvent(h.s.id, "voice_wake", nil)
	h.d.floorDecide(h.s, (*floor.Manager).OnWake)
}

func (h *host) CloseTriggered() {
	h.d.send(h.s.id, "close", nil)
	h.d.store.AppendEvent(h.s.id, "voice_close", nil)
	h.d.floorDecide(h.s, (*floor.Manager).OnClose)
}

func (h *host) DictationResult(text string) {
	h.d.send(h.s.id, "dictation", map[string]any{"text": text})
	h.d.store.AppendEvent(h.s.id, "voice_dictation", map[string]any{"text": text})
	h.d.floorDecide(h.s, (*floor.Manager).OnDictation)
	go h.d.reply(h.s, text, true)
}

func (h *host) ListeningResumed() {
	h.d.send(h.s.id, "listening_resumed", nil)
	h.d.store.AppendEvent(h.s.id, "voice_resumed", nil)
}

func (h *host) Unavailable(err error) {
	h.d.send(h.s.id, "voice_unavailable", map[string]any{"error": err.Error()})
	h.d.store.AppendEvent(h.s.id, "voice_unavailable", map[string]any{"error": err.Error()})
}

func (h *host) RestartsExhausted(attempts int) {
	h.d.send(h.s.id, "voice_idle", map[string]any{"attempts": attempts})
	h.d.store.AppendEvent(h.s.id, "voice_restarts_exhausted", map[string]any{"attempts": attempts})
}
