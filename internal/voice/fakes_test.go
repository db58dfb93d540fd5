package voice

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock only moves when Advance is called. Callbacks run on the
// caller's goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at != due[j].at {
				return due[i].at < due[j].at
			}
			return due[i].seq < due[j].seq
		})
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

// active counts timers that are still armed.
func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeSession struct {
	backend *fakeBackend
	events  SessionEvents
	stops   int
}

func (s *fakeSession) Stop() {
	s.stops++
	if s.backend.endOnStop {
		s.events.Ended()
	}
}

type fakeBackend struct {
	sessions []*fakeSession
	err      error
	// endOnStop makes Stop report Ended synchronously.
	endOnStop bool
	// endAtOnce ends every session as soon as it starts.
	endAtOnce bool
}

func (b *fakeBackend) StartSession(events SessionEvents) (Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	s := &fakeSession{backend: b, events: events}
	b.sessions = append(b.sessions, s)
	events.Started()
	if b.endAtOnce {
		events.Ended()
	}
	return s, nil
}

func (b *fakeBackend) starts() int { return len(b.sessions) }

func (b *fakeBackend) last() *fakeSession {
	if len(b.sessions) == 0 {
		return nil
	}
	return b.sessions[len(b.sessions)-1]
}

type recordingHost struct {
	calls     []string
	dictation []string
	exhausted []int
	errs      []error
}

func (h *recordingHost) ListeningChanged(active bool) {
	if active {
		h.calls = append(h.calls, "listening:on")
	} else {
		h.calls = append(h.calls, "listening:off")
	}
}
func (h *recordingHost) WakeTriggered()    { h.calls = append(h.calls, "wake") }
func (h *recordingHost) CloseTriggered()   { h.calls = append(h.calls, "close") }
func (h *recordingHost) ListeningResumed() { h.calls = append(h.calls, "resumed") }
func (h *recordingHost) DictationResult(text string) {
	h.calls = append(h.calls, "dictation")
	h.dictation = append(h.dictation, text)
}
func (h *recordingHost) Unavailable(err error) {
	h.calls = append(h.calls, "unavailable")
	h.errs = append(h.errs, err)
}
func (h *recordingHost) RestartsExhausted(attempts int) {
	h.calls = append(h.calls, "exhausted")
	h.exhausted = append(h.exhausted, attempts)
}

func (h *recordingHost) count(call string) int {
	n := 0
	for _, c := range h.calls {
		if c == call {
			n++
		}
	}
	return n
}

type harness struct {
	ctrl    *Controller
	clock   *fakeClock
	backend *fakeBackend
	host    *recordingHost
}

func newHarness(cfg Config) *harness {
	h := &harness{clock: &fakeClock{}, backend: &fakeBackend{}, host: &recordingHost{}}
	h.ctrl = newController(h.backend, h.host, cfg, zerolog.Nop(), h.clock)
	return h
}

func testConfig() Config {
	return Config{
		WakeWords:      []string{"hello system"},
		CloseWords:     []string{"goodbye system"},
		SilenceTimeout: 60 * time.Second,
		MaxRestarts:    3,
	}
}
