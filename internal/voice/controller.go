package voice

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"videochat/agent/internal/trigger"
)

const (
	DefaultSilenceTimeout = 60 * time.Second
	DefaultMaxRestarts    = 3
	DefaultRestartDelay   = 500 * time.Millisecond
	DefaultResumeDelay    = 2500 * time.Millisecond

	// MaxRestartCeiling bounds Config.MaxRestarts.
	MaxRestartCeiling = 10

	// stopGrace is how long a stopped session may take to report its end
	// before the controller ends it on its own.
	stopGrace = 5 * time.Second
)

// Config is supplied once at construction.
type Config struct {
	WakeWords      []string
	CloseWords     []string
	SilenceTimeout time.Duration
	// MaxRestarts is clamped to [0, MaxRestartCeiling].
	MaxRestarts  int
	RestartDelay time.Duration
	ResumeDelay  time.Duration
}

func (c Config) withDefaults() Config {
	if c.WakeWords == nil {
		c.WakeWords = []string{"wake up"}
	}
	if c.CloseWords == nil {
		c.CloseWords = []string{"close chat"}
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = DefaultSilenceTimeout
	}
	if c.MaxRestarts < 0 {
		c.MaxRestarts = 0
	}
	if c.MaxRestarts > MaxRestartCeiling {
		c.MaxRestarts = MaxRestartCeiling
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = DefaultRestartDelay
	}
	if c.ResumeDelay <= 0 {
		c.ResumeDelay = DefaultResumeDelay
	}
	return c
}

type startCause int

const (
	causeHost startCause = iota
	causeRestart
	causeResume
)

// Controller owns one recognition session at a time and multiplexes it
// between wake-word listening and dictation. Every method returns
// immediately; the work runs on the controller's serial queue, and host
// callbacks are invoked from there.
type Controller struct {
	backend    Backend
	host       Host
	classifier *trigger.Classifier
	cfg        Config
	clock      Clock
	log        zerolog.Logger

	q  serial
	st controllerState

	snapMu sync.Mutex
	snap   Status
}

func New(backend Backend, host Host, cfg Config, logger zerolog.Logger) *Controller {
	return newController(backend, host, cfg, logger, wallClock{})
}

func newController(backend Backend, host Host, cfg Config, logger zerolog.Logger, clock Clock) *Controller {
	cfg = cfg.withDefaults()
	if host == nil {
		host = HostFuncs{}
	}
	c := &Controller{
		backend:    backend,
		host:       host,
		classifier: trigger.New(cfg.WakeWords, cfg.CloseWords),
		cfg:        cfg,
		clock:      clock,
		log:        logger.With().Str("component", "voice").Logger(),
	}
	c.st.maxRestarts = cfg.MaxRestarts
	c.snap = c.st.status()
	return c
}

// Start arms a new session on behalf of the host. It resets the restart
// counter. It is a no-op while a session is listening or while suppressed.
func (c *Controller) Start() { c.do(func() { c.start(causeHost) }) }

// Stop ends the live session. With disableRestart no automatic restart
// follows, whatever the reason the session is ending.
func (c *Controller) Stop(disableRestart bool) { c.do(func() { c.stop(disableRestart) }) }

// SetSuppressed hands the microphone to (true) or back from (false) another
// capture flow. Release resumes wake listening after Config.ResumeDelay.
func (c *Controller) SetSuppressed(flag bool) { c.do(func() { c.setSuppressed(flag) }) }

// SetMode selects how non-trigger transcripts are treated from now on.
func (c *Controller) SetMode(m Mode) {
	c.do(func() {
		if c.st.mode != m {
			c.log.Debug().Stringer("from", c.st.mode).Stringer("to", m).Msg("[voice] mode changed")
			c.st.mode = m
		}
	})
}

// Close stops everything for good. Later calls and backend events are
// ignored.
func (c *Controller) Close() {
	c.q.post(func() {
		st := &c.st
		if st.closed {
			return
		}
		c.cancelPending()
		c.cancelDeadline()
		c.cancelWatchdog()
		if st.live() && !st.stopping {
			st.session.Stop()
		}
		st.session = nil
		st.stopping = false
		st.closed = true
		c.setPhase(PhaseIdle)
		c.publish()
		c.log.Debug().Msg("[voice] controller closed")
	})
}

// Status returns the state as of the last processed event.
func (c *Controller) Status() Status {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.snap
}

func (c *Controller) do(task func()) {
	c.q.post(func() {
		if c.st.closed {
			return
		}
		task()
		c.publish()
	})
}

func (c *Controller) publish() {
	s := c.st.status()
	c.snapMu.Lock()
	c.snap = s
	c.snapMu.Unlock()
}

func (c *Controller) start(cause startCause) {
	st := &c.st
	if st.unavailable {
		return
	}
	if st.live() {
		if st.stopping && cause != causeRestart {
			c.requestStart(cause)
			c.log.Debug().Uint64("gen", st.gen).Msg("[voice] start deferred until the stopping session ends")
			return
		}
		c.log.Debug().Uint64("gen", st.gen).Msg("[voice] already listening; start ignored")
		return
	}
	if st.suppressed {
		c.log.Debug().Msg("[voice] suppressed; start ignored")
		c.setPhase(PhaseIdle)
		return
	}

	switch cause {
	case causeHost:
		st.restartAttempts = 0
		st.resumed = false
		c.cancelPending()
	case causeResume:
		st.restartAttempts = 0
		st.resumed = true
	case causeRestart:
		st.resumed = true
	}

	st.gen++
	gen := st.gen
	st.shouldRestart = true
	st.handoff = false
	st.startRequested = false
	st.stopping = false
	c.setPhase(PhaseStarting)

	sess, err := c.backend.StartSession(&sessionEvents{c: c, gen: gen})
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			st.unavailable = true
			c.setPhase(PhaseIdle)
			c.log.Warn().Err(err).Msg("[voice] recognition unavailable; voice control disabled")
			c.host.Unavailable(err)
			return
		}
		metricBackendErrors.WithLabelValues(string(ErrorOther)).Inc()
		c.log.Error().Err(err).Uint64("gen", gen).Msg("[voice] backend failed to start session")
		c.setPhase(PhaseEnded)
		c.afterEnd()
		return
	}

	st.session = sess
	metricSessionsStarted.Inc()
	st.deadline = c.clock.AfterFunc(c.cfg.SilenceTimeout, func() {
		c.do(func() { c.deadlineFired(gen) })
	})
	c.setPhase(PhaseListening)
	c.log.Info().Uint64("gen", gen).Int("attempt", st.restartAttempts).Stringer("mode", st.mode).Msg("[voice] listening")
	c.host.ListeningChanged(true)
	if st.resumed {
		c.host.ListeningResumed()
	}
}

func (c *Controller) stop(disableRestart bool) {
	st := &c.st
	if disableRestart {
		st.shouldRestart = false
		st.startRequested = false
		c.cancelPending()
	}
	if !st.live() {
		// a pending restart still owns an Ended session
		if st.phase == PhaseEnded && st.pending == nil {
			c.setPhase(PhaseIdle)
		}
		return
	}
	c.requestStop("host_stop")
}

func (c *Controller) setSuppressed(flag bool) {
	st := &c.st
	if st.suppressed == flag {
		return
	}
	st.suppressed = flag
	c.log.Debug().Bool("suppressed", flag).Msg("[voice] suppression changed")

	if flag {
		c.cancelPending()
		st.startRequested = false
		if st.live() {
			st.shouldRestart = false
			c.requestStop("suppressed")
			return
		}
		c.setPhase(PhaseIdle)
		return
	}

	if st.live() && !st.stopping {
		return
	}
	c.schedule(c.cfg.ResumeDelay, causeResume)
}

// requestStop is the one path that stops the live session. The deadline is
// cancelled before anything else.
func (c *Controller) requestStop(reason string) {
	st := &c.st
	c.cancelDeadline()
	if st.stopping {
		return
	}
	st.stopping = true
	gen := st.gen
	c.log.Debug().Uint64("gen", gen).Str("reason", reason).Bool("restart", st.shouldRestart).Msg("[voice] stopping session")
	st.watchdog = c.clock.AfterFunc(stopGrace, func() {
		c.do(func() {
			if gen == c.st.gen && c.st.live() {
				c.log.Warn().Uint64("gen", gen).Msg("[voice] backend never reported end; ending session")
			}
			c.ended(gen)
		})
	})
	st.session.Stop()
}

func (c *Controller) current(gen uint64) bool {
	return gen == c.st.gen && c.st.live()
}

func (c *Controller) started(gen uint64) {
	if !c.current(gen) {
		metricStaleEvents.Inc()
		return
	}
	c.log.Debug().Uint64("gen", gen).Msg("[voice] backend started")
}

func (c *Controller) result(gen uint64, text string, final bool) {
	st := &c.st
	if !c.current(gen) || st.stopping {
		metricStaleEvents.Inc()
		return
	}
	if !final {
		return
	}

	switch kind := c.classifier.Classify(text); kind {
	case trigger.Wake, trigger.Close:
		metricTriggers.WithLabelValues(kind.String()).Inc()
		c.log.Info().Uint64("gen", gen).Stringer("kind", kind).Str("text", text).Msg("[voice] trigger detected")
		st.handoff = true
		st.restartAttempts = 0
		c.requestStop(kind.String())
		if kind == trigger.Wake {
			c.host.WakeTriggered()
		} else {
			c.host.CloseTriggered()
		}
	default:
		if st.mode != ActiveDictation {
			c.log.Debug().Uint64("gen", gen).Str("text", text).Msg("[voice] no trigger; still listening")
			return
		}
		metricTriggers.WithLabelValues("dictation").Inc()
		c.log.Info().Uint64("gen", gen).Str("text", text).Msg("[voice] dictation captured")
		st.shouldRestart = false
		c.requestStop("dictation")
		c.host.DictationResult(strings.TrimSpace(text))
	}
}

func (c *Controller) failed(gen uint64, kind ErrorKind) {
	st := &c.st
	if !c.current(gen) {
		metricStaleEvents.Inc()
		return
	}
	metricBackendErrors.WithLabelValues(string(kind)).Inc()
	if kind == ErrorNoSpeech {
		c.log.Debug().Uint64("gen", gen).Msg("[voice] no speech detected")
	} else {
		c.log.Warn().Uint64("gen", gen).Str("kind", string(kind)).Msg("[voice] recognition error")
	}
	if st.stopping {
		return
	}
	c.requestStop("error_" + string(kind))
}

func (c *Controller) deadlineFired(gen uint64) {
	st := &c.st
	if !c.current(gen) || st.stopping {
		metricStaleEvents.Inc()
		return
	}
	st.deadline = nil
	metricDeadlines.Inc()
	c.log.Info().Uint64("gen", gen).Dur("timeout", c.cfg.SilenceTimeout).Msg("[voice] no trigger before timeout")
	c.requestStop("silence_timeout")
}

func (c *Controller) ended(gen uint64) {
	st := &c.st
	if !c.current(gen) {
		metricStaleEvents.Inc()
		return
	}
	c.cancelDeadline()
	c.cancelWatchdog()
	st.session = nil
	st.stopping = false
	c.setPhase(PhaseEnded)
	c.log.Debug().Uint64("gen", gen).Msg("[voice] session ended")
	c.host.ListeningChanged(false)
	c.afterEnd()
}

// afterEnd applies the restart policy once no session is live.
func (c *Controller) afterEnd() {
	st := &c.st
	switch {
	case st.startRequested:
		st.startRequested = false
		c.setPhase(PhaseIdle)
		c.start(st.requestedCause)
	case st.suppressed, st.handoff, !st.shouldRestart:
		st.handoff = false
		c.setPhase(PhaseIdle)
	case st.restartAttempts < st.maxRestarts:
		st.restartAttempts++
		metricRestarts.Inc()
		c.log.Info().Int("attempt", st.restartAttempts).Int("max", st.maxRestarts).Msg("[voice] restarting recognition")
		c.schedule(c.cfg.RestartDelay, causeRestart)
	default:
		c.setPhase(PhaseIdle)
		metricRestartsExhausted.Inc()
		c.log.Warn().Int("attempts", st.restartAttempts).Msg("[voice] restart ceiling reached; idle until started again")
		c.host.RestartsExhausted(st.restartAttempts)
	}
}

// schedule replaces the pending delayed start.
func (c *Controller) schedule(delay time.Duration, cause startCause) {
	st := &c.st
	c.cancelPending()
	token := st.pendingGen
	st.pending = c.clock.AfterFunc(delay, func() {
		c.do(func() { c.pendingFired(token, cause) })
	})
}

func (c *Controller) pendingFired(token uint64, cause startCause) {
	st := &c.st
	if token != st.pendingGen || st.pending == nil {
		metricStaleEvents.Inc()
		return
	}
	st.pending = nil
	if cause == causeResume && st.live() {
		if st.stopping {
			c.requestStart(cause)
		}
		return
	}
	c.start(cause)
}

// requestStart defers a start until the stopping session ends. A host
// request outranks a resume.
func (c *Controller) requestStart(cause startCause) {
	st := &c.st
	if !st.startRequested || cause == causeHost {
		st.requestedCause = cause
	}
	st.startRequested = true
}

func (c *Controller) cancelPending() {
	st := &c.st
	if st.pending != nil {
		st.pending.Stop()
		st.pending = nil
	}
	// a callback that already fired and is queued must not act
	st.pendingGen++
}

func (c *Controller) cancelDeadline() {
	if c.st.deadline != nil {
		c.st.deadline.Stop()
		c.st.deadline = nil
	}
}

func (c *Controller) cancelWatchdog() {
	if c.st.watchdog != nil {
		c.st.watchdog.Stop()
		c.st.watchdog = nil
	}
}

func (c *Controller) setPhase(to Phase) {
	from := c.st.phase
	if from == to {
		return
	}
	metricPhaseTransitions.WithLabelValues(from.String(), to.String()).Inc()
	c.st.phase = to
}

// sessionEvents binds backend callbacks to one session generation.
type sessionEvents struct {
	c   *Controller
	gen uint64
}

func (e *sessionEvents) Started() { e.c.do(func() { e.c.started(e.gen) }) }

func (e *sessionEvents) Result(text string, final bool) {
	e.c.do(func() { e.c.result(e.gen, text, final) })
}

func (e *sessionEvents) Ended() { e.c.do(func() { e.c.ended(e.gen) }) }

func (e *sessionEvents) Failed(kind ErrorKind) { e.c.do(func() { e.c.failed(e.gen, kind) }) }
