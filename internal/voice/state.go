package voice

// Phase is where the controller is in a session's lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseListening
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseListening:
		return "listening"
	case PhaseEnded:
		return "ended"
	default:
		return "idle"
	}
}

// Mode selects what happens to transcripts that match no trigger.
type Mode int

const (
	// WakeListening only scans transcripts for wake and close phrases.
	WakeListening Mode = iota
	// ActiveDictation forwards non-trigger transcripts to the host.
	ActiveDictation
)

func (m Mode) String() string {
	if m == ActiveDictation {
		return "dictation"
	}
	return "wake"
}

// controllerState is the whole mutable state of a Controller. It is only
// touched from tasks running on the controller's serial queue.
type controllerState struct {
	phase Phase
	mode  Mode

	// suppressed: another capture flow owns the microphone.
	suppressed bool

	restartAttempts int
	maxRestarts     int

	// shouldRestart is decided while a session ends: false when the host
	// stopped it with restart disabled or a dictation was captured.
	shouldRestart bool
	// handoff: a trigger ended the session and the host re-arms it.
	handoff bool
	// startRequested: a start arrived while the live session was stopping;
	// honored as soon as it ends, with requestedCause.
	startRequested bool
	requestedCause startCause
	// resumed: the current session came from a restart or a resume.
	resumed bool

	gen      uint64
	session  Session
	stopping bool
	deadline Timer
	watchdog Timer

	// pending is the single delayed start: restart debounce or
	// suppression-release resume. pendingGen invalidates older timers.
	pending    Timer
	pendingGen uint64

	unavailable bool
	closed      bool
}

func (s *controllerState) live() bool { return s.session != nil }

// Status is a point-in-time copy of the controller state.
type Status struct {
	Phase           Phase  `json:"-"`
	PhaseName       string `json:"phase"`
	Mode            string `json:"mode"`
	Listening       bool   `json:"listening"`
	Suppressed      bool   `json:"suppressed"`
	RestartAttempts int    `json:"restart_attempts"`
	MaxRestarts     int    `json:"max_restarts"`
	Unavailable     bool   `json:"unavailable"`
}

func (s *controllerState) status() Status {
	return Status{
		Phase:           s.phase,
		PhaseName:       s.phase.String(),
		Mode:            s.mode.String(),
		Listening:       s.live() && !s.stopping,
		Suppressed:      s.suppressed,
		RestartAttempts: s.restartAttempts,
		MaxRestarts:     s.maxRestarts,
		Unavailable:     s.unavailable,
	}
}
