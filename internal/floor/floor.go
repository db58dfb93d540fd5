package floor

// Decision is what the voice controller should be told after a page event.
// Dispatchers apply it as SetMode, SetSuppressed, then Start when Rearm.
type Decision struct {
	Dictate    bool // chat panel is open: non-trigger speech is dictation
	Suppressed bool // paused, another capture flow, or a pending reply owns the mic
	Rearm      bool
	Reason     string // e.g., "wake", "reply", "ptt_start"
}

// Manager tracks who owns the microphone on one page: the passive
// recognizer, the push-to-talk button, or nobody while a reply is pending.
type Manager struct {
	playing      bool
	chatOpen     bool
	replyPending bool
	pttActive    bool
}

func New() *Manager { return &Manager{} }

func (m *Manager) decide(rearm bool, reason string) Decision {
	return Decision{
		Dictate:    m.chatOpen,
		Suppressed: m.replyPending || m.pttActive || !m.playing,
		Rearm:      rearm && m.playing,
		Reason:     reason,
	}
}

func (m *Manager) OnPlaybackStarted() Decision {
	m.playing = true
	return m.decide(true, "playback_started")
}

// OnPlaybackPaused never re-arms; the dispatcher stops listening for good.
func (m *Manager) OnPlaybackPaused() Decision {
	m.playing = false
	return m.decide(false, "playback_paused")
}

func (m *Manager) OnWake() Decision {
	m.chatOpen = true
	return m.decide(true, "wake")
}

func (m *Manager) OnClose() Decision {
	m.chatOpen = false
	return m.decide(true, "close")
}

// OnChatOpened and OnChatClosed are the panel toggled by hand.
func (m *Manager) OnChatOpened() Decision {
	m.chatOpen = true
	return m.decide(true, "chat_opened")
}

func (m *Manager) OnChatClosed() Decision {
	m.chatOpen = false
	return m.decide(true, "chat_closed")
}

// OnDictation holds the mic until the reply to the dictated text arrives.
func (m *Manager) OnDictation() Decision {
	m.replyPending = true
	return m.decide(false, "reply_pending")
}

func (m *Manager) OnReply() Decision {
	m.replyPending = false
	return m.decide(false, "reply")
}

func (m *Manager) OnPTTStart() Decision {
	m.pttActive = true
	return m.decide(false, "ptt_start")
}

func (m *Manager) OnPTTEnd() Decision {
	m.pttActive = false
	return m.decide(false, "ptt_end")
}

func (m *Manager) ChatOpen() bool { return m.chatOpen }
