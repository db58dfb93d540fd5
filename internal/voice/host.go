package voice

// Host is the application surrounding the controller. It owns every UI and
// network effect; the controller only tells it what happened.
type Host interface {
	ListeningChanged(active bool)
	WakeTriggered()
	CloseTriggered()
	// DictationResult carries the final transcript as recognized, with
	// surrounding whitespace trimmed. Case is preserved.
	DictationResult(text string)
	// ListeningResumed fires when listening comes back on its own, after an
	// automatic restart or a suppression release.
	ListeningResumed()
	// Unavailable is reported once when the backend cannot run at all.
	Unavailable(err error)
	// RestartsExhausted reports that the restart ceiling was hit and the
	// controller is idle until the host calls Start again.
	RestartsExhausted(attempts int)
}

// HostFuncs adapts optional callbacks to Host. Nil fields are skipped.
type HostFuncs struct {
	OnListeningChanged  func(active bool)
	OnWakeTriggered     func()
	OnCloseTriggered    func()
	OnDictationResult   func(text string)
	OnListeningResumed  func()
	OnUnavailable       func(err error)
	OnRestartsExhausted func(attempts int)
}

func (h HostFuncs) ListeningChanged(active bool) {
	if h.OnListeningChanged != nil {
		h.OnListeningChanged(active)
	}
}

func (h HostFuncs) WakeTriggered() {
	if h.OnWakeTriggered != nil {
		h.OnWakeTriggered()
	}
}

func (h HostFuncs) CloseTriggered() {
	if h.OnCloseTriggered != nil {
		h.OnCloseTriggered()
	}
}

func (h HostFuncs) DictationResult(text string) {
	if h.OnDictationResult != nil {
		h.OnDictationResult(text)
	}
}

func (h HostFuncs) ListeningResumed() {
	if h.OnListeningResumed != nil {
		h.OnListeningResumed()
	}
}

func (h HostFuncs) Unavailable(err error) {
	if h.OnUnavailable != nil {
		h.OnUnavailable(err)
	}
}

func (h HostFuncs) RestartsExhausted(attempts int) {
	if h.OnRestartsExhausted != nil {
		h.OnRestartsExhausted(attempts)
	}
}
