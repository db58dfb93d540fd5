package voice

import "errors"

// ErrUnsupported is returned by a Backend that cannot recognize speech on
// this platform. The controller reports it to the host once and never
// starts a session afterwards.
var ErrUnsupported = errors.New("speech recognition not supported")

// ErrorKind is the closed set of recognition errors a backend reports.
type ErrorKind string

const (
	ErrorNoSpeech         ErrorKind = "no-speech"
	ErrorPermissionDenied ErrorKind = "permission-denied"
	ErrorAborted          ErrorKind = "aborted"
	ErrorOther            ErrorKind = "other"
)

// ParseErrorKind maps a backend error string onto ErrorKind. Web Speech
// reports denied permission as "not-allowed"; anything unknown is "other".
func ParseErrorKind(s string) ErrorKind {
	switch s {
	case string(ErrorNoSpeech):
		return ErrorNoSpeech
	case string(ErrorPermissionDenied), "not-allowed", "service-not-allowed":
		return ErrorPermissionDenied
	case string(ErrorAborted):
		return ErrorAborted
	default:
		return ErrorOther
	}
}

// SessionEvents receives the lifecycle of one recognition session. The
// controller hands every session its own SessionEvents, so a backend never
// needs to know which session is current.
type SessionEvents interface {
	Started()
	Result(text string, final bool)
	Ended()
	Failed(kind ErrorKind)
}

// Session is a handle to one run of the backend.
type Session interface {
	Stop()
}

// Backend is a continuous speech-to-text engine. Only the controller may
// call it; it owns the microphone while a session is live.
type Backend interface {
	StartSession(events SessionEvents) (Session, error)
}
