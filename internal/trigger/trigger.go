package trigger

import "strings"

// Kind is the outcome of classifying one final transcript.
type Kind int

const (
	None Kind = iota
	Wake
	Close
)

func (k Kind) String() string {
	switch k {
	case Wake:
		return "wake"
	case Close:
		return "close"
	default:
		return "none"
	}
}

// Classify reports whether transcript contains one of the wake or close
// phrases. Matching is case-insensitive substring containment and wake
// phrases win over close phrases.
func Classify(transcript string, wake, close []string) Kind {
	return New(wake, close).Classify(transcript)
}

// Classifier holds normalized phrase lists so repeated classification does
// not re-normalize them.
type Classifier struct {
	wake  []string
	close []string
}

func New(wake, close []string) *Classifier {
	return &Classifier{wake: normalizeAll(wake), close: normalizeAll(close)}
}

func (c *Classifier) Classify(transcript string) Kind {
	text := Normalize(transcript)
	if text == "" {
		return None
	}
	if containsAny(text, c.wake) {
		return Wake
	}
	if containsAny(text, c.close) {
		return Close
	}
	return None
}

// WakeWords returns a copy of the normalized wake phrases.
func (c *Classifier) WakeWords() []string { return append([]string(nil), c.wake...) }

// CloseWords returns a copy of the normalized close phrases.
func (c *Classifier) CloseWords() []string { return append([]string(nil), c.close...) }

// Normalize trims and lower-cases a transcript or phrase.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		// an empty phrase would match every transcript
		if n := Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
