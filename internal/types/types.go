package types

import "time"

type Event struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Session is one viewer page attached to the agent.
type Session struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`

	// Backend is the recognition backend serving this page: "browser" or "deepgram".
	Backend         string     `json:"backend"`
	ClientConnected bool       `json:"client_connected"`
	LastSeenAt      *time.Time `json:"last_seen_at,omitempty"`
}

const (
	StatusCreated   = "created"
	StatusConnected = "connected"
	StatusClosed    = "closed"
)
