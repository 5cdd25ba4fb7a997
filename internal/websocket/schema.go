package websocket

import "github.com/stemsi/exstem-attempt/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// SubmitRequest carries the same payload as POST /exams/submit.
type SubmitRequest struct {
	Action  Action              `json:"action"`
	Answers []model.AnswerEntry `json:"answers"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventRemaining Event = "remaining"
	EventExpired   Event = "expired"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// RemainingEvent is pushed once per second while the attempt runs.
type RemainingEvent struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remainingSeconds"`
	ServerTime       int64 `json:"serverTime"`
}

// ExpiredEvent is pushed once when the countdown reaches zero.
type ExpiredEvent struct {
	Event Event `json:"event"`
}

type SubmittedEvent struct {
	Event Event            `json:"event"`
	Ack   *model.SubmitAck `json:"ack"`
}

type ErrorEvent struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongEvent struct {
	Event Event `json:"event"`
}
