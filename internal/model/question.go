package model

import "github.com/google/uuid"

// Question is a single multiple-choice question. Options are addressed by
// their 0-based index. CorrectOption never leaves the server.
type Question struct {
	ID            uuid.UUID `json:"id"`
	Text          string    `json:"text"`
	Options       []string  `json:"options"`
	Marks         float64   `json:"marks"`
	OrderNum      int       `json:"-"`
	CorrectOption int       `json:"-"`
}

// HasOption reports whether idx addresses one of the question's options.
func (q *Question) HasOption(idx int) bool {
	return idx >= 0 && idx < len(q.Options)
}
