package attempt

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// Ledger maps question IDs to the selected option index.
// It is not safe for concurrent use; Session guards it.
type Ledger struct {
	questions []model.Question
	index     map[uuid.UUID]int
	answers   map[uuid.UUID]int
}

// NewLedger creates an empty ledger for the given questions.
func NewLedger(questions []model.Question) *Ledger {
	index := make(map[uuid.UUID]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}
	return &Ledger{
		questions: questions,
		index:     index,
		answers:   make(map[uuid.UUID]int, len(questions)),
	}
}

// Select records optionIndex for questionID, overwriting any prior choice.
func (l *Ledger) Select(questionID uuid.UUID, optionIndex int) error {
	pos, ok := l.index[questionID]
	if !ok {
		return fmt.Errorf("%w: unknown question %s", ErrInvalidOption, questionID)
	}
	if !l.questions[pos].HasOption(optionIndex) {
		return fmt.Errorf("%w: option %d out of range for question %s", ErrInvalidOption, optionIndex, questionID)
	}
	l.answers[questionID] = optionIndex
	return nil
}

// Selected returns the recorded option for questionID.
func (l *Ledger) Selected(questionID uuid.UUID) (int, bool) {
	idx, ok := l.answers[questionID]
	return idx, ok
}

// Len is the number of answered questions.
func (l *Ledger) Len() int { return len(l.answers) }

// Snapshot copies the answer map.
func (l *Ledger) Snapshot() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(l.answers))
	for k, v := range l.answers {
		out[k] = v
	}
	return out
}

// Entries flattens the ledger in question order. Unanswered questions are
// omitted rather than sent as blanks.
func (l *Ledger) Entries() []model.AnswerEntry {
	entries := make([]model.AnswerEntry, 0, len(l.answers))
	for _, q := range l.questions {
		if idx, ok := l.answers[q.ID]; ok {
			entries = append(entries, model.AnswerEntry{QuestionID: q.ID, SelectedOption: idx})
		}
	}
	return entries
}
