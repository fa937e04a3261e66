// Package tutor runs the question flow of a tutoring session: level choice,
// question generation, answer checking, explanations and goal transitions.
package tutor

import (
	"errors"
	"time"

	"github.com/p-n-ai/scai/internal/progress"
	"github.com/p-n-ai/scai/internal/scai"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionEnded     = errors.New("session ended")
	ErrInvalidLevel     = errors.New("invalid level")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnexpectedAction = errors.New("action not allowed in current state")
)

// State is the step of the question flow a session is waiting on.
type State string

const (
	StateAwaitingLevel      State = "awaiting_level"
	StateAwaitingAnswer     State = "awaiting_answer"
	StateAnswered           State = "answered"
	StateAwaitingGoalChoice State = "awaiting_goal_choice"
	StateEnded              State = "ended"
)

// Session is one learner's pass through a lesson.
type Session struct {
	ID           string          `json:"id"`
	UserName     string          `json:"user_name"`
	Subject      string          `json:"subject"`
	Chapter      string          `json:"chapter"`
	LessonKey    string          `json:"lesson_key"`
	Level        int             `json:"level,omitempty"`
	State        State           `json:"state"`
	QuestionID   scai.QuestionID `json:"question_id,omitempty"`
	QuestionText string          `json:"question_text,omitempty"`
	LastAnswer   string          `json:"last_answer,omitempty"`
	Progress     progress.State  `json:"progress"`
	StartedAt    time.Time       `json:"started_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
}

// Ended reports whether the session has been closed.
func (s *Session) Ended() bool {
	return s.EndedAt != nil || s.State == StateEnded
}
