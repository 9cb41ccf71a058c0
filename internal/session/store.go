// Package session keeps the per-mount answer state of rendered pages.
//
// Every page view creates a mount. A mount owns the learner's answers for the
// quiz, the inline checks and the mock exam on that page, and lives until it
// is unmounted or its TTL lapses.
package session

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/elec-mate/coursepages/internal/quiz"
)

var (
	// ErrMountNotFound is returned for unknown, expired or unmounted mounts.
	ErrMountNotFound = errors.New("mount not found")
	// ErrNoExam is returned for exam operations on a page without an exam.
	ErrNoExam = errors.New("page has no exam")
)

// MountState is the persisted answer state of one page mount.
type MountState struct {
	ID        string          `json:"id"`
	Route     string          `json:"route"`
	Quiz      map[string]int  `json:"quiz,omitempty"`
	Checks    map[string]int  `json:"checks,omitempty"`
	Exam      *quiz.ExamState `json:"exam,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s MountState) clone() MountState {
	s.Quiz = maps.Clone(s.Quiz)
	s.Checks = maps.Clone(s.Checks)
	if s.Exam != nil {
		ex := *s.Exam
		ex.QuestionIDs = append([]string(nil), ex.QuestionIDs...)
		ex.Answers = maps.Clone(ex.Answers)
		ex.Flagged = append([]string(nil), ex.Flagged...)
		s.Exam = &ex
	}
	return s
}

// Store persists mount state. Implementations expire mounts after their TTL.
type Store interface {
	Save(ctx context.Context, st MountState) error
	Get(ctx context.Context, id string) (MountState, error)
	Delete(ctx context.Context, id string) error
}
