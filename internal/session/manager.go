package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elec-mate/coursepages/internal/content"
	"github.com/elec-mate/coursepages/internal/events"
	"github.com/elec-mate/coursepages/internal/metrics"
	"github.com/elec-mate/coursepages/internal/platform/config"
	"github.com/elec-mate/coursepages/internal/quiz"
)

// Widget names the interactive component an answer is meant for.
type Widget string

const (
	WidgetQuiz  Widget = "quiz"
	WidgetCheck Widget = "check"
	WidgetExam  Widget = "exam"
)

// ParseWidget validates a widget name.
func ParseWidget(s string) (Widget, error) {
	switch w := Widget(s); w {
	case WidgetQuiz, WidgetCheck, WidgetExam:
		return w, nil
	}
	return "", fmt.Errorf("unknown widget %q", s)
}

// Answer is one learner selection.
type Answer struct {
	Widget     Widget `json:"widget"`
	QuestionID string `json:"question_id"`
	Option     int    `json:"option"`
}

// Feedback is what the learner sees after answering. Exam answers are not
// graded until the exam is submitted.
type Feedback struct {
	Widget      Widget      `json:"widget"`
	QuestionID  string      `json:"question_id"`
	Accepted    bool        `json:"accepted"`
	Graded      bool        `json:"graded"`
	Status      quiz.Status `json:"status"`
	Chosen      int         `json:"chosen"`
	Explanation string      `json:"explanation,omitempty"`
	Score       *quiz.Score `json:"score,omitempty"`
}

// Move is an exam navigation command.
type Move string

const (
	MoveGoto        Move = "goto"
	MoveNext        Move = "next"
	MovePrevious    Move = "previous"
	MoveNextFlagged Move = "next-flagged"
)

// Pages resolves routes to loaded pages.
type Pages interface {
	Lookup(route string) (*content.Page, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithEvents records learner interactions to l.
func WithEvents(l events.Logger) Option {
	return func(m *Manager) { m.events = l }
}

// WithMetrics counts answers, exams and mounts.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock replaces the time source used for exam clocks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRand replaces the source used to sample exam questions.
func WithRand(rng func() *rand.Rand) Option {
	return func(m *Manager) { m.rng = rng }
}

// WithExamDefaults sets the settings used by exam blocks without overrides.
func WithExamDefaults(s quiz.ExamSettings) Option {
	return func(m *Manager) { m.exam = s }
}

// DefaultExamSettings is the published mock exam format.
var DefaultExamSettings = quiz.ExamSettings{
	QuestionCount: 30,
	Duration:      45 * time.Minute,
	Distribution:  quiz.DefaultDistribution,
	PassMark:      70,
	MarginalMark:  60,
}

// ExamSettingsFrom applies the configured exam defaults over
// DefaultExamSettings. The distribution is not configurable.
func ExamSettingsFrom(c config.ExamConfig) quiz.ExamSettings {
	s := DefaultExamSettings
	s.QuestionCount = c.QuestionCount
	s.Duration = c.Duration
	s.PassMark = c.PassMark
	s.MarginalMark = c.MarginalMark
	return s
}

// Manager creates mounts and applies learner input to them. Each operation is
// a load, modify, save cycle serialised by the manager.
type Manager struct {
	store   Store
	pages   Pages
	events  events.Logger
	metrics *metrics.Metrics
	exam    quiz.ExamSettings
	now     func() time.Time
	rng     func() *rand.Rand
	mu      sync.Mutex
}

// NewManager creates a manager backed by store.
func NewManager(store Store, pages Pages, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		pages:  pages,
		events: events.NopLogger{},
		exam:   DefaultExamSettings,
		now:    time.Now,
		rng: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ExamDefaults returns the settings exams fall back to.
func (m *Manager) ExamDefaults() quiz.ExamSettings { return m.exam }

// Mount creates a fresh attempt for the page at route.
func (m *Manager) Mount(ctx context.Context, route string) (*Mount, error) {
	page, err := m.pages.Lookup(route)
	if err != nil {
		return nil, err
	}
	now := m.now()
	st := MountState{
		ID:        uuid.NewString(),
		Route:     page.Route,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("saving mount: %w", err)
	}
	if m.metrics != nil {
		m.metrics.MountsCreated.Inc()
	}
	m.log(st, events.TypeMounted, map[string]any{"kind": string(page.Kind)})
	return m.hydrate(page, st, now), nil
}

// Open loads a live mount.
func (m *Manager) Open(ctx context.Context, id string) (*Mount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx, id)
}

// Answer records a selection and returns the resulting feedback. Unknown
// question ids and out-of-range options leave the state unchanged and come
// back with Accepted false.
func (m *Manager) Answer(ctx context.Context, id string, a Answer) (Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.load(ctx, id)
	if err != nil {
		return Feedback{}, err
	}

	fb := Feedback{Widget: a.Widget, QuestionID: a.QuestionID, Chosen: a.Option}
	switch a.Widget {
	case WidgetQuiz:
		fb.Accepted = mt.Quiz.Select(a.QuestionID, a.Option)
		fb.Graded = true
		fb.Status = mt.Quiz.Status(a.QuestionID)
		fb.Explanation, _ = mt.Quiz.Explanation(a.QuestionID)
		score := mt.Quiz.Score()
		fb.Score = &score
	case WidgetCheck:
		if c := mt.Check(a.QuestionID); c != nil {
			fb.Accepted = c.Select(a.Option)
			fb.Graded = true
			fb.Status = c.Status()
			fb.Explanation, _ = c.Explanation()
		}
	case WidgetExam:
		if mt.Exam == nil {
			break
		}
		err := mt.Exam.Select(mt.Now, a.QuestionID, a.Option)
		switch {
		case errors.Is(err, quiz.ErrExamClosed), errors.Is(err, quiz.ErrExamNotStarted):
			return fb, err
		}
		fb.Accepted = err == nil
	default:
		return fb, fmt.Errorf("unknown widget %q", a.Widget)
	}

	if !fb.Accepted {
		return fb, nil
	}
	if err := m.save(ctx, mt); err != nil {
		return Feedback{}, err
	}
	outcome := "recorded"
	if fb.Graded {
		outcome = fb.Status.String()
	}
	if m.metrics != nil {
		m.metrics.Answers.WithLabelValues(string(a.Widget), outcome).Inc()
	}
	m.log(mt.state, events.TypeAnswered, map[string]any{
		"widget":      string(a.Widget),
		"question_id": a.QuestionID,
		"option":      a.Option,
		"outcome":     outcome,
	})
	return fb, nil
}

// ToggleFlag flags or unflags an exam question and reports the new state.
func (m *Manager) ToggleFlag(ctx context.Context, id, questionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.load(ctx, id)
	if err != nil {
		return false, err
	}
	if mt.Exam == nil || mt.Exam.Phase(mt.Now) != quiz.InProgress {
		return false, quiz.ErrExamClosed
	}
	flagged := mt.Exam.ToggleFlag(questionID)
	if err := m.save(ctx, mt); err != nil {
		return false, err
	}
	m.log(mt.state, events.TypeFlagged, map[string]any{"question_id": questionID, "flagged": flagged})
	return flagged, nil
}

// StartExam samples a new sitting and starts its clock. Restarting discards
// the previous sitting.
func (m *Manager) StartExam(ctx context.Context, id string) (*Mount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if mt.Exam == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoExam, mt.Page.Route)
	}
	mt.Exam.Start(mt.Now, m.rng())
	if err := m.save(ctx, mt); err != nil {
		return nil, err
	}
	m.log(mt.state, events.TypeExamStarted, map[string]any{
		"questions": len(mt.Exam.Questions()),
		"deadline":  mt.Exam.State().Deadline,
	})
	return mt, nil
}

// SubmitExam ends the sitting and returns its result.
func (m *Manager) SubmitExam(ctx context.Context, id string) (quiz.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.load(ctx, id)
	if err != nil {
		return quiz.Result{}, err
	}
	if mt.Exam == nil || mt.Exam.Phase(mt.Now) == quiz.NotStarted {
		return quiz.Result{}, quiz.ErrExamNotStarted
	}
	if mt.state.Exam != nil && mt.state.Exam.Submitted {
		return mt.Exam.Result(), nil
	}
	mt.Exam.Submit()
	if err := m.save(ctx, mt); err != nil {
		return quiz.Result{}, err
	}
	res := mt.Exam.Result()
	m.submitted(mt, res, false)
	return res, nil
}

// Navigate moves the exam cursor. Out-of-range moves leave it in place.
func (m *Manager) Navigate(ctx context.Context, id string, move Move, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if mt.Exam == nil || mt.Exam.Phase(mt.Now) == quiz.NotStarted {
		return quiz.ErrExamNotStarted
	}
	switch move {
	case MoveGoto:
		mt.Exam.Goto(index)
	case MoveNext:
		mt.Exam.Next()
	case MovePrevious:
		mt.Exam.Previous()
	case MoveNextFlagged:
		mt.Exam.NextFlagged()
	default:
		return fmt.Errorf("unknown move %q", move)
	}
	return m.save(ctx, mt)
}

// Unmount discards a mount.
func (m *Manager) Unmount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.MountsClosed.WithLabelValues(metrics.ReasonUnmounted).Inc()
	}
	m.log(st, events.TypeUnmounted, nil)
	return nil
}

// load hydrates mount id. An exam whose clock has run out is submitted and
// saved before the mount is returned.
func (m *Manager) load(ctx context.Context, id string) (*Mount, error) {
	st, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	page, err := m.pages.Lookup(st.Route)
	if err != nil {
		return nil, fmt.Errorf("%w: page for %s is gone: %v", ErrMountNotFound, id, err)
	}
	mt := m.hydrate(page, st, m.now())
	if mt.autoSubmitted {
		if err := m.save(ctx, mt); err != nil {
			return nil, err
		}
		m.submitted(mt, mt.Exam.Result(), true)
	}
	return mt, nil
}

func (m *Manager) hydrate(page *content.Page, st MountState, now time.Time) *Mount {
	mt := &Mount{
		ID:     st.ID,
		Page:   page,
		Now:    now,
		Quiz:   quiz.Restore(quizTitle(page), page.QuizQuestions(), st.Quiz),
		checks: make(map[string]*quiz.Check, len(page.Checks)),
		state:  st,
	}
	for _, q := range page.Checks {
		if _, dup := mt.checks[q.ID]; dup {
			continue
		}
		c := quiz.NewCheck(q)
		if opt, ok := st.Checks[q.ID]; ok {
			c.Select(opt)
		}
		mt.checks[q.ID] = c
	}
	if page.HasExam() {
		settings := page.Exam.Settings(m.exam)
		if st.Exam != nil {
			mt.Exam = quiz.RestoreExam(page.Exam.Bank, settings, *st.Exam)
		} else {
			mt.Exam = quiz.NewExam(page.Exam.Bank, settings)
		}
		wasOpen := st.Exam != nil && !st.Exam.Submitted
		mt.autoSubmitted = wasOpen && mt.Exam.Phase(now) == quiz.Submitted
	}
	return mt
}

func (m *Manager) save(ctx context.Context, mt *Mount) error {
	mt.state = mt.snapshot()
	mt.state.UpdatedAt = mt.Now
	if err := m.store.Save(ctx, mt.state); err != nil {
		return fmt.Errorf("saving mount %s: %w", mt.ID, err)
	}
	return nil
}

func (m *Manager) submitted(mt *Mount, res quiz.Result, auto bool) {
	if m.metrics != nil {
		m.metrics.ExamsSubmitted.WithLabelValues(string(res.Grade)).Inc()
	}
	m.log(mt.state, events.TypeExamSubmitted, map[string]any{
		"percent": res.Percent,
		"grade":   string(res.Grade),
		"correct": res.Score.Correct,
		"total":   res.Score.Total,
		"auto":    auto,
	})
}

func (m *Manager) log(st MountState, eventType string, data map[string]any) {
	err := m.events.LogEvent(events.Event{
		MountID:   st.ID,
		Route:     st.Route,
		EventType: eventType,
		Data:      data,
	})
	if err != nil {
		slog.Warn("failed to log event", "type", eventType, "mount_id", st.ID, "error", err)
	}
}

func quizTitle(p *content.Page) string {
	if p.Quiz == nil {
		return ""
	}
	return p.Quiz.Title
}

// Mount is a hydrated page attempt: the page plus live widget state.
type Mount struct {
	ID   string
	Page *content.Page
	Quiz *quiz.Engine
	// Exam is nil when the page hosts no exam.
	Exam *quiz.Exam
	// Now is the instant the mount was loaded; exam clocks are read against it.
	Now time.Time

	checks        map[string]*quiz.Check
	state         MountState
	autoSubmitted bool
}

// Check returns the inline check for question id, or nil when the page has no
// such check.
func (mt *Mount) Check(id string) *quiz.Check {
	return mt.checks[id]
}

// State returns the persisted form of the mount as last loaded or saved.
func (mt *Mount) State() MountState {
	return mt.state.clone()
}

func (mt *Mount) snapshot() MountState {
	st := mt.state
	st.Quiz = mt.Quiz.Answers()
	st.Checks = make(map[string]int, len(mt.checks))
	for id, c := range mt.checks {
		if opt, ok := c.Chosen(); ok {
			st.Checks[id] = opt
		}
	}
	st.Exam = nil
	if mt.Exam != nil && mt.Exam.Phase(mt.Now) != quiz.NotStarted {
		ex := mt.Exam.State()
		st.Exam = &ex
	}
	return st
}
