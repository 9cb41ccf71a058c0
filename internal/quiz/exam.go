package quiz

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"
)

var (
	// ErrExamNotStarted is returned when answering before Start.
	ErrExamNotStarted = errors.New("exam not started")
	// ErrExamClosed is returned when answering after submission or expiry.
	ErrExamClosed = errors.New("exam closed")
)

// Distribution is the relative weight of each difficulty in a sampled exam.
type Distribution struct {
	Basic        int `yaml:"basic" json:"basic"`
	Intermediate int `yaml:"intermediate" json:"intermediate"`
	Advanced     int `yaml:"advanced" json:"advanced"`
}

// DefaultDistribution mirrors the published mock exam mix.
var DefaultDistribution = Distribution{Basic: 40, Intermediate: 45, Advanced: 15}

// Total returns the sum of the weights.
func (d Distribution) Total() int {
	return d.Basic + d.Intermediate + d.Advanced
}

// Counts splits n questions across difficulties. Basic and intermediate are
// rounded half up; advanced takes the remainder.
func (d Distribution) Counts(n int) (basic, intermediate, advanced int) {
	total := d.Total()
	if total <= 0 || n <= 0 {
		return 0, 0, 0
	}
	basic = roundDiv(n*d.Basic, total)
	intermediate = roundDiv(n*d.Intermediate, total)
	if basic+intermediate > n {
		intermediate = n - basic
	}
	advanced = n - basic - intermediate
	return basic, intermediate, advanced
}

func roundDiv(a, b int) int {
	return (2*a + b) / (2 * b)
}

// Sample draws count questions from bank following d, then shuffles the
// selection. A difficulty with too few questions contributes all it has, so
// the result can be shorter than count.
func Sample(bank []Question, count int, d Distribution, rng *rand.Rand) []Question {
	nb, ni, na := d.Counts(count)
	pools := map[Difficulty][]Question{}
	for _, q := range bank {
		diff := q.Difficulty
		if diff == "" {
			diff = Basic
		}
		pools[diff] = append(pools[diff], q)
	}

	var out []Question
	take := func(diff Difficulty, n int) {
		pool := slices.Clone(pools[diff])
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		out = append(out, pool[:min(n, len(pool))]...)
	}
	take(Basic, nb)
	take(Intermediate, ni)
	take(Advanced, na)

	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// Grade is the outcome band of a submitted exam.
type Grade string

const (
	Pass     Grade = "pass"
	Marginal Grade = "marginal"
	Fail     Grade = "fail"
)

// ExamSettings configures a mock exam.
type ExamSettings struct {
	QuestionCount int
	Duration      time.Duration
	Distribution  Distribution
	PassMark      int
	MarginalMark  int
}

// GradeFor maps a percentage onto a grade band.
func (s ExamSettings) GradeFor(percent int) Grade {
	switch {
	case percent >= s.PassMark:
		return Pass
	case percent >= s.MarginalMark:
		return Marginal
	}
	return Fail
}

// Phase is the lifecycle stage of an exam.
type Phase string

const (
	NotStarted Phase = "not_started"
	InProgress Phase = "in_progress"
	Submitted  Phase = "submitted"
)

// ReviewFilter selects questions on the results screen.
type ReviewFilter string

const (
	ReviewAll        ReviewFilter = "all"
	ReviewCorrect    ReviewFilter = "correct"
	ReviewIncorrect  ReviewFilter = "incorrect"
	ReviewUnanswered ReviewFilter = "unanswered"
	ReviewFlagged    ReviewFilter = "flagged"
)

// ParseReviewFilter maps a query value onto a filter; unknown values mean all.
func ParseReviewFilter(s string) ReviewFilter {
	switch f := ReviewFilter(s); f {
	case ReviewCorrect, ReviewIncorrect, ReviewUnanswered, ReviewFlagged:
		return f
	}
	return ReviewAll
}

// Result is the scored outcome of an exam.
type Result struct {
	Score   Score `json:"score"`
	Percent int   `json:"percent"`
	Grade   Grade `json:"grade"`
}

// Summary is the progress overview shown while sitting an exam.
type Summary struct {
	Answered   int `json:"answered"`
	Unanswered int `json:"unanswered"`
	Flagged    int `json:"flagged"`
}

// ExamState is the persisted form of an Exam.
type ExamState struct {
	QuestionIDs []string       `json:"question_ids,omitempty"`
	Answers     map[string]int `json:"answers,omitempty"`
	Flagged     []string       `json:"flagged,omitempty"`
	Current     int            `json:"current"`
	StartedAt   time.Time      `json:"started_at,omitzero"`
	Deadline    time.Time      `json:"deadline,omitzero"`
	Submitted   bool           `json:"submitted,omitempty"`
}

// Exam is a timed mock exam sampled from a question bank.
type Exam struct {
	settings  ExamSettings
	bank      []Question
	engine    *Engine
	flagged   map[string]bool
	current   int
	startedAt time.Time
	deadline  time.Time
	submitted bool
}

// NewExam creates an exam that has not been started.
func NewExam(bank []Question, settings ExamSettings) *Exam {
	return &Exam{
		settings: settings,
		bank:     bank,
		flagged:  make(map[string]bool),
	}
}

// RestoreExam rebuilds an exam from persisted state. Question ids missing
// from the bank are skipped.
func RestoreExam(bank []Question, settings ExamSettings, st ExamState) *Exam {
	x := NewExam(bank, settings)
	if len(st.QuestionIDs) == 0 {
		return x
	}
	byID := make(map[string]Question, len(bank))
	for _, q := range bank {
		if _, ok := byID[q.ID]; !ok {
			byID[q.ID] = q
		}
	}
	qs := make([]Question, 0, len(st.QuestionIDs))
	for _, id := range st.QuestionIDs {
		if q, ok := byID[id]; ok {
			qs = append(qs, q)
		}
	}
	x.engine = Restore("", qs, st.Answers)
	for _, id := range st.Flagged {
		if _, ok := x.engine.Question(id); ok {
			x.flagged[id] = true
		}
	}
	x.current = max(0, min(st.Current, len(qs)-1))
	x.startedAt = st.StartedAt
	x.deadline = st.Deadline
	x.submitted = st.Submitted
	return x
}

// State returns the persisted form of x.
func (x *Exam) State() ExamState {
	st := ExamState{
		Current:   x.current,
		StartedAt: x.startedAt,
		Deadline:  x.deadline,
		Submitted: x.submitted,
	}
	if x.engine == nil {
		return st
	}
	for _, q := range x.engine.Questions() {
		st.QuestionIDs = append(st.QuestionIDs, q.ID)
	}
	st.Answers = x.engine.Answers()
	for _, q := range x.engine.Questions() {
		if x.flagged[q.ID] {
			st.Flagged = append(st.Flagged, q.ID)
		}
	}
	return st
}

// Settings returns the exam configuration.
func (x *Exam) Settings() ExamSettings { return x.settings }

// Start samples a fresh set of questions and starts the clock. Starting again
// discards the previous sitting.
func (x *Exam) Start(now time.Time, rng *rand.Rand) {
	qs := Sample(x.bank, x.settings.QuestionCount, x.settings.Distribution, rng)
	x.engine = NewEngine("", qs)
	x.flagged = make(map[string]bool)
	x.current = 0
	x.startedAt = now
	x.deadline = now.Add(x.settings.Duration)
	x.submitted = false
}

// Phase reports the lifecycle stage at now. An expired exam is submitted.
func (x *Exam) Phase(now time.Time) Phase {
	x.expire(now)
	switch {
	case x.engine == nil:
		return NotStarted
	case x.submitted:
		return Submitted
	}
	return InProgress
}

func (x *Exam) expire(now time.Time) {
	if x.engine != nil && !x.submitted && x.settings.Duration > 0 && !now.Before(x.deadline) {
		x.submitted = true
	}
}

// Expired reports whether the clock has run out.
func (x *Exam) Expired(now time.Time) bool {
	return x.engine != nil && x.settings.Duration > 0 && !now.Before(x.deadline)
}

// Remaining returns the time left on the clock, never negative.
func (x *Exam) Remaining(now time.Time) time.Duration {
	if x.engine == nil || x.submitted {
		return 0
	}
	return max(0, x.deadline.Sub(now))
}

// Questions returns the sampled questions in presentation order.
func (x *Exam) Questions() []Question {
	if x.engine == nil {
		return nil
	}
	return x.engine.Questions()
}

// Engine exposes per-question answer state of the current sitting.
func (x *Exam) Engine() *Engine {
	if x.engine == nil {
		return NewEngine("", nil)
	}
	return x.engine
}

// Select records an answer. Answers after expiry submit the exam and are
// rejected.
func (x *Exam) Select(now time.Time, id string, option int) error {
	switch x.Phase(now) {
	case NotStarted:
		return ErrExamNotStarted
	case Submitted:
		return ErrExamClosed
	}
	if !x.engine.Select(id, option) {
		return fmt.Errorf("question %q option %d not in exam", id, option)
	}
	return nil
}

// ToggleFlag flags or unflags question id and reports the new flag state.
func (x *Exam) ToggleFlag(id string) bool {
	if x.engine == nil {
		return false
	}
	if _, ok := x.engine.Question(id); !ok {
		return false
	}
	if x.flagged[id] {
		delete(x.flagged, id)
		return false
	}
	x.flagged[id] = true
	return true
}

// Flagged reports whether question id is flagged.
func (x *Exam) Flagged(id string) bool { return x.flagged[id] }

// Current returns the index of the question on screen.
func (x *Exam) Current() int { return x.current }

// Goto moves to question i and reports whether i was in range.
func (x *Exam) Goto(i int) bool {
	if i < 0 || i >= len(x.Questions()) {
		return false
	}
	x.current = i
	return true
}

// Next moves forward one question, stopping at the last.
func (x *Exam) Next() bool { return x.Goto(x.current + 1) }

// Previous moves back one question, stopping at the first.
func (x *Exam) Previous() bool { return x.Goto(x.current - 1) }

// NextFlagged moves to the next flagged question after the current one,
// wrapping to the first flagged question. It reports false when nothing is
// flagged.
func (x *Exam) NextFlagged() bool {
	var flagged []int
	for i, q := range x.Questions() {
		if x.flagged[q.ID] {
			flagged = append(flagged, i)
		}
	}
	if len(flagged) == 0 {
		return false
	}
	for _, i := range flagged {
		if i > x.current {
			x.current = i
			return true
		}
	}
	x.current = flagged[0]
	return true
}

// Submit ends the sitting.
func (x *Exam) Submit() {
	if x.engine != nil {
		x.submitted = true
	}
}

// Result scores the sitting.
func (x *Exam) Result() Result {
	s := x.Engine().Score()
	p := s.Percent()
	return Result{Score: s, Percent: p, Grade: x.settings.GradeFor(p)}
}

// Summary counts answered, unanswered and flagged questions.
func (x *Exam) Summary() Summary {
	s := x.Engine().Score()
	return Summary{
		Answered:   s.Answered(),
		Unanswered: s.Unanswered,
		Flagged:    len(x.flagged),
	}
}

// Review returns the indexes of questions matching f.
func (x *Exam) Review(f ReviewFilter) []int {
	var out []int
	for i, q := range x.Questions() {
		keep := true
		switch f {
		case ReviewCorrect:
			keep = x.engine.Status(q.ID) == Correct
		case ReviewIncorrect:
			keep = x.engine.Status(q.ID) == Incorrect
		case ReviewUnanswered:
			keep = x.engine.Status(q.ID) == Unanswered
		case ReviewFlagged:
			keep = x.flagged[q.ID]
		}
		if keep {
			out = append(out, i)
		}
	}
	return out
}

// FormatClock renders d as m:ss.
func FormatClock(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
