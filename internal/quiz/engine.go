package quiz

// Score summarises an engine's answers. Unanswered questions count as not
// correct but are reported separately from incorrect ones.
type Score struct {
	Correct    int `json:"correct"`
	Incorrect  int `json:"incorrect"`
	Unanswered int `json:"unanswered"`
	Total      int `json:"total"`
}

// Answered returns the number of questions with a recorded choice.
func (s Score) Answered() int {
	return s.Correct + s.Incorrect
}

// Complete reports whether every question has been answered.
func (s Score) Complete() bool {
	return s.Total > 0 && s.Unanswered == 0
}

// Percent returns the correct share of all questions, rounded half up.
// An empty quiz scores 0.
func (s Score) Percent() int {
	if s.Total == 0 {
		return 0
	}
	return (s.Correct*200 + s.Total) / (2 * s.Total)
}

// Engine tracks a learner's choices across an ordered list of questions.
// Selecting an answer reveals that question's explanation immediately.
//
// Question ids are expected to be unique; when they are not, every lookup
// resolves to the first question with that id.
type Engine struct {
	title     string
	questions []Question
	index     map[string]int
	answers   map[string]int
}

// NewEngine creates an engine with no recorded answers.
func NewEngine(title string, questions []Question) *Engine {
	e := &Engine{
		title:     title,
		questions: questions,
		index:     make(map[string]int, len(questions)),
		answers:   make(map[string]int),
	}
	for i, q := range questions {
		if _, dup := e.index[q.ID]; !dup {
			e.index[q.ID] = i
		}
	}
	return e
}

// Restore creates an engine and replays previously recorded answers.
// Entries that no longer match a question or option are dropped.
func Restore(title string, questions []Question, answers map[string]int) *Engine {
	e := NewEngine(title, questions)
	for id, opt := range answers {
		e.Select(id, opt)
	}
	return e
}

// Title returns the quiz title.
func (e *Engine) Title() string { return e.title }

// Questions returns the questions in presentation order.
func (e *Engine) Questions() []Question { return e.questions }

// Empty reports whether the engine has no questions to present.
func (e *Engine) Empty() bool { return len(e.questions) == 0 }

// Question looks up a question by id.
func (e *Engine) Question(id string) (Question, bool) {
	i, ok := e.index[id]
	if !ok {
		return Question{}, false
	}
	return e.questions[i], true
}

// Select records option as the learner's choice for question id, replacing
// any earlier choice. It reports whether the choice was recorded; unknown ids
// and out-of-range options are ignored.
func (e *Engine) Select(id string, option int) bool {
	q, ok := e.Question(id)
	if !ok || !q.ValidOption(option) {
		return false
	}
	e.answers[id] = option
	return true
}

// Chosen returns the recorded option for question id.
func (e *Engine) Chosen(id string) (int, bool) {
	opt, ok := e.answers[id]
	return opt, ok
}

// Status reports whether question id is unanswered, correct or incorrect.
func (e *Engine) Status(id string) Status {
	q, ok := e.Question(id)
	if !ok {
		return Unanswered
	}
	opt, answered := e.answers[id]
	if !answered {
		return Unanswered
	}
	return q.Grade(opt)
}

// IsCorrect reports whether the recorded choice for id is correct. answered
// is false when no choice has been recorded, which is distinct from an
// incorrect answer.
func (e *Engine) IsCorrect(id string) (correct, answered bool) {
	switch e.Status(id) {
	case Correct:
		return true, true
	case Incorrect:
		return false, true
	}
	return false, false
}

// Explanation returns the explanation for id once it has been answered.
func (e *Engine) Explanation(id string) (string, bool) {
	if _, answered := e.answers[id]; !answered {
		return "", false
	}
	q, _ := e.Question(id)
	return q.Explanation, true
}

// Repeated reports whether the question at position i reuses the id of an
// earlier question. Answers for that id belong to the first occurrence.
func (e *Engine) Repeated(i int) bool {
	if i < 0 || i >= len(e.questions) {
		return false
	}
	return e.index[e.questions[i].ID] != i
}

// StatusAt is Status for the question at position i. Repeated occurrences
// are always unanswered, matching Score.
func (e *Engine) StatusAt(i int) Status {
	if i < 0 || i >= len(e.questions) || e.Repeated(i) {
		return Unanswered
	}
	return e.Status(e.questions[i].ID)
}

// Score counts correct, incorrect and unanswered questions. A question
// answered several times counts once, by its latest choice.
func (e *Engine) Score() Score {
	s := Score{Total: len(e.questions)}
	for i := range e.questions {
		switch e.StatusAt(i) {
		case Correct:
			s.Correct++
		case Incorrect:
			s.Incorrect++
		default:
			s.Unanswered++
		}
	}
	return s
}

// Answers returns a copy of the recorded choices keyed by question id.
func (e *Engine) Answers() map[string]int {
	out := make(map[string]int, len(e.answers))
	for id, opt := range e.answers {
		out[id] = opt
	}
	return out
}

// Reset discards every recorded choice.
func (e *Engine) Reset() {
	e.answers = make(map[string]int)
}
