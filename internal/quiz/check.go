package quiz

// Check is a single-question formative check embedded in reading content.
// It has the same per-question semantics as Engine but no aggregate score.
// Each Check owns its selection; copies of the same Question in other checks
// are unaffected by Select.
type Check struct {
	question Question
	chosen   int
	answered bool
}

// NewCheck creates an unanswered check for q.
func NewCheck(q Question) *Check {
	return &Check{question: q}
}

// Question returns the question this check presents.
func (c *Check) Question() Question { return c.question }

// Select records option as the learner's choice, replacing any earlier one.
// Out-of-range options are ignored and reported as false.
func (c *Check) Select(option int) bool {
	if !c.question.ValidOption(option) {
		return false
	}
	c.chosen = option
	c.answered = true
	return true
}

// Chosen returns the recorded option.
func (c *Check) Chosen() (int, bool) {
	return c.chosen, c.answered
}

// Status reports whether the check is unanswered, correct or incorrect.
func (c *Check) Status() Status {
	if !c.answered {
		return Unanswered
	}
	return c.question.Grade(c.chosen)
}

// Explanation returns the explanation once an option has been chosen.
func (c *Check) Explanation() (string, bool) {
	if !c.answered {
		return "", false
	}
	return c.question.Explanation, true
}

// Reset clears the recorded choice.
func (c *Check) Reset() {
	c.chosen, c.answered = 0, false
}
